// Package asset defines how custodied assets are identified and how their
// precision is discovered.
package asset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Native is the reserved identifier of the chain's native asset.
var Native = common.Address{}

// NativeDecimals is the fixed precision of the native asset.
const NativeDecimals uint8 = 18

// ErrUnknownAsset is returned when no precision is known for an asset.
var ErrUnknownAsset = errors.New("unknown asset")

// IsNative reports whether id refers to the native asset.
func IsNative(id common.Address) bool {
	return id == Native
}

// Metadata reports the precision of a registered asset.
//
// Implementations must not cache: the value is read on every call.
type Metadata interface {
	Decimals(ctx context.Context, id common.Address) (uint8, error)
}

// StaticMetadata is an in-memory Metadata used in simulation mode and tests.
type StaticMetadata struct {
	mu       sync.RWMutex
	decimals map[common.Address]uint8
}

// NewStaticMetadata creates a StaticMetadata seeded with the given precisions.
func NewStaticMetadata(seed map[common.Address]uint8) *StaticMetadata {
	m := &StaticMetadata{decimals: make(map[common.Address]uint8, len(seed))}
	for id, d := range seed {
		m.decimals[id] = d
	}
	return m
}

// Set records (or changes) the precision reported for id.
func (m *StaticMetadata) Set(id common.Address, decimals uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decimals[id] = decimals
}

// Decimals implements Metadata.
func (m *StaticMetadata) Decimals(_ context.Context, id common.Address) (uint8, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.decimals[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, id.Hex())
	}
	return d, nil
}
