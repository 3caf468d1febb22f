// Package gateway moves value between external accounts and custody.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrTransferFailed is returned when value could not be moved.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrTransferPending is returned when a transfer was submitted but its
	// outcome is not known yet. The value may still move.
	ErrTransferPending = errors.New("transfer pending")
)

// PendingError reports a submitted transfer whose outcome is unknown.
// Reference identifies the submission, for example a transaction hash.
type PendingError struct {
	Reference string
	Err       error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("transfer %s pending: %v", e.Reference, e.Err)
}

func (e *PendingError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransferPending) match.
func (e *PendingError) Is(target error) bool {
	return target == ErrTransferPending
}

// Direction of a transfer relative to custody.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Transfer describes one movement of value.
type Transfer struct {
	Asset   common.Address
	Account common.Address
	Amount  *uint256.Int
	// Reference identifies the value attached to a native deposit, for
	// example the hash of the inbound transaction.
	Reference string
}

// Gateway pulls value into custody and pushes it back out.
//
// A nil error means the full amount moved. An error matching
// ErrTransferPending means the transfer was submitted and may still settle,
// any other error means nothing moved.
//
// Implementations that call back into the vault must pass the ctx they were
// given, which marks the call as coming from inside the running operation.
// Callbacks made with another context are rejected only once the operation
// has been blocked for the vault's reentry wait.
//
//go:generate mockery --name Gateway --output mocks --outpkg mocks --filename mock_gateway.go --with-expecter
type Gateway interface {
	Pull(ctx context.Context, t Transfer) error
	Push(ctx context.Context, t Transfer) error
}
