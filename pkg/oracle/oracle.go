// Package oracle reads USD prices from aggregator-style price feeds.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrPriceStaleOrNegative is returned when a feed reports a non-positive
	// answer or has never been updated.
	ErrPriceStaleOrNegative = errors.New("price stale or negative")
	// ErrFeedUnavailable is returned when the feed itself cannot be queried.
	ErrFeedUnavailable = errors.New("price feed unavailable")
)

// RoundData is the latest round reported by a feed.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// Feed is a single price feed.
type Feed interface {
	LatestRoundData(ctx context.Context) (RoundData, error)
	Decimals(ctx context.Context) (uint8, error)
}

// Source resolves a feed reference to a queryable Feed.
type Source interface {
	Feed(ref common.Address) (Feed, error)
}

// Price is a validated feed reading.
type Price struct {
	Value     *uint256.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Adapter validates feed readings. It never retries: one failed read is
// returned to the caller as is.
type Adapter struct {
	source Source
}

// NewAdapter creates an Adapter reading feeds from source.
func NewAdapter(source Source) *Adapter {
	return &Adapter{source: source}
}

// Read returns the latest price reported by the feed at ref.
func (a *Adapter) Read(ctx context.Context, ref common.Address) (Price, error) {
	feed, err := a.source.Feed(ref)
	if err != nil {
		return Price{}, fmt.Errorf("%w: %s: %v", ErrFeedUnavailable, ref.Hex(), err)
	}

	round, err := feed.LatestRoundData(ctx)
	if err != nil {
		return Price{}, fmt.Errorf("%w: latest round of %s: %v", ErrFeedUnavailable, ref.Hex(), err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return Price{}, fmt.Errorf("%w: feed %s answered %v", ErrPriceStaleOrNegative, ref.Hex(), round.Answer)
	}
	if round.UpdatedAt == nil || round.UpdatedAt.Sign() == 0 {
		return Price{}, fmt.Errorf("%w: feed %s never updated", ErrPriceStaleOrNegative, ref.Hex())
	}

	value, overflow := uint256.FromBig(round.Answer)
	if overflow {
		return Price{}, fmt.Errorf("%w: feed %s answer out of range", ErrPriceStaleOrNegative, ref.Hex())
	}

	decimals, err := feed.Decimals(ctx)
	if err != nil {
		return Price{}, fmt.Errorf("%w: decimals of %s: %v", ErrFeedUnavailable, ref.Hex(), err)
	}

	var updatedAt time.Time
	if round.UpdatedAt.IsInt64() {
		updatedAt = time.Unix(round.UpdatedAt.Int64(), 0).UTC()
	}

	return Price{Value: value, Decimals: decimals, UpdatedAt: updatedAt}, nil
}
