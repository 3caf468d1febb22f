package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StaticFeed is an in-memory feed whose answer is set explicitly.
type StaticFeed struct {
	mu        sync.RWMutex
	answer    *big.Int
	decimals  uint8
	updatedAt int64
	round     int64
}

// NewStaticFeed creates a feed answering answer with the given decimals,
// stamped with the current time.
func NewStaticFeed(answer int64, decimals uint8) *StaticFeed {
	f := &StaticFeed{decimals: decimals}
	f.SetAnswer(big.NewInt(answer))
	return f
}

// SetAnswer publishes a new round with the given answer.
func (f *StaticFeed) SetAnswer(answer *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = new(big.Int).Set(answer)
	f.updatedAt = time.Now().Unix()
	f.round++
}

// SetUpdatedAt overrides the timestamp of the current round. Zero marks the
// feed as never updated.
func (f *StaticFeed) SetUpdatedAt(ts int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedAt = ts
}

// LatestRoundData implements Feed.
func (f *StaticFeed) LatestRoundData(ctx context.Context) (RoundData, error) {
	if err := ctx.Err(); err != nil {
		return RoundData{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	round := big.NewInt(f.round)
	return RoundData{
		RoundID:         round,
		Answer:          new(big.Int).Set(f.answer),
		StartedAt:       big.NewInt(f.updatedAt),
		UpdatedAt:       big.NewInt(f.updatedAt),
		AnsweredInRound: new(big.Int).Set(round),
	}, nil
}

// Decimals implements Feed.
func (f *StaticFeed) Decimals(context.Context) (uint8, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.decimals, nil
}

// StaticSource is a Source over a fixed set of in-memory feeds.
type StaticSource struct {
	mu    sync.RWMutex
	feeds map[common.Address]*StaticFeed
}

// NewStaticSource creates an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{feeds: make(map[common.Address]*StaticFeed)}
}

// Add registers feed under ref, replacing any previous one.
func (s *StaticSource) Add(ref common.Address, feed *StaticFeed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[ref] = feed
}

// Feed implements Source.
func (s *StaticSource) Feed(ref common.Address) (Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.feeds[ref]
	if !ok {
		return nil, fmt.Errorf("no feed deployed at %s", ref.Hex())
	}
	return f, nil
}
