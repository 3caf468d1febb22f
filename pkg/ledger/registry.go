package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/custody-vault/pkg/asset"
)

var (
	// ErrInvalidFeed is returned when a binding names the zero asset or the zero feed.
	ErrInvalidFeed = errors.New("invalid feed")
	// ErrTokenNotSupported is returned when an asset has no feed bound.
	ErrTokenNotSupported = errors.New("token not supported")
)

// FeedRegistry maps assets to their price feeds. The native binding is
// fixed at construction.
type FeedRegistry struct {
	native common.Address
	feeds  map[common.Address]common.Address
}

// NewFeedRegistry creates a registry whose native asset is priced by nativeFeed.
func NewFeedRegistry(nativeFeed common.Address) (*FeedRegistry, error) {
	if nativeFeed == (common.Address{}) {
		return nil, fmt.Errorf("%w: native feed is the zero address", ErrInvalidFeed)
	}
	return &FeedRegistry{
		native: nativeFeed,
		feeds:  make(map[common.Address]common.Address),
	}, nil
}

// NativeFeed returns the feed pricing the native asset.
func (r *FeedRegistry) NativeFeed() common.Address {
	return r.native
}

// Set binds feed to id, overwriting any previous binding.
// The zero asset, which is also the native sentinel, cannot be rebound.
func (r *FeedRegistry) Set(id, feed common.Address) (Undo, error) {
	if id == (common.Address{}) {
		return nil, fmt.Errorf("%w: asset is the zero address", ErrInvalidFeed)
	}
	if feed == (common.Address{}) {
		return nil, fmt.Errorf("%w: feed is the zero address", ErrInvalidFeed)
	}
	prev, had := r.feeds[id]
	r.feeds[id] = feed
	return func() {
		if had {
			r.feeds[id] = prev
		} else {
			delete(r.feeds, id)
		}
	}, nil
}

// Resolve returns the feed bound to id.
func (r *FeedRegistry) Resolve(id common.Address) (common.Address, error) {
	if asset.IsNative(id) {
		return r.native, nil
	}
	feed, ok := r.feeds[id]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrTokenNotSupported, id.Hex())
	}
	return feed, nil
}

// Bindings returns a copy of the registered (non-native) bindings.
func (r *FeedRegistry) Bindings() map[common.Address]common.Address {
	out := make(map[common.Address]common.Address, len(r.feeds))
	for id, feed := range r.feeds {
		out[id] = feed
	}
	return out
}
