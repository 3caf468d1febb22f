// Package memory implements an in-process gateway used in simulation mode
// and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/chainsafe/custody-vault/pkg/asset"
	"github.com/chainsafe/custody-vault/pkg/gateway"
)

// Hook runs after a transfer has been validated and before it settles.
// Returning an error fails the transfer.
type Hook func(ctx context.Context, dir gateway.Direction, t gateway.Transfer) error

type key struct {
	asset   common.Address
	account common.Address
}

// Gateway keeps external balances, allowances and custody holdings in memory.
// Native pulls model attached value and need no allowance.
type Gateway struct {
	mu         sync.Mutex
	balances   map[key]*uint256.Int
	allowances map[key]*uint256.Int
	custody    map[common.Address]*uint256.Int
	failNext   error
	hook       Hook
}

// New creates an empty Gateway.
func New() *Gateway {
	return &Gateway{
		balances:   make(map[key]*uint256.Int),
		allowances: make(map[key]*uint256.Int),
		custody:    make(map[common.Address]*uint256.Int),
	}
}

// Credit adds amount to an external account.
func (g *Gateway) Credit(id, account common.Address, amount *uint256.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	add(g.balances, key{id, account}, amount)
}

// Approve sets the allowance custody may pull from owner.
func (g *Gateway) Approve(id, owner common.Address, amount *uint256.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowances[key{id, owner}] = new(uint256.Int).Set(amount)
}

// BalanceOf returns the external balance of account.
func (g *Gateway) BalanceOf(id, account common.Address) *uint256.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return get(g.balances, key{id, account})
}

// Allowance returns what custody may still pull from owner.
func (g *Gateway) Allowance(id, owner common.Address) *uint256.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return get(g.allowances, key{id, owner})
}

// Custody returns the amount of id held in custody.
func (g *Gateway) Custody(id common.Address) *uint256.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.custody[id]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

// FailNext makes the next Pull or Push fail with err.
func (g *Gateway) FailNext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = err
}

// SetHook installs h, replacing any previous hook. Nil removes it.
func (g *Gateway) SetHook(h Hook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hook = h
}

// Pull implements gateway.Gateway.
func (g *Gateway) Pull(ctx context.Context, t gateway.Transfer) error {
	if err := g.begin(ctx, gateway.DirectionIn, t); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	k := key{t.Asset, t.Account}
	bal := get(g.balances, k)
	if bal.Lt(t.Amount) {
		return fmt.Errorf("%w: %s holds %s, pull of %s", gateway.ErrTransferFailed, t.Account.Hex(), bal.Dec(), t.Amount.Dec())
	}
	if !asset.IsNative(t.Asset) {
		allowance := get(g.allowances, k)
		if allowance.Lt(t.Amount) {
			return fmt.Errorf("%w: allowance %s below %s", gateway.ErrTransferFailed, allowance.Dec(), t.Amount.Dec())
		}
		g.allowances[k] = allowance.Sub(allowance, t.Amount)
	}
	g.balances[k] = bal.Sub(bal, t.Amount)
	add(g.custody, t.Asset, t.Amount)
	return nil
}

// Push implements gateway.Gateway.
func (g *Gateway) Push(ctx context.Context, t gateway.Transfer) error {
	if err := g.begin(ctx, gateway.DirectionOut, t); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	held := new(uint256.Int)
	if v, ok := g.custody[t.Asset]; ok {
		held.Set(v)
	}
	if held.Lt(t.Amount) {
		return fmt.Errorf("%w: custody holds %s, push of %s", gateway.ErrTransferFailed, held.Dec(), t.Amount.Dec())
	}
	g.custody[t.Asset] = held.Sub(held, t.Amount)
	add(g.balances, key{t.Asset, t.Account}, t.Amount)
	return nil
}

// begin consumes an injected failure and runs the hook outside the lock so
// the hook may call back into the gateway.
func (g *Gateway) begin(ctx context.Context, dir gateway.Direction, t gateway.Transfer) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrTransferFailed, err)
	}
	if t.Amount == nil {
		return fmt.Errorf("%w: nil amount", gateway.ErrTransferFailed)
	}

	g.mu.Lock()
	failure := g.failNext
	g.failNext = nil
	hook := g.hook
	g.mu.Unlock()

	if failure != nil {
		return fmt.Errorf("%w: %v", gateway.ErrTransferFailed, failure)
	}
	if hook != nil {
		if err := hook(ctx, dir, t); err != nil {
			return fmt.Errorf("%w: %v", gateway.ErrTransferFailed, err)
		}
	}
	return nil
}

func get[K comparable](m map[K]*uint256.Int, k K) *uint256.Int {
	if v, ok := m[k]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func add[K comparable](m map[K]*uint256.Int, k K, amount *uint256.Int) {
	v, ok := m[k]
	if !ok {
		v = new(uint256.Int)
		m[k] = v
	}
	v.Add(v, amount)
}
