package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is matched by *InsufficientBalanceError.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrBalanceOverflow is returned when a credit would not fit in 256 bits.
	ErrBalanceOverflow = errors.New("balance overflow")
)

// InsufficientBalanceError reports a debit larger than the recorded balance.
type InsufficientBalanceError struct {
	Balance   *uint256.Int
	Requested *uint256.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %s, requested %s", e.Balance.Dec(), e.Requested.Dec())
}

// Is makes errors.Is(err, ErrInsufficientBalance) match.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// Key identifies a position.
type Key struct {
	Asset  common.Address
	Holder common.Address
}

// Position is a snapshot of one holder's stake in one asset.
type Position struct {
	Balance     *uint256.Int
	Deposits    uint64
	Withdrawals uint64
}

type position struct {
	balance     uint256.Int
	deposits    uint64
	withdrawals uint64
}

// AssetVault records balances and activity counters per (asset, holder).
// Positions appear on first deposit and are never removed.
type AssetVault struct {
	positions map[Key]*position
}

// NewAssetVault creates an empty vault.
func NewAssetVault() *AssetVault {
	return &AssetVault{positions: make(map[Key]*position)}
}

// Position returns the position for key. Unknown keys read as zero.
func (v *AssetVault) Position(key Key) Position {
	p, ok := v.positions[key]
	if !ok {
		return Position{Balance: new(uint256.Int)}
	}
	return Position{
		Balance:     new(uint256.Int).Set(&p.balance),
		Deposits:    p.deposits,
		Withdrawals: p.withdrawals,
	}
}

// Len returns the number of positions ever opened.
func (v *AssetVault) Len() int {
	return len(v.positions)
}

// Deposit credits amount to key and counts one deposit.
func (v *AssetVault) Deposit(key Key, amount *uint256.Int) (Undo, error) {
	p, existed := v.positions[key]
	if !existed {
		p = &position{}
	}
	next, overflow := new(uint256.Int).AddOverflow(&p.balance, amount)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrBalanceOverflow, p.balance.Dec(), amount.Dec())
	}
	if !existed {
		v.positions[key] = p
	}

	prev := p.balance
	p.balance = *next
	p.deposits++
	return func() {
		if !existed {
			delete(v.positions, key)
			return
		}
		p.balance = prev
		p.deposits--
	}, nil
}

// Withdraw debits amount from key and counts one withdrawal.
func (v *AssetVault) Withdraw(key Key, amount *uint256.Int) (Undo, error) {
	p, ok := v.positions[key]
	if !ok || amount.Gt(&p.balance) {
		balance := new(uint256.Int)
		if ok {
			balance.Set(&p.balance)
		}
		return nil, &InsufficientBalanceError{Balance: balance, Requested: new(uint256.Int).Set(amount)}
	}

	prev := p.balance
	p.balance.Sub(&p.balance, amount)
	p.withdrawals++
	return func() {
		p.balance = prev
		p.withdrawals--
	}, nil
}
