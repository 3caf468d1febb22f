package ledger

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/custody-vault/pkg/asset"
)

var (
	nativeFeed = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	usdcAsset  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	usdcFeed   = common.HexToAddress("0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6")
	alice      = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestFeedRegistry(t *testing.T) {
	_, err := NewFeedRegistry(common.Address{})
	require.ErrorIs(t, err, ErrInvalidFeed)

	r, err := NewFeedRegistry(nativeFeed)
	require.NoError(t, err)

	got, err := r.Resolve(asset.Native)
	require.NoError(t, err)
	assert.Equal(t, nativeFeed, got)

	_, err = r.Resolve(usdcAsset)
	require.ErrorIs(t, err, ErrTokenNotSupported)

	_, err = r.Set(usdcAsset, usdcFeed)
	require.NoError(t, err)
	got, err = r.Resolve(usdcAsset)
	require.NoError(t, err)
	assert.Equal(t, usdcFeed, got)

	// overwrite, then undo restores the previous binding
	other := common.HexToAddress("0x00000000000000000000000000000000000000f2")
	undo, err := r.Set(usdcAsset, other)
	require.NoError(t, err)
	undo()
	got, _ = r.Resolve(usdcAsset)
	assert.Equal(t, usdcFeed, got)
}

func TestFeedRegistry_RejectsZero(t *testing.T) {
	r, err := NewFeedRegistry(nativeFeed)
	require.NoError(t, err)

	_, err = r.Set(common.Address{}, usdcFeed)
	require.ErrorIs(t, err, ErrInvalidFeed)
	_, err = r.Set(usdcAsset, common.Address{})
	require.ErrorIs(t, err, ErrInvalidFeed)
	_, err = r.Set(asset.Native, usdcFeed)
	require.ErrorIs(t, err, ErrInvalidFeed)

	assert.Empty(t, r.Bindings())
	assert.Equal(t, nativeFeed, r.NativeFeed())
}

func TestCapacityLedger_Reserve(t *testing.T) {
	c := NewCapacityLedger(u(1_000))

	_, err := c.Reserve(u(600))
	require.NoError(t, err)
	_, err = c.Reserve(u(400))
	require.NoError(t, err)
	assert.Equal(t, "0", c.Remaining().Dec())

	_, err = c.Reserve(u(1))
	var capErr *ExceedsBankCapError
	require.True(t, errors.As(err, &capErr))
	require.ErrorIs(t, err, ErrExceedsBankCap)
	assert.Equal(t, "1", capErr.Attempted.Dec())
	assert.Equal(t, "0", capErr.Remaining.Dec())
	assert.Equal(t, "1000", c.Used().Dec())
}

func TestCapacityLedger_ReleaseUnderflow(t *testing.T) {
	c := NewCapacityLedger(u(1_000))
	_, err := c.Reserve(u(100))
	require.NoError(t, err)

	_, err = c.Release(u(101))
	require.ErrorIs(t, err, ErrCapacityUnderflow)
	assert.Equal(t, "100", c.Used().Dec())

	undo, err := c.Release(u(100))
	require.NoError(t, err)
	assert.True(t, c.Used().IsZero())
	undo()
	assert.Equal(t, "100", c.Used().Dec())
}

func TestCapacityLedger_CapIsCopied(t *testing.T) {
	bankCap := u(10)
	c := NewCapacityLedger(bankCap)
	bankCap.SetUint64(1)
	c.Cap().SetUint64(2)
	assert.Equal(t, "10", c.Cap().Dec())
}

func TestAssetVault_DepositWithdraw(t *testing.T) {
	v := NewAssetVault()
	key := Key{Asset: usdcAsset, Holder: alice}

	assert.True(t, v.Position(key).Balance.IsZero())

	_, err := v.Deposit(key, u(500))
	require.NoError(t, err)
	_, err = v.Deposit(key, u(250))
	require.NoError(t, err)

	_, err = v.Withdraw(key, u(800))
	var balErr *InsufficientBalanceError
	require.True(t, errors.As(err, &balErr))
	assert.Equal(t, "750", balErr.Balance.Dec())
	assert.Equal(t, "800", balErr.Requested.Dec())

	_, err = v.Withdraw(key, u(750))
	require.NoError(t, err)

	p := v.Position(key)
	assert.True(t, p.Balance.IsZero())
	assert.Equal(t, uint64(2), p.Deposits)
	assert.Equal(t, uint64(1), p.Withdrawals)
	assert.Equal(t, 1, v.Len())
}

func TestAssetVault_UndoFirstDepositRemovesPosition(t *testing.T) {
	v := NewAssetVault()
	key := Key{Asset: asset.Native, Holder: alice}

	undo, err := v.Deposit(key, u(1))
	require.NoError(t, err)
	undo()

	assert.Equal(t, 0, v.Len())
	assert.Equal(t, uint64(0), v.Position(key).Deposits)
}

func TestAssetVault_WithdrawUnknownKey(t *testing.T) {
	v := NewAssetVault()
	_, err := v.Withdraw(Key{Asset: usdcAsset, Holder: alice}, u(1))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestAssetVault_DepositOverflow(t *testing.T) {
	v := NewAssetVault()
	key := Key{Asset: usdcAsset, Holder: alice}
	_, err := v.Deposit(key, new(uint256.Int).SetAllOne())
	require.NoError(t, err)

	_, err = v.Deposit(key, u(1))
	require.ErrorIs(t, err, ErrBalanceOverflow)
	assert.Equal(t, uint64(1), v.Position(key).Deposits)
}

func TestUndos_RevertReverseOrder(t *testing.T) {
	var order []int
	var undos Undos
	undos.Push(func() { order = append(order, 1) })
	undos.Push(func() { order = append(order, 2) })
	undos.Revert()

	assert.Equal(t, []int{2, 1}, order)
	assert.Empty(t, undos)
}
