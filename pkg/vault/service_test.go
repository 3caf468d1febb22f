package vault

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/custody-vault/pkg/access"
	apperrors "github.com/chainsafe/custody-vault/pkg/app/errors"
	"github.com/chainsafe/custody-vault/pkg/asset"
	"github.com/chainsafe/custody-vault/pkg/gateway"
	"github.com/chainsafe/custody-vault/pkg/gateway/memory"
	"github.com/chainsafe/custody-vault/pkg/oracle"
)

var (
	admin      = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	usdc       = common.HexToAddress("0x0000000000000000000000000000000000001111")
	nativeFeed = common.HexToAddress("0x000000000000000000000000000000000000f000")
	usdcFeed   = common.HexToAddress("0x000000000000000000000000000000000000f001")
)

// usd6 is a whole-dollar amount in USD6 units.
func usd6(dollars uint64) *uint256.Int {
	return uint256.NewInt(dollars * 1_000_000)
}

// centiEther returns n hundredths of one native unit.
func centiEther(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(10_000_000_000_000_000))
}

// usdcUnits returns n whole USDC in base units.
func usdcUnits(n uint64) *uint256.Int {
	return uint256.NewInt(n * 1_000_000)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Notify(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type fixture struct {
	svc        Service
	gw         *memory.Gateway
	nativeFeed *oracle.StaticFeed
	usdcFeed   *oracle.StaticFeed
	metadata   *asset.StaticMetadata
	gate       *access.PauseSwitch
	events     *recorder
}

// newFixture builds a vault priced at $2000 per native unit and $1 per USDC,
// with USDC already registered.
func newFixture(t *testing.T, bankCap, withdrawCap *uint256.Int) *fixture {
	t.Helper()
	return newFixtureWithAdmin(t, bankCap, withdrawCap, admin)
}

func newFixtureWithAdmin(t *testing.T, bankCap, withdrawCap *uint256.Int, admins ...common.Address) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, Config{BankCapUSD6: bankCap, WithdrawCapUSD6: withdrawCap, NativeFeed: nativeFeed}, admins...)
}

func newFixtureWithConfig(t *testing.T, cfg Config, admins ...common.Address) *fixture {
	t.Helper()

	f := &fixture{
		gw:         memory.New(),
		nativeFeed: oracle.NewStaticFeed(2000_00000000, 8),
		usdcFeed:   oracle.NewStaticFeed(1_00000000, 8),
		metadata:   asset.NewStaticMetadata(map[common.Address]uint8{usdc: 6}),
		gate:       &access.PauseSwitch{},
		events:     &recorder{},
	}
	source := oracle.NewStaticSource()
	source.Add(nativeFeed, f.nativeFeed)
	source.Add(usdcFeed, f.usdcFeed)

	svc, err := NewService(
		cfg,
		oracle.NewAdapter(source),
		f.metadata,
		f.gw,
		access.NewRoleSet(admins...),
		f.gate,
		f.events,
		zap.NewNop(),
	)
	require.NoError(t, err)
	f.svc = svc

	require.NoError(t, svc.SetFeed(context.Background(), admins[0], usdc, usdcFeed))
	f.events.events = nil
	return f
}

func (f *fixture) fundNative(holder common.Address, amount *uint256.Int) {
	f.gw.Credit(asset.Native, holder, amount)
}

func (f *fixture) fundUSDC(holder common.Address, amount *uint256.Int) {
	f.gw.Credit(usdc, holder, amount)
	f.gw.Approve(usdc, holder, amount)
}

func requireReason(t *testing.T, err error, reason string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, reason, apperrors.ReasonOf(err), "error: %v", err)
}

func TestNewService_RequiresConfig(t *testing.T) {
	_, err := NewService(Config{NativeFeed: nativeFeed}, nil, nil, nil, nil, nil, nil, zap.NewNop())
	require.Error(t, err)

	_, err = NewService(Config{BankCapUSD6: usd6(1), WithdrawCapUSD6: usd6(1)}, nil, nil, nil, nil, nil, nil, zap.NewNop())
	require.Error(t, err)
}

func TestDepositNative_ReservesCapacity(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundNative(alice, centiEther(1))
	ctx := context.Background()

	receipt, err := f.svc.DepositNative(ctx, alice, centiEther(1), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, uint64(20_000_000), receipt.USD6.Uint64())
	assert.Equal(t, centiEther(1), receipt.Position.Balance)
	assert.Equal(t, uint64(1), receipt.Position.Deposits)

	assert.Equal(t, uint64(980_000_000), f.svc.RemainingCapacity(ctx).Uint64())
	assert.Equal(t, uint64(20_000_000), f.svc.UsedCapacity(ctx).Uint64())
	assert.Equal(t, centiEther(1), f.gw.Custody(asset.Native))
	assert.True(t, f.gw.BalanceOf(asset.Native, alice).IsZero())
}

func TestDeposit_ExceedsBankCap(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundUSDC(alice, usdcUnits(2000))
	ctx := context.Background()

	_, err := f.svc.DepositAsset(ctx, alice, usdc, usdcUnits(1001))
	requireReason(t, err, ReasonExceedsBankCap)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataConflict))

	// nothing moved
	assert.Equal(t, usd6(1000), f.svc.RemainingCapacity(ctx))
	assert.True(t, f.svc.GetVault(ctx, usdc, alice).Balance.IsZero())
	assert.Equal(t, usdcUnits(2000), f.gw.BalanceOf(usdc, alice))
	assert.Empty(t, f.events.all())

	// filling the cap exactly is allowed
	_, err = f.svc.DepositAsset(ctx, alice, usdc, usdcUnits(1000))
	require.NoError(t, err)
	assert.True(t, f.svc.RemainingCapacity(ctx).IsZero())

	_, err = f.svc.DepositAsset(ctx, alice, usdc, uint256.NewInt(1))
	requireReason(t, err, ReasonExceedsBankCap)
}

func TestWithdraw_ExceedsWithdrawCap(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(100))
	f.fundUSDC(alice, usdcUnits(500))
	ctx := context.Background()

	_, err := f.svc.DepositAsset(ctx, alice, usdc, usdcUnits(500))
	require.NoError(t, err)

	_, err = f.svc.WithdrawAsset(ctx, alice, usdc, usdcUnits(101))
	requireReason(t, err, ReasonExceedsWithdrawCap)
	var capErr *ExceedsWithdrawCapError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, usd6(101), capErr.Attempted)
	assert.Equal(t, usdcUnits(500), f.svc.GetVault(ctx, usdc, alice).Balance)

	receipt, err := f.svc.WithdrawAsset(ctx, alice, usdc, usdcUnits(100))
	require.NoError(t, err)
	assert.Equal(t, usdcUnits(400), receipt.Position.Balance)
	assert.Equal(t, usdcUnits(100), f.gw.BalanceOf(usdc, alice))
}

func TestDepositWithdraw_RoundTrip(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundNative(alice, centiEther(5))
	ctx := context.Background()

	_, err := f.svc.DepositNative(ctx, alice, centiEther(5), "")
	require.NoError(t, err)

	receipt, err := f.svc.WithdrawNative(ctx, alice, centiEther(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), receipt.USD6.Uint64())

	pos := f.svc.GetVault(ctx, asset.Native, alice)
	assert.True(t, pos.Balance.IsZero())
	assert.Equal(t, uint64(1), pos.Deposits)
	assert.Equal(t, uint64(1), pos.Withdrawals)
	assert.True(t, f.svc.UsedCapacity(ctx).IsZero())
	assert.Equal(t, centiEther(5), f.gw.BalanceOf(asset.Native, alice))

	events := f.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventDeposited, events[0].Kind)
	assert.Equal(t, EventWithdrawn, events[1].Kind)
	assert.Equal(t, alice, events[1].Holder)
	assert.False(t, events[1].At.IsZero())
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundUSDC(alice, usdcUnits(10))
	ctx := context.Background()

	_, err := f.svc.DepositAsset(ctx, alice, usdc, usdcUnits(10))
	require.NoError(t, err)

	_, err = f.svc.WithdrawAsset(ctx, alice, usdc, usdcUnits(11))
	requireReason(t, err, ReasonInsufficientBalance)

	// balances are per holder
	_, err = f.svc.WithdrawAsset(ctx, bob, usdc, usdcUnits(1))
	requireReason(t, err, ReasonInsufficientBalance)
}

func TestZeroAmount(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	ctx := context.Background()

	_, err := f.svc.DepositNative(ctx, alice, new(uint256.Int), "")
	requireReason(t, err, ReasonZeroAmount)
	_, err = f.svc.DepositAsset(ctx, alice, usdc, nil)
	requireReason(t, err, ReasonZeroAmount)
	_, err = f.svc.WithdrawNative(ctx, alice, new(uint256.Int))
	requireReason(t, err, ReasonZeroAmount)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))
}

func TestTokenNotSupported(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	ctx := context.Background()
	unknown := common.HexToAddress("0x0000000000000000000000000000000000002222")

	_, err := f.svc.DepositAsset(ctx, alice, unknown, uint256.NewInt(1))
	requireReason(t, err, ReasonTokenNotSupported)

	_, err = f.svc.DepositAsset(ctx, alice, asset.Native, uint256.NewInt(1))
	requireReason(t, err, ReasonTokenNotSupported)
	_, err = f.svc.WithdrawAsset(ctx, alice, asset.Native, uint256.NewInt(1))
	requireReason(t, err, ReasonTokenNotSupported)

	_, err = f.svc.FeedOf(ctx, unknown)
	requireReason(t, err, ReasonTokenNotSupported)
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundNative(alice, centiEther(2))
	ctx := context.Background()

	_, err := f.svc.DepositNative(ctx, alice, centiEther(1), "")
	require.NoError(t, err)

	require.NoError(t, f.svc.SetPaused(ctx, admin, true))
	assert.True(t, f.svc.Paused())

	_, err = f.svc.DepositNative(ctx, alice, centiEther(1), "")
	requireReason(t, err, ReasonSuspended)
	assert.True(t, apperrors.Is(err, apperrors.CategoryLocked))
	_, err = f.svc.WithdrawNative(ctx, alice, centiEther(1))
	requireReason(t, err, ReasonSuspended)

	// views keep working
	assert.Equal(t, centiEther(1), f.svc.GetVault(ctx, asset.Native, alice).Balance)
	assert.Equal(t, uint64(980_000_000), f.svc.RemainingCapacity(ctx).Uint64())

	// pausing twice is accepted
	require.NoError(t, f.svc.SetPaused(ctx, admin, true))

	require.NoError(t, f.svc.SetPaused(ctx, admin, false))
	_, err = f.svc.WithdrawNative(ctx, alice, centiEther(1))
	require.NoError(t, err)

	var pauses []bool
	for _, ev := range f.events.all() {
		if ev.Kind == EventPausedChanged {
			assert.Equal(t, admin, ev.Admin)
			pauses = append(pauses, ev.Paused)
		}
	}
	assert.Equal(t, []bool{true, true, false}, pauses)
}

func TestAdminOperations_Unauthorized(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	ctx := context.Background()

	err := f.svc.SetPaused(ctx, alice, true)
	requireReason(t, err, ReasonUnauthorized)
	assert.True(t, apperrors.Is(err, apperrors.CategoryForbidden))
	assert.False(t, f.svc.Paused())

	err = f.svc.SetFeed(ctx, alice, usdc, nativeFeed)
	requireReason(t, err, ReasonUnauthorized)
	feed, err := f.svc.FeedOf(ctx, usdc)
	require.NoError(t, err)
	assert.Equal(t, usdcFeed, feed)

	// the admin check precedes argument validation
	err = f.svc.SetFeed(ctx, alice, usdc, common.Address{})
	requireReason(t, err, ReasonUnauthorized)
	assert.Empty(t, f.events.all())
}

func TestSetFeed(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	ctx := context.Background()

	requireReason(t, f.svc.SetFeed(ctx, admin, usdc, common.Address{}), ReasonInvalidFeed)
	requireReason(t, f.svc.SetFeed(ctx, admin, asset.Native, usdcFeed), ReasonInvalidFeed)

	require.NoError(t, f.svc.SetFeed(ctx, admin, usdc, nativeFeed))
	feed, err := f.svc.FeedOf(ctx, usdc)
	require.NoError(t, err)
	assert.Equal(t, nativeFeed, feed)

	feed, err = f.svc.FeedOf(ctx, asset.Native)
	require.NoError(t, err)
	assert.Equal(t, nativeFeed, feed)

	events := f.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventFeedSet, events[0].Kind)
	assert.Equal(t, nativeFeed, events[0].Feed)
}

func TestWithdraw_PriceRiseUnderflowsCapacity(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundNative(alice, centiEther(1))
	ctx := context.Background()

	_, err := f.svc.DepositNative(ctx, alice, centiEther(1), "")
	require.NoError(t, err)

	f.nativeFeed.SetAnswer(big.NewInt(4000_00000000))

	_, err = f.svc.WithdrawNative(ctx, alice, centiEther(1))
	requireReason(t, err, ReasonCapacityUnderflow)
	assert.Equal(t, centiEther(1), f.svc.GetVault(ctx, asset.Native, alice).Balance)
	assert.Equal(t, uint64(20_000_000), f.svc.UsedCapacity(ctx).Uint64())
	assert.Equal(t, centiEther(1), f.gw.Custody(asset.Native))
}

func TestWithdraw_PriceFallLeavesResidualUsage(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundNative(alice, centiEther(1))
	ctx := context.Background()

	_, err := f.svc.DepositNative(ctx, alice, centiEther(1), "")
	require.NoError(t, err)

	f.nativeFeed.SetAnswer(big.NewInt(1000_00000000))

	receipt, err := f.svc.WithdrawNative(ctx, alice, centiEther(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), receipt.USD6.Uint64())
	assert.True(t, receipt.Position.Balance.IsZero())
	assert.Equal(t, uint64(10_000_000), f.svc.UsedCapacity(ctx).Uint64())
}

func TestPriceRejected(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundNative(alice, centiEther(1))
	ctx := context.Background()

	f.nativeFeed.SetAnswer(big.NewInt(-1))
	_, err := f.svc.DepositNative(ctx, alice, centiEther(1), "")
	requireReason(t, err, ReasonPriceStaleOrNegative)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDependencyFailure))

	f.nativeFeed.SetAnswer(big.NewInt(2000_00000000))
	f.nativeFeed.SetUpdatedAt(0)
	_, err = f.svc.DepositNative(ctx, alice, centiEther(1), "")
	requireReason(t, err, ReasonPriceStaleOrNegative)

	assert.True(t, f.svc.UsedCapacity(ctx).IsZero())
}

func TestAssetMetadataUnavailable(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	ctx := context.Background()
	dai := common.HexToAddress("0x0000000000000000000000000000000000003333")

	require.NoError(t, f.svc.SetFeed(ctx, admin, dai, usdcFeed))
	_, err := f.svc.DepositAsset(ctx, alice, dai, uint256.NewInt(1))
	requireReason(t, err, ReasonAssetMetadata)

	// precision is read per call, so a later registration takes effect
	f.metadata.Set(dai, 18)
	quote, err := f.svc.QuoteValuation(ctx, dai, new(uint256.Int).Mul(uint256.NewInt(3), uint256.NewInt(1_000_000_000_000_000_000)))
	require.NoError(t, err)
	assert.Equal(t, usd6(3), quote)
}

func TestTransferFailure_RollsBack(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundUSDC(alice, usdcUnits(300))
	ctx := context.Background()

	f.gw.FailNext(errors.New("rpc down"))
	_, err := f.svc.DepositAsset(ctx, alice, usdc, usdcUnits(100))
	requireReason(t, err, ReasonTransferFailed)
	assert.ErrorIs(t, err, gateway.ErrTransferFailed)
	assert.True(t, f.svc.UsedCapacity(ctx).IsZero())
	pos := f.svc.GetVault(ctx, usdc, alice)
	assert.True(t, pos.Balance.IsZero())
	assert.Zero(t, pos.Deposits)

	_, err = f.svc.DepositAsset(ctx, alice, usdc, usdcUnits(100))
	require.NoError(t, err)

	f.gw.FailNext(errors.New("rpc down"))
	_, err = f.svc.WithdrawAsset(ctx, alice, usdc, usdcUnits(50))
	requireReason(t, err, ReasonTransferFailed)
	pos = f.svc.GetVault(ctx, usdc, alice)
	assert.Equal(t, usdcUnits(100), pos.Balance)
	assert.Zero(t, pos.Withdrawals)
	assert.Equal(t, usd6(100), f.svc.UsedCapacity(ctx))

	// a missing allowance fails at the gateway the same way
	_, err = f.svc.DepositAsset(ctx, bob, usdc, usdcUnits(1))
	requireReason(t, err, ReasonTransferFailed)

	require.Len(t, f.events.all(), 1)
}

func TestReentrantCall_Rejected(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundNative(alice, centiEther(2))
	ctx := context.Background()

	var (
		inner      error
		innerPause error
		remaining  *uint256.Int
		seen       int
	)
	f.gw.SetHook(func(ctx context.Context, dir gateway.Direction, t gateway.Transfer) error {
		if dir != gateway.DirectionIn {
			return nil
		}
		_, inner = f.svc.DepositNative(ctx, alice, centiEther(1), "")
		innerPause = f.svc.SetPaused(ctx, admin, true)
		// views from inside the operation see its effects without blocking
		remaining = f.svc.RemainingCapacity(ctx)
		seen = len(f.events.all())
		return nil
	})

	_, err := f.svc.DepositNative(ctx, alice, centiEther(1), "")
	require.NoError(t, err)

	requireReason(t, inner, ReasonReentrantCall)
	requireReason(t, innerPause, ReasonReentrantCall)
	assert.Equal(t, uint64(980_000_000), remaining.Uint64())
	assert.Zero(t, seen, "events must be emitted after the operation commits")

	assert.False(t, f.svc.Paused())
	assert.Equal(t, centiEther(1), f.svc.GetVault(ctx, asset.Native, alice).Balance)
	require.Len(t, f.events.all(), 1)
}

func TestReentrantCall_HookFailureRollsBack(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundNative(alice, centiEther(1))
	ctx := context.Background()

	f.gw.SetHook(func(ctx context.Context, _ gateway.Direction, _ gateway.Transfer) error {
		_, err := f.svc.WithdrawNative(ctx, alice, centiEther(1))
		return err
	})

	_, err := f.svc.DepositNative(ctx, alice, centiEther(1), "")
	requireReason(t, err, ReasonTransferFailed)
	assert.Contains(t, err.Error(), ErrReentrantCall.Error())
	assert.True(t, f.svc.UsedCapacity(ctx).IsZero())
}

func TestReentrantCall_FreshContextRejected(t *testing.T) {
	f := newFixtureWithConfig(t, Config{
		BankCapUSD6:     usd6(1000),
		WithdrawCapUSD6: usd6(1000),
		NativeFeed:      nativeFeed,
		ReentryWait:     50 * time.Millisecond,
	}, admin)
	f.fundNative(alice, centiEther(2))
	ctx := context.Background()

	var (
		inner   error
		balance *uint256.Int
	)
	f.gw.SetHook(func(_ context.Context, dir gateway.Direction, _ gateway.Transfer) error {
		if dir != gateway.DirectionIn {
			return nil
		}
		// views with an unrelated context do not wait on the running operation
		balance = f.svc.GetVault(context.Background(), asset.Native, alice).Balance
		_, inner = f.svc.DepositNative(context.Background(), alice, centiEther(1), "")
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.DepositNative(ctx, alice, centiEther(1), "")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("callback with a fresh context blocked the vault")
	}

	requireReason(t, inner, ReasonReentrantCall)
	assert.Equal(t, centiEther(1), balance)
	assert.Equal(t, centiEther(1), f.svc.GetVault(ctx, asset.Native, alice).Balance)

	// the guard is free again once the operation returns
	f.gw.SetHook(nil)
	_, err := f.svc.DepositNative(ctx, alice, centiEther(1), "")
	require.NoError(t, err)
	assert.Equal(t, centiEther(2), f.svc.GetVault(ctx, asset.Native, alice).Balance)
}

func TestNotifierFailure_DoesNotFailOperation(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundNative(alice, centiEther(1))
	f.events.err = errors.New("sink down")

	_, err := f.svc.DepositNative(context.Background(), alice, centiEther(1), "")
	require.NoError(t, err)
	require.Len(t, f.events.all(), 1)
}

func TestCanceledContext_NotStarted(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	f.fundNative(alice, centiEther(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.DepositNative(ctx, alice, centiEther(1), "")
	requireReason(t, err, ReasonNotStarted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, apperrors.Is(err, apperrors.CategoryCanceled))
	assert.False(t, apperrors.IsInternalError(err))
	assert.True(t, f.gw.Custody(asset.Native).IsZero())
}

func TestQuoteValuation(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	ctx := context.Background()

	quote, err := f.svc.QuoteValuation(ctx, asset.Native, centiEther(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(20_000_000), quote.Uint64())

	quote, err = f.svc.QuoteValuation(ctx, usdc, usdcUnits(1500))
	require.NoError(t, err)
	assert.Equal(t, usd6(1500), quote)

	// quoting is read-only, even above the cap
	assert.Equal(t, usd6(1000), f.svc.RemainingCapacity(ctx))

	_, err = f.svc.QuoteValuation(ctx, usdc, nil)
	requireReason(t, err, ReasonZeroAmount)
}

func TestCaps(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(100))

	assert.Equal(t, usd6(1000), f.svc.BankCap())
	assert.Equal(t, usd6(100), f.svc.WithdrawCap())

	// returned values are copies
	f.svc.BankCap().SetUint64(1)
	assert.Equal(t, usd6(1000), f.svc.BankCap())
}

func TestConcurrentDeposits_RespectCap(t *testing.T) {
	f := newFixture(t, usd6(1000), usd6(1000))
	holders := make([]common.Address, 20)
	for i := range holders {
		holders[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		f.fundUSDC(holders[i], usdcUnits(100))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for _, h := range holders {
		wg.Add(1)
		go func(h common.Address) {
			defer wg.Done()
			if _, err := f.svc.DepositAsset(context.Background(), h, usdc, usdcUnits(100)); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(h)
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	assert.True(t, f.svc.RemainingCapacity(context.Background()).IsZero())
}
