// Package vault implements the custodial ledger: native and registered-asset
// deposits and withdrawals valued in USD6 against a global capacity cap and
// a per-withdrawal cap.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/custody-vault/pkg/access"
	"github.com/chainsafe/custody-vault/pkg/asset"
	"github.com/chainsafe/custody-vault/pkg/gateway"
	"github.com/chainsafe/custody-vault/pkg/ledger"
	"github.com/chainsafe/custody-vault/pkg/oracle"
	"github.com/chainsafe/custody-vault/pkg/valuation"
)

// Config holds the immutable ledger parameters.
type Config struct {
	BankCapUSD6     *uint256.Int
	WithdrawCapUSD6 *uint256.Int
	NativeFeed      common.Address
	// ReentryWait bounds how long an operation queues behind one blocked in
	// an external call before it is rejected as reentrant. Zero means
	// DefaultReentryWait.
	ReentryWait time.Duration
}

// Receipt describes a committed deposit or withdrawal.
type Receipt struct {
	Asset    common.Address
	Holder   common.Address
	Amount   *uint256.Int
	USD6     *uint256.Int
	Position ledger.Position
	// Pending is set on a withdrawal whose payout was submitted but not yet
	// confirmed. TransferRef identifies the submission.
	Pending     bool
	TransferRef string
}

// PriceReader reads a validated price from a feed.
type PriceReader interface {
	Read(ctx context.Context, feed common.Address) (oracle.Price, error)
}

// Service defines the vault operations.
type Service interface {
	// DepositNative credits amount of the native asset to holder. The value
	// must already be attached; attachment identifies it to the gateway.
	DepositNative(ctx context.Context, holder common.Address, amount *uint256.Int, attachment string) (*Receipt, error)
	WithdrawNative(ctx context.Context, holder common.Address, amount *uint256.Int) (*Receipt, error)
	// DepositAsset pulls amount of id from holder under a prior allowance.
	DepositAsset(ctx context.Context, holder, id common.Address, amount *uint256.Int) (*Receipt, error)
	WithdrawAsset(ctx context.Context, holder, id common.Address, amount *uint256.Int) (*Receipt, error)

	SetFeed(ctx context.Context, principal, id, feed common.Address) error
	SetPaused(ctx context.Context, principal common.Address, paused bool) error

	GetVault(ctx context.Context, id, holder common.Address) ledger.Position
	RemainingCapacity(ctx context.Context) *uint256.Int
	UsedCapacity(ctx context.Context) *uint256.Int
	BankCap() *uint256.Int
	WithdrawCap() *uint256.Int
	FeedOf(ctx context.Context, id common.Address) (common.Address, error)
	Paused() bool
	QuoteValuation(ctx context.Context, id common.Address, amount *uint256.Int) (*uint256.Int, error)
}

type vaultService struct {
	guard *guard

	withdrawCap *uint256.Int
	registry    *ledger.FeedRegistry
	capacity    *ledger.CapacityLedger
	positions   *ledger.AssetVault

	prices   PriceReader
	metadata asset.Metadata
	gateway  gateway.Gateway
	auth     access.Authorizer
	gate     access.Gate
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a vault service. notifier may be nil.
func NewService(
	cfg Config,
	prices PriceReader,
	metadata asset.Metadata,
	gw gateway.Gateway,
	auth access.Authorizer,
	gate access.Gate,
	notifier Notifier,
	logger *zap.Logger,
) (Service, error) {
	if cfg.BankCapUSD6 == nil || cfg.WithdrawCapUSD6 == nil {
		return nil, errors.New("bank cap and withdraw cap are required")
	}
	registry, err := ledger.NewFeedRegistry(cfg.NativeFeed)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed registry: %w", err)
	}
	if notifier == nil {
		notifier = MultiNotifier{}
	}
	return &vaultService{
		guard:       newGuard(cfg.ReentryWait),
		withdrawCap: new(uint256.Int).Set(cfg.WithdrawCapUSD6),
		registry:    registry,
		capacity:    ledger.NewCapacityLedger(cfg.BankCapUSD6),
		positions:   ledger.NewAssetVault(),
		prices:      prices,
		metadata:    metadata,
		gateway:     gw,
		auth:        auth,
		gate:        gate,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// DepositNative credits attached native value to holder.
func (s *vaultService) DepositNative(
	ctx context.Context,
	holder common.Address,
	amount *uint256.Int,
	attachment string,
) (*Receipt, error) {
	return s.deposit(ctx, asset.Native, holder, amount, attachment)
}

// DepositAsset credits a registered asset to holder and pulls it into custody.
func (s *vaultService) DepositAsset(ctx context.Context, holder, id common.Address, amount *uint256.Int) (*Receipt, error) {
	if asset.IsNative(id) {
		return nil, classify(fmt.Errorf("%w: use the native deposit for the native asset", ledger.ErrTokenNotSupported))
	}
	return s.deposit(ctx, id, holder, amount, "")
}

// WithdrawNative debits native value from holder and pushes it out.
func (s *vaultService) WithdrawNative(ctx context.Context, holder common.Address, amount *uint256.Int) (*Receipt, error) {
	return s.withdraw(ctx, asset.Native, holder, amount)
}

// WithdrawAsset debits a registered asset from holder and pushes it out.
func (s *vaultService) WithdrawAsset(ctx context.Context, holder, id common.Address, amount *uint256.Int) (*Receipt, error) {
	if asset.IsNative(id) {
		return nil, classify(fmt.Errorf("%w: use the native withdrawal for the native asset", ledger.ErrTokenNotSupported))
	}
	return s.withdraw(ctx, id, holder, amount)
}

func (s *vaultService) deposit(
	ctx context.Context,
	id, holder common.Address,
	amount *uint256.Int,
	attachment string,
) (*Receipt, error) {
	opCtx, release, err := s.guard.enter(ctx)
	if err != nil {
		return nil, classify(err)
	}
	receipt, err := s.depositLocked(opCtx, id, holder, amount, attachment)
	release()
	if err != nil {
		return nil, classify(err)
	}

	s.emit(ctx, Event{
		Kind:   EventDeposited,
		Asset:  id,
		Holder: holder,
		Amount: receipt.Amount,
		USD6:   receipt.USD6,
	})
	return receipt, nil
}

// depositLocked runs checks, then effects, then the pull. Any failure after
// the first effect reverts every effect.
func (s *vaultService) depositLocked(
	ctx context.Context,
	id, holder common.Address,
	amount *uint256.Int,
	attachment string,
) (*Receipt, error) {
	if s.gate.Paused() {
		return nil, ErrSuspended
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}
	usd6, err := s.value(ctx, id, amount)
	if err != nil {
		return nil, err
	}

	key := ledger.Key{Asset: id, Holder: holder}
	var undos ledger.Undos

	err = s.guard.apply(func() error {
		undo, err := s.capacity.Reserve(usd6)
		if err != nil {
			return err
		}
		undos.Push(undo)

		undo, err = s.positions.Deposit(key, amount)
		if err != nil {
			undos.Revert()
			return err
		}
		undos.Push(undo)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.gateway.Pull(ctx, gateway.Transfer{
		Asset:     id,
		Account:   holder,
		Amount:    new(uint256.Int).Set(amount),
		Reference: attachment,
	})
	if err != nil {
		// a pending pull is not credited, the holder reconciles by reference
		s.revert(&undos)
		if errors.Is(err, gateway.ErrTransferPending) {
			return nil, err
		}
		return nil, transferFailed(err)
	}

	return &Receipt{
		Asset:    id,
		Holder:   holder,
		Amount:   new(uint256.Int).Set(amount),
		USD6:     usd6,
		Position: s.positions.Position(key),
	}, nil
}

func (s *vaultService) withdraw(ctx context.Context, id, holder common.Address, amount *uint256.Int) (*Receipt, error) {
	opCtx, release, err := s.guard.enter(ctx)
	if err != nil {
		return nil, classify(err)
	}
	receipt, err := s.withdrawLocked(opCtx, id, holder, amount)
	release()
	if err != nil {
		return nil, classify(err)
	}

	s.emit(ctx, Event{
		Kind:   EventWithdrawn,
		Asset:  id,
		Holder: holder,
		Amount: receipt.Amount,
		USD6:   receipt.USD6,
	})
	return receipt, nil
}

func (s *vaultService) withdrawLocked(ctx context.Context, id, holder common.Address, amount *uint256.Int) (*Receipt, error) {
	if s.gate.Paused() {
		return nil, ErrSuspended
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}

	key := ledger.Key{Asset: id, Holder: holder}
	if pos := s.positions.Position(key); amount.Gt(pos.Balance) {
		return nil, &ledger.InsufficientBalanceError{Balance: pos.Balance, Requested: new(uint256.Int).Set(amount)}
	}

	usd6, err := s.value(ctx, id, amount)
	if err != nil {
		return nil, err
	}
	if usd6.Gt(s.withdrawCap) {
		return nil, &ExceedsWithdrawCapError{Attempted: usd6, Cap: new(uint256.Int).Set(s.withdrawCap)}
	}

	var undos ledger.Undos

	err = s.guard.apply(func() error {
		undo, err := s.positions.Withdraw(key, amount)
		if err != nil {
			return err
		}
		undos.Push(undo)

		undo, err = s.capacity.Release(usd6)
		if err != nil {
			undos.Revert()
			return err
		}
		undos.Push(undo)
		return nil
	})
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		Asset:  id,
		Holder: holder,
		Amount: new(uint256.Int).Set(amount),
		USD6:   usd6,
	}

	err = s.gateway.Push(ctx, gateway.Transfer{
		Asset:   id,
		Account: holder,
		Amount:  new(uint256.Int).Set(amount),
	})
	var pending *gateway.PendingError
	switch {
	case err == nil:
	case errors.As(err, &pending):
		// the payout may still settle, so the debit stands
		s.logger.Warn("Withdrawal committed with pending payout",
			zap.String("asset", id.Hex()),
			zap.String("holder", holder.Hex()),
			zap.String("amount", amount.Dec()),
			zap.String("transfer_ref", pending.Reference),
			zap.Error(err),
		)
		receipt.Pending = true
		receipt.TransferRef = pending.Reference
	default:
		s.revert(&undos)
		return nil, transferFailed(err)
	}

	receipt.Position = s.positions.Position(key)
	return receipt, nil
}

func (s *vaultService) revert(undos *ledger.Undos) {
	_ = s.guard.apply(func() error {
		undos.Revert()
		return nil
	})
}

// value prices amount of id in USD6. Registered-asset precision is read on
// every call.
func (s *vaultService) value(ctx context.Context, id common.Address, amount *uint256.Int) (*uint256.Int, error) {
	feed, err := s.registry.Resolve(id)
	if err != nil {
		return nil, err
	}
	return s.valueAt(ctx, id, feed, amount)
}

func (s *vaultService) valueAt(ctx context.Context, id, feed common.Address, amount *uint256.Int) (*uint256.Int, error) {
	decimals := asset.NativeDecimals
	if !asset.IsNative(id) {
		d, err := s.metadata.Decimals(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrAssetMetadata, id.Hex(), err)
		}
		decimals = d
	}

	price, err := s.prices.Read(ctx, feed)
	if err != nil {
		return nil, err
	}
	return valuation.ToUSD6(decimals, price.Value, price.Decimals, amount)
}

// SetFeed binds feed to id. Admin only.
func (s *vaultService) SetFeed(ctx context.Context, principal, id, feed common.Address) error {
	_, release, err := s.guard.enter(ctx)
	if err != nil {
		return classify(err)
	}
	err = s.setFeedLocked(principal, id, feed)
	release()
	if err != nil {
		return classify(err)
	}

	s.emit(ctx, Event{Kind: EventFeedSet, Asset: id, Feed: feed, Admin: principal})
	return nil
}

func (s *vaultService) setFeedLocked(principal, id, feed common.Address) error {
	if !s.auth.IsAdmin(principal) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, principal.Hex())
	}
	return s.guard.apply(func() error {
		_, err := s.registry.Set(id, feed)
		return err
	})
}

// SetPaused sets the pause gate. Admin only.
func (s *vaultService) SetPaused(ctx context.Context, principal common.Address, paused bool) error {
	_, release, err := s.guard.enter(ctx)
	if err != nil {
		return classify(err)
	}
	if !s.auth.IsAdmin(principal) {
		release()
		return classify(fmt.Errorf("%w: %s", ErrUnauthorized, principal.Hex()))
	}
	s.gate.SetPaused(paused)
	release()

	s.emit(ctx, Event{Kind: EventPausedChanged, Admin: principal, Paused: paused})
	return nil
}

// GetVault returns the position of holder in id.
func (s *vaultService) GetVault(_ context.Context, id, holder common.Address) ledger.Position {
	defer s.guard.view()()
	return s.positions.Position(ledger.Key{Asset: id, Holder: holder})
}

// RemainingCapacity returns bankCap - used.
func (s *vaultService) RemainingCapacity(_ context.Context) *uint256.Int {
	defer s.guard.view()()
	return s.capacity.Remaining()
}

// UsedCapacity returns the USD6 capacity currently in use.
func (s *vaultService) UsedCapacity(_ context.Context) *uint256.Int {
	defer s.guard.view()()
	return s.capacity.Used()
}

// BankCap returns the immutable global cap.
func (s *vaultService) BankCap() *uint256.Int {
	return s.capacity.Cap()
}

// WithdrawCap returns the immutable per-withdrawal cap.
func (s *vaultService) WithdrawCap() *uint256.Int {
	return new(uint256.Int).Set(s.withdrawCap)
}

// FeedOf returns the feed bound to id.
func (s *vaultService) FeedOf(_ context.Context, id common.Address) (common.Address, error) {
	defer s.guard.view()()
	feed, err := s.registry.Resolve(id)
	if err != nil {
		return common.Address{}, classify(err)
	}
	return feed, nil
}

// Paused reports whether the vault is suspended.
func (s *vaultService) Paused() bool {
	return s.gate.Paused()
}

// QuoteValuation prices amount of id at the current feed answer without
// touching any state. The feed lookup is locked, the oracle read is not.
func (s *vaultService) QuoteValuation(ctx context.Context, id common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil {
		return nil, classify(ErrZeroAmount)
	}
	release := s.guard.view()
	feed, err := s.registry.Resolve(id)
	release()
	if err != nil {
		return nil, classify(err)
	}
	usd6, err := s.valueAt(ctx, id, feed, amount)
	if err != nil {
		return nil, classify(err)
	}
	return usd6, nil
}

func (s *vaultService) emit(ctx context.Context, ev Event) {
	ev.At = s.now().UTC()
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("Failed to deliver vault event",
			zap.String("event", string(ev.Kind)),
			zap.Error(err),
		)
	}
}
