package vault

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/custody-vault/pkg/app/errors"
	"github.com/chainsafe/custody-vault/pkg/ledger"
)

const serviceName = "VaultService"

// logService wraps Service with logging of every mutating call.
// Views are passed through unlogged.
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the vault Service.
// It logs method entry/exit, duration and errors.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) logOp(method string, fields []zap.Field) func(r *Receipt, err error) {
	start := time.Now()
	base := append([]zap.Field{
		zap.String("service", serviceName),
		zap.String("method", method),
	}, fields...)

	ls.logger.Info(method+" started", base...)

	return func(r *Receipt, err error) {
		done := make([]zap.Field, 0, len(base)+5)
		done = append(done, base...)
		done = append(done, zap.Duration("duration", time.Since(start)))
		if err != nil {
			done = append(done, zap.String("reason", apperrors.ReasonOf(err)), zap.Error(err))
			if apperrors.IsInternalError(err) {
				ls.logger.Error(method+" failed", done...)
			} else {
				ls.logger.Warn(method+" rejected", done...)
			}
			return
		}
		if r != nil {
			done = append(done,
				zap.String("usd6", r.USD6.Dec()),
				zap.String("balance", r.Position.Balance.Dec()),
			)
		}
		ls.logger.Info(method+" completed", done...)
	}
}

func movementFields(id, holder common.Address, amount *uint256.Int) []zap.Field {
	return []zap.Field{
		zap.String("asset", id.Hex()),
		zap.String("holder", holder.Hex()),
		zap.String("amount", dec(amount)),
	}
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.Dec()
}

// DepositNative wraps the service method with logging
func (ls *logService) DepositNative(
	ctx context.Context,
	holder common.Address,
	amount *uint256.Int,
	attachment string,
) (r *Receipt, err error) {
	fields := append(movementFields(common.Address{}, holder, amount), zap.String("attachment", attachment))
	done := ls.logOp("DepositNative", fields)
	defer func() { done(r, err) }()
	return ls.svc.DepositNative(ctx, holder, amount, attachment)
}

// WithdrawNative wraps the service method with logging
func (ls *logService) WithdrawNative(ctx context.Context, holder common.Address, amount *uint256.Int) (r *Receipt, err error) {
	done := ls.logOp("WithdrawNative", movementFields(common.Address{}, holder, amount))
	defer func() { done(r, err) }()
	return ls.svc.WithdrawNative(ctx, holder, amount)
}

// DepositAsset wraps the service method with logging
func (ls *logService) DepositAsset(ctx context.Context, holder, id common.Address, amount *uint256.Int) (r *Receipt, err error) {
	done := ls.logOp("DepositAsset", movementFields(id, holder, amount))
	defer func() { done(r, err) }()
	return ls.svc.DepositAsset(ctx, holder, id, amount)
}

// WithdrawAsset wraps the service method with logging
func (ls *logService) WithdrawAsset(ctx context.Context, holder, id common.Address, amount *uint256.Int) (r *Receipt, err error) {
	done := ls.logOp("WithdrawAsset", movementFields(id, holder, amount))
	defer func() { done(r, err) }()
	return ls.svc.WithdrawAsset(ctx, holder, id, amount)
}

// SetFeed wraps the service method with logging
func (ls *logService) SetFeed(ctx context.Context, principal, id, feed common.Address) (err error) {
	done := ls.logOp("SetFeed", []zap.Field{
		zap.String("principal", principal.Hex()),
		zap.String("asset", id.Hex()),
		zap.String("feed", feed.Hex()),
	})
	defer func() { done(nil, err) }()
	return ls.svc.SetFeed(ctx, principal, id, feed)
}

// SetPaused wraps the service method with logging
func (ls *logService) SetPaused(ctx context.Context, principal common.Address, paused bool) (err error) {
	done := ls.logOp("SetPaused", []zap.Field{
		zap.String("principal", principal.Hex()),
		zap.Bool("paused", paused),
	})
	defer func() { done(nil, err) }()
	return ls.svc.SetPaused(ctx, principal, paused)
}

func (ls *logService) GetVault(ctx context.Context, id, holder common.Address) ledger.Position {
	return ls.svc.GetVault(ctx, id, holder)
}

func (ls *logService) RemainingCapacity(ctx context.Context) *uint256.Int {
	return ls.svc.RemainingCapacity(ctx)
}

func (ls *logService) UsedCapacity(ctx context.Context) *uint256.Int {
	return ls.svc.UsedCapacity(ctx)
}

func (ls *logService) BankCap() *uint256.Int {
	return ls.svc.BankCap()
}

func (ls *logService) WithdrawCap() *uint256.Int {
	return ls.svc.WithdrawCap()
}

func (ls *logService) FeedOf(ctx context.Context, id common.Address) (common.Address, error) {
	return ls.svc.FeedOf(ctx, id)
}

func (ls *logService) Paused() bool {
	return ls.svc.Paused()
}

// QuoteValuation wraps the service method with debug logging
func (ls *logService) QuoteValuation(ctx context.Context, id common.Address, amount *uint256.Int) (*uint256.Int, error) {
	usd6, err := ls.svc.QuoteValuation(ctx, id, amount)
	if err != nil {
		ls.logger.Debug("QuoteValuation failed",
			zap.String("service", serviceName),
			zap.String("asset", id.Hex()),
			zap.Error(err),
		)
	}
	return usd6, err
}
