package metrics

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	apperrors "github.com/chainsafe/custody-vault/pkg/app/errors"
	"github.com/chainsafe/custody-vault/pkg/ledger"
	"github.com/chainsafe/custody-vault/pkg/vault"
)

// service records latency and rejections of mutating calls.
type service struct {
	svc     vault.Service
	metrics *Vault
}

// NewService wraps svc with metrics collection.
func NewService(svc vault.Service, m *Vault) vault.Service {
	return &service{svc: svc, metrics: m}
}

func (s *service) observe(method string) func(err error) {
	start := time.Now()
	return func(err error) {
		s.metrics.OperationDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		if err != nil {
			reason := apperrors.ReasonOf(err)
			if reason == "" {
				reason = "UNKNOWN"
			}
			s.metrics.RejectionsTotal.WithLabelValues(method, reason).Inc()
		}
	}
}

func (s *service) DepositNative(
	ctx context.Context,
	holder common.Address,
	amount *uint256.Int,
	attachment string,
) (*vault.Receipt, error) {
	done := s.observe("DepositNative")
	r, err := s.svc.DepositNative(ctx, holder, amount, attachment)
	done(err)
	return r, err
}

func (s *service) WithdrawNative(ctx context.Context, holder common.Address, amount *uint256.Int) (*vault.Receipt, error) {
	done := s.observe("WithdrawNative")
	r, err := s.svc.WithdrawNative(ctx, holder, amount)
	done(err)
	return r, err
}

func (s *service) DepositAsset(ctx context.Context, holder, id common.Address, amount *uint256.Int) (*vault.Receipt, error) {
	done := s.observe("DepositAsset")
	r, err := s.svc.DepositAsset(ctx, holder, id, amount)
	done(err)
	return r, err
}

func (s *service) WithdrawAsset(ctx context.Context, holder, id common.Address, amount *uint256.Int) (*vault.Receipt, error) {
	done := s.observe("WithdrawAsset")
	r, err := s.svc.WithdrawAsset(ctx, holder, id, amount)
	done(err)
	return r, err
}

func (s *service) SetFeed(ctx context.Context, principal, id, feed common.Address) error {
	done := s.observe("SetFeed")
	err := s.svc.SetFeed(ctx, principal, id, feed)
	done(err)
	return err
}

func (s *service) SetPaused(ctx context.Context, principal common.Address, paused bool) error {
	done := s.observe("SetPaused")
	err := s.svc.SetPaused(ctx, principal, paused)
	done(err)
	return err
}

func (s *service) GetVault(ctx context.Context, id, holder common.Address) ledger.Position {
	return s.svc.GetVault(ctx, id, holder)
}

func (s *service) RemainingCapacity(ctx context.Context) *uint256.Int {
	return s.svc.RemainingCapacity(ctx)
}

func (s *service) UsedCapacity(ctx context.Context) *uint256.Int {
	return s.svc.UsedCapacity(ctx)
}

func (s *service) BankCap() *uint256.Int {
	return s.svc.BankCap()
}

func (s *service) WithdrawCap() *uint256.Int {
	return s.svc.WithdrawCap()
}

func (s *service) FeedOf(ctx context.Context, id common.Address) (common.Address, error) {
	return s.svc.FeedOf(ctx, id)
}

func (s *service) Paused() bool {
	return s.svc.Paused()
}

func (s *service) QuoteValuation(ctx context.Context, id common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return s.svc.QuoteValuation(ctx, id, amount)
}
