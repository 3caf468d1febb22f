// Package metrics exposes vault activity to Prometheus.
package metrics

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/chainsafe/custody-vault/pkg/asset"
	"github.com/chainsafe/custody-vault/pkg/valuation"
	"github.com/chainsafe/custody-vault/pkg/vault"
)

const nativeLabel = "native"

// CapacityReader is the read side of the vault sampled on every scrape.
type CapacityReader interface {
	UsedCapacity(ctx context.Context) *uint256.Int
	RemainingCapacity(ctx context.Context) *uint256.Int
	Paused() bool
}

// Vault holds the vault collectors. It implements vault.Notifier.
type Vault struct {
	factory promauto.Factory

	// DepositsTotal counts committed deposits by asset
	DepositsTotal *prometheus.CounterVec
	// WithdrawalsTotal counts committed withdrawals by asset
	WithdrawalsTotal *prometheus.CounterVec
	// VolumeUSD tracks the USD value moved by direction
	VolumeUSD *prometheus.CounterVec
	// FeedUpdatesTotal counts feed registrations by asset
	FeedUpdatesTotal *prometheus.CounterVec
	// PauseChangesTotal counts pause toggles by resulting state
	PauseChangesTotal *prometheus.CounterVec
	// RejectionsTotal counts failed operations by method and reason
	RejectionsTotal *prometheus.CounterVec
	// OperationDuration tracks mutating call latency
	OperationDuration *prometheus.HistogramVec
}

// NewVault registers the vault collectors with reg.
func NewVault(reg prometheus.Registerer) *Vault {
	f := promauto.With(reg)
	return &Vault{
		factory: f,
		DepositsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_deposits_total",
				Help: "Total number of committed deposits",
			},
			[]string{"asset"},
		),
		WithdrawalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_withdrawals_total",
				Help: "Total number of committed withdrawals",
			},
			[]string{"asset"},
		),
		VolumeUSD: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_volume_usd_total",
				Help: "USD value of committed movements",
			},
			[]string{"direction"},
		),
		FeedUpdatesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_feed_updates_total",
				Help: "Total number of feed registrations",
			},
			[]string{"asset"},
		),
		PauseChangesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_pause_changes_total",
				Help: "Total number of pause updates by resulting state",
			},
			[]string{"paused"},
		),
		RejectionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_rejections_total",
				Help: "Total number of failed vault operations",
			},
			[]string{"method", "reason"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vault_operation_duration_seconds",
				Help:    "Vault operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// WatchCapacity registers gauges sampling r at scrape time.
func (m *Vault) WatchCapacity(r CapacityReader) {
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vault_capacity_used_usd",
			Help: "USD capacity currently in use",
		},
		func() float64 { return usd(r.UsedCapacity(context.Background())) },
	)
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vault_capacity_remaining_usd",
			Help: "USD capacity still available for deposits",
		},
		func() float64 { return usd(r.RemainingCapacity(context.Background())) },
	)
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vault_paused",
			Help: "1 while the vault is suspended",
		},
		func() float64 {
			if r.Paused() {
				return 1
			}
			return 0
		},
	)
}

// Notify implements vault.Notifier.
func (m *Vault) Notify(_ context.Context, ev vault.Event) error {
	switch ev.Kind {
	case vault.EventDeposited:
		m.DepositsTotal.WithLabelValues(assetLabel(ev.Asset)).Inc()
		m.VolumeUSD.WithLabelValues("deposit").Add(usd(ev.USD6))
	case vault.EventWithdrawn:
		m.WithdrawalsTotal.WithLabelValues(assetLabel(ev.Asset)).Inc()
		m.VolumeUSD.WithLabelValues("withdraw").Add(usd(ev.USD6))
	case vault.EventFeedSet:
		m.FeedUpdatesTotal.WithLabelValues(assetLabel(ev.Asset)).Inc()
	case vault.EventPausedChanged:
		if ev.Paused {
			m.PauseChangesTotal.WithLabelValues("true").Inc()
		} else {
			m.PauseChangesTotal.WithLabelValues("false").Inc()
		}
	}
	return nil
}

func assetLabel(id common.Address) string {
	if asset.IsNative(id) {
		return nativeLabel
	}
	return id.Hex()
}

// usd converts USD6 units to dollars. Precision loss is acceptable for gauges.
func usd(usd6 *uint256.Int) float64 {
	if usd6 == nil {
		return 0
	}
	return decimal.NewFromBigInt(usd6.ToBig(), -valuation.USD6Decimals).InexactFloat64()
}
