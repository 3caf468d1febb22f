// Package api implements app.Runner for the vault server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainsafe/custody-vault/internal/metrics"
	"github.com/chainsafe/custody-vault/pkg/access"
	"github.com/chainsafe/custody-vault/pkg/app/health"
	apphttp "github.com/chainsafe/custody-vault/pkg/app/http"
	"github.com/chainsafe/custody-vault/pkg/auth"
	"github.com/chainsafe/custody-vault/pkg/config"
	"github.com/chainsafe/custody-vault/pkg/eventstore"
	"github.com/chainsafe/custody-vault/pkg/oracle"
	"github.com/chainsafe/custody-vault/pkg/pgutil"
	"github.com/chainsafe/custody-vault/pkg/valuation"
	"github.com/chainsafe/custody-vault/pkg/vault"
)

// Server holds cfg to init the vault server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new vault server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run builds the vault and serves it until SIGINT or SIGTERM.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("vault server config is nil")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(s.cfg.Logging, zap.String("mode", s.cfg.Vault.Mode))
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting vault server",
		zap.String("host", s.cfg.Server.Host),
		zap.Int("port", s.cfg.Server.Port),
	)

	return s.serve(ctx, logger)
}

func (s *Server) serve(ctx context.Context, logger *zap.Logger) error {
	cfg := s.cfg

	deps, cleanup, err := newDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	db, err := s.openDB(ctx, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	vaultMetrics := metrics.NewVault(prometheus.DefaultRegisterer)
	reporter := health.NewReporter(false)

	notifiers := vault.MultiNotifier{vault.NewLogNotifier(logger), vaultMetrics, reporter}
	var events vault.EventLister
	if db != nil {
		store := eventstore.NewStore(db)
		notifiers = append(notifiers, store)
		events = store
	}

	svc, admins, err := newVault(cfg, deps, notifiers, logger)
	if err != nil {
		return err
	}
	vaultMetrics.WatchCapacity(svc)
	svc = vault.NewLog(metrics.NewService(svc, vaultMetrics), logger)

	if err := registerFeeds(ctx, svc, admins, cfg.Vault.Feeds); err != nil {
		return err
	}

	router := s.setupRouter(svc, events, db, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apphttp.ServeAndWait(gctx, router, logger, &cfg.Server)
	})
	if cfg.GRPC.Enabled {
		g.Go(func() error {
			return health.ServeAndWait(gctx, reporter, logger, &cfg.GRPC)
		})
	}
	return g.Wait()
}

func (s *Server) openDB(ctx context.Context, logger *zap.Logger) (*bun.DB, error) {
	if !s.cfg.Database.Enabled {
		logger.Info("Event journal disabled")
		return nil, nil
	}
	db, err := pgutil.ConnectDB(ctx, &s.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	logger.Info("Connected to database",
		zap.String("host", s.cfg.Database.Host),
		zap.String("database", s.cfg.Database.Database),
	)
	return db, nil
}

func newVault(
	cfg *config.Config,
	deps *dependencies,
	notifier vault.Notifier,
	logger *zap.Logger,
) (vault.Service, []common.Address, error) {
	bankCap, err := valuation.ParseUSD(cfg.Vault.BankCapUSD)
	if err != nil {
		return nil, nil, fmt.Errorf("vault.bank_cap_usd: %w", err)
	}
	withdrawCap, err := valuation.ParseUSD(cfg.Vault.WithdrawCapUSD)
	if err != nil {
		return nil, nil, fmt.Errorf("vault.withdraw_cap_usd: %w", err)
	}
	nativeFeed, err := auth.ParseAddress(cfg.Vault.NativeFeed)
	if err != nil {
		return nil, nil, fmt.Errorf("vault.native_feed: %w", err)
	}
	admins := make([]common.Address, 0, len(cfg.Vault.Admins))
	for _, a := range cfg.Vault.Admins {
		addr, err := auth.ParseAddress(a)
		if err != nil {
			return nil, nil, fmt.Errorf("vault.admins: %w", err)
		}
		admins = append(admins, addr)
	}

	reentryWait := cfg.Vault.ReentryWait
	if cfg.Vault.Mode == config.ModeEVM {
		// payouts hold the vault until their receipt arrives
		reentryWait = max(reentryWait, cfg.Ethereum.ReceiptTimeout+reentryWait)
	}

	svc, err := vault.NewService(
		vault.Config{
			BankCapUSD6:     bankCap,
			WithdrawCapUSD6: withdrawCap,
			NativeFeed:      nativeFeed,
			ReentryWait:     reentryWait,
		},
		oracle.NewAdapter(deps.prices),
		deps.metadata,
		deps.gateway,
		access.NewRoleSet(admins...),
		&access.PauseSwitch{},
		notifier,
		logger,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create vault: %w", err)
	}

	logger.Info("Vault ready",
		zap.String("bank_cap_usd", valuation.FormatUSD(bankCap)),
		zap.String("withdraw_cap_usd", valuation.FormatUSD(withdrawCap)),
		zap.String("native_feed", nativeFeed.Hex()),
		zap.Int("admins", len(admins)),
	)
	return svc, admins, nil
}

// registerFeeds binds the configured feeds on behalf of the first admin.
func registerFeeds(ctx context.Context, svc vault.Service, admins []common.Address, feeds []config.FeedBinding) error {
	for _, b := range feeds {
		id, err := auth.ParseAddress(b.Asset)
		if err != nil {
			return fmt.Errorf("vault.feeds: %w", err)
		}
		feed, err := auth.ParseAddress(b.Feed)
		if err != nil {
			return fmt.Errorf("vault.feeds: %w", err)
		}
		if err := svc.SetFeed(ctx, admins[0], id, feed); err != nil {
			return fmt.Errorf("register feed for %s: %w", id.Hex(), err)
		}
	}
	return nil
}

func (s *Server) setupRouter(svc vault.Service, events vault.EventLister, db *bun.DB, logger *zap.Logger) chi.Router {
	cfg := s.cfg
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if cfg.Monitoring.Enabled {
		r.Handle(cfg.Monitoring.MetricsPath, promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", cfg.Monitoring.MetricsPath))
	}

	jwtValidator := auth.NewJWTValidator(cfg.Auth.JWKSURL, cfg.Auth.Issuer)
	if jwtValidator.IsConfigured() {
		logger.Info("Admin bearer tokens enabled", zap.String("jwks_url", cfg.Auth.JWKSURL))
	}
	vault.RegisterRoutes(r, svc, auth.NewMiddleware(jwtValidator, auth.Options{
		MaxBody: cfg.Auth.MaxBodyBytes,
		TTL:     cfg.Auth.SignatureTTL,
	}), events, logger)

	return r
}
