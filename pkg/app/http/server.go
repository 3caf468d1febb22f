package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/chainsafe/custody-vault/pkg/app"
	"github.com/chainsafe/custody-vault/pkg/config"
)

// NewEndpoint wraps handler in an http.Server tuned by cfg.
func NewEndpoint(handler http.Handler, cfg *config.ServerConfig) app.Endpoint {
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app.Endpoint{
		Name:        "http",
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Serve:       srv.Serve,
		Closed:      http.ErrServerClosed,
		Stop:        srv.Shutdown,
		StopTimeout: cfg.ShutdownTimeout,
	}
}

// ServeAndWait serves the vault API until ctx is canceled, then drains open
// requests within the configured shutdown timeout.
func ServeAndWait(ctx context.Context, handler http.Handler, logger *zap.Logger, cfg *config.ServerConfig) error {
	if handler == nil {
		return errors.New("nil handler")
	}
	if cfg == nil {
		return errors.New("nil server config")
	}
	return app.Serve(ctx, NewEndpoint(handler, cfg), logger)
}
