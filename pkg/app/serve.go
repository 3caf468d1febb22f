package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

const defaultStopTimeout = 30 * time.Second

// Endpoint is a network server the process runs on its own listener.
type Endpoint struct {
	// Name labels the endpoint in logs and errors.
	Name string
	Addr string
	// Serve blocks serving l until the endpoint is stopped.
	Serve func(l net.Listener) error
	// Closed is what Serve returns after Stop. nil is always accepted.
	Closed error
	// Stop drains in-flight requests, giving up when ctx is done.
	Stop        func(ctx context.Context) error
	StopTimeout time.Duration
	// Ready, if set, receives the bound address before serving starts.
	Ready func(net.Addr)
}

// Serve binds e.Addr and serves until ctx is canceled or serving fails, then
// stops the endpoint within e.StopTimeout. A failed bind is returned before
// anything is served.
func Serve(ctx context.Context, e Endpoint, logger *zap.Logger) error {
	if e.Serve == nil || e.Stop == nil {
		return fmt.Errorf("%s: endpoint has no serve or stop func", e.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := e.StopTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}

	ln, err := net.Listen("tcp", e.Addr)
	if err != nil {
		return fmt.Errorf("%s listen %s: %w", e.Name, e.Addr, err)
	}
	defer ln.Close()
	logger = logger.With(zap.String("endpoint", e.Name), zap.String("address", ln.Addr().String()))
	if e.Ready != nil {
		e.Ready(ln.Addr())
	}

	done := make(chan error, 1)
	go func() {
		err := e.Serve(ln)
		if err != nil && e.Closed != nil && errors.Is(err, e.Closed) {
			err = nil
		}
		done <- err
	}()
	logger.Info("endpoint serving")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("endpoint stopping", zap.Duration("timeout", timeout))
	case serveErr = <-done:
		if serveErr == nil {
			logger.Info("endpoint closed")
			return nil
		}
		logger.Error("endpoint failed", zap.Error(serveErr))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	stopErr := e.Stop(stopCtx)

	if serveErr != nil {
		return fmt.Errorf("%s serve: %w", e.Name, serveErr)
	}
	if stopErr != nil {
		logger.Error("endpoint stop failed", zap.Error(stopErr))
		return fmt.Errorf("%s stop: %w", e.Name, stopErr)
	}
	// Serve has returned once a clean Stop does
	if err := <-done; err != nil {
		logger.Error("endpoint failed while stopping", zap.Error(err))
		return fmt.Errorf("%s serve: %w", e.Name, err)
	}
	logger.Info("endpoint stopped")
	return nil
}
