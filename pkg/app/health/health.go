// Package health serves the gRPC health protocol. The vault service reports
// NOT_SERVING while suspended.
package health

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/chainsafe/custody-vault/pkg/app"
	"github.com/chainsafe/custody-vault/pkg/config"
	"github.com/chainsafe/custody-vault/pkg/vault"
)

// ServiceName is the name clients pass in HealthCheckRequest.
const ServiceName = "custody.vault"

// Reporter tracks the serving status of the vault. It implements vault.Notifier.
type Reporter struct {
	server *grpchealth.Server
}

// NewReporter creates a Reporter in the state matching paused.
func NewReporter(paused bool) *Reporter {
	r := &Reporter{server: grpchealth.NewServer()}
	r.set(paused)
	return r
}

// Server returns the health service to register on a gRPC server.
func (r *Reporter) Server() *grpchealth.Server {
	return r.server
}

// Notify implements vault.Notifier.
func (r *Reporter) Notify(_ context.Context, ev vault.Event) error {
	if ev.Kind == vault.EventPausedChanged {
		r.set(ev.Paused)
	}
	return nil
}

// Shutdown marks every service NOT_SERVING.
func (r *Reporter) Shutdown() {
	r.server.Shutdown()
}

func (r *Reporter) set(paused bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if paused {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	r.server.SetServingStatus(ServiceName, status)
}

// NewEndpoint serves the health service of r on the address in cfg.
// Stopping marks the vault NOT_SERVING before connections drain.
func NewEndpoint(r *Reporter, cfg *config.GRPCConfig) app.Endpoint {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, r.Server())
	return app.Endpoint{
		Name:   "grpc-health",
		Addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Serve:  srv.Serve,
		Closed: grpc.ErrServerStopped,
		Stop: func(ctx context.Context) error {
			r.Shutdown()
			stopped := make(chan struct{})
			go func() {
				srv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
				return nil
			case <-ctx.Done():
				srv.Stop()
				return ctx.Err()
			}
		},
	}
}

// ServeAndWait serves the health service until ctx is canceled.
func ServeAndWait(ctx context.Context, r *Reporter, logger *zap.Logger, cfg *config.GRPCConfig) error {
	return app.Serve(ctx, NewEndpoint(r, cfg), logger)
}
