package app

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errClosed = errors.New("closed")

// blockingEndpoint serves until Stop closes its listener.
func blockingEndpoint(addr string, stopErr error) (Endpoint, *int) {
	stops := 0
	served := make(chan net.Listener, 1)
	return Endpoint{
		Name: "test",
		Addr: addr,
		Serve: func(l net.Listener) error {
			served <- l
			for {
				conn, err := l.Accept()
				if err != nil {
					return errClosed
				}
				conn.Close()
			}
		},
		Closed: errClosed,
		Stop: func(context.Context) error {
			stops++
			(<-served).Close()
			return stopErr
		},
	}, &stops
}

func TestServe_StopsOnCancel(t *testing.T) {
	e, stops := blockingEndpoint("127.0.0.1:0", nil)
	ready := make(chan net.Addr, 1)
	e.Ready = func(a net.Addr) { ready <- a }

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, e, zap.NewNop()) }()

	addr := <-ready
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	conn.Close()

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, 1, *stops)
}

func TestServe_BindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	e, stops := blockingEndpoint(taken.Addr().String(), nil)
	err = Serve(context.Background(), e, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test listen")
	assert.Zero(t, *stops)
}

func TestServe_ServeFailureStillStops(t *testing.T) {
	boom := errors.New("accept loop broke")
	stops := 0
	e := Endpoint{
		Name:   "test",
		Addr:   "127.0.0.1:0",
		Serve:  func(net.Listener) error { return boom },
		Closed: errClosed,
		Stop:   func(context.Context) error { stops++; return nil },
	}

	err := Serve(context.Background(), e, zap.NewNop())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, stops)
}

func TestServe_StopError(t *testing.T) {
	drain := errors.New("drain timed out")
	e, _ := blockingEndpoint("127.0.0.1:0", drain)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Serve(ctx, e, zap.NewNop())
	require.ErrorIs(t, err, drain)
}

func TestServe_RequiresFuncs(t *testing.T) {
	err := Serve(context.Background(), Endpoint{Name: "test", Addr: "127.0.0.1:0"}, nil)
	require.Error(t, err)
}
