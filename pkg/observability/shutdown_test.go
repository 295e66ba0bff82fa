package observability

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *Logger {
	return NewLogger(ErrorLevel, io.Discard)
}

func TestNewShutdownManager(t *testing.T) {
	sm := NewShutdownManager(nil, 0)
	assert.Equal(t, 30*time.Second, sm.shutdownTimeout)
	assert.NotNil(t, sm.logger)

	sm = NewShutdownManager(quietLogger(), time.Second)
	assert.Equal(t, time.Second, sm.shutdownTimeout)
}

func TestShutdownRunsAllFunctions(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), time.Second)

	var calls atomic.Int32
	for _, name := range []string{"store", "redis", "otel"} {
		sm.RegisterShutdownFunc(name, func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})
	}
	sm.RegisterShutdownFunc("ignored", nil)

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, int32(3), calls.Load())
}

func TestShutdownCollectsErrors(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), time.Second)
	errStore := errors.New("store close failed")

	sm.RegisterShutdownFunc("store", func(ctx context.Context) error { return errStore })
	sm.RegisterShutdownFunc("redis", func(ctx context.Context) error { return nil })

	err := sm.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, errStore)
	assert.Contains(t, err.Error(), "1 errors")
}

func TestShutdownTimeout(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), 50*time.Millisecond)
	sm.RegisterShutdownFunc("slow", func(ctx context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShutdownStopsServers(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &http.Server{Handler: http.NotFoundHandler()}
	served := make(chan error, 1)
	go func() { served <- server.Serve(listener) }()

	sm := NewShutdownManager(quietLogger(), time.Second, server, nil)
	require.NoError(t, sm.Shutdown())

	select {
	case err := <-served:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}

func TestWaitForShutdownOnContextCancel(t *testing.T) {
	sm := NewShutdownManager(quietLogger(), time.Second)

	var called atomic.Bool
	sm.RegisterShutdownFunc("store", func(ctx context.Context) error {
		called.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.WaitForShutdown(ctx))
	assert.True(t, called.Load())
}
