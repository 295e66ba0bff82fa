package async

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/passbill/pkg/observability"
)

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestSafeGo_Success(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), time.Second, "test task", quietLogger(), func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SafeGo did not execute function")
	}
}

func TestSafeGo_Timeout(t *testing.T) {
	result := make(chan error, 1)

	SafeGo(context.Background(), 50*time.Millisecond, "test task", quietLogger(), func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			result <- nil
		case <-ctx.Done():
			result <- ctx.Err()
		}
		return nil
	})

	select {
	case err := <-result:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task never finished")
	}
}

func TestSafeGo_PanicRecovery(t *testing.T) {
	reached := make(chan struct{})

	SafeGo(context.Background(), time.Second, "test task", quietLogger(), func(ctx context.Context) error {
		close(reached)
		panic("test panic")
	})

	select {
	case <-reached:
	case <-time.After(time.Second):
		t.Fatal("function did not run")
	}
	// the process is still alive if the panic was recovered
	time.Sleep(20 * time.Millisecond)
}

func TestSafeGo_NilLogger(t *testing.T) {
	done := make(chan struct{})
	SafeGo(context.Background(), time.Second, "test task", nil, func(ctx context.Context) error {
		defer close(done)
		return nil
	})
	<-done
}

func TestWorkerPool_Basic(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, "test pool", time.Second, quietLogger())

	executed := atomic.Int32{}
	for i := 0; i < 10; i++ {
		if err := pool.Submit(func(ctx context.Context) error {
			executed.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("Failed to submit task: %v", err)
		}
	}

	if err := pool.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if executed.Load() != 10 {
		t.Errorf("Expected 10 executions, got %d", executed.Load())
	}
}

func TestWorkerPool_Errors(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, "test pool", time.Second, quietLogger())

	for i := 0; i < 5; i++ {
		if err := pool.Submit(func(ctx context.Context) error {
			return errors.New("collect failed")
		}); err != nil {
			t.Fatalf("Failed to submit task: %v", err)
		}
	}
	if err := pool.Submit(func(ctx context.Context) error {
		panic("boom")
	}); err != nil {
		t.Fatalf("Failed to submit task: %v", err)
	}

	pool.Close()
	pool.Wait()

	errorCount := 0
	panics := 0
	for {
		select {
		case err := <-pool.Errors():
			errorCount++
			if err.Error() == "panic: boom" {
				panics++
			}
			continue
		default:
		}
		break
	}

	if errorCount != 6 {
		t.Errorf("Expected 6 errors, got %d", errorCount)
	}
	if panics != 1 {
		t.Errorf("Expected 1 panic error, got %d", panics)
	}
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "test pool", time.Second, nil)
	pool.Close()
	pool.Close()

	if err := pool.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
	pool.Wait()
}

func TestWorkerPool_ShutdownTimeout(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "test pool", 5*time.Second, quietLogger())

	started := make(chan struct{})
	if err := pool.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}); err != nil {
		t.Fatalf("Failed to submit task: %v", err)
	}
	<-started

	if err := pool.Shutdown(20 * time.Millisecond); err == nil {
		t.Error("expected shutdown timeout error")
	}
}

func TestWorkerPool_TaskTimeout(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "test pool", 20*time.Millisecond, quietLogger())

	if err := pool.Submit(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}); err != nil {
		t.Fatalf("Failed to submit task: %v", err)
	}
	pool.Close()
	pool.Wait()

	select {
	case err := <-pool.Errors():
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	default:
		t.Error("expected a timeout error")
	}
}

func TestBatch(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6}
	errOdd := errors.New("odd")

	errs := Batch(context.Background(), items, 3, "batch", time.Second, quietLogger(), func(ctx context.Context, n int) error {
		if n == 6 {
			panic("six")
		}
		if n%2 == 1 {
			return errOdd
		}
		return nil
	})

	if len(errs) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(errs))
	}
	for i, n := range items {
		switch {
		case n == 6:
			if errs[i] == nil || errs[i].Error() != "panic: six" {
				t.Errorf("item %d: expected panic error, got %v", n, errs[i])
			}
		case n%2 == 1:
			if !errors.Is(errs[i], errOdd) {
				t.Errorf("item %d: expected errOdd, got %v", n, errs[i])
			}
		default:
			if errs[i] != nil {
				t.Errorf("item %d: unexpected error %v", n, errs[i])
			}
		}
	}
}

func TestBatch_Empty(t *testing.T) {
	errs := Batch(context.Background(), []string(nil), 2, "batch", time.Second, quietLogger(), func(ctx context.Context, s string) error {
		t.Error("fn must not be called")
		return nil
	})
	if len(errs) != 0 {
		t.Errorf("expected no results, got %d", len(errs))
	}
}

func TestBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	errs := Batch(ctx, []int{1, 2, 3}, 1, "batch", time.Second, quietLogger(), func(ctx context.Context, n int) error {
		calls.Add(1)
		return ctx.Err()
	})

	for i, err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("item %d: expected context.Canceled, got %v", i, err)
		}
	}
}
