package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestExecutor(t *testing.T, workers int) *Executor {
	t.Helper()
	e := NewExecutor(workers, zap.NewNop().Sugar())
	t.Cleanup(func() { e.Shutdown(time.Second) })
	return e
}

func TestRunCompletesResult(t *testing.T) {
	e := newTestExecutor(t, 2)

	res := Run(e, func() (int, error) { return 42, nil })
	got, err := res.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 42 {
		t.Errorf("Get = %d, want 42", got)
	}
}

func TestRunPropagatesError(t *testing.T) {
	e := newTestExecutor(t, 2)

	boom := errors.New("boom")
	_, err := Run(e, func() (int, error) { return 0, boom }).Get(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Get error = %v, want %v", err, boom)
	}
}

func TestGetTimeout(t *testing.T) {
	e := newTestExecutor(t, 1)

	block := make(chan struct{})
	res := Run(e, func() (int, error) { <-block; return 1, nil })
	if _, err := res.GetTimeout(20 * time.Millisecond); !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("GetTimeout error = %v, want ErrWaitTimeout", err)
	}
	close(block)
	if got, err := res.GetTimeout(time.Second); err != nil || got != 1 {
		t.Errorf("GetTimeout after unblock = (%d, %v), want (1, nil)", got, err)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	e := NewExecutor(2, zap.NewNop().Sugar())
	e.Shutdown(time.Second)

	if err := e.Submit(func() {}); !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Submit after shutdown = %v, want ErrExecutorClosed", err)
	}

	// Run surfaces the rejection through the future instead of hanging.
	_, err := Run(e, func() (int, error) { return 1, nil }).GetTimeout(time.Second)
	if !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Run after shutdown = %v, want ErrExecutorClosed", err)
	}
}

func TestShutdownDrainsPending(t *testing.T) {
	e := NewExecutor(2, zap.NewNop().Sugar())

	var done atomic.Int32
	for i := 0; i < 20; i++ {
		if err := e.Submit(func() {
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	e.Shutdown(5 * time.Second)

	if got := done.Load(); got != 20 {
		t.Errorf("finished %d tasks before shutdown returned, want 20", got)
	}
}

func TestCompleted(t *testing.T) {
	got, err := Completed(7, nil).Get(context.Background())
	if err != nil || got != 7 {
		t.Errorf("Completed = (%d, %v), want (7, nil)", got, err)
	}
}

func TestDefaultWorkersFloor(t *testing.T) {
	if n := DefaultWorkers(); n < 4 {
		t.Errorf("DefaultWorkers = %d, want at least 4", n)
	}
}
