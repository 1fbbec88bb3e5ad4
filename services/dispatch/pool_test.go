package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arre-ops/arre_server/cmd/types"
)

func TestPool_RoutesSubmittedAlert(t *testing.T) {
	f := newFixture(types.ModeDeterministic)
	f.matcher.tasks = []types.Task{ruleTask("task-a", 0)}

	pool := NewPool(f.engine, PoolConfig{Workers: 2, QueueSize: 4})
	pool.Start()
	defer pool.Shutdown()

	resultCh, err := pool.SubmitWithResult(context.Background(), cpuAlert(), "")
	if err != nil {
		t.Fatalf("SubmitWithResult: %v", err)
	}

	select {
	case result := <-resultCh:
		if result.Err != nil {
			t.Fatalf("routing failed: %v", result.Err)
		}
		if result.Record == nil || result.Record.TasksExecuted != 1 {
			t.Errorf("unexpected record: %+v", result.Record)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no result delivered")
	}
}

func TestPool_QueueFullAppliesBackpressure(t *testing.T) {
	f := newFixture(types.ModeDeterministic)
	// Workers never started, so the queue fills and stays full.
	pool := NewPool(f.engine, PoolConfig{Workers: 1, QueueSize: 1})

	if _, err := pool.SubmitWithResult(context.Background(), cpuAlert(), ""); err != nil {
		t.Fatalf("first submit should queue: %v", err)
	}
	_, err := pool.SubmitWithResult(context.Background(), cpuAlert(), "")
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	stats := pool.Stats()
	if stats.DroppedCount != 1 {
		t.Errorf("dropped count = %d, want 1", stats.DroppedCount)
	}
	if stats.QueueSize != 1 {
		t.Errorf("queue size = %d, want 1", stats.QueueSize)
	}
}

func TestPool_SubmitAfterShutdownIsRejected(t *testing.T) {
	f := newFixture(types.ModeDeterministic)
	pool := NewPool(f.engine, PoolConfig{Workers: 1, QueueSize: 1})
	pool.Start()
	pool.Shutdown()

	// Must not panic on the closed queue.
	_, err := pool.SubmitWithResult(context.Background(), cpuAlert(), "")
	if !errors.Is(err, ErrPoolStopped) {
		t.Fatalf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPool_StatsCountProcessedAndErrors(t *testing.T) {
	f := newFixture(types.ModeDeterministic)
	f.matcher.err = errors.New("store down")

	pool := NewPool(f.engine, PoolConfig{Workers: 1, QueueSize: 2})
	pool.Start()

	resultCh, err := pool.SubmitWithResult(context.Background(), cpuAlert(), "")
	if err != nil {
		t.Fatalf("SubmitWithResult: %v", err)
	}
	<-resultCh
	pool.Shutdown()

	stats := pool.Stats()
	if stats.ProcessedCount != 1 {
		t.Errorf("processed = %d, want 1", stats.ProcessedCount)
	}
	if stats.ErrorCount != 1 {
		t.Errorf("errors = %d, want 1", stats.ErrorCount)
	}
}
