package matcher

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arre-ops/arre_server/cmd/types"
)

// TaskSource is the slice of the task store the matcher needs.
type TaskSource interface {
	List(ctx context.Context) ([]types.Task, error)
	GetByTrigger(ctx context.Context, key types.TriggerKey) ([]types.Task, error)
}

type snapshot struct {
	byKey   map[types.TriggerKey][]types.Task
	builtAt time.Time
}

// Index matches normalized alerts against task trigger rules. It keeps an
// in-memory snapshot of the store's rule set and refreshes it lazily on
// first use after the staleness window. When a refresh fails the index
// falls back to querying the store directly for the one key in hand, so a
// flaky list endpoint degrades matching latency, not correctness.
type Index struct {
	source    TaskSource
	staleness time.Duration

	current   atomic.Pointer[snapshot]
	refreshMu sync.Mutex
}

// NewIndex creates a matcher index over the given task source.
func NewIndex(source TaskSource, staleness time.Duration) *Index {
	return &Index{source: source, staleness: staleness}
}

// Match returns every task with a trigger rule equal to the key, ordered by
// ascending task id so repeated alerts execute tasks in a stable order.
func (idx *Index) Match(ctx context.Context, key types.TriggerKey) ([]types.Task, error) {
	snap := idx.current.Load()
	if snap != nil && time.Since(snap.builtAt) < idx.staleness {
		return orderTasks(snap.byKey[key]), nil
	}

	snap, err := idx.refresh(ctx)
	if err == nil {
		return orderTasks(snap.byKey[key]), nil
	}
	log.Printf("[MATCHER] Index refresh failed, querying store directly for %s/%s: %v",
		key.Source, key.AlertName, err)

	tasks, directErr := idx.source.GetByTrigger(ctx, key)
	if directErr != nil {
		return nil, fmt.Errorf("match %s/%s: %w", key.Source, key.AlertName, directErr)
	}
	return orderTasks(filterByKey(tasks, key)), nil
}

// Refresh rebuilds the snapshot immediately, regardless of staleness.
// The server calls this once at startup so the first alert does not pay
// the full list round trip.
func (idx *Index) Refresh(ctx context.Context) error {
	idx.refreshMu.Lock()
	defer idx.refreshMu.Unlock()
	return idx.rebuild(ctx)
}

// refresh rebuilds the snapshot unless another goroutine already did so
// while this one waited on the lock.
func (idx *Index) refresh(ctx context.Context) (*snapshot, error) {
	idx.refreshMu.Lock()
	defer idx.refreshMu.Unlock()

	if snap := idx.current.Load(); snap != nil && time.Since(snap.builtAt) < idx.staleness {
		return snap, nil
	}
	if err := idx.rebuild(ctx); err != nil {
		return nil, err
	}
	return idx.current.Load(), nil
}

func (idx *Index) rebuild(ctx context.Context) error {
	tasks, err := idx.source.List(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	byKey := make(map[types.TriggerKey][]types.Task)
	rules := 0
	for _, task := range tasks {
		for _, rule := range task.TriggerOnAlerts {
			k := types.TriggerKey{Source: rule.Source, AlertName: rule.AlertName}
			byKey[k] = append(byKey[k], task)
			rules++
		}
	}
	idx.current.Store(&snapshot{byKey: byKey, builtAt: time.Now()})
	log.Printf("[MATCHER] Index rebuilt: %d tasks, %d trigger rules, %d distinct keys",
		len(tasks), rules, len(byKey))
	return nil
}

func filterByKey(tasks []types.Task, key types.TriggerKey) []types.Task {
	matched := tasks[:0]
	for _, task := range tasks {
		if _, ok := task.RuleFor(key); ok {
			matched = append(matched, task)
		}
	}
	return matched
}

func orderTasks(tasks []types.Task) []types.Task {
	out := make([]types.Task, len(tasks))
	copy(out, tasks)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
