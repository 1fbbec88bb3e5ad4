package dedup

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/arre-ops/arre_server/cmd/types"
	"github.com/redis/go-redis/v9"
)

// Result of a dedup check.
type Result string

const (
	Fired      Result = "fired"
	Suppressed Result = "suppressed"
)

// Window suppresses re-execution of a task for the same alert fingerprint
// inside the trigger rule's dedup interval. Entries live in Redis with the
// interval as TTL, so expiry doubles as eviction and SET NX gives the
// atomicity guarantee: of two concurrent callers for the same
// (task, fingerprint), at most one observes Fired.
type Window struct {
	client *redis.Client
}

// NewWindow creates a dedup window backed by the given Redis client
func NewWindow(client *redis.Client) *Window {
	return &Window{client: client}
}

func entryKey(taskID string, key types.TriggerKey, fingerprint string) string {
	return fmt.Sprintf("dedup:%s:%s:%s:%s", taskID, key.Source, key.AlertName, fingerprint)
}

// CheckAndMark records an execution and reports whether it may proceed.
// A zero or negative interval disables deduplication. On a store failure
// the window fails open: redundant execution beats missed execution.
func (w *Window) CheckAndMark(ctx context.Context, taskID string, key types.TriggerKey, fingerprint string, interval time.Duration) (Result, error) {
	if interval <= 0 {
		return Fired, nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	set, err := w.client.SetNX(ctx, entryKey(taskID, key, fingerprint), now, interval).Result()
	if err != nil {
		log.Printf("[DEDUP] Store unavailable, failing open for task %s fingerprint %s: %v",
			taskID, fingerprint, err)
		return Fired, err
	}
	if !set {
		log.Printf("[DEDUP] Suppressed task %s for fingerprint %s (interval %s)",
			taskID, fingerprint, interval)
		return Suppressed, nil
	}
	return Fired, nil
}

// LastFired returns when the entry was recorded, if present. Used by the
// operator stats endpoints and tests.
func (w *Window) LastFired(ctx context.Context, taskID string, key types.TriggerKey, fingerprint string) (time.Time, bool, error) {
	val, err := w.client.Get(ctx, entryKey(taskID, key, fingerprint)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt dedup entry: %w", err)
	}
	return t, true, nil
}
