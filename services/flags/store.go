package flags

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arre-ops/arre_server/cmd/types"
	"github.com/arre-ops/arre_server/services/auth"
)

// Sentinel errors for flag operations
var (
	ErrInvalidValue = errors.New("invalid flag value")
)

// Flags is the administrative settings snapshot. Snapshots are immutable;
// a write installs a fresh copy.
type Flags struct {
	IncidentResponseMode string    `json:"incident_response_mode"`
	UpdatedAt            time.Time `json:"updated_at"`
	UpdatedBy            string    `json:"updated_by,omitempty"`
}

// FlagUpdate is a partial update; nil fields are left untouched.
type FlagUpdate struct {
	IncidentResponseMode *string `json:"incident_response_mode"`
}

// Backend is the durable copy of the flags. Defined here, at the consumer.
type Backend interface {
	Load(ctx context.Context) (*Flags, error)
	Save(ctx context.Context, f Flags) error
}

// Store holds the active flags: a lock-free snapshot for the many readers
// on the hot path, re-synced from the backend periodically so that writes
// from other replicas become visible within the refresh interval.
type Store struct {
	backend  Backend
	snapshot atomic.Pointer[Flags]
	writeMu  sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// DefaultRefreshInterval bounds the propagation delay for flag writes.
const DefaultRefreshInterval = 30 * time.Second

// NewStore loads the current flags from the backend, seeding the default
// deterministic mode on first boot.
func NewStore(ctx context.Context, backend Backend) (*Store, error) {
	s := &Store{backend: backend, stopCh: make(chan struct{})}

	current, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}
	if current == nil {
		current = &Flags{IncidentResponseMode: types.ModeDeterministic, UpdatedAt: time.Now()}
		if err := backend.Save(ctx, *current); err != nil {
			return nil, fmt.Errorf("seed default flags: %w", err)
		}
		log.Printf("[FLAGS] Seeded default flags: mode=%s", current.IncidentResponseMode)
	}
	s.snapshot.Store(current)
	return s, nil
}

// StartRefresher launches the background re-sync loop.
func (s *Store) StartRefresher(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				current, err := s.backend.Load(ctx)
				cancel()
				if err != nil {
					log.Printf("[FLAGS] Refresh failed, keeping stale snapshot: %v", err)
					continue
				}
				if current != nil {
					s.snapshot.Store(current)
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the refresher.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Get returns the current snapshot. Safe for concurrent readers.
func (s *Store) Get() Flags {
	return *s.snapshot.Load()
}

// Set applies a partial update. The caller must hold the admin capability;
// an invalid incident_response_mode is rejected with ErrInvalidValue.
func (s *Store) Set(ctx context.Context, principal auth.Principal, update FlagUpdate) (Flags, error) {
	if err := auth.RequireAdmin(principal); err != nil {
		return Flags{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := *s.snapshot.Load()
	if update.IncidentResponseMode != nil {
		mode := *update.IncidentResponseMode
		if !types.ValidMode(mode) {
			return Flags{}, fmt.Errorf("%w: incident_response_mode %q", ErrInvalidValue, mode)
		}
		next.IncidentResponseMode = mode
	}
	next.UpdatedAt = time.Now()
	next.UpdatedBy = principal.Name

	if err := s.backend.Save(ctx, next); err != nil {
		return Flags{}, fmt.Errorf("save flags: %w", err)
	}
	s.snapshot.Store(&next)

	log.Printf("[FLAGS] Updated by %s: mode=%s", principal.Name, next.IncidentResponseMode)
	return next, nil
}
