package workspaces

import (
	"fmt"
	"log"
	"sync"

	"github.com/arre-ops/arre_server/cmd/types"
)

// Manager provides cached workspace resolution with thread-safe access.
// Resolution order: label selector, then alert source, then the default
// workspace, then the configured fallback name.
type Manager struct {
	storage   *Storage
	bySource  map[string]*Workspace
	byName    map[string]*Workspace
	selectors []*Workspace
	defaultWs *Workspace
	fallback  string
	mu        sync.RWMutex
}

// NewManager creates a new workspace manager
func NewManager(storage *Storage, fallback string) *Manager {
	return &Manager{
		storage:  storage,
		bySource: make(map[string]*Workspace),
		byName:   make(map[string]*Workspace),
		fallback: fallback,
	}
}

// Initialize seeds a default workspace when none exist and loads the cache
func (m *Manager) Initialize() error {
	count, err := m.storage.Count()
	if err != nil {
		return fmt.Errorf("count workspaces: %w", err)
	}

	if count == 0 {
		log.Printf("[WORKSPACES] No workspaces found, creating default %q", m.fallback)
		if _, err := m.storage.Create(Workspace{
			Name:      m.fallback,
			IsDefault: true,
			Active:    true,
		}); err != nil {
			return fmt.Errorf("create default workspace: %w", err)
		}
	}

	if err := m.Refresh(); err != nil {
		return fmt.Errorf("refresh cache: %w", err)
	}
	log.Printf("[WORKSPACES] Loaded %d workspaces into cache", len(m.byName))
	return nil
}

// Resolve returns the workspace name jobs for this alert run under.
func (m *Manager) Resolve(alert *types.NormalizedAlert) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ws := range m.selectors {
		if ws.MatchesLabels(alert) {
			return ws.Name
		}
	}
	if ws, ok := m.bySource[alert.Source]; ok {
		return ws.Name
	}
	if m.defaultWs != nil {
		return m.defaultWs.Name
	}
	return m.fallback
}

// Refresh reloads all workspaces from the database
func (m *Manager) Refresh() error {
	all, err := m.storage.GetAll()
	if err != nil {
		return fmt.Errorf("refresh workspaces: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.bySource = make(map[string]*Workspace)
	m.byName = make(map[string]*Workspace)
	m.selectors = nil
	m.defaultWs = nil

	for i := range all {
		ws := &all[i]
		if !ws.Active {
			continue
		}
		m.byName[ws.Name] = ws
		if ws.Source != "" {
			m.bySource[ws.Source] = ws
		}
		if ws.LabelSelector != "" {
			m.selectors = append(m.selectors, ws)
		}
		if ws.IsDefault {
			m.defaultWs = ws
		}
	}
	return nil
}

// GetAll returns all workspaces from storage
func (m *Manager) GetAll() ([]Workspace, error) {
	return m.storage.GetAll()
}

// Create creates a workspace and refreshes the cache
func (m *Manager) Create(ws Workspace) (*Workspace, error) {
	created, err := m.storage.Create(ws)
	if err != nil {
		return nil, err
	}
	if err := m.Refresh(); err != nil {
		log.Printf("[WORKSPACES] Warning: cache refresh failed after create: %v", err)
	}
	return created, nil
}

// Delete deletes a workspace and refreshes the cache
func (m *Manager) Delete(id int64) error {
	if err := m.storage.Delete(id); err != nil {
		return err
	}
	if err := m.Refresh(); err != nil {
		log.Printf("[WORKSPACES] Warning: cache refresh failed after delete: %v", err)
	}
	return nil
}

// SetDefault marks a workspace as default and refreshes the cache
func (m *Manager) SetDefault(id int64) error {
	if err := m.storage.SetDefault(id); err != nil {
		return err
	}
	if err := m.Refresh(); err != nil {
		log.Printf("[WORKSPACES] Warning: cache refresh failed after set default: %v", err)
	}
	return nil
}
