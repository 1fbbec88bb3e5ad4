package workspaces

import (
	"errors"
	"strings"
	"time"

	"github.com/arre-ops/arre_server/cmd/types"
)

// Sentinel errors for workspace operations
var (
	ErrWorkspaceNotFound  = errors.New("workspace not found")
	ErrDuplicateWorkspace = errors.New("workspace already exists")
)

// Workspace is a job-runtime execution target. Alerts are routed to a
// workspace by label selector first, then by source, then to the default.
type Workspace struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Source        string    `json:"source,omitempty"`         // route all alerts from this source here
	LabelSelector string    `json:"label_selector,omitempty"` // "key=value" matched against alert labels
	IsDefault     bool      `json:"is_default"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MatchesLabels reports whether the workspace's label selector matches the
// alert. A workspace without a selector never matches by label.
func (w *Workspace) MatchesLabels(alert *types.NormalizedAlert) bool {
	if w.LabelSelector == "" {
		return false
	}
	key, value, ok := strings.Cut(w.LabelSelector, "=")
	if !ok {
		return false
	}
	return alert.Labels[key] == value
}

// CreateWorkspaceRequest is the admin API body for creating a workspace
type CreateWorkspaceRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Source        string `json:"source,omitempty"`
	LabelSelector string `json:"label_selector,omitempty"`
	IsDefault     bool   `json:"is_default,omitempty"`
}
