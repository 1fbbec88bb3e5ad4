package workspaces

import (
	"testing"

	"github.com/arre-ops/arre_server/cmd/types"
)

// newTestManager builds a manager with a pre-populated cache, bypassing
// storage.
func newTestManager(fallback string, all []Workspace) *Manager {
	mgr := &Manager{
		bySource: make(map[string]*Workspace),
		byName:   make(map[string]*Workspace),
		fallback: fallback,
	}
	for i := range all {
		ws := &all[i]
		if !ws.Active {
			continue
		}
		mgr.byName[ws.Name] = ws
		if ws.Source != "" {
			mgr.bySource[ws.Source] = ws
		}
		if ws.LabelSelector != "" {
			mgr.selectors = append(mgr.selectors, ws)
		}
		if ws.IsDefault {
			mgr.defaultWs = ws
		}
	}
	return mgr
}

func TestManager_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		alert      *types.NormalizedAlert
		workspaces []Workspace
		want       string
	}{
		{
			name:  "resolve by label selector",
			alert: &types.NormalizedAlert{Source: "Grafana", Labels: map[string]string{"team": "payments"}},
			workspaces: []Workspace{
				{ID: 1, Name: "payments-ws", LabelSelector: "team=payments", Active: true},
				{ID: 2, Name: "grafana-ws", Source: "Grafana", Active: true},
				{ID: 3, Name: "default", IsDefault: true, Active: true},
			},
			want: "payments-ws",
		},
		{
			name:  "label selector takes priority over source",
			alert: &types.NormalizedAlert{Source: "Grafana", Labels: map[string]string{"env": "prod"}},
			workspaces: []Workspace{
				{ID: 1, Name: "prod-ws", LabelSelector: "env=prod", Active: true},
				{ID: 2, Name: "grafana-ws", Source: "Grafana", Active: true},
			},
			want: "prod-ws",
		},
		{
			name:  "resolve by source",
			alert: &types.NormalizedAlert{Source: "CloudWatch", Labels: map[string]string{}},
			workspaces: []Workspace{
				{ID: 1, Name: "aws-ws", Source: "CloudWatch", Active: true},
				{ID: 2, Name: "default", IsDefault: true, Active: true},
			},
			want: "aws-ws",
		},
		{
			name:  "fall back to default workspace",
			alert: &types.NormalizedAlert{Source: "Pagerduty"},
			workspaces: []Workspace{
				{ID: 1, Name: "aws-ws", Source: "CloudWatch", Active: true},
				{ID: 2, Name: "default", IsDefault: true, Active: true},
			},
			want: "default",
		},
		{
			name:       "fall back to configured name when nothing is registered",
			alert:      &types.NormalizedAlert{Source: "Grafana"},
			workspaces: nil,
			want:       "fallback-ws",
		},
		{
			name:  "inactive workspaces are ignored",
			alert: &types.NormalizedAlert{Source: "Grafana"},
			workspaces: []Workspace{
				{ID: 1, Name: "grafana-ws", Source: "Grafana", Active: false},
				{ID: 2, Name: "default", IsDefault: true, Active: true},
			},
			want: "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := newTestManager("fallback-ws", tt.workspaces)
			if got := mgr.Resolve(tt.alert); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWorkspace_MatchesLabels(t *testing.T) {
	alert := &types.NormalizedAlert{Labels: map[string]string{"team": "payments", "env": "prod"}}

	tests := []struct {
		selector string
		want     bool
	}{
		{"team=payments", true},
		{"env=prod", true},
		{"team=core", false},
		{"missing=x", false},
		{"malformed", false},
		{"", false},
	}
	for _, tt := range tests {
		ws := &Workspace{LabelSelector: tt.selector}
		if got := ws.MatchesLabels(alert); got != tt.want {
			t.Errorf("MatchesLabels(%q) = %v, want %v", tt.selector, got, tt.want)
		}
	}
}
