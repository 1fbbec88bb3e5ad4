package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arre-ops/arre_server/cmd/types"
)

func testCandidates() []CandidateSummary {
	return []CandidateSummary{
		{TaskID: "tool-1", Title: "Restart web pods", Similarity: 0.85},
		{TaskID: "tool-2", Title: "Scale out workers", Similarity: 0.74},
	}
}

func TestSelect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/select" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			AlertSummary string             `json:"alert_summary"`
			Candidates   []CandidateSummary `json:"candidates"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.AlertSummary == "" || len(req.Candidates) != 2 {
			t.Errorf("incomplete request: %+v", req)
		}
		selected := "tool-1"
		json.NewEncoder(w).Encode(Decision{
			SelectedTaskID: &selected,
			Confidence:     0.82,
			Reasoning:      "restart addresses the memory growth",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, 10*time.Second)
	decision, err := client.Select(context.Background(), "HighMemory web-01", testCandidates())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if decision.SelectedTaskID == nil || *decision.SelectedTaskID != "tool-1" {
		t.Errorf("unexpected selection: %+v", decision)
	}
	if decision.Confidence != 0.82 {
		t.Errorf("confidence = %f", decision.Confidence)
	}
}

func TestSelect_NullSelection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Decision{Confidence: 0.9, Reasoning: "none of these apply"})
	}))
	defer server.Close()

	decision, err := NewClient(server.URL, 5*time.Second, 10*time.Second).
		Select(context.Background(), "unknown alert", testCandidates())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if decision.SelectedTaskID != nil {
		t.Errorf("expected null selection, got %q", *decision.SelectedTaskID)
	}
}

func TestSelect_RejectsAnswerOutsideCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hallucinated := "tool-99"
		json.NewEncoder(w).Encode(Decision{SelectedTaskID: &hallucinated, Confidence: 0.95})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 5*time.Second, 10*time.Second).
		Select(context.Background(), "alert", testCandidates())
	if !errors.Is(err, ErrBadAnswer) {
		t.Errorf("expected ErrBadAnswer, got %v", err)
	}
}

func TestSelect_RejectsOutOfRangeConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		selected := "tool-1"
		json.NewEncoder(w).Encode(Decision{SelectedTaskID: &selected, Confidence: 1.7})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 5*time.Second, 10*time.Second).
		Select(context.Background(), "alert", testCandidates())
	if !errors.Is(err, ErrBadAnswer) {
		t.Errorf("expected ErrBadAnswer, got %v", err)
	}
}

func TestPlan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/plan" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(RunbookSpec{
			Title:       "Mitigate RDSHighLatency",
			Description: "Fail over the reader and flush the connection pool",
			ScriptType:  "bash",
			Commands:    []string{"aws rds failover-db-cluster --db-cluster-identifier orders"},
			Child:       ChildSpec{Title: "Investigate RDSHighLatency", Description: "Root-cause the latency spike"},
		})
	}))
	defer server.Close()

	alert := &types.NormalizedAlert{Source: "CloudWatch", AlertName: "RDSHighLatency", Severity: "critical"}
	spec, err := NewClient(server.URL, 5*time.Second, 10*time.Second).Plan(context.Background(), alert)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if spec.Title == "" || len(spec.Commands) != 1 || spec.Child.Title == "" {
		t.Errorf("incomplete plan: %+v", spec)
	}
}

func TestPlan_RejectsEmptyPlan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RunbookSpec{})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 5*time.Second, 10*time.Second).
		Plan(context.Background(), &types.NormalizedAlert{AlertName: "X"})
	if !errors.Is(err, ErrBadAnswer) {
		t.Errorf("expected ErrBadAnswer, got %v", err)
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, time.Second)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.Select(ctx, "alert", testCandidates()); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("attempt %d: expected ErrUnavailable, got %v", i, err)
		}
	}

	// Breaker is now open; the next call must fail without reaching the server.
	server.Close()
	if _, err := client.Select(ctx, "alert", testCandidates()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("open breaker should report unavailable, got %v", err)
	}
}

func TestUnreachableSidecarIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := NewClient(server.URL, time.Second, time.Second).
		Select(context.Background(), "alert", testCandidates())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
