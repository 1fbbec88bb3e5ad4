package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arre-ops/arre_server/cmd/types"
)

func TestSubmitJob(t *testing.T) {
	var gotReq JobRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/jobs" || r.Method != "POST" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-123"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	jobID, err := client.SubmitJob(context.Background(), JobRequest{
		TaskID:      "task-1",
		Workspace:   "default",
		RoutingHint: "region=us-east-1",
	})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if jobID != "job-123" {
		t.Errorf("job id = %q, want job-123", jobID)
	}
	if gotReq.RoutingHint != "region=us-east-1" {
		t.Errorf("routing hint not forwarded: %q", gotReq.RoutingHint)
	}
}

func TestSubmitJob_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"forbidden", http.StatusForbidden, ErrPermissionDenied},
		{"unauthorized", http.StatusUnauthorized, ErrPermissionDenied},
		{"server error", http.StatusInternalServerError, ErrTransient},
		{"overloaded", http.StatusTooManyRequests, ErrTransient},
		{"bad request", http.StatusBadRequest, ErrPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := NewClient(server.URL).SubmitJob(context.Background(), JobRequest{TaskID: "t"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("status %d: got %v, want %v", tt.status, err, tt.wantErr)
			}
		})
	}
}

func TestSubmitJob_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	_, err := NewClient(server.URL).SubmitJob(context.Background(), JobRequest{TaskID: "t"})
	if !errors.Is(err, ErrTransient) {
		t.Errorf("connection refused should be transient, got %v", err)
	}
}

func TestGetByTrigger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("trigger_source"); got != "Grafana" {
			t.Errorf("trigger_source = %q", got)
		}
		if got := r.URL.Query().Get("trigger_alert"); got != "HighCPUUsage" {
			t.Errorf("trigger_alert = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"tasks": []types.Task{{ID: "task-1", Title: "Restart web"}},
		})
	}))
	defer server.Close()

	got, err := NewClient(server.URL).GetByTrigger(context.Background(),
		types.TriggerKey{Source: "Grafana", AlertName: "HighCPUUsage"})
	if err != nil {
		t.Fatalf("GetByTrigger: %v", err)
	}
	if len(got) != 1 || got[0].ID != "task-1" {
		t.Errorf("unexpected tasks: %+v", got)
	}
}

func TestVectorSearch_ReappliesFloor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []Candidate{
				{Task: types.Task{ID: "good"}, Similarity: 0.85},
				{Task: types.Task{ID: "weak"}, Similarity: 0.40},
			},
		})
	}))
	defer server.Close()

	got, err := NewClient(server.URL).VectorSearch(context.Background(), "cpu spike", 3, 10, 0.70)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(got) != 1 || got[0].Task.ID != "good" {
		t.Errorf("floor not applied: %+v", got)
	}
}

func TestCreateAndDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/v1/tasks":
			var task types.Task
			json.NewDecoder(r.Body).Decode(&task)
			task.ID = "generated-id"
			json.NewEncoder(w).Encode(task)
		case r.Method == "DELETE" && r.URL.Path == "/v1/tasks/generated-id":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	created, err := client.Create(context.Background(), types.Task{Title: "Investigate DB slowness"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "generated-id" {
		t.Errorf("id = %q", created.ID)
	}
	if err := client.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
