package autonomous

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/arre-ops/arre_server/cmd/types"
	"github.com/arre-ops/arre_server/services/llm"
	"github.com/arre-ops/arre_server/services/tasks"
)

type fakePlanner struct {
	spec *llm.RunbookSpec
	err  error
}

func (f *fakePlanner) Plan(ctx context.Context, alert *types.NormalizedAlert) (*llm.RunbookSpec, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.spec, nil
}

type fakeStore struct {
	nextID    int
	created   []types.Task
	deleted   []string
	createErr map[int]error // keyed by create call number, 1-based
}

func (f *fakeStore) Create(ctx context.Context, task types.Task) (*types.Task, error) {
	call := len(f.created) + 1
	if err := f.createErr[call]; err != nil {
		return nil, err
	}
	f.nextID++
	task.ID = fmt.Sprintf("task-%d", f.nextID)
	f.created = append(f.created, task)
	return &task, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeSubmitter struct {
	jobID  string
	err    error
	gotReq tasks.JobRequest
}

func (f *fakeSubmitter) Submit(ctx context.Context, req tasks.JobRequest) (string, error) {
	f.gotReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.jobID, nil
}

func goodPlan() *llm.RunbookSpec {
	return &llm.RunbookSpec{
		Title:       "Mitigate RDSHighLatency",
		Description: "Fail over the reader",
		ScriptType:  "bash",
		Commands:    []string{"aws rds failover-db-cluster --db-cluster-identifier orders"},
		Child:       llm.ChildSpec{Title: "Investigate RDSHighLatency", Description: "Root-cause it"},
	}
}

var latencyAlert = &types.NormalizedAlert{Source: "CloudWatch", AlertName: "RDSHighLatency"}

func TestLaunch(t *testing.T) {
	store := &fakeStore{}
	submitter := &fakeSubmitter{jobID: "job-9"}
	launcher := NewLauncher(&fakePlanner{spec: goodPlan()}, store, submitter)

	result, err := launcher.Launch(context.Background(), latencyAlert, "default", "region=us-east-1")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if result.RunbookTaskID != "task-1" || result.ChildTaskID != "task-2" || result.JobID != "job-9" {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Confidence != 1.0 {
		t.Errorf("confidence = %f, want 1.0", result.Confidence)
	}

	if len(store.created) != 2 {
		t.Fatalf("created %d tasks, want 2", len(store.created))
	}
	if store.created[1].ParentTaskID != "task-1" {
		t.Errorf("child not linked to runbook: %+v", store.created[1])
	}
	if submitter.gotReq.TaskID != "task-1" {
		t.Errorf("job submitted for %q, want the runbook", submitter.gotReq.TaskID)
	}
	if submitter.gotReq.RoutingHint != "region=us-east-1" {
		t.Errorf("routing hint not forwarded: %q", submitter.gotReq.RoutingHint)
	}
	if len(store.deleted) != 0 {
		t.Errorf("successful launch must not delete anything: %v", store.deleted)
	}
}

func TestLaunch_PlanFailureCreatesNothing(t *testing.T) {
	store := &fakeStore{}
	launcher := NewLauncher(&fakePlanner{err: llm.ErrUnavailable}, store, &fakeSubmitter{})

	_, err := launcher.Launch(context.Background(), latencyAlert, "default", "")
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected plan error, got %v", err)
	}
	if len(store.created) != 0 || len(store.deleted) != 0 {
		t.Errorf("plan failure must touch no tasks: created=%v deleted=%v", store.created, store.deleted)
	}
}

func TestLaunch_ChildCreateFailureRollsBackRunbook(t *testing.T) {
	store := &fakeStore{createErr: map[int]error{2: errors.New("store rejected")}}
	launcher := NewLauncher(&fakePlanner{spec: goodPlan()}, store, &fakeSubmitter{})

	if _, err := launcher.Launch(context.Background(), latencyAlert, "default", ""); err == nil {
		t.Fatal("expected an error")
	}
	if len(store.deleted) != 1 || store.deleted[0] != "task-1" {
		t.Errorf("runbook not rolled back: deleted=%v", store.deleted)
	}
}

func TestLaunch_SubmitFailureRollsBackBothTasks(t *testing.T) {
	store := &fakeStore{}
	launcher := NewLauncher(&fakePlanner{spec: goodPlan()}, store, &fakeSubmitter{err: tasks.ErrTransient})

	_, err := launcher.Launch(context.Background(), latencyAlert, "default", "")
	if !errors.Is(err, tasks.ErrTransient) {
		t.Fatalf("expected submit error, got %v", err)
	}
	// Child first so the parent link never dangles.
	want := []string{"task-2", "task-1"}
	if len(store.deleted) != 2 || store.deleted[0] != want[0] || store.deleted[1] != want[1] {
		t.Errorf("rollback order = %v, want %v", store.deleted, want)
	}
}
