package autonomous

import (
	"context"
	"fmt"
	"log"

	"github.com/arre-ops/arre_server/cmd/types"
	"github.com/arre-ops/arre_server/services/llm"
	"github.com/arre-ops/arre_server/services/tasks"
)

// Planner authors a runbook for an alert nothing matched.
type Planner interface {
	Plan(ctx context.Context, alert *types.NormalizedAlert) (*llm.RunbookSpec, error)
}

// TaskWriter is the create/delete slice of the task store client.
type TaskWriter interface {
	Create(ctx context.Context, task types.Task) (*types.Task, error)
	Delete(ctx context.Context, id string) error
}

// JobSubmitter starts a job for a task. The dispatcher passes in its
// retrying submitter so autonomous launches get the same retry policy as
// every other dispatch.
type JobSubmitter interface {
	Submit(ctx context.Context, req tasks.JobRequest) (string, error)
}

// LaunchResult describes a successful autonomous launch. Confidence is
// always 1.0: the agent authored the runbook itself rather than judging a
// shortlist.
type LaunchResult struct {
	RunbookTaskID string
	ChildTaskID   string
	JobID         string
	Confidence    float64
}

// Launcher turns an unmatched alert into a freshly authored runbook task,
// an investigation child task, and a running job. Creation is not atomic
// across the three steps, so every failure path deletes whatever was
// already created; a launch either lands whole or leaves no tasks behind.
type Launcher struct {
	planner   Planner
	store     TaskWriter
	submitter JobSubmitter
}

// NewLauncher creates an autonomous launcher
func NewLauncher(planner Planner, store TaskWriter, submitter JobSubmitter) *Launcher {
	return &Launcher{planner: planner, store: store, submitter: submitter}
}

// Launch runs the plan-create-submit sequence for one alert.
func (l *Launcher) Launch(ctx context.Context, alert *types.NormalizedAlert, workspace, routingHint string) (*LaunchResult, error) {
	spec, err := l.planner.Plan(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("plan runbook: %w", err)
	}

	runbook, err := l.store.Create(ctx, types.Task{
		Title:       spec.Title,
		Description: spec.Description,
		ScriptType:  spec.ScriptType,
		Commands:    spec.Commands,
		Tags:        spec.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("create runbook task: %w", err)
	}

	child, err := l.store.Create(ctx, types.Task{
		Title:        spec.Child.Title,
		Description:  spec.Child.Description,
		ParentTaskID: runbook.ID,
	})
	if err != nil {
		l.rollback(runbook.ID)
		return nil, fmt.Errorf("create child task: %w", err)
	}

	jobID, err := l.submitter.Submit(ctx, tasks.JobRequest{
		TaskID:      runbook.ID,
		Workspace:   workspace,
		AlertCtx:    alert,
		RoutingHint: routingHint,
	})
	if err != nil {
		l.rollback(child.ID, runbook.ID)
		return nil, fmt.Errorf("submit runbook job: %w", err)
	}

	log.Printf("[AUTONOMOUS] Launched runbook %s (child %s, job %s) for %s/%s",
		runbook.ID, child.ID, jobID, alert.Source, alert.AlertName)
	return &LaunchResult{
		RunbookTaskID: runbook.ID,
		ChildTaskID:   child.ID,
		JobID:         jobID,
		Confidence:    1.0,
	}, nil
}

// rollback deletes created tasks best-effort, child before parent. It runs
// on a fresh context so a cancelled launch can still clean up.
func (l *Launcher) rollback(ids ...string) {
	ctx := context.Background()
	for _, id := range ids {
		if err := l.store.Delete(ctx, id); err != nil {
			log.Printf("[AUTONOMOUS] Rollback failed to delete task %s: %v", id, err)
		}
	}
}
