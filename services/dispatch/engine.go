package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/arre-ops/arre_server/cmd/types"
	"github.com/arre-ops/arre_server/services/autonomous"
	"github.com/arre-ops/arre_server/services/dedup"
	"github.com/arre-ops/arre_server/services/flags"
	"github.com/arre-ops/arre_server/services/selector"
	"github.com/arre-ops/arre_server/services/tasks"
)

var (
	// ErrDependencyUnavailable marks a routing failure caused by a
	// downstream system; the HTTP layer maps it to 503.
	ErrDependencyUnavailable = errors.New("downstream dependency unavailable")

	// ErrDeadline marks a routing run cut short by the request deadline;
	// the HTTP layer maps it to 504. The partial record is still persisted.
	ErrDeadline = errors.New("processing deadline exceeded")

	// ErrTaskForbidden marks a dispatch the job runtime rejected for
	// permissions. That is a configuration error, not a transient one, so
	// routing for the alert stops instead of moving on to siblings.
	ErrTaskForbidden = errors.New("job runtime rejected task permissions")
)

// Matcher resolves deterministic trigger rules for an alert.
type Matcher interface {
	Match(ctx context.Context, key types.TriggerKey) ([]types.Task, error)
}

// Deduper suppresses repeat executions inside a trigger rule's window.
type Deduper interface {
	CheckAndMark(ctx context.Context, taskID string, key types.TriggerKey, fingerprint string, interval time.Duration) (dedup.Result, error)
}

// JobSubmitter starts a job for a task with the retry policy applied.
type JobSubmitter interface {
	Submit(ctx context.Context, req tasks.JobRequest) (string, error)
}

// TaskSelector picks at most one tooltask when no rule matched.
type TaskSelector interface {
	Pick(ctx context.Context, alert *types.NormalizedAlert) selector.Outcome
}

// RunbookLauncher handles autonomous mode.
type RunbookLauncher interface {
	Launch(ctx context.Context, alert *types.NormalizedAlert, workspace, routingHint string) (*autonomous.LaunchResult, error)
}

// Recorder persists processed alert records.
type Recorder interface {
	StoreRecord(ctx context.Context, record *types.AlertRecord) error
}

// FlagSource exposes the current admin flag snapshot.
type FlagSource interface {
	Get() flags.Flags
}

// WorkspaceResolver maps an alert to the job-runtime workspace its
// dispatches run under.
type WorkspaceResolver interface {
	Resolve(alert *types.NormalizedAlert) string
}

// Engine routes one normalized alert: deterministic rules first, then the
// configured AI mode when nothing matched. Work within one alert is
// sequential; concurrency comes from the worker pool running many engines'
// worth of alerts in parallel.
type Engine struct {
	flags           FlagSource
	matcher         Matcher
	dedup           Deduper
	submitter       JobSubmitter
	selector        TaskSelector
	launcher        RunbookLauncher
	recorder        Recorder
	workspaces      WorkspaceResolver
	aiDedupInterval time.Duration
}

// NewEngine creates a routing engine
func NewEngine(flagSource FlagSource, matcher Matcher, deduper Deduper, submitter JobSubmitter,
	taskSelector TaskSelector, launcher RunbookLauncher, recorder Recorder,
	workspaceResolver WorkspaceResolver, aiDedupInterval time.Duration) *Engine {
	return &Engine{
		flags:           flagSource,
		matcher:         matcher,
		dedup:           deduper,
		submitter:       submitter,
		selector:        taskSelector,
		launcher:        launcher,
		recorder:        recorder,
		workspaces:      workspaceResolver,
		aiDedupInterval: aiDedupInterval,
	}
}

// Process routes one alert and persists its record. The returned record is
// non-nil whenever a record was (or should have been) persisted; a nil
// record with an error means processing failed before anything meaningful
// happened and no record exists.
func (e *Engine) Process(ctx context.Context, alert *types.NormalizedAlert, routingHint string) (*types.AlertRecord, error) {
	mode := e.flags.Get().IncidentResponseMode
	record := &types.AlertRecord{
		Alert:                *alert,
		IncidentResponseMode: mode,
		SelectionMode:        types.SelectionNone,
	}

	if ctx.Err() != nil {
		record.ExecutionStatus = types.ExecutionTimeout
		e.persist(record)
		return record, ErrDeadline
	}

	key := alert.Key()
	matched, err := e.matcher.Match(ctx, key)
	if err != nil {
		// No record here: a record claiming "no tasks matched" would be a lie.
		return nil, fmt.Errorf("%w: matcher: %v", ErrDependencyUnavailable, err)
	}

	if len(matched) > 0 {
		// A deterministic rule always wins, whatever mode is configured.
		if err := e.runDeterministic(ctx, alert, key, matched, routingHint, record); err != nil {
			record.ExecutionStatus = types.ExecutionFailed
			e.persist(record)
			return record, err
		}
	} else {
		switch mode {
		case types.ModeAISelected:
			if err := e.runAISelected(ctx, alert, key, routingHint, record); err != nil {
				record.ExecutionStatus = types.ExecutionFailed
				e.persist(record)
				return record, err
			}
		case types.ModeAutonomous:
			if err := e.runAutonomous(ctx, alert, routingHint, record); err != nil {
				e.persist(record)
				return record, fmt.Errorf("%w: autonomous launch: %v", ErrDependencyUnavailable, err)
			}
		}
	}

	if record.TasksExecuted > 0 {
		if record.ExecutionStatus == "" {
			record.ExecutionStatus = types.ExecutionStarted
		}
	} else if len(record.ExecutedTasks) > 0 {
		record.ExecutionStatus = types.ExecutionFailed
	}
	if ctx.Err() == context.DeadlineExceeded {
		record.ExecutionStatus = types.ExecutionTimeout
		e.persist(record)
		return record, ErrDeadline
	}

	e.persist(record)
	return record, nil
}

// runDeterministic dispatches every matched task that clears its dedup
// window, in ascending task-id order. The record keeps selection "none"
// unless at least one dispatch was actually attempted. A permission
// rejection aborts the remaining dispatches.
func (e *Engine) runDeterministic(ctx context.Context, alert *types.NormalizedAlert, key types.TriggerKey,
	matched []types.Task, routingHint string, record *types.AlertRecord) error {
	var fatal error
	for _, task := range matched {
		rule, _ := task.RuleFor(key)
		interval := time.Duration(rule.DedupInterval) * time.Second

		result, err := e.dedup.CheckAndMark(ctx, task.ID, key, alert.Fingerprint, interval)
		if err != nil {
			log.Printf("[ENGINE] Dedup check degraded for task %s: %v", task.ID, err)
		}
		if result == dedup.Suppressed {
			continue
		}
		if err := e.submitTask(ctx, task.ID, alert, routingHint, record); err != nil {
			fatal = err
			break
		}
	}

	if len(record.ExecutedTasks) > 0 {
		record.SelectionMode = types.SelectionDeterministic
	}
	return fatal
}

// runAISelected asks the selector for a tooltask and dispatches it, still
// subject to dedup. Any degradation leaves the record at selection "none"
// with ai_attempted set.
func (e *Engine) runAISelected(ctx context.Context, alert *types.NormalizedAlert, key types.TriggerKey,
	routingHint string, record *types.AlertRecord) error {
	record.AIAttempted = true
	record.AICandidateTooltasks = []string{}

	outcome := e.selector.Pick(ctx, alert)
	record.AIConfidence = outcome.Confidence
	record.AIReasoning = outcome.Reasoning
	if outcome.CandidateIDs != nil {
		record.AICandidateTooltasks = outcome.CandidateIDs
	}
	if outcome.Task == nil {
		return nil
	}

	// Tooltasks rarely carry trigger rules; without one the configured
	// AI dedup interval applies.
	interval := e.aiDedupInterval
	if rule, ok := outcome.Task.RuleFor(key); ok {
		interval = time.Duration(rule.DedupInterval) * time.Second
	}
	result, err := e.dedup.CheckAndMark(ctx, outcome.Task.ID, key, alert.Fingerprint, interval)
	if err != nil {
		log.Printf("[ENGINE] Dedup check degraded for tooltask %s: %v", outcome.Task.ID, err)
	}
	if result == dedup.Suppressed {
		return nil
	}

	if err := e.submitTask(ctx, outcome.Task.ID, alert, routingHint, record); err != nil {
		return err
	}
	if len(record.ExecutedTasks) > 0 {
		record.SelectionMode = types.SelectionAISelected
	}
	return nil
}

// runAutonomous delegates to the launcher. On failure the record keeps
// selection "none" with ai_attempted set and the caller surfaces a
// transient failure; the launcher has already rolled back its tasks.
func (e *Engine) runAutonomous(ctx context.Context, alert *types.NormalizedAlert,
	routingHint string, record *types.AlertRecord) error {
	record.AIAttempted = true

	result, err := e.launcher.Launch(ctx, alert, e.workspaces.Resolve(alert), routingHint)
	if err != nil {
		log.Printf("[ENGINE] Autonomous launch failed for %s/%s: %v", alert.Source, alert.AlertName, err)
		return err
	}

	record.SelectionMode = types.SelectionAutonomous
	record.RunbookTaskID = result.RunbookTaskID
	record.ChildTaskID = result.ChildTaskID
	record.PrimaryJobID = result.JobID
	record.AIConfidence = result.Confidence
	record.ExecutedTasks = []types.ExecutedTask{{
		TaskID:          result.RunbookTaskID,
		JobID:           result.JobID,
		ExecutionStatus: types.ExecutionStarted,
	}}
	record.TasksExecuted = 1
	return nil
}

// submitTask dispatches one task and appends the outcome to the record.
// A failed submission never aborts sibling dispatches, with one exception:
// a permission rejection means the alert's task configuration is broken,
// so it surfaces as ErrTaskForbidden for the caller to stop on.
func (e *Engine) submitTask(ctx context.Context, taskID string, alert *types.NormalizedAlert,
	routingHint string, record *types.AlertRecord) error {
	jobID, err := e.submitter.Submit(ctx, tasks.JobRequest{
		TaskID:      taskID,
		Workspace:   e.workspaces.Resolve(alert),
		AlertCtx:    alert,
		RoutingHint: routingHint,
	})
	if err != nil {
		status := types.ExecutionFailed
		if ctx.Err() == context.DeadlineExceeded {
			status = types.ExecutionTimeout
		}
		log.Printf("[ENGINE] Job submission failed for task %s: %v", taskID, err)
		record.ExecutedTasks = append(record.ExecutedTasks, types.ExecutedTask{
			TaskID:          taskID,
			ExecutionStatus: status,
			Error:           err.Error(),
		})
		if errors.Is(err, tasks.ErrPermissionDenied) {
			return fmt.Errorf("%w: task %s", ErrTaskForbidden, taskID)
		}
		return nil
	}

	record.ExecutedTasks = append(record.ExecutedTasks, types.ExecutedTask{
		TaskID:          taskID,
		JobID:           jobID,
		ExecutionStatus: types.ExecutionStarted,
	})
	record.TasksExecuted++
	if record.PrimaryJobID == "" {
		record.PrimaryJobID = jobID
	}
	return nil
}

// persist writes the record on a fresh context so a record for a timed-out
// alert still lands. Losing the audit row is logged, never fatal: the
// dispatches themselves already happened.
func (e *Engine) persist(record *types.AlertRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.recorder.StoreRecord(ctx, record); err != nil {
		log.Printf("[ENGINE] Failed to persist alert record for %s/%s: %v",
			record.Alert.Source, record.Alert.AlertName, err)
	}
}
