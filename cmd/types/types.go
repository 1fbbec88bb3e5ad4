package types

import "time"

// Incident response modes.
const (
	ModeDeterministic = "deterministic"
	ModeAISelected    = "ai_selected"
	ModeAutonomous    = "autonomous"
)

// ValidMode reports whether m is one of the three configurable modes.
func ValidMode(m string) bool {
	return m == ModeDeterministic || m == ModeAISelected || m == ModeAutonomous
}

// Selection modes recorded on processed alerts. SelectionNone covers both
// "configured deterministic, no rule matched" and "all dispatches suppressed".
const (
	SelectionDeterministic = "deterministic"
	SelectionAISelected    = "ai_selected"
	SelectionAutonomous    = "autonomous"
	SelectionNone          = "none"
)

// Execution status values. The first three describe a single dispatched
// task; ExecutionUnparseable only ever appears on a record whose payload
// never made it through normalization.
const (
	ExecutionStarted     = "started"
	ExecutionFailed      = "failed"
	ExecutionTimeout     = "timeout"
	ExecutionUnparseable = "unparseable"
)

// TriggerRule is a task-side declaration of which alerts fire the task.
// DedupInterval is seconds; zero disables deduplication for this rule.
type TriggerRule struct {
	Source        string `json:"source"`
	AlertName     string `json:"alert_name"`
	DedupInterval int64  `json:"dedup_interval"`
}

// Task is the external task store's record. ARRE holds tasks by value for
// the duration of a routing decision and never mutates them (the autonomous
// launcher creates new ones through the store).
type Task struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Tags            []string      `json:"tags"`
	ScriptType      string        `json:"script_type"`
	Commands        []string      `json:"commands"`
	TriggerOnAlerts []TriggerRule `json:"trigger_on_alerts"`
	IsTooltask      bool          `json:"is_tooltask"`
	ParentTaskID    string        `json:"parent_task_id,omitempty"`
}

// RuleFor returns the trigger rule matching the key, if any.
func (t *Task) RuleFor(key TriggerKey) (TriggerRule, bool) {
	for _, r := range t.TriggerOnAlerts {
		if r.Source == key.Source && r.AlertName == key.AlertName {
			return r, true
		}
	}
	return TriggerRule{}, false
}

// ExecutedTask describes one job dispatch attempt for a processed alert.
type ExecutedTask struct {
	TaskID          string `json:"task_id"`
	JobID           string `json:"job_id,omitempty"`
	ExecutionStatus string `json:"execution_status"`
	Error           string `json:"error,omitempty"`
}

// AlertRecord is the persisted, immutable audit record of one processed
// alert. A repeated alert produces a new record; dedup never suppresses
// persistence.
type AlertRecord struct {
	ID                   string          `json:"id"`
	Alert                NormalizedAlert `json:"alert"`
	SelectionMode        string          `json:"selection_mode"`
	IncidentResponseMode string          `json:"incident_response_mode"`
	RunbookTaskID        string          `json:"runbook_task_id,omitempty"`
	PrimaryJobID         string          `json:"primary_job_id,omitempty"`
	ChildTaskID          string          `json:"child_task_id,omitempty"`
	AIAttempted          bool            `json:"ai_attempted"`
	AIConfidence         float64         `json:"ai_confidence"`
	AIReasoning          string          `json:"ai_reasoning,omitempty"`
	AICandidateTooltasks []string        `json:"ai_candidate_tooltasks,omitempty"`
	ExecutionStatus      string          `json:"execution_status"`
	TasksExecuted        int             `json:"tasks_executed"`
	ExecutedTasks        []ExecutedTask  `json:"executed_tasks,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}
