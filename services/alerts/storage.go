package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arre-ops/arre_server/cmd/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Storage handles database operations for processed alert records
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new alert record storage instance
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// InitTables creates the necessary database tables for alert records
func (s *Storage) InitTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS alert_records (
		id UUID PRIMARY KEY,
		source VARCHAR(100) NOT NULL,
		alert_name TEXT NOT NULL,
		status VARCHAR(50),
		severity VARCHAR(50),
		fingerprint VARCHAR(255) NOT NULL,
		labels JSONB,
		annotations JSONB,
		starts_at TIMESTAMP WITH TIME ZONE,
		ends_at TIMESTAMP WITH TIME ZONE,
		received_at TIMESTAMP WITH TIME ZONE NOT NULL,
		raw_payload JSONB,
		selection_mode VARCHAR(50) NOT NULL,
		incident_response_mode VARCHAR(50) NOT NULL,
		runbook_task_id VARCHAR(255),
		primary_job_id VARCHAR(255),
		child_task_id VARCHAR(255),
		ai_attempted BOOLEAN DEFAULT false,
		ai_confidence DOUBLE PRECISION DEFAULT 0,
		ai_reasoning TEXT,
		ai_candidate_tooltasks TEXT[],
		execution_status VARCHAR(50),
		tasks_executed INT DEFAULT 0,
		executed_tasks JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_alert_records_source ON alert_records(source);
	CREATE INDEX IF NOT EXISTS idx_alert_records_alert_name ON alert_records(alert_name);
	CREATE INDEX IF NOT EXISTS idx_alert_records_fingerprint ON alert_records(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_alert_records_selection_mode ON alert_records(selection_mode);
	CREATE INDEX IF NOT EXISTS idx_alert_records_created_at ON alert_records(created_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// StoreRecord persists one processed alert. Records are append-only: a
// repeated alert always produces a new row.
func (s *Storage) StoreRecord(ctx context.Context, record *types.AlertRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	labels, err := json.Marshal(record.Alert.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	annotations, err := json.Marshal(record.Alert.Annotations)
	if err != nil {
		return fmt.Errorf("marshal annotations: %w", err)
	}
	executed, err := json.Marshal(record.ExecutedTasks)
	if err != nil {
		return fmt.Errorf("marshal executed tasks: %w", err)
	}

	var endsAt any
	if !record.Alert.EndsAt.IsZero() {
		endsAt = record.Alert.EndsAt
	}
	var rawPayload any
	if len(record.Alert.RawPayload) > 0 {
		rawPayload = string(record.Alert.RawPayload)
	}

	query := `
	INSERT INTO alert_records (
		id, source, alert_name, status, severity, fingerprint,
		labels, annotations, starts_at, ends_at, received_at, raw_payload,
		selection_mode, incident_response_mode,
		runbook_task_id, primary_job_id, child_task_id,
		ai_attempted, ai_confidence, ai_reasoning, ai_candidate_tooltasks,
		execution_status, tasks_executed, executed_tasks
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		$21, $22, $23, $24
	) RETURNING created_at`

	err = s.db.QueryRowContext(ctx, query,
		record.ID, record.Alert.Source, record.Alert.AlertName, record.Alert.Status,
		record.Alert.Severity, record.Alert.Fingerprint,
		labels, annotations, record.Alert.StartsAt, endsAt, record.Alert.ReceivedAt, rawPayload,
		record.SelectionMode, record.IncidentResponseMode,
		nullIfEmpty(record.RunbookTaskID), nullIfEmpty(record.PrimaryJobID), nullIfEmpty(record.ChildTaskID),
		record.AIAttempted, record.AIConfidence, nullIfEmpty(record.AIReasoning),
		pq.Array(record.AICandidateTooltasks),
		record.ExecutionStatus, record.TasksExecuted, executed,
	).Scan(&record.CreatedAt)

	if err != nil {
		return fmt.Errorf("store alert record: %w", err)
	}
	return nil
}

// SearchFilters narrows an alert record query. Zero values mean "any".
type SearchFilters struct {
	Source        string
	AlertName     string
	SelectionMode string
	Severity      string
	Status        string
	Query         string // free text over name, reasoning and annotations
	Limit         int
	Offset        int
}

const selectColumns = `
	id, source, alert_name, status, severity, fingerprint,
	labels, annotations, starts_at, ends_at, received_at,
	selection_mode, incident_response_mode,
	runbook_task_id, primary_job_id, child_task_id,
	ai_attempted, ai_confidence, ai_reasoning, ai_candidate_tooltasks,
	execution_status, tasks_executed, executed_tasks, created_at`

// Search returns records matching the filters, newest first, plus the
// total match count for pagination.
func (s *Storage) Search(ctx context.Context, filters SearchFilters) ([]types.AlertRecord, int, error) {
	var clauses []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(cond, len(args)))
	}

	if filters.Source != "" {
		add("source = $%d", filters.Source)
	}
	if filters.AlertName != "" {
		add("alert_name = $%d", filters.AlertName)
	}
	if filters.SelectionMode != "" {
		add("selection_mode = $%d", filters.SelectionMode)
	}
	if filters.Severity != "" {
		add("severity = $%d", filters.Severity)
	}
	if filters.Status != "" {
		add("status = $%d", filters.Status)
	}
	if filters.Query != "" {
		args = append(args, "%"+filters.Query+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(alert_name ILIKE $%d OR ai_reasoning ILIKE $%d OR annotations::text ILIKE $%d)", n, n, n))
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alert records: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	args = append(args, limit, filters.Offset)
	query := fmt.Sprintf("SELECT %s FROM alert_records%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		selectColumns, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search alert records: %w", err)
	}
	defer rows.Close()

	var records []types.AlertRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *record)
	}
	return records, total, rows.Err()
}

// GetByID retrieves one alert record
func (s *Storage) GetByID(ctx context.Context, id string) (*types.AlertRecord, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM alert_records WHERE id = $1", selectColumns), id)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert record: %w", err)
	}
	return record, nil
}

// Stats summarizes processed alerts for the operator endpoints.
type Stats struct {
	Total             int            `json:"total"`
	BySelectionMode   map[string]int `json:"by_selection_mode"`
	ByExecutionStatus map[string]int `json:"by_execution_status"`
	BySource          map[string]int `json:"by_source"`
	AIAttempted       int            `json:"ai_attempted"`
	Last24h           int            `json:"last_24h"`
}

// GetStats aggregates record counts
func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		BySelectionMode:   make(map[string]int),
		ByExecutionStatus: make(map[string]int),
		BySource:          make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_records`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	groups := []struct {
		column string
		into   map[string]int
	}{
		{"selection_mode", stats.BySelectionMode},
		{"execution_status", stats.ByExecutionStatus},
		{"source", stats.BySource},
	}
	for _, g := range groups {
		query := fmt.Sprintf(
			`SELECT COALESCE(%s, ''), COUNT(*) FROM alert_records GROUP BY %s`, g.column, g.column)
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("group by %s: %w", g.column, err)
		}
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s counts: %w", g.column, err)
			}
			g.into[key] = count
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_records WHERE ai_attempted = true`).Scan(&stats.AIAttempted); err != nil {
		return nil, fmt.Errorf("count ai attempts: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_records WHERE created_at > NOW() - INTERVAL '24 hours'`).Scan(&stats.Last24h); err != nil {
		return nil, fmt.Errorf("count last 24h: %w", err)
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*types.AlertRecord, error) {
	record := &types.AlertRecord{}
	var labels, annotations, executed []byte
	var endsAt sql.NullTime
	var runbookID, jobID, childID, reasoning sql.NullString
	var candidates pq.StringArray

	err := row.Scan(
		&record.ID, &record.Alert.Source, &record.Alert.AlertName, &record.Alert.Status,
		&record.Alert.Severity, &record.Alert.Fingerprint,
		&labels, &annotations, &record.Alert.StartsAt, &endsAt, &record.Alert.ReceivedAt,
		&record.SelectionMode, &record.IncidentResponseMode,
		&runbookID, &jobID, &childID,
		&record.AIAttempted, &record.AIConfidence, &reasoning, &candidates,
		&record.ExecutionStatus, &record.TasksExecuted, &executed, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &record.Alert.Labels); err != nil {
			return nil, fmt.Errorf("unmarshal labels: %w", err)
		}
	}
	if len(annotations) > 0 {
		if err := json.Unmarshal(annotations, &record.Alert.Annotations); err != nil {
			return nil, fmt.Errorf("unmarshal annotations: %w", err)
		}
	}
	if len(executed) > 0 {
		if err := json.Unmarshal(executed, &record.ExecutedTasks); err != nil {
			return nil, fmt.Errorf("unmarshal executed tasks: %w", err)
		}
	}
	if endsAt.Valid {
		record.Alert.EndsAt = endsAt.Time
	}
	record.RunbookTaskID = runbookID.String
	record.PrimaryJobID = jobID.String
	record.ChildTaskID = childID.String
	record.AIReasoning = reasoning.String
	record.AICandidateTooltasks = candidates
	return record, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
