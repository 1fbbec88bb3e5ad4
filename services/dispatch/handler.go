package dispatch

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/arre-ops/arre_server/cmd/types"
	"github.com/arre-ops/arre_server/services/auth"
	"github.com/arre-ops/arre_server/services/ingest"
)

// Normalizer turns a raw webhook body into a NormalizedAlert.
type Normalizer interface {
	Normalize(raw []byte, receivedAt time.Time) (*types.NormalizedAlert, error)
}

// Handler serves the alert ingestion endpoints
type Handler struct {
	pool               *Pool
	normalizer         Normalizer
	resolver           *auth.Resolver
	flags              FlagSource
	recorder           Recorder
	processDeadline    time.Duration
	autonomousDeadline time.Duration
}

// NewHandler creates a dispatch handler
func NewHandler(pool *Pool, normalizer Normalizer, resolver *auth.Resolver, flagSource FlagSource,
	recorder Recorder, processDeadline, autonomousDeadline time.Duration) *Handler {
	return &Handler{
		pool:               pool,
		normalizer:         normalizer,
		resolver:           resolver,
		flags:              flagSource,
		recorder:           recorder,
		processDeadline:    processDeadline,
		autonomousDeadline: autonomousDeadline,
	}
}

// processResponse is the /processAlert envelope.
type processResponse struct {
	Status               string               `json:"status"`
	AlertSource          string               `json:"alert_source,omitempty"`
	AlertName            string               `json:"alert_name,omitempty"`
	TasksExecuted        int                  `json:"tasks_executed"`
	IncidentResponseMode string               `json:"incident_response_mode,omitempty"`
	SelectionMode        string               `json:"selection_mode,omitempty"`
	ExecutedTasks        []types.ExecutedTask `json:"executed_tasks"`
	RunbookTaskID        string               `json:"runbook_task_id,omitempty"`
	ChildTaskID          string               `json:"child_task_id,omitempty"`
	AIConfidence         *float64             `json:"ai_confidence,omitempty"`
	AIReasoning          string               `json:"ai_reasoning,omitempty"`
	Message              string               `json:"message"`
}

// ProcessAlert handles POST /processAlert
func (h *Handler) ProcessAlert(w http.ResponseWriter, r *http.Request) (int, any) {
	if _, err := h.resolver.Resolve(r); err != nil {
		return http.StatusUnauthorized, processResponse{Status: "error", Message: "authentication required"}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		return http.StatusBadRequest, processResponse{Status: "error", Message: "unreadable payload: " + err.Error()}
	}

	receivedAt := time.Now().UTC()
	alert, err := h.normalizer.Normalize(body, receivedAt)
	if err != nil {
		if errors.Is(err, ingest.ErrUnparseable) {
			h.persistUnparseable(body, receivedAt)
			return http.StatusBadRequest, processResponse{Status: "error", Message: err.Error()}
		}
		return http.StatusInternalServerError, processResponse{Status: "error", Message: err.Error()}
	}

	// The query string is an opaque deployment-routing hint, forwarded
	// verbatim to downstream components.
	routingHint := r.URL.RawQuery

	deadline := h.processDeadline
	if h.flags.Get().IncidentResponseMode == types.ModeAutonomous {
		deadline = h.autonomousDeadline
	}
	ctx, cancel := context.WithTimeout(r.Context(), deadline)
	defer cancel()

	resultCh, err := h.pool.SubmitWithResult(ctx, alert, routingHint)
	if err != nil {
		return http.StatusServiceUnavailable, processResponse{
			Status:      "error",
			AlertSource: alert.Source,
			AlertName:   alert.AlertName,
			Message:     "server is overloaded, retry later",
		}
	}

	select {
	case result := <-resultCh:
		return h.renderResult(alert, result)
	case <-ctx.Done():
		// The worker keeps going and persists the timeout record itself.
		return http.StatusGatewayTimeout, processResponse{
			Status:      "error",
			AlertSource: alert.Source,
			AlertName:   alert.AlertName,
			Message:     "processing deadline exceeded",
		}
	}
}

func (h *Handler) renderResult(alert *types.NormalizedAlert, result RouteResult) (int, any) {
	if result.Err != nil {
		resp := processResponse{
			Status:      "error",
			AlertSource: alert.Source,
			AlertName:   alert.AlertName,
			Message:     result.Err.Error(),
		}
		if record := result.Record; record != nil {
			resp.TasksExecuted = record.TasksExecuted
			resp.IncidentResponseMode = record.IncidentResponseMode
			resp.SelectionMode = record.SelectionMode
			resp.ExecutedTasks = record.ExecutedTasks
		}
		switch {
		case errors.Is(result.Err, ErrDeadline):
			return http.StatusGatewayTimeout, resp
		case errors.Is(result.Err, ErrDependencyUnavailable):
			return http.StatusServiceUnavailable, resp
		default:
			return http.StatusInternalServerError, resp
		}
	}

	record := result.Record
	resp := processResponse{
		Status:               "success",
		AlertSource:          record.Alert.Source,
		AlertName:            record.Alert.AlertName,
		TasksExecuted:        record.TasksExecuted,
		IncidentResponseMode: record.IncidentResponseMode,
		SelectionMode:        record.SelectionMode,
		ExecutedTasks:        record.ExecutedTasks,
		RunbookTaskID:        record.RunbookTaskID,
		ChildTaskID:          record.ChildTaskID,
		AIReasoning:          record.AIReasoning,
		Message:              routeMessage(record),
	}
	if record.AIAttempted {
		confidence := record.AIConfidence
		resp.AIConfidence = &confidence
	}
	if resp.ExecutedTasks == nil {
		resp.ExecutedTasks = []types.ExecutedTask{}
	}
	return http.StatusOK, resp
}

// persistUnparseable records a payload no format recognized: just the raw
// bytes, the arrival time and selection "none". Written on a fresh context
// because the 400 goes out regardless.
func (h *Handler) persistUnparseable(body []byte, receivedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record := &types.AlertRecord{
		Alert: types.NormalizedAlert{
			RawPayload: body,
			ReceivedAt: receivedAt,
		},
		SelectionMode:        types.SelectionNone,
		IncidentResponseMode: h.flags.Get().IncidentResponseMode,
		ExecutionStatus:      types.ExecutionUnparseable,
	}
	if err := h.recorder.StoreRecord(ctx, record); err != nil {
		log.Printf("[HANDLER] Failed to persist unparseable alert record: %v", err)
	}
}

func routeMessage(record *types.AlertRecord) string {
	switch record.SelectionMode {
	case types.SelectionDeterministic:
		if record.TasksExecuted == len(record.ExecutedTasks) {
			return "dispatched matching tasks"
		}
		return "dispatched matching tasks; some submissions failed"
	case types.SelectionAISelected:
		if record.TasksExecuted > 0 {
			return "dispatched AI-selected tooltask"
		}
		return "AI-selected tooltask could not be dispatched"
	case types.SelectionAutonomous:
		return "launched autonomous runbook"
	default:
		if record.AIAttempted {
			return "no suitable task found; AI selection attempted"
		}
		return "no tasks matched the alert"
	}
}

// GetStats handles GET /v1/dispatch/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) (int, any) {
	if _, err := h.resolver.Resolve(r); err != nil {
		return http.StatusUnauthorized, map[string]string{"error": "authentication required"}
	}
	return http.StatusOK, h.pool.Stats()
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) (int, any) {
	return http.StatusOK, map[string]string{"status": "ok"}
}
