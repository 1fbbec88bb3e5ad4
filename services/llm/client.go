package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/arre-ops/arre_server/cmd/types"
	"github.com/arre-ops/arre_server/cmd/utils/httpclient"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned when the agent sidecar cannot be reached,
// times out, or the circuit breaker is open. Callers treat it as a soft
// failure: routing degrades, it never aborts alert processing.
var ErrUnavailable = errors.New("llm agent unavailable")

// ErrBadAnswer is returned when the sidecar answers with something the
// caller cannot act on, such as a selection outside the candidate set.
var ErrBadAnswer = errors.New("llm agent returned an unusable answer")

// Decision is the sidecar's verdict over a candidate set. A nil
// SelectedTaskID means the agent judged no candidate appropriate.
type Decision struct {
	SelectedTaskID *string `json:"selected_task_id"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// CandidateSummary is what the agent sees per tooltask: enough to judge
// relevance, nothing it could leak commands from.
type CandidateSummary struct {
	TaskID      string   `json:"task_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Similarity  float64  `json:"similarity"`
}

// ChildSpec is the investigation subtask the agent attaches to a runbook.
type ChildSpec struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// RunbookSpec is an agent-authored remediation plan for an unmatched alert.
type RunbookSpec struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ScriptType  string    `json:"script_type"`
	Commands    []string  `json:"commands"`
	Tags        []string  `json:"tags,omitempty"`
	Child       ChildSpec `json:"child_task"`
}

// Client talks to the local agent sidecar over HTTP. All calls go through
// a circuit breaker so a wedged sidecar sheds load fast instead of holding
// worker goroutines for the full timeout.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	breaker       *gobreaker.CircuitBreaker
	selectTimeout time.Duration
	planTimeout   time.Duration
}

// NewClient creates an agent client
func NewClient(baseURL string, selectTimeout, planTimeout time.Duration) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-agent",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[LLM] Circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &Client{
		baseURL:       baseURL,
		httpClient:    httpclient.AgentClient,
		breaker:       breaker,
		selectTimeout: selectTimeout,
		planTimeout:   planTimeout,
	}
}

// Select asks the agent to pick at most one candidate for the alert.
func (c *Client) Select(ctx context.Context, alertSummary string, candidates []CandidateSummary) (*Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, c.selectTimeout)
	defer cancel()

	req := map[string]any{
		"alert_summary": alertSummary,
		"candidates":    candidates,
	}
	var decision Decision
	if err := c.post(ctx, "/select", req, &decision); err != nil {
		return nil, err
	}

	if decision.SelectedTaskID != nil {
		found := false
		for _, cand := range candidates {
			if cand.TaskID == *decision.SelectedTaskID {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: selected %q outside candidate set", ErrBadAnswer, *decision.SelectedTaskID)
		}
	}
	if decision.Confidence < 0 || decision.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %f out of range", ErrBadAnswer, decision.Confidence)
	}
	return &decision, nil
}

// Plan asks the agent to author a runbook for an alert nothing matched.
func (c *Client) Plan(ctx context.Context, alert *types.NormalizedAlert) (*RunbookSpec, error) {
	ctx, cancel := context.WithTimeout(ctx, c.planTimeout)
	defer cancel()

	req := map[string]any{
		"source":      alert.Source,
		"alert_name":  alert.AlertName,
		"severity":    alert.Severity,
		"summary":     alert.Summary(),
		"labels":      alert.Labels,
		"annotations": alert.Annotations,
	}
	var spec RunbookSpec
	if err := c.post(ctx, "/plan", req, &spec); err != nil {
		return nil, err
	}
	if spec.Title == "" || len(spec.Commands) == 0 {
		return nil, fmt.Errorf("%w: plan missing title or commands", ErrBadAnswer)
	}
	return &spec, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("%w: decode response: %v", ErrBadAnswer, err)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	return err
}
