package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/arre-ops/arre_server/cmd/types"
	"github.com/arre-ops/arre_server/cmd/utils/httpclient"
)

// Sentinel errors for task store and job runtime operations
var (
	ErrNotFound         = errors.New("task not found")
	ErrPermissionDenied = errors.New("task store permission denied")
	ErrTransient        = errors.New("task store temporarily unavailable")
	ErrPermanent        = errors.New("task store rejected the request")
)

// Client is the typed HTTP client for the external task store, which also
// fronts the vector index and the job runtime. ARRE never owns tasks; it
// reads them, and (in autonomous mode only) creates and deletes them.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a task store client
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, httpClient: httpclient.TaskStoreClient}
}

// Candidate is one vector search hit over tooltasks.
type Candidate struct {
	Task       types.Task `json:"task"`
	Similarity float64    `json:"similarity"`
}

// JobRequest is the outbound job submission body.
type JobRequest struct {
	TaskID      string                 `json:"task_id"`
	Workspace   string                 `json:"workspace"`
	AlertCtx    *types.NormalizedAlert `json:"alert_context"`
	RoutingHint string                 `json:"routing_hint,omitempty"`
}

// List returns all tasks carrying at least one trigger rule plus all
// tooltasks; it feeds the deterministic matcher index.
func (c *Client) List(ctx context.Context) ([]types.Task, error) {
	var out struct {
		Tasks []types.Task `json:"tasks"`
	}
	if err := c.do(ctx, "GET", "/v1/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// Get fetches a single task by id.
func (c *Client) Get(ctx context.Context, id string) (*types.Task, error) {
	var task types.Task
	if err := c.do(ctx, "GET", "/v1/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetByTrigger queries the store directly for tasks whose trigger rules
// match the key. Used when the local index is too stale to be authoritative.
func (c *Client) GetByTrigger(ctx context.Context, key types.TriggerKey) ([]types.Task, error) {
	path := fmt.Sprintf("/v1/tasks?trigger_source=%s&trigger_alert=%s",
		url.QueryEscape(key.Source), url.QueryEscape(key.AlertName))
	var out struct {
		Tasks []types.Task `json:"tasks"`
	}
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// Create persists a new task (autonomous mode only) and returns it with
// its assigned id.
func (c *Client) Create(ctx context.Context, task types.Task) (*types.Task, error) {
	var created types.Task
	if err := c.do(ctx, "POST", "/v1/tasks", task, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Delete removes a task; used by the autonomous launcher's rollback path.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "DELETE", "/v1/tasks/"+url.PathEscape(id), nil, nil)
}

// VectorSearch runs a KNN query over tooltasks. The store returns hits
// ranked by cosine similarity; results below floor are filtered server-side
// but the floor is re-applied here in case of an older store.
func (c *Client) VectorSearch(ctx context.Context, query string, k, pool int, floor float64) ([]Candidate, error) {
	body := map[string]any{
		"query":          query,
		"k":              k,
		"candidate_pool": pool,
		"min_similarity": floor,
		"tooltasks_only": true,
	}
	var out struct {
		Candidates []Candidate `json:"candidates"`
	}
	if err := c.do(ctx, "POST", "/v1/tasks/search/vector", body, &out); err != nil {
		return nil, err
	}

	filtered := out.Candidates[:0]
	for _, cand := range out.Candidates {
		if cand.Similarity >= floor {
			filtered = append(filtered, cand)
		}
	}
	return filtered, nil
}

// SubmitJob starts a task execution and returns the job id.
func (c *Client) SubmitJob(ctx context.Context, req JobRequest) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := c.do(ctx, "POST", "/v1/jobs", req, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", fmt.Errorf("%w: job runtime returned empty job id", ErrPermanent)
	}
	return out.JobID, nil
}

// do performs one request and maps the response onto the error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %v", ErrPermanent, err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors and timeouts are retryable.
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrPermissionDenied
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrPermanent, err)
	}
	return nil
}
