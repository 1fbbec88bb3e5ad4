package dispatch

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/arre-ops/arre_server/services/tasks"
)

// JobAPI is the job submission slice of the task store client.
type JobAPI interface {
	SubmitJob(ctx context.Context, req tasks.JobRequest) (string, error)
}

// Submitter wraps the job runtime with a bounded retry policy: transient
// failures are retried twice with short fixed backoffs, everything else
// propagates immediately. Job submission is not idempotent on the runtime
// side, so retries happen only on errors where no job can have started.
type Submitter struct {
	api      JobAPI
	backoffs []time.Duration
}

// NewSubmitter creates a retrying job submitter
func NewSubmitter(api JobAPI) *Submitter {
	return &Submitter{
		api:      api,
		backoffs: []time.Duration{200 * time.Millisecond, 600 * time.Millisecond},
	}
}

// Submit starts a job for the task, retrying transient failures.
func (s *Submitter) Submit(ctx context.Context, req tasks.JobRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= len(s.backoffs); attempt++ {
		if attempt > 0 {
			log.Printf("[SUBMITTER] Retrying job for task %s (attempt %d): %v",
				req.TaskID, attempt+1, lastErr)
			select {
			case <-time.After(s.backoffs[attempt-1]):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		jobID, err := s.api.SubmitJob(ctx, req)
		if err == nil {
			return jobID, nil
		}
		lastErr = err
		if !errors.Is(err, tasks.ErrTransient) || ctx.Err() != nil {
			return "", err
		}
	}
	return "", lastErr
}
