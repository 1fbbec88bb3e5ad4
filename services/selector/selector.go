package selector

import (
	"context"
	"log"
	"sort"

	"github.com/arre-ops/arre_server/cmd/types"
	"github.com/arre-ops/arre_server/services/llm"
	"github.com/arre-ops/arre_server/services/tasks"
)

// VectorSearcher is the tooltask KNN slice of the task store client.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, query string, k, pool int, floor float64) ([]tasks.Candidate, error)
}

// Arbiter is the agent call that judges the candidate shortlist.
type Arbiter interface {
	Select(ctx context.Context, alertSummary string, candidates []llm.CandidateSummary) (*llm.Decision, error)
}

// Outcome of one AI selection attempt. Task nil means no tooltask was
// chosen; CandidateIDs always records the shortlist shown to the agent so
// the audit trail survives a rejection.
type Outcome struct {
	Task         *types.Task
	Confidence   float64
	Reasoning    string
	CandidateIDs []string
}

// Selector picks at most one tooltask for an alert: a vector shortlist
// narrowed by the agent, with a confidence gate on the answer. Every
// failure along the way degrades to "no candidate"; selection never
// aborts alert processing.
type Selector struct {
	searcher      VectorSearcher
	arbiter       Arbiter
	topK          int
	candidatePool int
	floor         float64
	minConfidence float64
}

// NewSelector creates a selector
func NewSelector(searcher VectorSearcher, arbiter Arbiter, topK, pool int, floor float64) *Selector {
	return &Selector{
		searcher:      searcher,
		arbiter:       arbiter,
		topK:          topK,
		candidatePool: pool,
		floor:         floor,
		minConfidence: 0.5,
	}
}

// Pick runs the selection pipeline for one alert.
func (s *Selector) Pick(ctx context.Context, alert *types.NormalizedAlert) Outcome {
	query := alert.Summary()

	candidates, err := s.searcher.VectorSearch(ctx, query, s.topK, s.candidatePool, s.floor)
	if err != nil {
		log.Printf("[SELECTOR] Vector search failed for %s/%s: %v", alert.Source, alert.AlertName, err)
		return Outcome{}
	}
	if len(candidates) == 0 {
		log.Printf("[SELECTOR] No tooltask above similarity %.2f for %s/%s", s.floor, alert.Source, alert.AlertName)
		return Outcome{}
	}

	// Stable shortlist order: strongest similarity first, task id breaks ties.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Task.ID < candidates[j].Task.ID
	})
	if len(candidates) > s.topK {
		candidates = candidates[:s.topK]
	}

	summaries := make([]llm.CandidateSummary, len(candidates))
	candidateIDs := make([]string, len(candidates))
	for i, cand := range candidates {
		summaries[i] = llm.CandidateSummary{
			TaskID:      cand.Task.ID,
			Title:       cand.Task.Title,
			Description: cand.Task.Description,
			Tags:        cand.Task.Tags,
			Similarity:  cand.Similarity,
		}
		candidateIDs[i] = cand.Task.ID
	}

	decision, err := s.arbiter.Select(ctx, query, summaries)
	if err != nil {
		log.Printf("[SELECTOR] Agent arbitration failed for %s/%s: %v", alert.Source, alert.AlertName, err)
		return Outcome{CandidateIDs: candidateIDs}
	}
	if decision.SelectedTaskID == nil {
		return Outcome{
			CandidateIDs: candidateIDs,
			Confidence:   decision.Confidence,
			Reasoning:    decision.Reasoning,
		}
	}
	if decision.Confidence < s.minConfidence {
		log.Printf("[SELECTOR] Rejecting low-confidence selection %s (%.2f) for %s/%s",
			*decision.SelectedTaskID, decision.Confidence, alert.Source, alert.AlertName)
		return Outcome{
			CandidateIDs: candidateIDs,
			Confidence:   decision.Confidence,
			Reasoning:    decision.Reasoning,
		}
	}

	for i := range candidates {
		if candidates[i].Task.ID == *decision.SelectedTaskID {
			return Outcome{
				Task:         &candidates[i].Task,
				Confidence:   decision.Confidence,
				Reasoning:    decision.Reasoning,
				CandidateIDs: candidateIDs,
			}
		}
	}
	// The client already validates selections against the shortlist, so
	// this only fires if the shortlist was truncated after the fact.
	log.Printf("[SELECTOR] Selection %s not in shortlist for %s/%s", *decision.SelectedTaskID, alert.Source, alert.AlertName)
	return Outcome{CandidateIDs: candidateIDs}
}
