package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/arre-ops/arre_server/cmd/types"
	"github.com/arre-ops/arre_server/services/llm"
	"github.com/arre-ops/arre_server/services/tasks"
)

type fakeSearcher struct {
	candidates []tasks.Candidate
	err        error
	gotQuery   string
}

func (f *fakeSearcher) VectorSearch(ctx context.Context, query string, k, pool int, floor float64) ([]tasks.Candidate, error) {
	f.gotQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

type fakeArbiter struct {
	decision      *llm.Decision
	err           error
	gotCandidates []llm.CandidateSummary
	calls         int
}

func (f *fakeArbiter) Select(ctx context.Context, summary string, candidates []llm.CandidateSummary) (*llm.Decision, error) {
	f.calls++
	f.gotCandidates = candidates
	if f.err != nil {
		return nil, f.err
	}
	return f.decision, nil
}

func tooltask(id, title string) types.Task {
	return types.Task{ID: id, Title: title, IsTooltask: true}
}

var memAlert = &types.NormalizedAlert{
	Source:      "Grafana",
	AlertName:   "HighMemoryUsage",
	Annotations: map[string]string{"summary": "memory above 90%"},
}

func selected(id string, confidence float64) *llm.Decision {
	return &llm.Decision{SelectedTaskID: &id, Confidence: confidence, Reasoning: "fits the symptom"}
}

func TestPick_SelectsArbitratedCandidate(t *testing.T) {
	searcher := &fakeSearcher{candidates: []tasks.Candidate{
		{Task: tooltask("tool-1", "Restart web"), Similarity: 0.85},
		{Task: tooltask("tool-2", "Scale workers"), Similarity: 0.74},
	}}
	arbiter := &fakeArbiter{decision: selected("tool-2", 0.8)}

	outcome := NewSelector(searcher, arbiter, 3, 10, 0.70).Pick(context.Background(), memAlert)
	if outcome.Task == nil || outcome.Task.ID != "tool-2" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Confidence != 0.8 {
		t.Errorf("confidence = %f", outcome.Confidence)
	}
	if len(outcome.CandidateIDs) != 2 {
		t.Errorf("candidate ids = %v", outcome.CandidateIDs)
	}
	if searcher.gotQuery == "" {
		t.Error("vector query must be built from the alert")
	}
}

func TestPick_ShortlistOrderedBySimilarityThenID(t *testing.T) {
	searcher := &fakeSearcher{candidates: []tasks.Candidate{
		{Task: tooltask("tool-b", "B"), Similarity: 0.80},
		{Task: tooltask("tool-c", "C"), Similarity: 0.90},
		{Task: tooltask("tool-a", "A"), Similarity: 0.80},
	}}
	arbiter := &fakeArbiter{decision: &llm.Decision{Confidence: 0.9}}

	NewSelector(searcher, arbiter, 3, 10, 0.70).Pick(context.Background(), memAlert)

	got := make([]string, len(arbiter.gotCandidates))
	for i, c := range arbiter.gotCandidates {
		got[i] = c.TaskID
	}
	want := []string{"tool-c", "tool-a", "tool-b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("shortlist order = %v, want %v", got, want)
		}
	}
}

func TestPick_TruncatesToTopK(t *testing.T) {
	searcher := &fakeSearcher{candidates: []tasks.Candidate{
		{Task: tooltask("tool-1", "1"), Similarity: 0.95},
		{Task: tooltask("tool-2", "2"), Similarity: 0.90},
		{Task: tooltask("tool-3", "3"), Similarity: 0.85},
		{Task: tooltask("tool-4", "4"), Similarity: 0.80},
	}}
	arbiter := &fakeArbiter{decision: &llm.Decision{Confidence: 0.9}}

	NewSelector(searcher, arbiter, 2, 10, 0.70).Pick(context.Background(), memAlert)
	if len(arbiter.gotCandidates) != 2 {
		t.Errorf("shortlist size = %d, want 2", len(arbiter.gotCandidates))
	}
}

func TestPick_NoCandidatesSkipsArbitration(t *testing.T) {
	searcher := &fakeSearcher{}
	arbiter := &fakeArbiter{}

	outcome := NewSelector(searcher, arbiter, 3, 10, 0.70).Pick(context.Background(), memAlert)
	if outcome.Task != nil {
		t.Errorf("expected no candidate, got %+v", outcome.Task)
	}
	if arbiter.calls != 0 {
		t.Error("arbitration must be skipped with an empty shortlist")
	}
}

func TestPick_SearchFailureDegrades(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("vector index down")}
	outcome := NewSelector(searcher, &fakeArbiter{}, 3, 10, 0.70).Pick(context.Background(), memAlert)
	if outcome.Task != nil {
		t.Errorf("search failure must degrade to no candidate, got %+v", outcome.Task)
	}
}

func TestPick_ArbitrationFailureDegrades(t *testing.T) {
	searcher := &fakeSearcher{candidates: []tasks.Candidate{
		{Task: tooltask("tool-1", "Restart web"), Similarity: 0.85},
	}}
	arbiter := &fakeArbiter{err: llm.ErrUnavailable}

	outcome := NewSelector(searcher, arbiter, 3, 10, 0.70).Pick(context.Background(), memAlert)
	if outcome.Task != nil {
		t.Errorf("agent failure must degrade to no candidate, got %+v", outcome.Task)
	}
	if len(outcome.CandidateIDs) != 1 {
		t.Errorf("shortlist must still be recorded: %v", outcome.CandidateIDs)
	}
}

func TestPick_NullSelectionRecordsReasoning(t *testing.T) {
	searcher := &fakeSearcher{candidates: []tasks.Candidate{
		{Task: tooltask("tool-1", "Restart web"), Similarity: 0.85},
	}}
	arbiter := &fakeArbiter{decision: &llm.Decision{Confidence: 0.9, Reasoning: "none address a cert expiry"}}

	outcome := NewSelector(searcher, arbiter, 3, 10, 0.70).Pick(context.Background(), memAlert)
	if outcome.Task != nil {
		t.Errorf("null selection must yield no candidate, got %+v", outcome.Task)
	}
	if outcome.Reasoning != "none address a cert expiry" {
		t.Errorf("reasoning not kept: %q", outcome.Reasoning)
	}
}

func TestPick_LowConfidenceRejected(t *testing.T) {
	searcher := &fakeSearcher{candidates: []tasks.Candidate{
		{Task: tooltask("tool-1", "Restart web"), Similarity: 0.85},
	}}
	arbiter := &fakeArbiter{decision: selected("tool-1", 0.3)}

	outcome := NewSelector(searcher, arbiter, 3, 10, 0.70).Pick(context.Background(), memAlert)
	if outcome.Task != nil {
		t.Errorf("confidence below the gate must be rejected, got %+v", outcome.Task)
	}
	if outcome.Confidence != 0.3 {
		t.Errorf("rejected confidence should still be recorded, got %f", outcome.Confidence)
	}
}
