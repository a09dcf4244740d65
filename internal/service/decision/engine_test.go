package decision

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/domain"
)

// memAssignments is an in-memory assignment store with the same
// get-or-create semantics the Postgres unique constraint provides.
type memAssignments struct {
	mu   sync.Mutex
	rows map[string]*domain.Assignment
	next int64
}

func newMemAssignments() *memAssignments {
	return &memAssignments{rows: make(map[string]*domain.Assignment)}
}

func pairKey(experimentID int64, endUserID string) string {
	return fmt.Sprintf("%d:%s", experimentID, endUserID)
}

func (m *memAssignments) Get(_ context.Context, experimentID int64, endUserID string) (*domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[pairKey(experimentID, endUserID)]
	if !ok {
		return nil, ErrAssignmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAssignments) Create(_ context.Context, a *domain.Assignment) (*domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(a.ExperimentID, a.EndUserID)
	if existing, ok := m.rows[key]; ok {
		cp := *existing
		return &cp, nil
	}
	m.next++
	cp := *a
	cp.ID = m.next
	cp.CreatedAt = time.Now()
	m.rows[key] = &cp
	out := cp
	return &out, nil
}

func (m *memAssignments) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memAssignments) put(a domain.Assignment) {
	m.mu.Lock()
	m.rows[pairKey(a.ExperimentID, a.EndUserID)] = &a
	m.mu.Unlock()
}

// recordingQueue captures enqueued assignments. When writeThrough is set it
// persists synchronously, emulating a drained worker pool.
type recordingQueue struct {
	mu           sync.Mutex
	enqueued     []domain.Assignment
	full         bool
	writeThrough *memAssignments
}

func (q *recordingQueue) Enqueue(a domain.Assignment) bool {
	if q.full {
		return false
	}
	q.mu.Lock()
	q.enqueued = append(q.enqueued, a)
	q.mu.Unlock()
	if q.writeThrough != nil {
		q.writeThrough.Create(context.Background(), &a)
	}
	return true
}

func (q *recordingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

func fiftyFiftyExperiment(id int64) domain.Experiment {
	return domain.Experiment{
		ID:        id,
		ProjectID: 1,
		Title:     fmt.Sprintf("exp-%d", id),
		Status:    domain.ExperimentActive,
		Variations: []domain.Variation{
			{ID: id*100 + 1, ExperimentID: id, Title: "Control", Traffic: 50},
			{ID: id*100 + 2, ExperimentID: id, Title: "Treatment", Traffic: 50},
		},
	}
}

func newTestEngine(exps []domain.Experiment, store *memAssignments, queue AssignmentQueue) *Engine {
	cache, _ := newTestCache(&stubReader{exps: exps}, time.Minute)
	return NewEngine(cache, store, queue)
}

func TestDecideMintsEndUserID(t *testing.T) {
	store := newMemAssignments()
	engine := newTestEngine([]domain.Experiment{fiftyFiftyExperiment(1)}, store, &recordingQueue{})

	res, err := engine.Decide(context.Background(), 1, "/home", "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if res.EndUserID == "" {
		t.Error("a first-contact request must receive a minted end user id")
	}

	res2, _ := engine.Decide(context.Background(), 1, "/home", "visitor-1")
	if res2.EndUserID != "visitor-1" {
		t.Errorf("supplied end user id must be echoed, got %q", res2.EndUserID)
	}
}

func TestDecideStickyIdempotentBeforePersistence(t *testing.T) {
	// The queue never persists: both calls must still agree, via the hash.
	store := newMemAssignments()
	queue := &recordingQueue{}
	engine := newTestEngine([]domain.Experiment{fiftyFiftyExperiment(1)}, store, queue)

	first, _ := engine.Decide(context.Background(), 1, "/home", "visitor-1")
	second, _ := engine.Decide(context.Background(), 1, "/home", "visitor-1")

	if len(first.Decisions) != 1 || len(second.Decisions) != 1 {
		t.Fatalf("expected one decision per call, got %d and %d", len(first.Decisions), len(second.Decisions))
	}
	if first.Decisions[0].Variation.VariationID != second.Decisions[0].Variation.VariationID {
		t.Error("repeat decision diverged before the background write landed")
	}
	if queue.len() != 2 {
		t.Errorf("each unpersisted decision should re-enqueue, got %d", queue.len())
	}
}

func TestDecideCommittedAssignmentWins(t *testing.T) {
	// Pin the visitor to a variation the hash could never choose (0%
	// traffic): the committed row must win over re-bucketing.
	exp := fiftyFiftyExperiment(1)
	pinned := domain.Variation{ID: 999, ExperimentID: 1, Title: "Legacy", Traffic: 0}
	exp.Variations = append(exp.Variations, pinned)
	exp.Variations[0].Traffic = 50
	exp.Variations[1].Traffic = 50

	store := newMemAssignments()
	store.put(domain.Assignment{ID: 1, ExperimentID: 1, EndUserID: "visitor-1", VariationID: 999})

	queue := &recordingQueue{}
	engine := newTestEngine([]domain.Experiment{exp}, store, queue)

	res, _ := engine.Decide(context.Background(), 1, "/home", "visitor-1")
	if len(res.Decisions) != 1 {
		t.Fatalf("expected one decision, got %d", len(res.Decisions))
	}
	if got := res.Decisions[0].Variation.VariationID; got != 999 {
		t.Errorf("sticky assignment ignored: got variation %d, want 999", got)
	}
	if queue.len() != 0 {
		t.Error("an already-committed assignment must not be re-enqueued")
	}
}

func TestDecideAssignmentToRemovedVariationSkipsExperiment(t *testing.T) {
	store := newMemAssignments()
	store.put(domain.Assignment{ID: 1, ExperimentID: 1, EndUserID: "visitor-1", VariationID: 424242})

	engine := newTestEngine([]domain.Experiment{fiftyFiftyExperiment(1)}, store, &recordingQueue{})

	res, _ := engine.Decide(context.Background(), 1, "/home", "visitor-1")
	if len(res.Decisions) != 0 {
		t.Errorf("assignment to a removed variation should yield no decision, got %d", len(res.Decisions))
	}
}

func TestDecideSkipsNonTargetedExperiments(t *testing.T) {
	exp := fiftyFiftyExperiment(1)
	exp.ConditionMode = domain.ConditionModeAll
	exp.Conditions = []domain.Condition{
		{Operator: domain.OperatorContains, URLs: []string{"/pricing"}},
	}

	engine := newTestEngine([]domain.Experiment{exp}, newMemAssignments(), &recordingQueue{})

	res, _ := engine.Decide(context.Background(), 1, "/about", "visitor-1")
	if len(res.Decisions) != 0 {
		t.Errorf("non-targeted experiment produced a decision")
	}

	res, _ = engine.Decide(context.Background(), 1, "https://site.com/pricing/enterprise", "visitor-1")
	if len(res.Decisions) != 1 {
		t.Errorf("targeted experiment produced no decision")
	}
}

func TestDecideAllocationGapYieldsNoDecision(t *testing.T) {
	exp := fiftyFiftyExperiment(1)
	exp.Variations[0].Traffic = 0
	exp.Variations[1].Traffic = 0

	queue := &recordingQueue{}
	engine := newTestEngine([]domain.Experiment{exp}, newMemAssignments(), queue)

	res, err := engine.Decide(context.Background(), 1, "/home", "visitor-1")
	if err != nil {
		t.Fatalf("an allocation gap must not be an error: %v", err)
	}
	if len(res.Decisions) != 0 {
		t.Error("zero-coverage allocation produced a decision")
	}
	if queue.len() != 0 {
		t.Error("no assignment should be enqueued without a selected variation")
	}
}

func TestDecideFullQueueStillAnswers(t *testing.T) {
	engine := newTestEngine([]domain.Experiment{fiftyFiftyExperiment(1)}, newMemAssignments(), &recordingQueue{full: true})

	res, err := engine.Decide(context.Background(), 1, "/home", "visitor-1")
	if err != nil {
		t.Fatalf("a dropped persistence must not fail the decision: %v", err)
	}
	if len(res.Decisions) != 1 {
		t.Errorf("expected the decision despite the dropped write, got %d", len(res.Decisions))
	}
}

func TestDecideConcurrentFirstVisitsConverge(t *testing.T) {
	store := newMemAssignments()
	queue := &recordingQueue{writeThrough: store}
	engine := newTestEngine([]domain.Experiment{fiftyFiftyExperiment(1)}, store, queue)

	const n = 32
	results := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := engine.Decide(context.Background(), 1, "/home", "visitor-racing")
			if err != nil || len(res.Decisions) != 1 {
				t.Errorf("concurrent Decide failed: %v (%d decisions)", err, len(res.Decisions))
				return
			}
			results[i] = res.Decisions[0].Variation.VariationID
		}(i)
	}
	wg.Wait()

	if store.count() != 1 {
		t.Errorf("expected exactly one committed assignment, got %d", store.count())
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("concurrent callers saw different variations: %d vs %d", results[i], results[0])
		}
	}
}

func TestDecideResponseCarriesPayloadsAndDescriptors(t *testing.T) {
	exp := fiftyFiftyExperiment(1)
	exp.JS, exp.CSS = "console.log('exp')", ".hero{display:none}"
	exp.Variations[0].JS = "console.log('a')"
	exp.Conditions = []domain.Condition{
		{ID: 3, ExperimentID: 1, Operator: domain.OperatorNotContains, URLs: []string{"/admin"}},
	}
	exp.Metrics = []domain.Metric{
		{ID: 4, ExperimentID: 1, Title: "cta click", Selector: "#buy"},
	}

	engine := newTestEngine([]domain.Experiment{exp}, newMemAssignments(), &recordingQueue{})

	res, _ := engine.Decide(context.Background(), 1, "/home", "visitor-1")
	if len(res.Decisions) != 1 {
		t.Fatalf("expected one decision, got %d", len(res.Decisions))
	}
	d := res.Decisions[0]
	if d.ExperimentJS != exp.JS || d.ExperimentCSS != exp.CSS {
		t.Error("experiment payload missing from decision")
	}
	if len(d.Conditions) != 1 || d.Conditions[0].ID != 3 {
		t.Error("condition descriptors missing from decision")
	}
	if len(d.Metrics) != 1 || d.Metrics[0].Selector != "#buy" {
		t.Error("metric descriptors missing from decision")
	}
}
