package decision

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/domain"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/pkg/logger"
)

// VariationDecision is the chosen variation's identity and payload.
type VariationDecision struct {
	VariationID    int64  `json:"variation_id"`
	VariationTitle string `json:"variation_title"`
	JS             string `json:"js"`
	CSS            string `json:"css"`
}

// ExperimentDecision is one experiment's contribution to a decision
// response: the experiment identity and payload, the assigned variation,
// and the read-only condition/metric descriptors the client snippet needs
// for activation and conversion tracking.
type ExperimentDecision struct {
	ExperimentID    int64              `json:"experiment_id"`
	ExperimentTitle string             `json:"experiment_title"`
	ExperimentJS    string             `json:"experiment_js"`
	ExperimentCSS   string             `json:"experiment_css"`
	Variation       VariationDecision  `json:"variation"`
	Conditions      []domain.Condition `json:"conditions"`
	Metrics         []domain.Metric    `json:"metrics"`
}

// Result is a complete decision response. EndUserID is always populated —
// minted server-side on first contact — and must be persisted client-side
// so subsequent requests stay in the same buckets.
type Result struct {
	EndUserID string               `json:"end_user_id"`
	Decisions []ExperimentDecision `json:"decisions"`
}

// Engine composes the config cache, targeting evaluator, bucketing
// algorithm, and assignment store to answer decision requests. Assignment
// persistence is dispatched through the queue after the decision is
// computed, off the response path.
//
// Per (visitor, experiment) pair the engine is a one-way state machine:
// once a committed assignment exists it is used unconditionally, even if
// traffic weights changed since. There is no reassignment path.
type Engine struct {
	cache       *ConfigCache
	assignments AssignmentRepository
	queue       AssignmentQueue

	// newID mints visitor identifiers; swapped in tests.
	newID func() string
}

// NewEngine creates a decision engine.
func NewEngine(cache *ConfigCache, assignments AssignmentRepository, queue AssignmentQueue) *Engine {
	return &Engine{
		cache:       cache,
		assignments: assignments,
		queue:       queue,
		newID:       uuid.NewString,
	}
}

// Decide resolves the visitor identity and returns a decision for every
// active experiment of the project that targets the request URL.
func (e *Engine) Decide(ctx context.Context, projectID int64, url, endUserID string) (*Result, error) {
	if endUserID == "" {
		endUserID = e.newID()
	}

	result := &Result{EndUserID: endUserID, Decisions: []ExperimentDecision{}}

	exps := e.cache.ActiveExperiments(ctx, projectID)
	for i := range exps {
		exp := &exps[i]

		if !Matches(exp, url) {
			continue
		}

		variation := e.resolveVariation(ctx, exp, endUserID)
		if variation == nil {
			continue
		}

		result.Decisions = append(result.Decisions, buildDecision(exp, variation))
	}

	return result, nil
}

// resolveVariation applies sticky bucketing: a committed assignment wins
// unconditionally; otherwise the visitor is bucketed deterministically and
// the fresh assignment is queued for background persistence.
func (e *Engine) resolveVariation(ctx context.Context, exp *domain.Experiment, endUserID string) *domain.Variation {
	existing, err := e.assignments.Get(ctx, exp.ID, endUserID)
	switch {
	case err == nil:
		v := exp.VariationByID(existing.VariationID)
		if v == nil {
			// Assigned variation no longer exists on the experiment.
			logger.Warn("committed assignment references unknown variation",
				"experiment_id", exp.ID, "variation_id", existing.VariationID)
			return nil
		}
		return v
	case errors.Is(err, ErrAssignmentNotFound):
		// First visit for this pair.
	default:
		// Store read failure: degrade to deterministic re-bucketing. The
		// hash gives the same variation the committed row would, unless
		// weights changed since — log so the degraded mode is visible.
		logger.Warn("assignment lookup failed, falling back to re-bucketing",
			"experiment_id", exp.ID, "error", err)
	}

	bucketVal := BucketValue(endUserID, exp.ID)
	chosen := variationForBucket(exp.Variations, bucketVal)
	if chosen == nil {
		// Weights don't cover the full scale; this visitor lands in the
		// unreachable remainder. Not an error, but must be observable.
		logger.Warn("traffic allocation leaves visitor unassigned",
			"experiment_id", exp.ID, "bucket_val", bucketVal)
		return nil
	}

	if !e.queue.Enqueue(domain.Assignment{
		ExperimentID: exp.ID,
		EndUserID:    endUserID,
		VariationID:  chosen.ID,
	}) {
		// Dropped write: next visit re-buckets to the same variation and
		// retries persistence.
		logger.Warn("assignment queue full, dropping write",
			"experiment_id", exp.ID)
	}

	return chosen
}

func buildDecision(exp *domain.Experiment, v *domain.Variation) ExperimentDecision {
	conditions := exp.Conditions
	if conditions == nil {
		conditions = []domain.Condition{}
	}
	metrics := exp.Metrics
	if metrics == nil {
		metrics = []domain.Metric{}
	}
	return ExperimentDecision{
		ExperimentID:    exp.ID,
		ExperimentTitle: exp.Title,
		ExperimentJS:    exp.JS,
		ExperimentCSS:   exp.CSS,
		Variation: VariationDecision{
			VariationID:    v.ID,
			VariationTitle: v.Title,
			JS:             v.JS,
			CSS:            v.CSS,
		},
		Conditions: conditions,
		Metrics:    metrics,
	}
}
