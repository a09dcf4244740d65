package decision

import (
	"context"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/domain"
)

// ExperimentReader is the narrow read interface the decision path is allowed
// to see of experiment administration. Implementations must be safe for
// concurrent use.
type ExperimentReader interface {
	// ActiveByProject returns the project's active experiments with
	// conditions, variations, and metrics eagerly loaded in one retrieval.
	// Variations are returned in creation order.
	ActiveByProject(ctx context.Context, projectID int64) ([]domain.Experiment, error)

	// ByID returns a single experiment with children loaded. Returns
	// ErrExperimentNotFound if it doesn't exist.
	ByID(ctx context.Context, id int64) (*domain.Experiment, error)
}

// AssignmentRepository is the durable store of committed assignments.
// Implementations must be safe for concurrent use.
type AssignmentRepository interface {
	// Get returns the committed assignment for the pair, or
	// ErrAssignmentNotFound. Point lookup, no side effects.
	Get(ctx context.Context, experimentID int64, endUserID string) (*domain.Assignment, error)

	// Create durably inserts a new assignment. If a concurrent writer
	// already committed a row for the same (experiment, end user) pair,
	// the unique-key collision is absorbed and the existing winning row is
	// returned instead. The race is never surfaced as an error.
	Create(ctx context.Context, a *domain.Assignment) (*domain.Assignment, error)
}

// AssignmentQueue accepts fire-and-forget persistence of fresh assignments.
// Enqueue must not block: returning false means the write was dropped, which
// is acceptable — the next request re-buckets deterministically and retries.
type AssignmentQueue interface {
	Enqueue(a domain.Assignment) bool
}
