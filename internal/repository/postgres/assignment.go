package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/domain"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/service/decision"
)

// uniqueViolation is the PostgreSQL error code for unique-constraint hits.
const uniqueViolation = "23505"

// AssignmentRepo implements decision.AssignmentRepository against PostgreSQL.
// The UNIQUE (experiment_id, end_user_id) constraint on ab_buckets is the
// sole guard against concurrent first-visit writers; no application locks.
type AssignmentRepo struct{ db *sql.DB }

// NewAssignmentRepo creates a Postgres-backed assignment store.
func NewAssignmentRepo(db *sql.DB) *AssignmentRepo { return &AssignmentRepo{db: db} }

// Get returns the committed assignment for the pair, or
// decision.ErrAssignmentNotFound.
func (r *AssignmentRepo) Get(ctx context.Context, experimentID int64, endUserID string) (*domain.Assignment, error) {
	var a domain.Assignment
	err := r.db.QueryRowContext(ctx, `
		SELECT id, experiment_id, end_user_id, variation_id, created_at
		FROM ab_buckets
		WHERE experiment_id = $1 AND end_user_id = $2
	`, experimentID, endUserID).Scan(&a.ID, &a.ExperimentID, &a.EndUserID, &a.VariationID, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, decision.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &a, nil
}

// Create inserts a new assignment row. If a concurrent writer committed a
// row for the same (experiment, end user) pair first, the unique violation
// is absorbed and the existing winning row is returned — insert, catch
// duplicate, re-read, never a lock.
func (r *AssignmentRepo) Create(ctx context.Context, a *domain.Assignment) (*domain.Assignment, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO ab_buckets (experiment_id, end_user_id, variation_id, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`, a.ExperimentID, a.EndUserID, a.VariationID).Scan(&a.ID, &a.CreatedAt)
	if err == nil {
		return a, nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		existing, getErr := r.Get(ctx, a.ExperimentID, a.EndUserID)
		if getErr != nil {
			return nil, fmt.Errorf("re-read after duplicate assignment: %w", getErr)
		}
		return existing, nil
	}

	return nil, fmt.Errorf("create assignment: %w", err)
}
