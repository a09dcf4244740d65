package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/domain"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/service/decision"
)

// snapshotLimit caps one active-experiment fetch. A project running more
// concurrent experiments than this is misconfigured long before it is a
// query problem.
const snapshotLimit = 1000

// ExperimentRepo implements decision.ExperimentReader against PostgreSQL.
type ExperimentRepo struct{ db *sql.DB }

// NewExperimentRepo creates a Postgres-backed experiment reader.
func NewExperimentRepo(db *sql.DB) *ExperimentRepo { return &ExperimentRepo{db: db} }

// ActiveByProject returns the project's active experiments with conditions,
// variations, and metrics loaded eagerly: one query per child table keyed by
// the experiment id set, never one per experiment.
func (r *ExperimentRepo) ActiveByProject(ctx context.Context, projectID int64) ([]domain.Experiment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, title, type, status, url, description,
		       trigger_type, condition_mode, js, css, created_at, updated_at
		FROM ab_experiments
		WHERE project_id = $1 AND status = $2
		ORDER BY id
		LIMIT $3
	`, projectID, domain.ExperimentActive, snapshotLimit)
	if err != nil {
		return nil, fmt.Errorf("list active experiments: %w", err)
	}
	defer rows.Close()

	var exps []domain.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		exps = append(exps, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active experiments: %w", err)
	}
	if len(exps) == 0 {
		return exps, nil
	}

	if err := r.loadChildren(ctx, exps); err != nil {
		return nil, err
	}
	return exps, nil
}

// ByID returns a single experiment with children loaded. Returns
// decision.ErrExperimentNotFound if it doesn't exist.
func (r *ExperimentRepo) ByID(ctx context.Context, id int64) (*domain.Experiment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, type, status, url, description,
		       trigger_type, condition_mode, js, css, created_at, updated_at
		FROM ab_experiments
		WHERE id = $1
	`, id)

	e, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, decision.ErrExperimentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}

	exps := []domain.Experiment{*e}
	if err := r.loadChildren(ctx, exps); err != nil {
		return nil, err
	}
	return &exps[0], nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*domain.Experiment, error) {
	var e domain.Experiment
	err := row.Scan(&e.ID, &e.ProjectID, &e.Title, &e.Type, &e.Status, &e.URL,
		&e.Description, &e.TriggerType, &e.ConditionMode, &e.JS, &e.CSS,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// loadChildren populates conditions, variations, and metrics for the given
// experiments in three id-set queries. Variations come back ordered by id,
// which is creation order — the bucketing walk depends on it.
func (r *ExperimentRepo) loadChildren(ctx context.Context, exps []domain.Experiment) error {
	ids := make([]int64, len(exps))
	byID := make(map[int64]*domain.Experiment, len(exps))
	for i := range exps {
		ids[i] = exps[i].ID
		byID[exps[i].ID] = &exps[i]
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, experiment_id, operator, urls
		FROM ab_conditions
		WHERE experiment_id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load conditions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.Condition
		if err := rows.Scan(&c.ID, &c.ExperimentID, &c.Operator, pq.Array(&c.URLs)); err != nil {
			return fmt.Errorf("scan condition: %w", err)
		}
		if e := byID[c.ExperimentID]; e != nil {
			e.Conditions = append(e.Conditions, c)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load conditions: %w", err)
	}

	vRows, err := r.db.QueryContext(ctx, `
		SELECT id, experiment_id, title, traffic, js, css
		FROM ab_variations
		WHERE experiment_id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load variations: %w", err)
	}
	defer vRows.Close()
	for vRows.Next() {
		var v domain.Variation
		if err := vRows.Scan(&v.ID, &v.ExperimentID, &v.Title, &v.Traffic, &v.JS, &v.CSS); err != nil {
			return fmt.Errorf("scan variation: %w", err)
		}
		if e := byID[v.ExperimentID]; e != nil {
			e.Variations = append(e.Variations, v)
		}
	}
	if err := vRows.Err(); err != nil {
		return fmt.Errorf("load variations: %w", err)
	}

	mRows, err := r.db.QueryContext(ctx, `
		SELECT id, experiment_id, title, custom, selector, description,
		       triggered_on_live, triggered_on_qa
		FROM ab_metrics
		WHERE experiment_id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load metrics: %w", err)
	}
	defer mRows.Close()
	for mRows.Next() {
		var m domain.Metric
		if err := mRows.Scan(&m.ID, &m.ExperimentID, &m.Title, &m.Custom,
			&m.Selector, &m.Description, &m.TriggeredOnLive, &m.TriggeredOnQA); err != nil {
			return fmt.Errorf("scan metric: %w", err)
		}
		if e := byID[m.ExperimentID]; e != nil {
			e.Metrics = append(e.Metrics, m)
		}
	}
	if err := mRows.Err(); err != nil {
		return fmt.Errorf("load metrics: %w", err)
	}

	return nil
}
