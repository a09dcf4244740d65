package domain

import "time"

// Assignment is the durable fact that a visitor was bucketed into a
// variation for an experiment. The pair (ExperimentID, EndUserID) is unique
// in the store; rows are inserted exactly once and never updated or deleted
// by the decision path.
type Assignment struct {
	ID           int64     `json:"id" db:"id"`
	ExperimentID int64     `json:"experiment_id" db:"experiment_id"`
	EndUserID    string    `json:"end_user_id" db:"end_user_id"`
	VariationID  int64     `json:"variation_id" db:"variation_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
