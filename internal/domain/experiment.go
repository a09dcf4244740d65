package domain

import "time"

// ExperimentStatus enumerates the lifecycle states of an experiment.
type ExperimentStatus string

const (
	ExperimentDraft    ExperimentStatus = "draft"
	ExperimentActive   ExperimentStatus = "active"
	ExperimentPaused   ExperimentStatus = "paused"
	ExperimentArchived ExperimentStatus = "archived"
)

// ConditionMode controls how an experiment combines its targeting conditions.
type ConditionMode string

const (
	// ConditionModeAll requires every condition to match (conjunction).
	ConditionModeAll ConditionMode = "ALL"
	// ConditionModeAny requires at least one condition to match (disjunction).
	ConditionModeAny ConditionMode = "ANY"
)

// Operator enumerates the URL matching operators a condition can use.
type Operator string

const (
	OperatorIs          Operator = "IS"
	OperatorIsNot       Operator = "IS_NOT"
	OperatorContains    Operator = "CONTAINS"
	OperatorNotContains Operator = "NOT_CONTAINS"
)

// Experiment is an A/B test with its targeting rules, traffic split, and
// conversion metrics. The decision path treats experiments as read-only:
// status and traffic allocation are mutated by administrative flows only.
type Experiment struct {
	ID            int64            `json:"id" db:"id"`
	ProjectID     int64            `json:"project_id" db:"project_id"`
	Title         string           `json:"title" db:"title"`
	Type          string           `json:"type" db:"type"`
	Status        ExperimentStatus `json:"status" db:"status"`
	URL           string           `json:"url" db:"url"`
	Description   string           `json:"description" db:"description"`
	TriggerType   string           `json:"trigger_type" db:"trigger_type"`
	ConditionMode ConditionMode    `json:"condition_mode" db:"condition_mode"`
	JS            string           `json:"js" db:"js"`
	CSS           string           `json:"css" db:"css"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`

	// Eagerly loaded children. Variations keep creation order; bucketing
	// depends on that order being stable.
	Conditions []Condition `json:"conditions"`
	Variations []Variation `json:"variations"`
	Metrics    []Metric    `json:"metrics"`
}

// Condition is a URL targeting rule belonging to one experiment.
type Condition struct {
	ID           int64    `json:"id" db:"id"`
	ExperimentID int64    `json:"experiment_id" db:"experiment_id"`
	Operator     Operator `json:"operator" db:"operator"`
	URLs         []string `json:"urls" db:"urls"`
}

// Variation is one arm of an experiment. Traffic is an integer percentage;
// the sum across an experiment's variations is 100 (enforced by the
// administrative flows that edit allocations, read-only here).
type Variation struct {
	ID           int64  `json:"id" db:"id"`
	ExperimentID int64  `json:"experiment_id" db:"experiment_id"`
	Title        string `json:"title" db:"title"`
	Traffic      int    `json:"traffic" db:"traffic"`
	JS           string `json:"js" db:"js"`
	CSS          string `json:"css" db:"css"`
}

// Metric is a conversion-tracking descriptor attached to an experiment.
// The decision response echoes metrics so the client snippet knows which
// elements to observe; the core never writes them.
type Metric struct {
	ID              int64  `json:"id" db:"id"`
	ExperimentID    int64  `json:"experiment_id" db:"experiment_id"`
	Title           string `json:"title" db:"title"`
	Custom          bool   `json:"custom" db:"custom"`
	Selector        string `json:"selector" db:"selector"`
	Description     string `json:"description" db:"description"`
	TriggeredOnLive int    `json:"triggered_on_live" db:"triggered_on_live"`
	TriggeredOnQA   int    `json:"triggered_on_qa" db:"triggered_on_qa"`
}

// VariationByID returns the experiment's variation with the given id, or nil.
func (e *Experiment) VariationByID(id int64) *Variation {
	for i := range e.Variations {
		if e.Variations[i].ID == id {
			return &e.Variations[i]
		}
	}
	return nil
}
