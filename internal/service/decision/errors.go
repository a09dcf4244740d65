package decision

import "errors"

// Sentinel errors for the decision service layer.
var (
	ErrExperimentNotFound = errors.New("experiment not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
)
