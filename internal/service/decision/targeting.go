package decision

import (
	"strings"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/domain"
)

// Matches reports whether the experiment's targeting rules apply to the
// request URL. An experiment with no conditions matches everywhere.
//
// Positive operators (IS, CONTAINS) match if any pattern in the condition's
// URL list matches. Negative operators (IS_NOT, NOT_CONTAINS) default to
// true and are falsified by any matching pattern. Condition results combine
// under the experiment's mode: ALL requires every condition, ANY requires at
// least one.
//
// Pure and stateless; safe to call concurrently.
func Matches(exp *domain.Experiment, url string) bool {
	if len(exp.Conditions) == 0 {
		return true
	}

	matched := 0
	for _, cond := range exp.Conditions {
		ok := evalCondition(cond, url)
		if ok {
			matched++
			if exp.ConditionMode == domain.ConditionModeAny {
				return true
			}
		} else if exp.ConditionMode == domain.ConditionModeAll {
			return false
		}
	}

	if exp.ConditionMode == domain.ConditionModeAll {
		return true
	}
	return matched > 0
}

func evalCondition(cond domain.Condition, url string) bool {
	switch cond.Operator {
	case domain.OperatorIs:
		for _, pattern := range cond.URLs {
			if url == pattern {
				return true
			}
		}
		return false
	case domain.OperatorContains:
		for _, pattern := range cond.URLs {
			if strings.Contains(url, pattern) {
				return true
			}
		}
		return false
	case domain.OperatorIsNot:
		for _, pattern := range cond.URLs {
			if url == pattern {
				return false
			}
		}
		return true
	case domain.OperatorNotContains:
		for _, pattern := range cond.URLs {
			if strings.Contains(url, pattern) {
				return false
			}
		}
		return true
	}
	// Unknown operator: treat as non-matching rather than guessing.
	return false
}
