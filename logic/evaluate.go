// Package logic decides question visibility from partial answers, validates
// submissions against it and checks form definitions before they are stored.
package logic

import (
	"strings"

	"github.com/mbolis/airform-sync/model"
	"golang.org/x/text/cases"
)

// Evaluate reports whether a question gated by rule is visible given the
// answers so far. A nil rule, or one without conditions, is always visible.
// Evaluate never fails: malformed rules evaluate to false.
func Evaluate(rule *model.Rule, answers model.Answers) bool {
	if rule == nil || len(rule.Conditions) == 0 {
		return true
	}

	switch rule.Gate {
	case model.GateAll:
		for _, c := range rule.Conditions {
			if !evaluateCondition(c, answers) {
				return false
			}
		}
		return true

	case model.GateAny:
		for _, c := range rule.Conditions {
			if evaluateCondition(c, answers) {
				return true
			}
		}
		return false
	}

	return false
}

func evaluateCondition(c model.Condition, answers model.Answers) bool {
	answer, ok := answers[c.FieldID]
	if !ok || answer.Blank() {
		// unanswered dependency: hidden unless testing for absence
		return c.Operator == model.NotEquals
	}

	switch c.Operator {
	case model.Equals:
		return answer.String() == c.Value.String()

	case model.NotEquals:
		return answer.String() != c.Value.String()

	case model.Contains:
		if answer.IsList() {
			if c.Value.Set {
				return false
			}
			target := c.Value.String()
			for _, item := range answer.Items() {
				if item == target {
					return true
				}
			}
			return false
		}
		fold := cases.Fold()
		return strings.Contains(fold.String(answer.String()), fold.String(c.Value.String()))
	}

	return false
}
