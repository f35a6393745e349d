package logic

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mbolis/airform-sync/model"
)

// Build checks form against the catalog of its table and returns the form
// ready to be stored: field names, types and choices are copied from the
// catalog, empty labels default to the field name, empty rules are dropped and
// conditions get an id. Every problem found is reported.
func Build(form model.Form, catalog model.Catalog) (model.Form, error) {
	var errs error
	fail := func(format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	form.Title = strings.TrimSpace(form.Title)
	if form.Title == "" {
		fail("title is required")
	}
	if !form.Bound() {
		fail("base and table are required")
	}
	if len(form.Questions) == 0 {
		fail("at least one question is required")
	}

	built := make([]model.Question, len(form.Questions))
	position := make(map[string]int, len(form.Questions))
	for i, q := range form.Questions {
		if prev, dup := position[q.FieldID]; dup {
			fail("question %d: field %s already asked by question %d", i+1, q.FieldID, prev+1)
			continue
		}
		position[q.FieldID] = i

		field, ok := catalog.Lookup(q.FieldID)
		if !ok {
			fail("question %d: unknown field %s", i+1, q.FieldID)
			continue
		}
		if !field.Type.Supported() {
			fail("question %d: field %s has unsupported type %s", i+1, field.ID, field.Type)
			continue
		}

		q.FieldName = field.Name
		q.FieldType = field.Type
		q.Choices = nil
		if field.Options != nil {
			q.Choices = field.Options.Choices
		}
		q.Label = strings.TrimSpace(q.Label)
		if q.Label == "" {
			q.Label = field.Name
		}

		rule, err := buildRule(q.Rule, i, position)
		if err != nil {
			fail("question %d: %w", i+1, err)
		}
		q.Rule = rule

		built[i] = q
	}

	if errs != nil {
		return form, errs
	}
	form.Questions = built
	return form, nil
}

// buildRule checks a rule of the question at index i. Conditions may only
// reference questions at a smaller index.
func buildRule(rule *model.Rule, i int, position map[string]int) (*model.Rule, error) {
	if rule == nil || len(rule.Conditions) == 0 {
		return nil, nil
	}
	if rule.Gate != model.GateAll && rule.Gate != model.GateAny {
		return nil, fmt.Errorf("invalid logic %q", rule.Gate)
	}

	built := model.Rule{Gate: rule.Gate, Conditions: make([]model.Condition, len(rule.Conditions))}
	for j, c := range rule.Conditions {
		if !c.Operator.Valid() {
			return nil, fmt.Errorf("condition %d: invalid operator %q", j+1, c.Operator)
		}
		if at, ok := position[c.FieldID]; !ok || at >= i {
			return nil, fmt.Errorf("condition %d: field %s is not an earlier question", j+1, c.FieldID)
		}
		if c.ID == "" {
			id, err := uuid.NewV4()
			if err != nil {
				return nil, err
			}
			c.ID = id.String()
		}
		built.Conditions[j] = c
	}
	return &built, nil
}
