package logic

import (
	"testing"

	"github.com/mbolis/airform-sync/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalog = model.Catalog{
	{ID: "fldName", Name: "Name", Type: model.ShortText},
	{ID: "fldKind", Name: "Kind", Type: model.SingleChoice, Options: &model.FieldOptions{
		Choices: []model.FieldChoice{{ID: "selA", Name: "A"}, {ID: "selB", Name: "B"}},
	}},
	{ID: "fldNotes", Name: "Notes", Type: model.LongText},
	{ID: "fldCount", Name: "Count", Type: "number"},
}

func validForm() model.Form {
	return model.Form{
		Title:   "  Intake ",
		BaseID:  "appBase",
		TableID: "tblTable",
		Questions: []model.Question{
			{FieldID: "fldName", Required: true},
			{FieldID: "fldKind", Label: "What kind?"},
			{FieldID: "fldNotes", Rule: &model.Rule{Gate: model.GateAll, Conditions: []model.Condition{
				{FieldID: "fldKind", Operator: model.Equals, Value: model.Single("A")},
			}}},
		},
	}
}

func TestBuild(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		form, err := Build(validForm(), catalog)
		require.NoError(t, err)

		assert.Equal(t, "Intake", form.Title)
		require.Len(t, form.Questions, 3)

		name := form.Questions[0]
		assert.Equal(t, "Name", name.Label, "label defaults to field name")
		assert.Equal(t, model.ShortText, name.FieldType)

		kind := form.Questions[1]
		assert.Equal(t, "What kind?", kind.Label)
		assert.Equal(t, model.SingleChoice, kind.FieldType)
		assert.Len(t, kind.Choices, 2)

		notes := form.Questions[2]
		require.NotNil(t, notes.Rule)
		assert.NotEmpty(t, notes.Rule.Conditions[0].ID, "condition id generated")
	})

	t.Run("empty rule normalized to absent", func(t *testing.T) {
		f := validForm()
		f.Questions[1].Rule = &model.Rule{Gate: model.GateAny}

		form, err := Build(f, catalog)
		require.NoError(t, err)
		assert.Nil(t, form.Questions[1].Rule)
	})

	t.Run("forward reference", func(t *testing.T) {
		f := validForm()
		f.Questions[0].Rule = &model.Rule{Gate: model.GateAll, Conditions: []model.Condition{
			{FieldID: "fldNotes", Operator: model.Equals, Value: model.Single("x")},
		}}

		_, err := Build(f, catalog)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "question 1: condition 1: field fldNotes is not an earlier question")
	})

	t.Run("self reference", func(t *testing.T) {
		f := validForm()
		f.Questions[1].Rule = &model.Rule{Gate: model.GateAll, Conditions: []model.Condition{
			{FieldID: "fldKind", Operator: model.Equals, Value: model.Single("A")},
		}}

		_, err := Build(f, catalog)
		assert.ErrorContains(t, err, "field fldKind is not an earlier question")
	})

	t.Run("every problem reported", func(t *testing.T) {
		f := validForm()
		f.Title = ""
		f.TableID = ""
		f.Questions = append(f.Questions,
			model.Question{FieldID: "fldGone"},
			model.Question{FieldID: "fldName"},
			model.Question{FieldID: "fldCount"},
		)
		f.Questions[2].Rule.Gate = "XOR"
		f.Questions[1].Rule = &model.Rule{Gate: model.GateAll, Conditions: []model.Condition{
			{FieldID: "fldName", Operator: "startsWith"},
		}}

		_, err := Build(f, catalog)
		require.Error(t, err)
		for _, want := range []string{
			"title is required",
			"base and table are required",
			`question 2: condition 1: invalid operator "startsWith"`,
			`question 3: invalid logic "XOR"`,
			"question 4: unknown field fldGone",
			"question 5: field fldName already asked by question 1",
			"question 6: field fldCount has unsupported type number",
		} {
			assert.Contains(t, err.Error(), want)
		}
	})

	t.Run("no questions", func(t *testing.T) {
		f := validForm()
		f.Questions = nil
		_, err := Build(f, catalog)
		assert.ErrorContains(t, err, "at least one question is required")
	})
}
