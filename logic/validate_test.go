package logic

import (
	"testing"

	"github.com/mbolis/airform-sync/model"
	"github.com/stretchr/testify/assert"
)

func branchingForm() model.Form {
	return model.Form{
		Title: "Branching",
		Questions: []model.Question{
			{FieldID: "Q1", FieldType: model.SingleChoice, Required: true},
			{FieldID: "Q2", FieldType: model.ShortText, Required: true, Rule: all(cond("Q1", model.Equals, model.Single("A")))},
			{FieldID: "Q3", FieldType: model.MultiChoice, Rule: all(cond("Q2", model.NotEquals, model.Single("")))},
		},
	}
}

func TestValidate(t *testing.T) {
	form := branchingForm()

	t.Run("required but hidden", func(t *testing.T) {
		res := Validate(form, model.Answers{"Q1": model.Choice("B")})
		assert.True(t, res.Accepted())
		assert.Empty(t, res.Errors)
	})

	t.Run("required and visible", func(t *testing.T) {
		res := Validate(form, model.Answers{"Q1": model.Choice("A")})
		assert.False(t, res.Accepted())
		assert.Equal(t, map[string]string{"Q2": "required"}, res.Errors)
	})

	t.Run("required and empty", func(t *testing.T) {
		res := Validate(form, model.Answers{"Q1": model.Choice("A"), "Q2": model.Text("")})
		assert.Equal(t, map[string]string{"Q2": "required"}, res.Errors)
	})

	t.Run("nothing answered", func(t *testing.T) {
		res := Validate(form, model.Answers{})
		assert.Equal(t, map[string]string{"Q1": "required"}, res.Errors)
	})

	t.Run("complete", func(t *testing.T) {
		res := Validate(form, model.Answers{"Q1": model.Choice("A"), "Q2": model.Text("hello")})
		assert.True(t, res.Accepted())
	})

	t.Run("empty list is empty", func(t *testing.T) {
		f := model.Form{Questions: []model.Question{{FieldID: "tags", FieldType: model.MultiChoice, Required: true}}}
		res := Validate(f, model.Answers{"tags": model.Choices()})
		assert.Equal(t, map[string]string{"tags": "required"}, res.Errors)
	})

	t.Run("form is not mutated", func(t *testing.T) {
		before := branchingForm()
		Validate(form, model.Answers{"Q1": model.Choice("A")})
		assert.Equal(t, before, form)
	})
}

func TestVisibility(t *testing.T) {
	form := branchingForm()

	t.Run("cascade", func(t *testing.T) {
		got := Visibility(form, model.Answers{"Q1": model.Choice("A"), "Q2": model.Text("x")})
		assert.Equal(t, []bool{true, true, true}, got)
	})

	t.Run("hidden answers still count", func(t *testing.T) {
		got := Visibility(form, model.Answers{"Q1": model.Choice("B"), "Q2": model.Text("stale")})
		assert.Equal(t, []bool{true, false, true}, got)
	})

	t.Run("later answers are not seen", func(t *testing.T) {
		f := model.Form{Questions: []model.Question{
			{FieldID: "Q1", Rule: all(cond("Q2", model.Equals, model.Single("x")))},
			{FieldID: "Q2"},
		}}
		got := Visibility(f, model.Answers{"Q2": model.Text("x")})
		assert.Equal(t, []bool{false, true}, got)
	})
}

func TestValidateHiddenDependency(t *testing.T) {
	form := model.Form{Questions: []model.Question{
		{FieldID: "Q1", FieldType: model.SingleChoice},
		{FieldID: "Q2", FieldType: model.ShortText, Rule: all(cond("Q1", model.Equals, model.Single("A")))},
		{FieldID: "Q3", FieldType: model.ShortText, Required: true, Rule: all(cond("Q2", model.Equals, model.Single("x")))},
	}}
	answers := model.Answers{"Q1": model.Choice("B"), "Q2": model.Text("x")}

	assert.Equal(t, []bool{true, false, true}, Visibility(form, answers))
	res := Validate(form, answers)
	assert.Equal(t, map[string]string{"Q3": "required"}, res.Errors)
}
