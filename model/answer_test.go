package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswers(t *testing.T) {
	form := Form{Questions: []Question{
		{FieldID: "name", FieldType: ShortText},
		{FieldID: "bio", FieldType: LongText},
		{FieldID: "color", FieldType: SingleChoice},
		{FieldID: "tags", FieldType: MultiChoice},
		{FieldID: "files", FieldType: Attachments},
	}}

	t.Run("typed by field", func(t *testing.T) {
		raw := map[string]json.RawMessage{
			"name":    json.RawMessage(`"Ada"`),
			"bio":     json.RawMessage(`"line 1\nline 2"`),
			"color":   json.RawMessage(`"Red"`),
			"tags":    json.RawMessage(`["a","b"]`),
			"files":   json.RawMessage(`[{"url":"https://x/1.png","filename":"1.png"}]`),
			"unknown": json.RawMessage(`"ignored"`),
		}

		answers, err := ParseAnswers(form, raw)
		require.NoError(t, err)

		assert.Equal(t, Text("Ada"), answers["name"])
		assert.Equal(t, Answer{Type: LongText, Text: "line 1\nline 2"}, answers["bio"])
		assert.Equal(t, Choice("Red"), answers["color"])
		assert.Equal(t, Choices("a", "b"), answers["tags"])
		assert.Equal(t, Files(Attachment{URL: "https://x/1.png", Filename: "1.png"}), answers["files"])
		assert.NotContains(t, answers, "unknown")
	})

	t.Run("attachments as urls", func(t *testing.T) {
		answers, err := ParseAnswers(form, map[string]json.RawMessage{
			"files": json.RawMessage(`["https://x/1.png"]`),
		})
		require.NoError(t, err)
		assert.Equal(t, Files(Attachment{URL: "https://x/1.png"}), answers["files"])
	})

	t.Run("nulls are dropped", func(t *testing.T) {
		answers, err := ParseAnswers(form, map[string]json.RawMessage{
			"name": json.RawMessage(`null`),
		})
		require.NoError(t, err)
		assert.Empty(t, answers)
	})

	t.Run("all shape errors reported", func(t *testing.T) {
		_, err := ParseAnswers(form, map[string]json.RawMessage{
			"name": json.RawMessage(`12`),
			"tags": json.RawMessage(`"a"`),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name: expected a string")
		assert.Contains(t, err.Error(), "tags: expected a list of strings")
	})
}

func TestAnswerPredicates(t *testing.T) {
	tests := []struct {
		name   string
		answer Answer
		blank  bool
		empty  bool
		str    string
	}{
		{"zero", Answer{}, true, true, ""},
		{"empty text", Text(""), true, true, ""},
		{"text", Text("hi"), false, false, "hi"},
		{"empty choices", Choices(), false, true, ""},
		{"choices", Choices("Red", "Blue"), false, false, "Red,Blue"},
		{"files", Files(Attachment{URL: "u1"}, Attachment{URL: "u2"}), false, false, "u1,u2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.blank, tt.answer.Blank())
			assert.Equal(t, tt.empty, tt.answer.Empty())
			assert.Equal(t, tt.str, tt.answer.String())
		})
	}
}

func TestAnswersFields(t *testing.T) {
	fields := Answers{
		"name":  Text("Ada"),
		"tags":  Choices(),
		"files": Files(Attachment{URL: "u"}),
	}.Fields()

	assert.Equal(t, "Ada", fields["name"])
	assert.Equal(t, []string{}, fields["tags"])
	assert.Equal(t, []Attachment{{URL: "u"}}, fields["files"])

	b, err := json.Marshal(fields)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ada","tags":[],"files":[{"url":"u"}]}`, string(b))
}
