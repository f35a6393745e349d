package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Answer is the value captured for one question, tagged with the type of the
// field it was captured for. Text holds short/long text and single choices,
// Choices holds multiple choices, Files holds attachments.
type Answer struct {
	Type    FieldType
	Text    string
	Choices []string
	Files   []Attachment
}

type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

func Text(s string) Answer {
	return Answer{Type: ShortText, Text: s}
}

func Choice(s string) Answer {
	return Answer{Type: SingleChoice, Text: s}
}

func Choices(ss ...string) Answer {
	return Answer{Type: MultiChoice, Choices: ss}
}

func Files(fs ...Attachment) Answer {
	return Answer{Type: Attachments, Files: fs}
}

// IsList reports whether the answer holds a list of values.
func (a Answer) IsList() bool {
	return a.Type == MultiChoice || a.Type == Attachments
}

// Blank reports a missing scalar: an untyped answer or an empty string.
func (a Answer) Blank() bool {
	return !a.IsList() && a.Text == ""
}

// Empty is Blank, or a list with no elements.
func (a Answer) Empty() bool {
	switch a.Type {
	case MultiChoice:
		return len(a.Choices) == 0
	case Attachments:
		return len(a.Files) == 0
	}
	return a.Text == ""
}

// Items returns the list elements in string form.
func (a Answer) Items() []string {
	switch a.Type {
	case MultiChoice:
		return a.Choices
	case Attachments:
		urls := make([]string, len(a.Files))
		for i, f := range a.Files {
			urls[i] = f.URL
		}
		return urls
	}
	return nil
}

func (a Answer) String() string {
	if a.IsList() {
		return strings.Join(a.Items(), ",")
	}
	return a.Text
}

// Value is the answer in the shape the external store expects for a cell.
func (a Answer) Value() any {
	switch a.Type {
	case MultiChoice:
		if a.Choices == nil {
			return []string{}
		}
		return a.Choices
	case Attachments:
		if a.Files == nil {
			return []Attachment{}
		}
		return a.Files
	}
	return a.Text
}

func (a Answer) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Value())
}

type Answers map[string]Answer

// Fields maps each answer to its external cell value.
func (as Answers) Fields() map[string]any {
	fields := make(map[string]any, len(as))
	for id, a := range as {
		fields[id] = a.Value()
	}
	return fields
}

var errNull = errors.New("null value")

// ParseAnswer types a raw JSON value as an answer to a field of type t.
func ParseAnswer(t FieldType, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Answer{}, errNull
	}

	switch t {
	case ShortText, LongText, SingleChoice:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Answer{}, fmt.Errorf("expected a string")
		}
		return Answer{Type: t, Text: s}, nil

	case MultiChoice:
		var ss []string
		if err := json.Unmarshal(raw, &ss); err != nil {
			return Answer{}, fmt.Errorf("expected a list of strings")
		}
		return Choices(ss...), nil

	case Attachments:
		var files []Attachment
		if err := json.Unmarshal(raw, &files); err == nil {
			for _, f := range files {
				if f.URL == "" {
					return Answer{}, fmt.Errorf("attachment without url")
				}
			}
			return Files(files...), nil
		}
		var urls []string
		if err := json.Unmarshal(raw, &urls); err != nil {
			return Answer{}, fmt.Errorf("expected a list of attachments")
		}
		files = make([]Attachment, len(urls))
		for i, u := range urls {
			files[i] = Attachment{URL: u}
		}
		return Files(files...), nil
	}

	return Answer{}, fmt.Errorf("unsupported field type %q", t)
}

// ParseAnswers types the raw answers of a submission against the questions of
// form. Answers to fields the form does not ask for, and null answers, are
// dropped.
func ParseAnswers(form Form, raw map[string]json.RawMessage) (Answers, error) {
	answers := Answers{}
	var errs error
	for _, q := range form.Questions {
		r, ok := raw[q.FieldID]
		if !ok {
			continue
		}
		a, err := ParseAnswer(q.FieldType, r)
		if errors.Is(err, errNull) {
			continue
		}
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", q.FieldID, err))
			continue
		}
		answers[q.FieldID] = a
	}
	return answers, errs
}
