package model

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

type FieldType string

const (
	ShortText    FieldType = "singleLineText"
	LongText     FieldType = "multilineText"
	SingleChoice FieldType = "singleSelect"
	MultiChoice  FieldType = "multipleSelects"
	Attachments  FieldType = "multipleAttachments"
)

func (t FieldType) Supported() bool {
	switch t {
	case ShortText, LongText, SingleChoice, MultiChoice, Attachments:
		return true
	}
	return false
}

// Field is a column of an external table, as reported by the schema provider.
type Field struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Type    FieldType     `json:"type"`
	Options *FieldOptions `json:"options,omitempty"`
}

type FieldOptions struct {
	Choices []FieldChoice `json:"choices"`
}

type FieldChoice struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Catalog is a snapshot of a table's fields, in schema order.
type Catalog []Field

func (c Catalog) Lookup(id string) (Field, bool) {
	for _, f := range c {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

type Gate string

const (
	GateAll Gate = "AND"
	GateAny Gate = "OR"
)

func (g *Gate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch strings.ToUpper(s) {
	case "AND", "ALL":
		*g = GateAll
	case "OR", "ANY":
		*g = GateAny
	default:
		*g = Gate(s)
	}
	return nil
}

type Operator string

const (
	Equals    Operator = "equals"
	NotEquals Operator = "notEquals"
	Contains  Operator = "contains"
)

func (o Operator) Valid() bool {
	return o == Equals || o == NotEquals || o == Contains
}

// Rule gates the visibility of a question on the answers to earlier questions.
type Rule struct {
	Gate       Gate        `json:"logic"`
	Conditions []Condition `json:"conditions"`
}

type Condition struct {
	ID       string         `json:"id"`
	FieldID  string         `json:"fieldId"`
	Operator Operator       `json:"operator"`
	Value    ConditionValue `json:"value"`
}

// ConditionValue is either a single string or a set of strings.
type ConditionValue struct {
	Values []string
	Set    bool
}

func Single(v string) ConditionValue {
	return ConditionValue{Values: []string{v}}
}

func SetOf(vs ...string) ConditionValue {
	return ConditionValue{Values: vs, Set: true}
}

func (v ConditionValue) String() string {
	return strings.Join(v.Values, ",")
}

func (v ConditionValue) MarshalJSON() ([]byte, error) {
	if v.Set {
		if v.Values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Values)
	}
	return json.Marshal(v.String())
}

func (v *ConditionValue) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw := raw.(type) {
	case nil:
		*v = Single("")
	case string:
		*v = Single(raw)
	case float64:
		*v = Single(strconv.FormatFloat(raw, 'f', -1, 64))
	case bool:
		*v = Single(strconv.FormatBool(raw))
	case []any:
		vs := make([]string, 0, len(raw))
		for _, e := range raw {
			s, ok := e.(string)
			if !ok {
				return errors.New("condition value: set elements must be strings")
			}
			vs = append(vs, s)
		}
		*v = SetOf(vs...)
	default:
		return errors.New("condition value: expected string or list of strings")
	}
	return nil
}

// Question wraps one field of the form's table. FieldName and FieldType are
// copied from the catalog when the form is built.
type Question struct {
	FieldID   string        `json:"airtableFieldId"`
	FieldName string        `json:"fieldName,omitempty"`
	FieldType FieldType     `json:"fieldType,omitempty"`
	Choices   []FieldChoice `json:"choices,omitempty"`
	Label     string        `json:"label"`
	Required  bool          `json:"required"`
	Rule      *Rule         `json:"rules"`
}

type Form struct {
	ID        string     `json:"id,omitempty"`
	Version   int        `json:"version,omitempty"`
	Title     string     `json:"title"`
	BaseID    string     `json:"baseId"`
	TableID   string     `json:"tableId"`
	Owner     string     `json:"owner,omitempty"`
	Questions []Question `json:"fields"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Bound reports whether the form names the external table its responses sync to.
func (f Form) Bound() bool {
	return f.BaseID != "" && f.TableID != ""
}

func (f Form) Question(fieldID string) (Question, bool) {
	for _, q := range f.Questions {
		if q.FieldID == fieldID {
			return q, true
		}
	}
	return Question{}, false
}

// Live returns a copy of the form without the questions whose field is no
// longer in the catalog.
func (f Form) Live(catalog Catalog) Form {
	live := f
	live.Questions = make([]Question, 0, len(f.Questions))
	for _, q := range f.Questions {
		if _, ok := catalog.Lookup(q.FieldID); ok {
			live.Questions = append(live.Questions, q)
		}
	}
	return live
}

type SyncStatus string

const (
	Pending         SyncStatus = "pending"
	Synced          SyncStatus = "synced"
	SyncFailed      SyncStatus = "sync_failed"
	DeletedUpstream SyncStatus = "deleted_upstream"
)

type Response struct {
	ID           string     `json:"id"`
	FormID       string     `json:"formId"`
	FormVersion  int        `json:"formVersion"`
	Answers      Answers    `json:"answers"`
	Status       SyncStatus `json:"syncStatus"`
	RecordID     string     `json:"airtableRecordId,omitempty"`
	SyncError    string     `json:"syncError,omitempty"`
	CapturedAt   time.Time  `json:"capturedAt"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}
