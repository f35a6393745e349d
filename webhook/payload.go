// Package webhook applies the change notifications of the external table to
// the responses mirrored there.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Batch is a list of notification payloads, as delivered.
type Batch struct {
	Payloads      []Payload `json:"payloads"`
	Cursor        int64     `json:"cursor,omitempty"`
	MightHaveMore bool      `json:"mightHaveMore,omitempty"`
}

// Empty reports whether the batch carries no payloads: a liveness probe.
func (b Batch) Empty() bool {
	return len(b.Payloads) == 0
}

// Payload is one notification. Tables are in the order they were sent.
type Payload struct {
	Timestamp             string
	BaseTransactionNumber int64
	Tables                []TableChanges
}

// TableChanges lists the records of one table that were changed or destroyed.
// Changed keeps the order the records were sent in.
type TableChanges struct {
	TableID   string
	Changed   []string
	Destroyed []string
}

// Decode reads a batch. An empty body is an empty batch.
func Decode(r io.Reader) (Batch, error) {
	var batch Batch

	body, err := io.ReadAll(r)
	if err != nil {
		return batch, errors.Wrap(err, "read batch")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return batch, nil
	}

	err = json.Unmarshal(body, &batch)
	return batch, errors.Wrap(err, "decode batch")
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp             string          `json:"timestamp"`
		BaseTransactionNumber int64           `json:"baseTransactionNumber"`
		ChangedTablesByID     json.RawMessage `json:"changedTablesById"`
	}
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	p.Timestamp = raw.Timestamp
	p.BaseTransactionNumber = raw.BaseTransactionNumber
	p.Tables = nil
	return eachMember(raw.ChangedTablesByID, func(tableID string, value json.RawMessage) error {
		t := TableChanges{TableID: tableID}
		err := json.Unmarshal(value, &t)
		if err != nil {
			return errors.Wrapf(err, "table %s", tableID)
		}
		p.Tables = append(p.Tables, t)
		return nil
	})
}

func (t *TableChanges) UnmarshalJSON(data []byte) error {
	var raw struct {
		ChangedRecordsByID json.RawMessage `json:"changedRecordsById"`
		DestroyedRecordIDs []string        `json:"destroyedRecordIds"`
	}
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	t.Destroyed = raw.DestroyedRecordIDs
	t.Changed = nil
	return eachMember(raw.ChangedRecordsByID, func(recordID string, _ json.RawMessage) error {
		t.Changed = append(t.Changed, recordID)
		return nil
	})
}

// eachMember calls fn on the members of a JSON object in document order.
// Absent and null objects have no members.
func eachMember(data json.RawMessage, fn func(key string, value json.RawMessage) error) error {
	if len(data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)

		var value json.RawMessage
		err = dec.Decode(&value)
		if err != nil {
			return err
		}
		err = fn(key, value)
		if err != nil {
			return err
		}
	}

	_, err = dec.Token()
	return err
}
