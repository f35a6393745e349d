package webhook

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batchJSON = `{
	"payloads": [
		{
			"timestamp": "2024-05-01T10:00:00.000Z",
			"baseTransactionNumber": 4,
			"changedTablesById": {
				"tblZ": {
					"changedRecordsById": {
						"recC": {"current": {"cellValuesByFieldId": {"fldName": "C"}}},
						"recA": {"current": {}},
						"recB": {"current": {}}
					},
					"destroyedRecordIds": ["recD"]
				},
				"tblA": {
					"destroyedRecordIds": ["recE", "recF"]
				}
			}
		},
		{"timestamp": "2024-05-01T10:00:01.000Z", "baseTransactionNumber": 5},
		{"changedTablesById": {"tblZ": {"changedRecordsById": {"recA": {}}}}}
	],
	"cursor": 6,
	"mightHaveMore": false
}`

func TestDecode(t *testing.T) {
	batch, err := Decode(strings.NewReader(batchJSON))
	require.NoError(t, err)

	require.Len(t, batch.Payloads, 3)
	assert.EqualValues(t, 6, batch.Cursor)

	first := batch.Payloads[0]
	assert.EqualValues(t, 4, first.BaseTransactionNumber)
	assert.Equal(t, []TableChanges{
		{TableID: "tblZ", Changed: []string{"recC", "recA", "recB"}, Destroyed: []string{"recD"}},
		{TableID: "tblA", Destroyed: []string{"recE", "recF"}},
	}, first.Tables)

	assert.Empty(t, batch.Payloads[1].Tables)
	assert.Equal(t, []TableChanges{{TableID: "tblZ", Changed: []string{"recA"}}}, batch.Payloads[2].Tables)
}

func TestDecodeEmpty(t *testing.T) {
	for _, body := range []string{
		"",
		"  \n",
		"null",
		"{}",
		`{"payloads": []}`,
		`{"base": {"id": "appX"}, "webhook": {"id": "achY"}, "timestamp": "2024-05-01T10:00:00.000Z"}`,
	} {
		batch, err := Decode(strings.NewReader(body))
		require.NoError(t, err, "%q", body)
		assert.True(t, batch.Empty(), "%q", body)
	}
}

func TestDecodeInvalid(t *testing.T) {
	for _, body := range []string{
		"{",
		`{"payloads": {}}`,
		`{"payloads": [{"changedTablesById": []}]}`,
		`{"payloads": [{"changedTablesById": {"tbl": {"changedRecordsById": "rec"}}}]}`,
	} {
		_, err := Decode(strings.NewReader(body))
		assert.Error(t, err, "%q", body)
	}
}

type call struct {
	kind   string
	record string
}

type fakeReconciler struct {
	mu      sync.Mutex
	calls   []call
	known   map[string]bool
	deleted map[string]bool
	fail    map[string]bool
}

func newFake(known ...string) *fakeReconciler {
	f := &fakeReconciler{known: map[string]bool{}, deleted: map[string]bool{}, fail: map[string]bool{}}
	for _, id := range known {
		f.known[id] = true
	}
	return f
}

func (f *fakeReconciler) apply(kind, recordID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{kind, recordID})
	if f.fail[recordID] {
		return 0, errors.New("database is locked")
	}
	if !f.known[recordID] {
		return 0, nil
	}
	if kind == "delete" {
		f.deleted[recordID] = true
	}
	return 1, nil
}

func (f *fakeReconciler) ReconcileUpdate(ctx context.Context, recordID string) (int64, error) {
	return f.apply("update", recordID)
}

func (f *fakeReconciler) ReconcileDelete(ctx context.Context, recordID string) (int64, error) {
	return f.apply("delete", recordID)
}

func TestIngestOrder(t *testing.T) {
	batch, err := Decode(strings.NewReader(batchJSON))
	require.NoError(t, err)
	r := newFake("recA", "recD")

	report := Ingest(context.Background(), r, batch)
	require.NoError(t, report.Err)

	assert.Equal(t, []call{
		{"update", "recC"},
		{"update", "recA"},
		{"update", "recB"},
		{"delete", "recD"},
		{"delete", "recE"},
		{"delete", "recF"},
		{"update", "recA"},
	}, r.calls)
	assert.Equal(t, Report{Updated: 2, Deleted: 1, Untracked: 4}, report)
}

func TestIngestEmpty(t *testing.T) {
	r := newFake()
	report := Ingest(context.Background(), r, Batch{})
	assert.NoError(t, report.Err)
	assert.Empty(t, r.calls)
	assert.Equal(t, Report{}, report)
}

func TestIngestReplay(t *testing.T) {
	body := `{"payloads": [{"changedTablesById": {"tbl": {"destroyedRecordIds": ["recA"]}}}]}`
	r := newFake("recA")

	for i := 0; i < 2; i++ {
		batch, err := Decode(strings.NewReader(body))
		require.NoError(t, err)
		report := Ingest(context.Background(), r, batch)
		assert.NoError(t, report.Err, "delivery #%d", i)
		assert.True(t, r.deleted["recA"], "delivery #%d", i)
	}
	assert.Len(t, r.calls, 2)
}

func TestIngestPartialFailure(t *testing.T) {
	body := `{"payloads": [
		{"changedTablesById": {"tbl": {"changedRecordsById": {"recA": {}, "recB": {}}, "destroyedRecordIds": ["recC"]}}}
	]}`
	batch, err := Decode(strings.NewReader(body))
	require.NoError(t, err)
	r := newFake("recA", "recB", "recC")
	r.fail["recB"] = true

	report := Ingest(context.Background(), r, batch)
	require.Error(t, report.Err)
	assert.Contains(t, report.Err.Error(), "database is locked")
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, r.deleted["recC"], "pairs after a failure are still applied")
}
