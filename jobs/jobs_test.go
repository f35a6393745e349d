package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbolis/airform-sync/config"
	"github.com/mbolis/airform-sync/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	pending  []model.Response
	olderAt  time.Time
	prunedAt time.Time
	err      error
}

func (f *fakeStore) ListPending(ctx context.Context, olderThan time.Time) ([]model.Response, error) {
	f.olderAt = olderThan
	return f.pending, f.err
}

func (f *fakeStore) PruneTombstones(ctx context.Context, before time.Time) (int64, error) {
	f.prunedAt = before
	return 3, f.err
}

func testConfig() config.Config {
	return config.Config{
		AuditSchedule: "@every 1m",
		PendingAfter:  10 * time.Minute,
		TombstoneTTL:  24 * time.Hour,
	}
}

func TestNew(t *testing.T) {
	s, err := New(&fakeStore{}, testConfig())
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)

	s.Start()
	s.Stop()

	cfg := testConfig()
	cfg.AuditSchedule = "every now and then"
	_, err = New(&fakeStore{}, cfg)
	assert.ErrorContains(t, err, "every now and then")
}

func TestReportPending(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{pending: []model.Response{
		{ID: "r1", FormID: "f1", Status: model.Pending, CapturedAt: now.Add(-time.Hour)},
	}}
	s, err := New(store, testConfig())
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	stuck, err := s.ReportPending(context.Background())
	require.NoError(t, err)
	assert.Len(t, stuck, 1)
	assert.Equal(t, now.Add(-10*time.Minute), store.olderAt)

	store.err = errors.New("database is locked")
	_, err = s.ReportPending(context.Background())
	assert.Error(t, err)
}

func TestPruneTombstones(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{}
	s, err := New(store, testConfig())
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	n, err := s.PruneTombstones(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, now.Add(-24*time.Hour), store.prunedAt)
}
