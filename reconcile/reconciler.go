// Package reconcile owns the sync lifecycle of responses: it records a
// submission locally, mirrors it once into the external table, and applies the
// change notifications the external table sends back.
//
// Every status write touching an external record is serialized on that
// record's id, and the store resolves a create result against the deletions
// it has already seen, so a deletion always wins over a racing create result
// or update.
package reconcile

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"github.com/mbolis/airform-sync/log"
	"github.com/mbolis/airform-sync/model"
	"github.com/pkg/errors"
)

var ErrNoBinding = errors.New("form is not bound to an external table")

// Store persists responses and their sync status.
type Store interface {
	InsertResponse(ctx context.Context, r model.Response) error
	ResolveSynced(ctx context.Context, responseID, recordID string, at time.Time) (model.SyncStatus, error)
	ResolveFailed(ctx context.Context, responseID, reason string, at time.Time) (model.SyncStatus, error)
	TouchRecord(ctx context.Context, recordID string, at time.Time) (int64, error)
	DeleteRecord(ctx context.Context, recordID string, at time.Time) (int64, error)
}

// RecordStore creates records in the external table.
type RecordStore interface {
	CreateRecord(ctx context.Context, baseID, tableID string, fields map[string]any) (string, error)
}

type Reconciler struct {
	store   Store
	records RecordStore
	locks   keyedMutex
	now     func() time.Time
}

func New(store Store, records RecordStore) *Reconciler {
	return &Reconciler{
		store:   store,
		records: records,
		now:     time.Now,
	}
}

// Submit records a validated submission as a Pending response, then attempts
// once to create its external record and resolves the response to Synced or
// SyncFailed. A sync failure is not an error: the returned response carries
// it. An error is returned only when the response could not be persisted.
//
// Submit is not cancelled by ctx once started: the Pending response is
// always driven to an outcome by this call.
func (r *Reconciler) Submit(ctx context.Context, form model.Form, answers model.Answers) (model.Response, error) {
	ctx = context.WithoutCancel(ctx)

	id, err := uuid.NewV4()
	if err != nil {
		return model.Response{}, errors.Wrap(err, "submit: new response id")
	}
	resp := model.Response{
		ID:          id.String(),
		FormID:      form.ID,
		FormVersion: form.Version,
		Answers:     answers,
		Status:      model.Pending,
		CapturedAt:  r.now().UTC(),
	}

	err = r.store.InsertResponse(ctx, resp)
	if err != nil {
		return resp, errors.Wrap(err, "submit")
	}

	entry := log.WithFields(log.Fields{"response": resp.ID, "form": form.ID})

	recordID, err := r.create(ctx, form, answers)
	at := r.now().UTC()
	if err != nil {
		entry.WithError(err).Warn("sync failed")

		// no record id, so no reconcile call can race this write
		status, serr := r.store.ResolveFailed(ctx, resp.ID, err.Error(), at)
		if serr != nil {
			return resp, errors.Wrap(serr, "submit: resolve failed")
		}
		resp.Status = status
		resp.SyncError = err.Error()
		resp.LastSyncedAt = &at
		return resp, nil
	}

	unlock := r.locks.Lock("record:" + recordID)
	status, err := r.store.ResolveSynced(ctx, resp.ID, recordID, at)
	unlock()
	if err != nil {
		return resp, errors.Wrap(err, "submit: resolve synced")
	}

	resp.Status = status
	resp.RecordID = recordID
	resp.LastSyncedAt = &at
	entry.WithFields(log.Fields{"record": recordID, "status": status}).Info("response synced")
	return resp, nil
}

func (r *Reconciler) create(ctx context.Context, form model.Form, answers model.Answers) (string, error) {
	if !form.Bound() {
		return "", ErrNoBinding
	}
	return r.records.CreateRecord(ctx, form.BaseID, form.TableID, answers.Fields())
}

// ReconcileUpdate stamps the responses bound to an edited external record.
// Their status is left alone. Unknown records are ignored; the number of
// matching responses is returned.
func (r *Reconciler) ReconcileUpdate(ctx context.Context, recordID string) (int64, error) {
	unlock := r.locks.Lock("record:" + recordID)
	defer unlock()

	n, err := r.store.TouchRecord(ctx, recordID, r.now())
	if err != nil {
		return 0, errors.Wrapf(err, "reconcile update %s", recordID)
	}
	log.WithFields(log.Fields{"record": recordID, "matched": n}).Debug("record updated upstream")
	return n, nil
}

// ReconcileDelete moves the responses bound to a deleted external record to
// DeletedUpstream, whatever their status. It is idempotent.
func (r *Reconciler) ReconcileDelete(ctx context.Context, recordID string) (int64, error) {
	unlock := r.locks.Lock("record:" + recordID)
	defer unlock()

	n, err := r.store.DeleteRecord(ctx, recordID, r.now())
	if err != nil {
		return 0, errors.Wrapf(err, "reconcile delete %s", recordID)
	}
	log.WithFields(log.Fields{"record": recordID, "matched": n}).Info("record deleted upstream")
	return n, nil
}
