package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mbolis/airform-sync/model"
	"github.com/pkg/errors"
)

// answers are stored tagged with the field type they were captured for
type storedAnswer struct {
	Type  model.FieldType `json:"type"`
	Value json.RawMessage `json:"value"`
}

func encodeAnswers(answers model.Answers) (string, error) {
	stored := make(map[string]storedAnswer, len(answers))
	for id, a := range answers {
		value, err := json.Marshal(a)
		if err != nil {
			return "", err
		}
		stored[id] = storedAnswer{a.Type, value}
	}
	b, err := json.Marshal(stored)
	return string(b), err
}

func decodeAnswers(s string) (model.Answers, error) {
	stored := map[string]storedAnswer{}
	err := json.Unmarshal([]byte(s), &stored)
	if err != nil {
		return nil, err
	}
	answers := make(model.Answers, len(stored))
	for id, sa := range stored {
		a, err := model.ParseAnswer(sa.Type, sa.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "answer %s", id)
		}
		answers[id] = a
	}
	return answers, nil
}

// InsertResponse durably records a new response, normally still Pending.
func (db *DB) InsertResponse(ctx context.Context, r model.Response) error {
	answers, err := encodeAnswers(r.Answers)
	if err != nil {
		return errors.Wrap(err, "insert response: answers")
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO response (id, form_id, form_version, answers, sync_status, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.FormID,
		r.FormVersion,
		answers,
		r.Status,
		r.CapturedAt.UTC(),
	)
	return errors.Wrap(err, "insert response")
}

// ResolveSynced moves a Pending response to Synced with the id of the record
// created for it. If the record was already reported deleted upstream, the
// response lands in DeletedUpstream instead. The resulting status is returned.
func (db *DB) ResolveSynced(ctx context.Context, responseID, recordID string, at time.Time) (status model.SyncStatus, err error) {
	err = db.inTx(ctx, func(tx *sql.Tx) error {
		var deleted bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM upstream_tombstone WHERE record_id = ?)`,
			recordID,
		).Scan(&deleted)
		if err != nil {
			return errors.Wrap(err, "resolve synced: tombstone")
		}

		status = model.Synced
		if deleted {
			status = model.DeletedUpstream
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE response
			SET
				sync_status = ?,
				external_record_id = ?,
				sync_error = '',
				last_synced_at = ?
			WHERE id = ?
				AND sync_status = ?`,
			status,
			recordID,
			at.UTC(),
			responseID,
			model.Pending,
		)
		if err != nil {
			return errors.Wrap(err, "resolve synced")
		}
		status, err = resolvedStatus(ctx, tx, res, responseID, status)
		return err
	})
	return
}

// ResolveFailed moves a Pending response to SyncFailed.
func (db *DB) ResolveFailed(ctx context.Context, responseID, reason string, at time.Time) (status model.SyncStatus, err error) {
	err = db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE response
			SET
				sync_status = ?,
				sync_error = ?,
				last_synced_at = ?
			WHERE id = ?
				AND sync_status = ?`,
			model.SyncFailed,
			reason,
			at.UTC(),
			responseID,
			model.Pending,
		)
		if err != nil {
			return errors.Wrap(err, "resolve failed")
		}
		status, err = resolvedStatus(ctx, tx, res, responseID, model.SyncFailed)
		return err
	})
	return
}

// resolvedStatus returns want if the update applied, or the status the
// response already had if it was no longer Pending.
func resolvedStatus(ctx context.Context, tx *sql.Tx, res sql.Result, responseID string, want model.SyncStatus) (model.SyncStatus, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return "", errors.Wrap(err, "resolve")
	}
	if n > 0 {
		return want, nil
	}

	var current model.SyncStatus
	err = tx.QueryRowContext(ctx, `SELECT sync_status FROM response WHERE id = ?`, responseID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return current, errors.Wrap(err, "resolve")
}

// TouchRecord stamps the last sync time of the responses bound to an external
// record, leaving their status alone. It returns how many responses matched.
func (db *DB) TouchRecord(ctx context.Context, recordID string, at time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE response
		SET last_synced_at = ?
		WHERE external_record_id = ?`,
		at.UTC(),
		recordID,
	)
	if err != nil {
		return 0, errors.Wrap(err, "touch record")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "touch record")
}

// DeleteRecord marks the responses bound to an external record as
// DeletedUpstream and remembers the deletion, so that a response whose
// create call is still in flight resolves to DeletedUpstream as well.
func (db *DB) DeleteRecord(ctx context.Context, recordID string, at time.Time) (n int64, err error) {
	err = db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO upstream_tombstone (record_id, deleted_at) VALUES (?, ?)
			ON CONFLICT (record_id) DO NOTHING`,
			recordID,
			at.UTC(),
		)
		if err != nil {
			return errors.Wrap(err, "delete record: tombstone")
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE response
			SET
				sync_status = ?,
				last_synced_at = ?
			WHERE external_record_id = ?`,
			model.DeletedUpstream,
			at.UTC(),
			recordID,
		)
		if err != nil {
			return errors.Wrap(err, "delete record")
		}
		n, err = res.RowsAffected()
		return errors.Wrap(err, "delete record")
	})
	return
}

// PruneTombstones forgets upstream deletions older than before.
func (db *DB) PruneTombstones(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM upstream_tombstone WHERE deleted_at < ?`,
		before.UTC(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "prune tombstones")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "prune tombstones")
}

const selectResponse = `
	SELECT id, form_id, form_version, answers, sync_status, external_record_id, sync_error, captured_at, last_synced_at
	FROM response`

func scanResponse(row interface{ Scan(...any) error }) (model.Response, error) {
	r := model.Response{}
	var answers string
	var recordID sql.NullString
	var lastSynced sql.NullTime
	err := row.Scan(&r.ID, &r.FormID, &r.FormVersion, &answers, &r.Status, &recordID, &r.SyncError, &r.CapturedAt, &lastSynced)
	if err != nil {
		return r, err
	}

	r.Answers, err = decodeAnswers(answers)
	if err != nil {
		return r, errors.Wrapf(err, "response %s", r.ID)
	}
	r.RecordID = recordID.String
	if lastSynced.Valid {
		r.LastSyncedAt = &lastSynced.Time
	}
	return r, nil
}

func (db *DB) GetResponse(ctx context.Context, id string) (model.Response, error) {
	r, err := scanResponse(db.QueryRowContext(ctx, selectResponse+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, errors.Wrap(err, "get response")
}

// ListResponses returns every response to a form, most recent first.
func (db *DB) ListResponses(ctx context.Context, formID string) ([]model.Response, error) {
	return db.queryResponses(ctx, selectResponse+`
		WHERE form_id = ?
		ORDER BY captured_at DESC, rowid DESC`,
		formID,
	)
}

// ListPending returns the responses captured before olderThan that are still
// Pending: their create call never completed.
func (db *DB) ListPending(ctx context.Context, olderThan time.Time) ([]model.Response, error) {
	return db.queryResponses(ctx, selectResponse+`
		WHERE sync_status = ?
			AND captured_at < ?
		ORDER BY captured_at DESC, rowid DESC`,
		model.Pending,
		olderThan.UTC(),
	)
}

func (db *DB) queryResponses(ctx context.Context, query string, args ...any) ([]model.Response, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query responses")
	}
	defer rows.Close()

	responses := []model.Response{}
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, errors.Wrap(err, "query responses")
		}
		responses = append(responses, r)
	}
	return responses, errors.Wrap(rows.Err(), "query responses")
}
