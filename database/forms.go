package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
	"github.com/mbolis/airform-sync/model"
	"github.com/pkg/errors"
)

// CreateForm stores form as version 1 of a new form definition.
func (db *DB) CreateForm(ctx context.Context, form model.Form) (model.Form, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return form, errors.Wrap(err, "new form id")
	}
	form.ID = id.String()
	form.Version = 1
	form.CreatedAt = time.Now().UTC()

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO form (id, version, title, base_id, table_id, owner, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			form.ID,
			form.Version,
			form.Title,
			form.BaseID,
			form.TableID,
			form.Owner,
			form.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "insert form")
		}
		return insertQuestions(ctx, tx, form)
	})
	return form, err
}

// UpdateForm appends a new version of the form. form.Version must be the
// current version, otherwise ErrConflict is returned. Earlier versions are
// kept, as responses refer to them.
func (db *DB) UpdateForm(ctx context.Context, form model.Form) (model.Form, error) {
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE form
			SET
				title = ?,
				base_id = ?,
				table_id = ?,
				version = version+1
			WHERE id = ?
				AND version = ?`,
			form.Title,
			form.BaseID,
			form.TableID,
			form.ID,
			form.Version,
		)
		if err != nil {
			return errors.Wrap(err, "update form")
		}
		// optimistic lock
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "update form")
		}
		if n < 1 {
			var exists bool
			err = tx.QueryRowContext(ctx, `SELECT 1 FROM form WHERE id = ?`, form.ID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return errors.Wrap(err, "update form")
			}
			return ErrConflict
		}

		err = tx.QueryRowContext(ctx, `
			SELECT version, owner, created_at FROM form WHERE id = ?`,
			form.ID,
		).Scan(&form.Version, &form.Owner, &form.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "update form")
		}
		return insertQuestions(ctx, tx, form)
	})
	return form, err
}

func insertQuestions(ctx context.Context, tx *sql.Tx, form model.Form) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO form_question (form_id, version, position, field_id, field_name, field_type, choices, label, required, rule)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "insert questions")
	}
	defer stmt.Close()

	for i, q := range form.Questions {
		var choicesJson, ruleJson []byte
		if len(q.Choices) > 0 {
			choicesJson, err = json.Marshal(q.Choices)
			if err != nil {
				return errors.Wrapf(err, "question %s: choices", q.FieldID)
			}
		}
		if q.Rule != nil {
			ruleJson, err = json.Marshal(q.Rule)
			if err != nil {
				return errors.Wrapf(err, "question %s: rule", q.FieldID)
			}
		}
		_, err = stmt.ExecContext(ctx,
			form.ID, form.Version, i,
			q.FieldID, q.FieldName, q.FieldType, string(choicesJson),
			q.Label, q.Required, string(ruleJson),
		)
		if err != nil {
			return errors.Wrapf(err, "question %s", q.FieldID)
		}
	}
	return nil
}

// GetForm returns the latest version of a form.
func (db *DB) GetForm(ctx context.Context, id string) (model.Form, error) {
	return db.GetFormVersion(ctx, id, 0)
}

// GetFormVersion returns the given version of a form; version 0 is the latest.
func (db *DB) GetFormVersion(ctx context.Context, id string, version int) (model.Form, error) {
	form := model.Form{}
	err := db.QueryRowContext(ctx, `
		SELECT id, version, title, base_id, table_id, owner, created_at
		FROM form
		WHERE id = ?`,
		id,
	).Scan(&form.ID, &form.Version, &form.Title, &form.BaseID, &form.TableID, &form.Owner, &form.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return form, ErrNotFound
	}
	if err != nil {
		return form, errors.Wrap(err, "get form")
	}

	if version != 0 {
		if version > form.Version || version < 1 {
			return form, ErrNotFound
		}
		form.Version = version
	}

	rows, err := db.QueryContext(ctx, `
		SELECT field_id, field_name, field_type, choices, label, required, rule
		FROM form_question
		WHERE form_id = ?
			AND version = ?
		ORDER BY position`,
		form.ID,
		form.Version,
	)
	if err != nil {
		return form, errors.Wrap(err, "get form questions")
	}
	defer rows.Close()

	for rows.Next() {
		q := model.Question{}
		var choices, rule string
		err = rows.Scan(&q.FieldID, &q.FieldName, &q.FieldType, &choices, &q.Label, &q.Required, &rule)
		if err != nil {
			return form, errors.Wrap(err, "get form questions")
		}

		if choices != "" {
			err = json.Unmarshal([]byte(choices), &q.Choices)
			if err != nil {
				return form, errors.Wrapf(err, "question %s: choices", q.FieldID)
			}
		}
		if rule != "" {
			q.Rule = &model.Rule{}
			err = json.Unmarshal([]byte(rule), q.Rule)
			if err != nil {
				return form, errors.Wrapf(err, "question %s: rule", q.FieldID)
			}
		}

		form.Questions = append(form.Questions, q)
	}
	return form, errors.Wrap(rows.Err(), "get form questions")
}

// ListForms returns the latest version of every form, newest first, without
// their questions.
func (db *DB) ListForms(ctx context.Context) ([]model.Form, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, version, title, base_id, table_id, owner, created_at
		FROM form
		ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list forms")
	}
	defer rows.Close()

	forms := []model.Form{}
	for rows.Next() {
		f := model.Form{}
		err = rows.Scan(&f.ID, &f.Version, &f.Title, &f.BaseID, &f.TableID, &f.Owner, &f.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "list forms")
		}
		forms = append(forms, f)
	}
	return forms, errors.Wrap(rows.Err(), "list forms")
}

// DeleteForm removes a form with all its versions. A form that already has
// responses cannot be deleted: ErrConflict is returned.
func (db *DB) DeleteForm(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		var responses int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM response WHERE form_id = ?`,
			id,
		).Scan(&responses)
		if err != nil {
			return errors.Wrap(err, "delete form")
		}
		if responses > 0 {
			return ErrConflict
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM form WHERE id = ?`, id)
		if err != nil {
			return errors.Wrap(err, "delete form")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "delete form")
		}
		if n < 1 {
			return ErrNotFound
		}
		return nil
	})
}
