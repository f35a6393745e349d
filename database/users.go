package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// EnsureUser creates the account if no user with that name exists yet. It
// reports whether the account was created.
func (db *DB) EnsureUser(ctx context.Context, username, password string, roles ...string) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, errors.Wrap(err, "ensure user: hash")
	}
	if len(roles) == 0 {
		roles = []string{"admin"}
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO user (username, password_hash, roles) VALUES (?, ?, ?)
		ON CONFLICT (username) DO NOTHING`,
		username,
		hash,
		strings.Join(roles, ","),
	)
	if err != nil {
		return false, errors.Wrap(err, "ensure user")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "ensure user")
}

func (db *DB) VerifyPassword(ctx context.Context, username, password string) error {
	var hash []byte
	err := db.QueryRowContext(ctx, `
		SELECT password_hash FROM user WHERE username = ?`,
		username,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "verify password")
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}

func (db *DB) UserRoles(ctx context.Context, username string) ([]string, error) {
	var roles string
	err := db.QueryRowContext(ctx, `
		SELECT roles FROM user WHERE username = ?`,
		username,
	).Scan(&roles)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "user roles")
	}
	return strings.Split(roles, ","), nil
}

func (db *DB) StoreToken(ctx context.Context, username, tokenID, refreshTokenID string, expiration time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO token (username, token_id, refresh_token_id, expiration) VALUES (?, ?, ?, ?)`,
		username,
		tokenID,
		refreshTokenID,
		expiration.UTC(),
	)
	return errors.Wrap(err, "store token")
}

// ConsumeToken deletes a refresh token and fails if it did not exist or had
// already expired.
func (db *DB) ConsumeToken(ctx context.Context, username, tokenID, refreshTokenID string) error {
	var expiration time.Time
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT expiration FROM token
			WHERE username = ?
				AND token_id = ?
				AND refresh_token_id = ?`,
			username,
			tokenID,
			refreshTokenID,
		).Scan(&expiration)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "consume token")
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM token
			WHERE username = ?
				AND token_id = ?
				AND refresh_token_id = ?`,
			username,
			tokenID,
			refreshTokenID,
		)
		if err != nil {
			return errors.Wrap(err, "consume token")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if expiration.Before(time.Now()) {
		return errors.New("token expired")
	}
	return nil
}
