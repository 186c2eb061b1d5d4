package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/pGUPT4/news-app/internal/apperror"
	"github.com/pGUPT4/news-app/internal/model"
	"github.com/pGUPT4/news-app/internal/repository"
)

// compile-time check that *DB implements repository.AccountStore
var _ repository.AccountStore = (*DB)(nil)

const userColumns = `id, username, password_hash, sub, email, name, created_at, updated_at`

// Insert creates a local account.
//
// There is no SELECT-then-INSERT: the UNIQUE constraint on username is the
// only check, so two concurrent registrations of one name resolve to one
// row and one Conflict.
func (db *DB) Insert(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		nullable(user.Username),
		user.PasswordHash,
		nullable(user.Subject),
		user.Email,
		user.Name,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("username", user.Username)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}
	return nil
}

// UpsertBySubject inserts the identity or refreshes email and name on the
// existing row. ON CONFLICT(sub) keeps the row's id and created_at, so the
// account id is stable across logins.
func (db *DB) UpsertBySubject(ctx context.Context, user *model.User) error {
	if user.Subject == "" {
		return apperror.ValidationFailed("sub", "subject is required")
	}

	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, sub, email, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(sub) DO UPDATE SET
			email      = excluded.email,
			name       = excluded.name,
			updated_at = excluded.updated_at`,
		xid.New().String(),
		user.Subject,
		user.Email,
		user.Name,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user sub=%s: %w", user.Subject, err)
	}

	// Read the canonical row back for the id and timestamps.
	stored, err := db.FindBySubject(ctx, user.Subject)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// FindByUsername returns the local account with that username.
func (db *DB) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.findOne(ctx, "username", username)
}

// FindBySubject returns the OAuth identity with that subject.
func (db *DB) FindBySubject(ctx context.Context, subject string) (*model.User, error) {
	return db.findOne(ctx, "sub", subject)
}

// GetByID returns the account with that internal id.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.findOne(ctx, "id", id)
}

// findOne runs a single-row lookup on column. column is always one of the
// literals above, never user input.
func (db *DB) findOne(ctx context.Context, column, value string) (*model.User, error) {
	var (
		u        model.User
		username sql.NullString
		sub      sql.NullString
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`,
		value,
	).Scan(
		&u.ID,
		&username,
		&u.PasswordHash,
		&sub,
		&u.Email,
		&u.Name,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}

	u.Username = username.String
	u.Subject = sub.String
	return &u, nil
}
