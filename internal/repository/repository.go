// Package repository defines the persistence contract for accounts.
//
// INTERFACES LIVE WITH THE CONSUMER'S VIEW, NOT THE IMPLEMENTATION:
// The service layer depends on AccountStore; it never imports mongo or
// sqlite. Production wires repository/mongo, local development can wire
// repository/sqlite, and tests wire a hand-written fake.
package repository

import (
	"context"

	"github.com/pGUPT4/news-app/internal/model"
)

// AccountStore persists local accounts and OAuth identities.
//
// Error contract:
//   - lookups that match nothing return an apperror wrapping ErrNotFound
//   - Insert of a taken username returns an apperror wrapping ErrConflict
//
// Username uniqueness is enforced by the store itself (a unique index), so
// two concurrent registrations of the same name cannot both succeed.
type AccountStore interface {
	// Insert creates a local account. It sets ID, CreatedAt and UpdatedAt.
	Insert(ctx context.Context, user *model.User) error

	// UpsertBySubject creates or refreshes the OAuth identity keyed by
	// user.Subject. On return user carries the stored ID and timestamps.
	UpsertBySubject(ctx context.Context, user *model.User) error

	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindBySubject(ctx context.Context, subject string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)

	Close(ctx context.Context) error
}
