package repository

import (
	"context"

	"ctrlauth/internal/model"
)

// Namespace is the fixed store namespace user records live under.
const Namespace = "kytos.core.auth.users"

// UserRepository is the credential store. Records are keyed by username.
// Implementations must be safe for concurrent use and must make Insert
// atomic: of two concurrent inserts of one username exactly one succeeds.
type UserRepository interface {
	// Get returns errors.ErrUserNotFound when username is absent.
	Get(ctx context.Context, username string) (*model.User, error)
	// Insert adds a new record and fails with errors.ErrUserAlreadyExists if the key is taken.
	Insert(ctx context.Context, user *model.User) error
	// Update overwrites an existing record and fails with errors.ErrUserNotFound if absent.
	Update(ctx context.Context, user *model.User) error
	// Delete removes a record and fails with errors.ErrUserNotFound if absent.
	Delete(ctx context.Context, username string) error
	// List returns every record in store-defined order.
	List(ctx context.Context) ([]model.User, error)
	// Close releases backend resources.
	Close() error
}
