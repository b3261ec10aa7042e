// Package store persists provisioned loyalty accounts.
package store

import (
	"context"
	"errors"

	"promobot/internal/domain"
)

// ErrNotFound is returned when no account exists under the requested title.
var ErrNotFound = errors.New("account not found")

// AccountStore is the persistence interface for provisioned accounts.
// Accounts are keyed by their operator-chosen title.
type AccountStore interface {
	// Put inserts or atomically replaces the record stored under
	// record.Title. A second onboarding for the same title overwrites the
	// previous credentials.
	Put(ctx context.Context, record domain.AccountRecord) error

	// Get returns the record stored under title, or ErrNotFound.
	Get(ctx context.Context, title string) (domain.AccountRecord, error)

	// Delete removes and returns the record stored under title, or
	// ErrNotFound if nothing was stored.
	Delete(ctx context.Context, title string) (domain.AccountRecord, error)

	// Rename moves the record from oldTitle to newTitle. Returns
	// ErrNotFound when oldTitle does not exist.
	Rename(ctx context.Context, oldTitle, newTitle string) error

	// List returns all records ordered by title.
	List(ctx context.Context) ([]domain.AccountRecord, error)

	// Close releases the underlying storage.
	Close() error
}
