// Package repository stores the score ledger: one ScoreEntry per date, kept
// in ascending date order.
package repository

import (
	"context"

	"github.com/okian/tally/internal/domain/model"
)

// Store provides read/write access to the ledger.
//
// Implementations are safe for concurrent use. A Put is never partially
// visible to readers.
type Store interface {
	// Get returns the entry for date, or ErrNotFound.
	Get(ctx context.Context, date model.Date) (model.ScoreEntry, error)

	// Latest returns the most recent entry, or ErrNotFound when the ledger is empty.
	Latest(ctx context.Context) (model.ScoreEntry, error)

	// Previous returns the entry immediately before date, or ErrNotFound.
	Previous(ctx context.Context, date model.Date) (model.ScoreEntry, error)

	// All returns a copy of every entry ordered by date ascending.
	All(ctx context.Context) ([]model.ScoreEntry, error)

	// Put inserts entry. When an entry for the same date exists it is replaced
	// if overwrite is set; otherwise Put returns a *ConflictError and changes
	// nothing. created reports whether the date was new.
	Put(ctx context.Context, entry model.ScoreEntry, overwrite bool) (created bool, err error)

	// Count returns the number of entries.
	Count(ctx context.Context) int

	Close() error
}

func validate(entry model.ScoreEntry) error {
	if entry.Date.IsZero() {
		return ErrInvalidEntry
	}
	return nil
}
