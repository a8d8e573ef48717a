package repository

import (
	"errors"
	"fmt"

	"github.com/okian/tally/internal/domain/model"
)

// Sentinel kinds for ledger store errors.
var (
	ErrNotFound      = errors.New("entry not found")
	ErrConflict      = errors.New("entry already exists")
	ErrInvalidEntry  = errors.New("invalid entry")
	ErrCorrupt       = errors.New("ledger data is corrupt")
	ErrUnknownDriver = errors.New("unknown store driver")
)

// ConflictError reports that Put found an entry for Date and was not allowed
// to overwrite it.
type ConflictError struct {
	Date model.Date
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("entry for %s already exists", e.Date)
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
