package repository

import (
	"context"
	"fmt"
)

// Open returns the store for driver: "memory", "file" or "sqlite".
// path is ignored by the memory driver.
func Open(ctx context.Context, driver, path string) (Store, error) {
	switch driver {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(ctx, path)
	case "sqlite":
		return NewSQLiteStore(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
