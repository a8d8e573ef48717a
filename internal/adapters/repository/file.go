package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/okian/tally/internal/domain/model"
)

// fileLayout is the on-disk document: {"entries": [...]}.
type fileLayout struct {
	Entries []model.ScoreEntry `json:"entries"`
}

// FileStore is a MemoryStore that persists every Put to a JSON file.
// The file is replaced atomically, so a crash leaves either the old or the
// new ledger on disk.
type FileStore struct {
	*MemoryStore
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore loads path (a missing file is an empty ledger) and returns a
// store that rewrites it on every successful Put.
func NewFileStore(_ context.Context, path string, opts ...Option) (*FileStore, error) {
	entries, err := readLedgerFile(path)
	if err != nil {
		return nil, err
	}

	store := &FileStore{path: path}
	opts = append([]Option{WithEntries(entries...)}, opts...)
	opts = append(opts, withDriver("file"), withCommitHook(store.write))
	store.MemoryStore = NewMemoryStore(opts...)
	return store, nil
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

func readLedgerFile(path string) ([]model.ScoreEntry, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	if len(b) == 0 {
		return nil, nil
	}

	var doc fileLayout
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	seen := make(map[model.Date]bool, len(doc.Entries))
	for _, e := range doc.Entries {
		if e.Date.IsZero() {
			return nil, fmt.Errorf("%w: %s: entry without date", ErrCorrupt, path)
		}
		if seen[e.Date] {
			return nil, fmt.Errorf("%w: %s: duplicate date %s", ErrCorrupt, path, e.Date)
		}
		seen[e.Date] = true
	}
	return doc.Entries, nil
}

// write replaces the ledger file with entries via a temp file and rename.
func (f *FileStore) write(entries []model.ScoreEntry) error {
	b, err := json.MarshalIndent(fileLayout{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}
