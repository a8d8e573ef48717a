package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/metrics"
)

// MemoryStore keeps the ledger in a date-sorted slice guarded by a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []model.ScoreEntry

	driver string
	commit func([]model.ScoreEntry) error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{driver: "memory"}
	for _, opt := range opts {
		opt(s)
	}
	metrics.UpdateLedgerEntries(len(s.entries))
	return s
}

func (s *MemoryStore) observe(op string, start time.Time) {
	metrics.RecordStoreLatency(s.driver, op, float64(time.Since(start).Microseconds())/1000)
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, date model.Date) (model.ScoreEntry, error) {
	defer s.observe("get", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := search(s.entries, date)
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.ScoreEntry{}, ErrNotFound
	}
	return s.entries[i].Clone(), nil
}

// Latest implements Store.Latest.
func (s *MemoryStore) Latest(_ context.Context) (model.ScoreEntry, error) {
	defer s.observe("latest", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return model.ScoreEntry{}, ErrNotFound
	}
	return s.entries[len(s.entries)-1].Clone(), nil
}

// Previous implements Store.Previous.
func (s *MemoryStore) Previous(_ context.Context, date model.Date) (model.ScoreEntry, error) {
	defer s.observe("previous", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	// search returns the insertion point when date is absent, so i-1 is the
	// predecessor in both cases.
	i, _ := search(s.entries, date)
	if i == 0 {
		return model.ScoreEntry{}, ErrNotFound
	}
	return s.entries[i-1].Clone(), nil
}

// All implements Store.All.
func (s *MemoryStore) All(_ context.Context) ([]model.ScoreEntry, error) {
	defer s.observe("all", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ScoreEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out, nil
}

// Put implements Store.Put.
func (s *MemoryStore) Put(_ context.Context, entry model.ScoreEntry, overwrite bool) (bool, error) {
	defer s.observe("put", time.Now())

	if err := validate(entry); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := search(s.entries, entry.Date); exists && !overwrite {
		return false, &ConflictError{Date: entry.Date}
	}

	next, created := insertSorted(slices.Clone(s.entries), entry.Clone())
	if s.commit != nil {
		if err := s.commit(next); err != nil {
			metrics.RecordErrorByComponent("repository", "commit_failed")
			return false, err
		}
	}
	s.entries = next

	if created {
		metrics.UpdateLedgerEntries(len(s.entries))
	}
	return created, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close implements Store.Close.
func (s *MemoryStore) Close() error { return nil }

// search finds date in a sorted ledger. When absent, i is the insertion point.
func search(entries []model.ScoreEntry, date model.Date) (int, bool) {
	return slices.BinarySearchFunc(entries, date, func(e model.ScoreEntry, d model.Date) int {
		return e.Date.Compare(d)
	})
}

// insertSorted places e at its date position, replacing any entry with the
// same date.
func insertSorted(entries []model.ScoreEntry, e model.ScoreEntry) ([]model.ScoreEntry, bool) {
	i, ok := search(entries, e.Date)
	if ok {
		entries[i] = e
		return entries, false
	}
	return slices.Insert(entries, i, e), true
}
