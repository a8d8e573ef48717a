package repository

import "github.com/okian/tally/internal/domain/model"

// Option applies a configuration option to a MemoryStore.
type Option func(*MemoryStore)

// WithEntries seeds the store. Later entries win on duplicate dates.
func WithEntries(entries ...model.ScoreEntry) Option {
	return func(s *MemoryStore) {
		for _, e := range entries {
			if e.Date.IsZero() {
				continue
			}
			s.entries, _ = insertSorted(s.entries, e.Clone())
		}
	}
}

// withDriver sets the driver label used in metrics.
func withDriver(name string) Option {
	return func(s *MemoryStore) {
		s.driver = name
	}
}

// withCommitHook installs a function that must succeed before a Put becomes
// visible. It runs under the write lock with the candidate ledger.
func withCommitHook(fn func([]model.ScoreEntry) error) Option {
	return func(s *MemoryStore) {
		s.commit = fn
	}
}
