// Package replay drives a running tally service with a ledger history and
// verifies what the service reports back.
package replay

import (
	"time"

	"github.com/okian/tally/internal/domain/model"
)

// Config holds configuration for a replay run.
type Config struct {
	BaseURL string        // Base URL of the service
	APIKey  string        // Key sent as X-API-Key
	Input   string        // Ledger file to replay; empty generates a history
	Output  string        // File the replayed history is saved to; empty skips saving
	Force   bool          // Overwrite entries that already exist
	Timeout time.Duration // HTTP request timeout
	Verbose bool          // Log every submission

	Generate GenerateConfig
}

// GenerateConfig shapes a generated history.
type GenerateConfig struct {
	Start   model.Date // First entry date
	Days    int        // Number of entries
	Players int        // Players at the start
	Joiners int        // Players who join part way through
	Gains   []int      // Legal daily gains
	Seed    uint64     // Faker seed; equal seeds give equal histories
}

// Stats holds replay statistics.
type Stats struct {
	Entries       int
	Accepted      int
	Confirmations int
	Rejected      int
	Failed        int
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}

// ledgerFile is the on-disk history layout shared with the file store.
type ledgerFile struct {
	Entries []model.ScoreEntry `json:"entries"`
}
