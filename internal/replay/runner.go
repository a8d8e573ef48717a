package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Run replays a ledger history against the service at cfg.BaseURL and
// verifies that the service ends up holding it.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("input", cfg.Input),
		logger.Bool("force", cfg.Force),
		logger.Duration("timeout", cfg.Timeout),
	)

	c := newClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)

	// Step 1: the service must be up
	if err := c.health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: load or generate the history
	entries, err := loadEntries(ctx, cfg)
	if err != nil {
		return stats, fmt.Errorf("history load failed: %w", err)
	}
	stats.Entries = len(entries)

	// Step 3: submit in date order
	accepted, err := submitEntries(ctx, c, cfg, entries, stats)
	if err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}

	// Step 4: read back and compare
	if err := verify(ctx, c, accepted); err != nil {
		return stats, fmt.Errorf("verification failed: %w", err)
	}

	// Step 5: keep the history around
	if cfg.Output != "" {
		if err := Save(cfg.Output, entries); err != nil {
			log.Warn(ctx, "failed to save history", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "replay completed",
		logger.Int("entries", stats.Entries),
		logger.Int("accepted", stats.Accepted),
		logger.Int("confirmations", stats.Confirmations),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func loadEntries(ctx context.Context, cfg Config) ([]model.ScoreEntry, error) {
	var (
		entries []model.ScoreEntry
		err     error
	)
	if cfg.Input != "" {
		entries, err = Load(cfg.Input)
	} else {
		entries, err = Generate(ctx, cfg.Generate)
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries to replay")
	}
	slices.SortFunc(entries, func(a, b model.ScoreEntry) int { return a.Date.Compare(b.Date) })
	return entries, nil
}

// submitEntries posts every entry and returns the ones the service stored.
// Transport failures abort the run; rejections are counted and skipped.
func submitEntries(ctx context.Context, c *client, cfg Config, entries []model.ScoreEntry, stats *Stats) ([]model.ScoreEntry, error) {
	log := logger.Get()
	accepted := make([]model.ScoreEntry, 0, len(entries))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return accepted, err
		}

		result, detail, err := c.submit(ctx, Format(entry), cfg.Force)
		if err != nil {
			stats.Failed++
			return accepted, fmt.Errorf("submit %s: %w", entry.Date, err)
		}

		switch result {
		case resultAccepted:
			stats.Accepted++
			accepted = append(accepted, entry)
		case resultConfirmation:
			stats.Confirmations++
		default:
			stats.Rejected++
			log.Warn(ctx, "entry rejected", logger.String("date", entry.Date.String()), logger.String("reason", detail))
			continue
		}

		if cfg.Verbose {
			log.Info(ctx, "entry submitted",
				logger.String("date", entry.Date.String()),
				logger.String("result", result),
				logger.String("message", detail),
			)
		}
	}
	return accepted, nil
}

// Load reads a history saved by Save or by the file store.
func Load(path string) ([]model.ScoreEntry, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var file ledgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return file.Entries, nil
}

// Save writes entries in the file store layout.
func Save(path string, entries []model.ScoreEntry) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(ledgerFile{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
