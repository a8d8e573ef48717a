package replay

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
)

// DefaultGains are the daily gains the challenge allows.
var DefaultGains = []int{0, 1, 2, 4} //nolint:gochecknoglobals // read-only default

// Generate builds a plausible ledger history. Scores never decrease, every
// gain is taken from cfg.Gains and joiners start on a random later day with
// a score in line with the field.
func Generate(ctx context.Context, cfg GenerateConfig) ([]model.ScoreEntry, error) {
	switch {
	case cfg.Days <= 0:
		return nil, fmt.Errorf("days must be positive, got %d", cfg.Days)
	case cfg.Players <= 0:
		return nil, fmt.Errorf("players must be positive, got %d", cfg.Players)
	case cfg.Start.IsZero():
		return nil, fmt.Errorf("start date is required")
	}
	gains := cfg.Gains
	if len(gains) == 0 {
		gains = DefaultGains
	}

	faker := gofakeit.New(cfg.Seed)
	names := uniqueNames(faker, cfg.Players+cfg.Joiners)

	joinDay := make(map[string]int, len(names))
	for i, name := range names {
		if i >= cfg.Players && cfg.Days > 1 {
			joinDay[name] = faker.Number(1, cfg.Days-1)
		}
	}

	logger.Get().Info(ctx, "generating history",
		logger.Int("days", cfg.Days),
		logger.Int("players", cfg.Players),
		logger.Int("joiners", cfg.Joiners),
		logger.String("start", cfg.Start.String()),
	)

	current := make(map[string]int, len(names))
	entries := make([]model.ScoreEntry, 0, cfg.Days)
	for day := 0; day < cfg.Days; day++ {
		scores := make(map[string]int, len(names))
		for _, name := range names {
			if joinDay[name] > day {
				continue
			}
			score, seen := current[name]
			switch {
			case !seen && day > 0:
				score = faker.Number(0, day*maxGain(gains))
			default:
				score += faker.RandomInt(gains)
			}
			current[name] = score
			scores[name] = score
		}
		entries = append(entries, model.ScoreEntry{Date: cfg.Start.AddDays(day), Scores: scores})
	}
	return entries, nil
}

func uniqueNames(faker *gofakeit.Faker, n int) []string {
	seen := make(map[string]bool, n)
	out := make([]string, 0, n)
	for len(out) < n {
		name := faker.FirstName()
		if seen[name] {
			name = fmt.Sprintf("%s %s", name, faker.LetterN(1))
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func maxGain(gains []int) int {
	best := 0
	for _, g := range gains {
		best = max(best, g)
	}
	return best
}
