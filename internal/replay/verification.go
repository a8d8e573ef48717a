package replay

import (
	"context"
	"fmt"
	"maps"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
)

// verify checks that every accepted entry is stored as sent and that the
// latest view matches the newest of them.
func verify(ctx context.Context, c *client, accepted []model.ScoreEntry) error {
	logger.Get().Info(ctx, "verifying results", logger.Int("accepted", len(accepted)))
	if len(accepted) == 0 {
		return nil
	}

	stored, err := c.scores(ctx)
	if err != nil {
		return err
	}
	byDate := make(map[model.Date]map[string]int, len(stored))
	for _, e := range stored {
		byDate[e.Date] = e.Scores
	}
	for _, want := range accepted {
		got, ok := byDate[want.Date]
		if !ok {
			return fmt.Errorf("entry %s missing from service", want.Date)
		}
		if !maps.Equal(got, want.Scores) {
			return fmt.Errorf("entry %s differs: sent %v, stored %v", want.Date, want.Scores, got)
		}
	}

	latest, err := c.latest(ctx)
	if err != nil {
		return err
	}
	last := accepted[len(accepted)-1]
	if latest.Date == nil || *latest.Date != last.Date {
		return fmt.Errorf("latest date is %v, want %s", latest.Date, last.Date)
	}
	if !maps.Equal(latest.Scores, last.Scores) {
		return fmt.Errorf("latest scores %v, want %v", latest.Scores, last.Scores)
	}
	return nil
}
