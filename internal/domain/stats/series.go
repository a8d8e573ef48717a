package stats

import (
	"maps"
	"slices"

	"github.com/okian/tally/internal/domain/model"
)

// Point is a cumulative score on a date.
type Point struct {
	Date  model.Date `json:"date"`
	Score int        `json:"score"`
}

// PlayerSeries is the chart line for one player.
type PlayerSeries struct {
	Player string  `json:"player"`
	Points []Point `json:"points"`
	// Active is false when the player is missing from the latest entry.
	Active bool `json:"active"`
}

// Series returns one line per player ever seen, by name. Dates a player is
// absent from are left out rather than filled.
func Series(entries []model.ScoreEntry) []PlayerSeries {
	byPlayer := make(map[string][]Point)
	for _, e := range entries {
		for player, score := range e.Scores {
			byPlayer[player] = append(byPlayer[player], Point{Date: e.Date, Score: score})
		}
	}
	out := make([]PlayerSeries, 0, len(byPlayer))
	for _, player := range slices.Sorted(maps.Keys(byPlayer)) {
		out = append(out, PlayerSeries{
			Player: player,
			Points: byPlayer[player],
			Active: entries[len(entries)-1].Has(player),
		})
	}
	return out
}
