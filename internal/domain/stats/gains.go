// Package stats derives read views from a ledger snapshot: daily gains,
// rankings, streaks and the fun stats shown on the dashboard.
//
// Every function is pure over its []model.ScoreEntry argument, which must be
// sorted by ascending date. Nothing here returns an error for missing data;
// short histories yield empty results.
//
// A player's first appearance in the ledger is a welcome event rather than a
// numeric gain. It carries Gain{New: true} and is skipped by every
// gain-based statistic.
package stats

import (
	"slices"

	"github.com/okian/tally/internal/domain/model"
)

// Gain is a player's change in cumulative score at one entry.
type Gain struct {
	Value int  `json:"value"`
	New   bool `json:"new,omitempty"`
}

// Counts reports whether g is a numeric gain usable by statistics.
func (g Gain) Counts() bool { return !g.New }

// timeline caches per-entry gains for a snapshot.
type timeline struct {
	entries []model.ScoreEntry
	gains   []map[string]Gain
}

func newTimeline(entries []model.ScoreEntry) *timeline {
	t := &timeline{entries: entries, gains: make([]map[string]Gain, len(entries))}
	seen := make(map[string]bool)
	for i, e := range entries {
		g := make(map[string]Gain, len(e.Scores))
		for player, score := range e.Scores {
			if !seen[player] {
				g[player] = Gain{New: true}
				continue
			}
			// Absent from the previous entry means a zero baseline; missing
			// dates are never interpolated.
			g[player] = Gain{Value: score - entries[i-1].Scores[player]}
		}
		for player := range e.Scores {
			seen[player] = true
		}
		t.gains[i] = g
	}
	return t
}

func (t *timeline) last() int { return len(t.entries) - 1 }

func (t *timeline) latest() model.ScoreEntry { return t.entries[t.last()] }

// gain returns the player's gain at entry i; ok is false when the player is
// absent from that entry.
func (t *timeline) gain(i int, player string) (Gain, bool) {
	g, ok := t.gains[i][player]
	return g, ok
}

// AllGains returns the gains of every entry, indexed like entries.
func AllGains(entries []model.ScoreEntry) []map[string]Gain {
	return newTimeline(entries).gains
}

// DailyGains returns the gain of every player present in entries[i].
func DailyGains(entries []model.ScoreEntry, i int) map[string]Gain {
	if i < 0 || i >= len(entries) {
		return map[string]Gain{}
	}
	return newTimeline(entries[:i+1]).gains[i]
}

// NewPlayers returns, sorted, the players in entries[i] that appear in no
// earlier entry.
func NewPlayers(entries []model.ScoreEntry, i int) []string {
	var out []string
	gains := DailyGains(entries, i)
	if len(gains) == 0 {
		return out
	}
	for _, player := range entries[i].Players() {
		if gains[player].New {
			out = append(out, player)
		}
	}
	return out
}

// LatestView is the most recent entry with its gains flattened for display.
type LatestView struct {
	Date       *model.Date    `json:"date"`
	Scores     map[string]int `json:"scores"`
	DailyGains map[string]int `json:"daily_gains"`
	NewPlayers []string       `json:"new_players"`
}

// Latest builds the view of the last entry. Welcome events show a zero gain
// and are listed in NewPlayers.
func Latest(entries []model.ScoreEntry) LatestView {
	view := LatestView{
		Scores:     map[string]int{},
		DailyGains: map[string]int{},
		NewPlayers: []string{},
	}
	if len(entries) == 0 {
		return view
	}
	last := len(entries) - 1
	latest := entries[last].Clone()
	view.Date = &latest.Date
	view.Scores = latest.Scores
	for player, g := range DailyGains(entries, last) {
		view.DailyGains[player] = g.Value
		if g.New {
			view.NewPlayers = append(view.NewPlayers, player)
		}
	}
	slices.Sort(view.NewPlayers)
	return view
}
