package model

import (
	"maps"
	"slices"
)

// ScoreEntry is one calendar date's snapshot of cumulative scores.
type ScoreEntry struct {
	Date   Date           `json:"date"`
	Scores map[string]int `json:"scores"`
}

// Players returns the entry's player names sorted ascending.
func (e ScoreEntry) Players() []string {
	return slices.Sorted(maps.Keys(e.Scores))
}

// Has reports whether player appears in the entry.
func (e ScoreEntry) Has(player string) bool {
	_, ok := e.Scores[player]
	return ok
}

// Clone returns a deep copy so callers cannot alias stored score maps.
func (e ScoreEntry) Clone() ScoreEntry {
	return ScoreEntry{Date: e.Date, Scores: maps.Clone(e.Scores)}
}

// Equal reports whether both entries carry the same date and scores.
func (e ScoreEntry) Equal(o ScoreEntry) bool {
	return e.Date == o.Date && maps.Equal(e.Scores, o.Scores)
}

// PlayerProfile is decorative metadata about a player.
type PlayerProfile struct {
	Nickname    string `json:"nickname,omitempty"`
	Birthday    string `json:"birthday,omitempty"`
	Age         *int   `json:"age"`
	Description string `json:"description,omitempty"`
}
