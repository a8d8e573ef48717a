// Package rules holds the challenge rules a parsed daily entry must satisfy
// before it is written to the ledger.
package rules

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/okian/tally/internal/domain/model"
)

// ErrRuleViolation is matched by every *ViolationError.
var ErrRuleViolation = errors.New("entry violates challenge rules")

// ViolationError lists every broken rule for one entry.
type ViolationError struct {
	Reasons []string
}

func (e *ViolationError) Error() string {
	return strings.Join(e.Reasons, "; ")
}

// Is reports a match against ErrRuleViolation.
func (e *ViolationError) Is(target error) bool { return target == ErrRuleViolation }

// Config toggles individual rules.
type Config struct {
	// MaxEntryAgeDays bounds how far before today an entry may be dated.
	// Negative disables the date window.
	MaxEntryAgeDays int
	// NoBackfill rejects entries dated before the latest ledger entry.
	NoBackfill bool
	// NonDecreasing rejects a player's score dropping below the baseline.
	NonDecreasing bool
	// AllowedGains, when non-empty, is the set of legal daily gains.
	AllowedGains []int
}

// Context is the ledger state an entry is checked against.
type Context struct {
	Today model.Date
	// Latest is the most recent ledger entry, nil for an empty ledger.
	Latest *model.ScoreEntry
	// BeforeLatest is the entry preceding Latest, nil when absent.
	BeforeLatest *model.ScoreEntry
}

// Check returns a *ViolationError when entry breaks any configured rule.
func (c Config) Check(entry model.ScoreEntry, ctx Context) error {
	var reasons []string

	if c.MaxEntryAgeDays >= 0 {
		switch age := entry.Date.DaysUntil(ctx.Today); {
		case age < 0:
			reasons = append(reasons, fmt.Sprintf("date %s is in the future", entry.Date))
		case age > c.MaxEntryAgeDays:
			reasons = append(reasons, fmt.Sprintf("date %s is too old; only the last %d day(s) are allowed", entry.Date, c.MaxEntryAgeDays+1))
		}
	}

	if c.NoBackfill && ctx.Latest != nil && entry.Date.Before(ctx.Latest.Date) {
		reasons = append(reasons, fmt.Sprintf("cannot add entry for %s; latest entry is %s", entry.Date, ctx.Latest.Date))
	}

	if baseline := baselineFor(entry, ctx); baseline != nil {
		var decreased, illegal []string
		for _, player := range entry.Players() {
			prev, ok := baseline.Scores[player]
			if !ok {
				continue
			}
			gain := entry.Scores[player] - prev
			switch {
			case c.NonDecreasing && gain < 0:
				decreased = append(decreased, fmt.Sprintf("%s: %d -> %d", player, prev, entry.Scores[player]))
			case len(c.AllowedGains) > 0 && gain >= 0 && !slices.Contains(c.AllowedGains, gain):
				illegal = append(illegal, fmt.Sprintf("%s: +%d", player, gain))
			}
		}
		if len(decreased) > 0 {
			reasons = append(reasons, "scores cannot decrease: "+strings.Join(decreased, ", "))
		}
		if len(illegal) > 0 {
			reasons = append(reasons, fmt.Sprintf("invalid daily gains: %s (allowed %v)", strings.Join(illegal, ", "), c.AllowedGains))
		}
	}

	if len(reasons) > 0 {
		return &ViolationError{Reasons: reasons}
	}
	return nil
}

// baselineFor is the entry gains are measured against: the latest entry, or
// the one before it when entry re-states the latest date.
func baselineFor(entry model.ScoreEntry, ctx Context) *model.ScoreEntry {
	if ctx.Latest == nil {
		return nil
	}
	if entry.Date == ctx.Latest.Date {
		return ctx.BeforeLatest
	}
	if entry.Date.Before(ctx.Latest.Date) {
		return nil
	}
	return ctx.Latest
}
