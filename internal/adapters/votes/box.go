// Package votes runs a single configured ballot: every voter code may vote
// once for one of the ballot's choices.
package votes

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tally/pkg/metrics"
)

// Choice is one option on the ballot.
type Choice struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Ballot is the configured vote.
type Ballot struct {
	Title   string
	Active  bool
	Choices []Choice
	// Codes maps a voter code to the voter's display name.
	Codes map[string]string
}

// Receipt acknowledges an accepted vote.
type Receipt struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Choice string    `json:"choice"`
	CastAt time.Time `json:"cast_at"`
}

// Status is the public view of the ballot.
type Status struct {
	Title       string         `json:"title"`
	IsActive    bool           `json:"is_active"`
	Options     []Choice       `json:"options"`
	VoteCounts  map[string]int `json:"vote_counts"`
	VotesCast   int            `json:"votes_cast"`
	TotalVoters int            `json:"total_voters"`
	// Voters lists who has voted, never what they chose.
	Voters []string `json:"voters"`
	// Winner is the label of the single leading choice once every code has
	// voted; empty on a tie or while voting is open.
	Winner string `json:"winner,omitempty"`
}

// Box holds the ballot and the votes cast so far. Votes live in memory.
type Box struct {
	mu     sync.RWMutex
	ballot Ballot
	cast   map[string]Receipt // by code
	now    func() time.Time
}

// BoxOption configures a Box.
type BoxOption func(*Box)

// WithClock overrides the time source used for receipts.
func WithClock(now func() time.Time) BoxOption {
	return func(b *Box) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBox returns a Box for ballot.
func NewBox(ballot Ballot, opts ...BoxOption) *Box {
	b := &Box{
		ballot: ballot,
		cast:   make(map[string]Receipt),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Cast records a vote for choice by the holder of code.
func (b *Box) Cast(_ context.Context, code, choice string) (Receipt, error) {
	code = strings.TrimSpace(code)
	choice = strings.TrimSpace(choice)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ballot.Active {
		metrics.RecordVote("inactive")
		return Receipt{}, ErrNoActiveVote
	}
	name, ok := b.ballot.Codes[code]
	if !ok || code == "" {
		metrics.RecordVote("invalid_code")
		return Receipt{}, ErrInvalidCode
	}
	if _, voted := b.cast[code]; voted {
		metrics.RecordVote("already_voted")
		return Receipt{}, ErrAlreadyVoted
	}
	if !slices.ContainsFunc(b.ballot.Choices, func(c Choice) bool { return c.Key == choice }) {
		metrics.RecordVote("invalid_choice")
		return Receipt{}, fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}

	r := Receipt{
		ID:     uuid.NewString(),
		Name:   name,
		Choice: choice,
		CastAt: b.now().UTC(),
	}
	b.cast[code] = r
	metrics.RecordVote("accepted")
	return r, nil
}

// Status returns counts for every choice.
func (b *Box) Status(_ context.Context) Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Status{
		Title:       b.ballot.Title,
		IsActive:    b.ballot.Active,
		Options:     slices.Clone(b.ballot.Choices),
		VoteCounts:  make(map[string]int, len(b.ballot.Choices)),
		VotesCast:   len(b.cast),
		TotalVoters: len(b.ballot.Codes),
		Voters:      make([]string, 0, len(b.cast)),
	}
	if st.Options == nil {
		st.Options = []Choice{}
	}
	for _, c := range b.ballot.Choices {
		st.VoteCounts[c.Key] = 0
	}
	for _, r := range b.cast {
		st.VoteCounts[r.Choice]++
		st.Voters = append(st.Voters, r.Name)
	}
	slices.Sort(st.Voters)

	if st.TotalVoters > 0 && st.VotesCast == st.TotalVoters {
		st.Winner = winner(b.ballot.Choices, st.VoteCounts)
	}
	return st
}

func winner(choices []Choice, counts map[string]int) string {
	best, label, tied := -1, "", false
	for _, c := range choices {
		switch n := counts[c.Key]; {
		case n > best:
			best, label, tied = n, c.Label, false
		case n == best:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return label
}
