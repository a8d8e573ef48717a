package service

import (
	"errors"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/stats"
)

// ErrNotStarted is returned by ledger operations before Start.
var ErrNotStarted = errors.New("service not started")

// Outcome is the result class of SubmitUpdate.
type Outcome string

// SubmitUpdate outcomes.
const (
	OutcomeAccepted             Outcome = "accepted"
	OutcomeRequiresConfirmation Outcome = "requires_confirmation"
	OutcomeRejected             Outcome = "rejected"
)

// Reason says why an update was rejected.
type Reason string

// Rejection reasons.
const (
	ReasonUnauthorized  Reason = "unauthorized"
	ReasonInvalidFormat Reason = "invalid_format"
	ReasonInvalidEntry  Reason = "invalid_entry"
)

// UpdateResult is the three-way answer to SubmitUpdate.
type UpdateResult struct {
	Outcome Outcome
	// Reason is set for OutcomeRejected.
	Reason Reason
	// Date is the entry date, or the conflicting date when confirmation is
	// required. Nil when the message could not be parsed.
	Date    *model.Date
	Message string
	// Entry is the stored entry for OutcomeAccepted.
	Entry   *model.ScoreEntry
	Created bool
	// Violations lists broken rules for ReasonInvalidEntry.
	Violations []string
}

func rejected(reason Reason, date *model.Date, msg string) UpdateResult {
	return UpdateResult{Outcome: OutcomeRejected, Reason: reason, Date: date, Message: msg}
}

// Challenge is a finished challenge kept for the archive.
type Challenge struct {
	Title       string
	Subtitle    string
	Ended       string
	FinalScores map[string]int
}

// ChallengeResult is a Challenge with its final scores ranked.
type ChallengeResult struct {
	Title       string           `json:"title"`
	Subtitle    string           `json:"subtitle"`
	Ended       string           `json:"ended"`
	FinalScores []stats.Standing `json:"final_scores"`
}
