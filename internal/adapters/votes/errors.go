package votes

import "errors"

// Sentinel kinds for vote errors.
var (
	ErrNoActiveVote  = errors.New("no active vote")
	ErrInvalidCode   = errors.New("invalid voting code")
	ErrAlreadyVoted  = errors.New("this code has already voted")
	ErrInvalidChoice = errors.New("invalid choice")
)
