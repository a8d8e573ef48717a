package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/okian/tally/internal/adapters/votes"
)

// VoteDependencies defines the ballot operations.
type VoteDependencies interface {
	Votes(ctx context.Context) votes.Status
	SubmitVote(ctx context.Context, code, choice string) (votes.Receipt, error)
}

type voteRequest struct {
	Code   string `json:"code"`
	Choice string `json:"choice"`
}

type voteResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Choice  string `json:"choice"`
}

// VoteHandler serves the ballot.
type VoteHandler struct {
	deps    VoteDependencies
	limiter *votes.Limiter
	trusted []netip.Prefix
}

// NewVoteHandler creates a new vote handler. A nil limiter disables rate
// limiting.
func NewVoteHandler(deps VoteDependencies, limiter *votes.Limiter) *VoteHandler {
	return &VoteHandler{deps: deps, limiter: limiter}
}

// HandleStatus handles GET /api/votes requests.
func (h *VoteHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Votes(r.Context()))
}

// HandleVote handles POST /api/vote requests.
func (h *VoteHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_vote"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientIP(r, h.trusted)) {
		writeKind(w, NewKind(op, ErrRateLimited), "rate_limited", "Too many attempts. Please wait a minute before trying again.")
		return
	}

	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeKind(w, WrapKind(op, ErrBadRequest, err), "bad_request", "request body must be JSON with code and choice")
		return
	}

	receipt, err := h.deps.SubmitVote(r.Context(), req.Code, req.Choice)
	switch {
	case errors.Is(err, votes.ErrNoActiveVote):
		writeKind(w, WrapKind(op, ErrBadRequest, err), "no_active_vote", "There is no active vote.")
	case errors.Is(err, votes.ErrInvalidCode):
		writeKind(w, WrapKind(op, ErrBadRequest, err), "invalid_code", "Invalid code. Ask the organiser for your voting code.")
	case errors.Is(err, votes.ErrAlreadyVoted):
		writeKind(w, WrapKind(op, ErrBadRequest, err), "already_voted", "This code has already voted!")
	case errors.Is(err, votes.ErrInvalidChoice):
		writeKind(w, WrapKind(op, ErrBadRequest, err), "invalid_choice", "Choice is not on the ballot.")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	default:
		writeJSON(w, http.StatusOK, voteResponse{
			Success: true,
			ID:      receipt.ID,
			Name:    receipt.Name,
			Choice:  receipt.Choice,
		})
	}
}

// clientIP is the connection's host. X-Forwarded-For is read only when the
// connection comes from a trusted proxy; the rightmost hop that is not a
// trusted proxy is the client.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !isTrusted(host, trusted) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
		host = hop
	}
	return host
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
