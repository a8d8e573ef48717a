package api

import (
	"context"
	"net/http"

	service "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/stats"
)

// LedgerDependencies defines the read-only ledger views.
type LedgerDependencies interface {
	Scores(ctx context.Context) ([]model.ScoreEntry, error)
	Latest(ctx context.Context) (stats.LatestView, error)
	Leaderboard(ctx context.Context) (stats.Board, error)
	FunStats(ctx context.Context) (stats.FunStats, error)
	Profiles(ctx context.Context) (map[string]model.PlayerProfile, error)
	Challenges(ctx context.Context) []service.ChallengeResult
}

// LedgerHandler serves the dashboard's read views.
type LedgerHandler struct {
	deps LedgerDependencies
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(deps LedgerDependencies) *LedgerHandler {
	return &LedgerHandler{deps: deps}
}

// HandleScores handles GET /api/scores requests.
func (h *LedgerHandler) HandleScores(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_scores"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	entries, err := h.deps.Scores(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	if entries == nil {
		entries = []model.ScoreEntry{}
	}
	writeJSON(w, http.StatusOK, entriesResponse{Entries: entries})
}

// HandleLatest handles GET /api/latest requests. An empty ledger answers
// with a null date and empty maps.
func (h *LedgerHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_latest"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	view, err := h.deps.Latest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleLeaderboard handles GET /api/leaderboard requests.
func (h *LedgerHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	board, err := h.deps.Leaderboard(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// HandleFunStats handles GET /api/stats requests.
func (h *LedgerHandler) HandleFunStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_stats"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	fun, err := h.deps.FunStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, fun)
}

// HandleProfiles handles GET /api/profiles requests.
func (h *LedgerHandler) HandleProfiles(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_profiles"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	profiles, err := h.deps.Profiles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

// HandleChallenges handles GET /api/challenges requests.
func (h *LedgerHandler) HandleChallenges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Challenges(r.Context()))
}
