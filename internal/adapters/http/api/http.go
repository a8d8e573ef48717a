// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/netip"

	"github.com/okian/tally/internal/adapters/votes"
	service "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	LedgerDependencies
	UpdateDependencies
	ExportDependencies
	VoteDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	ledgerHandler *LedgerHandler
	updateHandler *UpdateHandler
	exportHandler *ExportHandler
	voteHandler   *VoteHandler

	allowedOrigins []string
	logger         logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithVoteLimiter rate limits POST /api/vote per client address.
func WithVoteLimiter(l *votes.Limiter) ServerOption {
	return func(s *Server) {
		s.voteHandler.limiter = l
	}
}

// WithTrustedProxies lists the proxies whose X-Forwarded-For header is
// believed when rate limiting votes.
func WithTrustedProxies(proxies []netip.Prefix) ServerOption {
	return func(s *Server) {
		s.voteHandler.trusted = proxies
	}
}

// WithAllowedOrigins sets the CORS origins; "*" allows any.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithServerLogger sets the logger used for request logging.
func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		ledgerHandler: NewLedgerHandler(deps),
		updateHandler: NewUpdateHandler(deps),
		exportHandler: NewExportHandler(deps),
		voteHandler:   NewVoteHandler(deps, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("/api/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("/api/status", MetricsMiddleware(s.statsHandler.HandleStats, "status"))

	mux.HandleFunc("/api/scores", MetricsMiddleware(s.ledgerHandler.HandleScores, "scores"))
	mux.HandleFunc("/api/latest", MetricsMiddleware(s.ledgerHandler.HandleLatest, "latest"))
	mux.HandleFunc("/api/leaderboard", MetricsMiddleware(s.ledgerHandler.HandleLeaderboard, "leaderboard"))
	mux.HandleFunc("/api/stats", MetricsMiddleware(s.ledgerHandler.HandleFunStats, "stats"))
	mux.HandleFunc("/api/profiles", MetricsMiddleware(s.ledgerHandler.HandleProfiles, "profiles"))
	mux.HandleFunc("/api/challenges", MetricsMiddleware(s.ledgerHandler.HandleChallenges, "challenges"))

	mux.HandleFunc("/api/update", MetricsMiddleware(s.updateHandler.HandleUpdate, "update"))

	mux.HandleFunc("/api/chart.png", MetricsMiddleware(s.exportHandler.HandleChart, "chart"))
	mux.HandleFunc("/api/export.xlsx", MetricsMiddleware(s.exportHandler.HandleWorkbook, "export"))

	mux.HandleFunc("/api/votes", MetricsMiddleware(s.voteHandler.HandleStatus, "votes"))
	mux.HandleFunc("/api/vote", MetricsMiddleware(s.voteHandler.HandleVote, "vote"))
}

// Handler wraps next with request ids, CORS and panic recovery.
func (s *Server) Handler(next http.Handler) http.Handler {
	return RequestID(Recover(s.logger, CORS(s.allowedOrigins, next)))
}

// Compile-time check that the service satisfies the handler dependencies.
var _ Dependencies = (*service.Service)(nil)

type errorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// entriesResponse is the body of GET /api/scores.
type entriesResponse struct {
	Entries []model.ScoreEntry `json:"entries"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	switch {
	case err != nil && status >= http.StatusInternalServerError:
		logger.Get().Error(context.Background(), "request failed", logger.String("code", code), logger.Error(err))
	case err != nil:
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeKind answers with the status of err's kind. Client errors carry msg
// and details; anything else goes through writeError.
func writeKind(w http.ResponseWriter, err error, code, msg string, details ...string) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Details: details})
}

// writeMessage writes an error body with a user-facing message.
func writeMessage(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}
