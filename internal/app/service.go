// Package service provides the core ledger service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/tally/internal/adapters/profiles"
	"github.com/okian/tally/internal/adapters/render"
	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/adapters/votes"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/parser"
	"github.com/okian/tally/internal/domain/rules"
	"github.com/okian/tally/internal/domain/stats"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// Service implements the API dependencies for the score ledger.
type Service struct {
	mu sync.RWMutex
	// writeMu serialises SubmitUpdate so the rule check and the put see the
	// same ledger.
	writeMu sync.Mutex

	// Core components
	store    repository.Store
	profiles *profiles.Directory
	votes    *votes.Box

	// Configuration
	apiKey     string
	location   *time.Location
	seasonYear int
	rules      rules.Config
	pot        stats.PotConfig
	challenges []Challenge
	chart      render.ChartOptions
	now        func() time.Time

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore sets the ledger store. The service owns it and closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithAPIKey sets the shared secret required by SubmitUpdate. An empty key
// rejects every update.
func WithAPIKey(key string) Option {
	return func(s *Service) {
		s.apiKey = key
	}
}

// WithLocation sets the challenge time zone used to decide "today".
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithSeasonYear pins the year given to parsed dates. Zero resolves the year
// from the clock.
func WithSeasonYear(year int) Option {
	return func(s *Service) {
		if year > 0 {
			s.seasonYear = year
		}
	}
}

// WithRules sets the entry rules checked before every put.
func WithRules(cfg rules.Config) Option {
	return func(s *Service) {
		s.rules = cfg
	}
}

// WithPot sets the prize pool configuration used by FunStats.
func WithPot(cfg stats.PotConfig) Option {
	return func(s *Service) {
		s.pot = cfg
	}
}

// WithProfiles sets the player profile source.
func WithProfiles(dir *profiles.Directory) Option {
	return func(s *Service) {
		if dir != nil {
			s.profiles = dir
		}
	}
}

// WithVotes sets the ballot box.
func WithVotes(box *votes.Box) Option {
	return func(s *Service) {
		if box != nil {
			s.votes = box
		}
	}
}

// WithChallenges sets the archive of finished challenges.
func WithChallenges(challenges ...Challenge) Option {
	return func(s *Service) {
		s.challenges = append([]Challenge(nil), challenges...)
	}
}

// WithChartOptions sets the size and colours of the progress chart.
func WithChartOptions(opts render.ChartOptions) Option {
	return func(s *Service) {
		s.chart = opts
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		location: time.UTC,
		rules: rules.Config{
			MaxEntryAgeDays: 1,
			NoBackfill:      true,
			NonDecreasing:   true,
		},
		profiles: profiles.New(""),
		votes:    votes.NewBox(votes.Ballot{}),
		chart:    render.ChartOptions{Title: "Challenge progress"},
		now:      time.Now,
		logger:   nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Warn(ctx, "no store configured, using in-memory ledger")
	}

	entries, err := s.store.All(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	metrics.UpdateLedgerEntries(len(entries))
	if len(entries) > 0 {
		metrics.UpdateLedgerPlayers(len(entries[len(entries)-1].Scores))
	}

	s.started = true
	s.logger.Info(ctx, "ledger service started",
		logger.Int("entries", len(entries)),
		logger.String("timezone", s.location.String()),
		logger.Int("seasonYear", s.seasonYear),
	)

	return nil
}

// Stop closes the ledger store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping ledger service...")

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error(context.Background(), "failed to close store", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(context.Background(), "ledger service stopped")
}

// Today returns the current date in the challenge time zone.
func (s *Service) Today() model.Date {
	return model.DateOf(s.now().In(s.location))
}

func (s *Service) ledger() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

func (s *Service) entries(ctx context.Context) ([]model.ScoreEntry, error) {
	store, err := s.ledger()
	if err != nil {
		return nil, err
	}
	return store.All(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	out := map[string]interface{}{
		"started":    s.started,
		"timezone":   s.location.String(),
		"seasonYear": s.seasonYear,
		"challenges": len(s.challenges),
	}

	if s.started {
		total := s.store.Count(ctx)
		out["totalEntries"] = total
		metrics.UpdateLedgerEntries(total)

		if latest, err := s.store.Latest(ctx); err == nil {
			out["latestDate"] = latest.Date.String()
			out["players"] = len(latest.Scores)
			metrics.UpdateLedgerPlayers(len(latest.Scores))
		}
	}

	return out
}

// parse reads raw against the season year, or today's date when no season
// year is pinned.
func (s *Service) parse(raw string, today model.Date) (model.ScoreEntry, error) {
	if s.seasonYear > 0 {
		return parser.Parse(raw, s.seasonYear)
	}
	return parser.ParseAt(raw, today)
}

// authorized compares credential with the configured key in constant time.
func (s *Service) authorized(credential string) bool {
	if s.apiKey == "" || credential == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(s.apiKey)) == 1
}

// ruleContext loads the entries the rules compare against.
func ruleContext(ctx context.Context, store repository.Store, today model.Date) (rules.Context, error) {
	rc := rules.Context{Today: today}

	latest, err := store.Latest(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return rc, nil
	}
	if err != nil {
		return rc, err
	}
	rc.Latest = &latest

	prev, err := store.Previous(ctx, latest.Date)
	if errors.Is(err, repository.ErrNotFound) {
		return rc, nil
	}
	if err != nil {
		return rc, err
	}
	rc.BeforeLatest = &prev
	return rc, nil
}

// SubmitUpdate authenticates, parses, checks and stores one daily message.
// Unauthorized, malformed and rule-breaking messages and unconfirmed
// overwrites are reported in the result; only store failures are errors.
func (s *Service) SubmitUpdate(ctx context.Context, raw, credential string, force bool) (UpdateResult, error) {
	store, err := s.ledger()
	if err != nil {
		return UpdateResult{}, err
	}

	if !s.authorized(credential) {
		metrics.RecordUpdate(metrics.OutcomeUnauthorized)
		s.logger.Warn(ctx, "update rejected: unauthorized")
		return rejected(ReasonUnauthorized, nil, "Invalid API key"), nil
	}

	today := s.Today()
	entry, err := s.parse(raw, today)
	if err != nil {
		var pe *parser.ParseError
		if errors.As(err, &pe) {
			metrics.RecordParseFailure(pe.Kind.Error())
		}
		metrics.RecordUpdate(metrics.OutcomeInvalidInput)
		s.logger.Info(ctx, "update rejected: invalid format", logger.Error(err))
		return rejected(ReasonInvalidFormat, nil, err.Error()), nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rc, err := ruleContext(ctx, store, today)
	if err != nil {
		metrics.RecordUpdate(metrics.OutcomeFailed)
		return UpdateResult{}, fmt.Errorf("load ledger state: %w", err)
	}
	if err := s.rules.Check(entry, rc); err != nil {
		var violation *rules.ViolationError
		if !errors.As(err, &violation) {
			return UpdateResult{}, err
		}
		metrics.RecordUpdate(metrics.OutcomeInvalidEntry)
		s.logger.Info(ctx, "update rejected: rule violation",
			logger.String("date", entry.Date.String()),
			logger.Any("reasons", violation.Reasons),
		)
		res := rejected(ReasonInvalidEntry, &entry.Date, err.Error())
		res.Violations = violation.Reasons
		return res, nil
	}

	created, err := store.Put(ctx, entry, force)
	var conflict *repository.ConflictError
	switch {
	case errors.As(err, &conflict):
		metrics.RecordUpdate(metrics.OutcomeConfirmation)
		s.logger.Info(ctx, "update needs confirmation", logger.String("date", conflict.Date.String()))
		date := conflict.Date
		return UpdateResult{
			Outcome: OutcomeRequiresConfirmation,
			Date:    &date,
			Message: fmt.Sprintf("Entry for %s already exists. Confirm to overwrite.", date),
		}, nil
	case err != nil:
		metrics.RecordUpdate(metrics.OutcomeFailed)
		metrics.RecordErrorByComponent("service", "store_put")
		s.logger.Error(ctx, "failed to store entry",
			logger.String("date", entry.Date.String()),
			logger.Error(err),
		)
		return UpdateResult{}, fmt.Errorf("store entry %s: %w", entry.Date, err)
	}

	metrics.RecordUpdate(metrics.OutcomeAccepted)
	metrics.UpdateLedgerPlayers(len(entry.Scores))

	verb := "updated"
	if created {
		verb = "added"
	}
	s.logger.Info(ctx, "entry "+verb,
		logger.String("date", entry.Date.String()),
		logger.Int("players", len(entry.Scores)),
		logger.Bool("forced", force),
	)
	date := entry.Date
	return UpdateResult{
		Outcome: OutcomeAccepted,
		Date:    &date,
		Entry:   &entry,
		Created: created,
		Message: fmt.Sprintf("Entry %s for %s", verb, date),
	}, nil
}

// Scores returns every ledger entry in ascending date order.
func (s *Service) Scores(ctx context.Context) ([]model.ScoreEntry, error) {
	return s.entries(ctx)
}

// Latest returns the most recent entry with its daily gains.
func (s *Service) Latest(ctx context.Context) (stats.LatestView, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return stats.LatestView{}, err
	}
	return stats.Latest(entries), nil
}

// Leaderboard ranks the players of the latest entry.
func (s *Service) Leaderboard(ctx context.Context) (stats.Board, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return stats.Board{}, err
	}
	return stats.Leaderboard(entries), nil
}

// FunStats computes the dashboard's fun stats.
func (s *Service) FunStats(ctx context.Context) (stats.FunStats, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return stats.FunStats{}, err
	}
	return stats.Summarize(entries, s.pot), nil
}

// Profiles returns every player profile with ages as of today.
func (s *Service) Profiles(ctx context.Context) (map[string]model.PlayerProfile, error) {
	out, err := s.profiles.All(ctx, s.Today())
	if err != nil {
		metrics.RecordErrorByComponent("service", "profiles")
		return nil, err
	}
	return out, nil
}

// Challenges returns the archive with final scores ranked.
func (s *Service) Challenges(_ context.Context) []ChallengeResult {
	out := make([]ChallengeResult, 0, len(s.challenges))
	for _, c := range s.challenges {
		out = append(out, ChallengeResult{
			Title:       c.Title,
			Subtitle:    c.Subtitle,
			Ended:       c.Ended,
			FinalScores: stats.Ranked(c.FinalScores),
		})
	}
	return out
}

// ChartPNG renders the progress chart.
func (s *Service) ChartPNG(ctx context.Context) ([]byte, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return nil, err
	}
	return render.ProgressChart(entries, s.chart)
}

// ExportXLSX renders the ledger as a spreadsheet.
func (s *Service) ExportXLSX(ctx context.Context) ([]byte, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return nil, err
	}
	return render.Workbook(entries)
}

// Votes returns the ballot status.
func (s *Service) Votes(ctx context.Context) votes.Status {
	return s.votes.Status(ctx)
}

// SubmitVote casts a vote.
func (s *Service) SubmitVote(ctx context.Context, code, choice string) (votes.Receipt, error) {
	r, err := s.votes.Cast(ctx, code, choice)
	if err != nil {
		s.logger.Info(ctx, "vote rejected", logger.Error(err))
		return votes.Receipt{}, err
	}
	s.logger.Info(ctx, "vote recorded", logger.String("voter", r.Name), logger.String("id", r.ID))
	return r, nil
}
