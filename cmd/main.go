package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/tally/internal/adapters/http/api"
	"github.com/okian/tally/internal/adapters/http/site"
	"github.com/okian/tally/internal/adapters/http/swagger"
	"github.com/okian/tally/internal/adapters/profiles"
	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/adapters/votes"
	service "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/config"
	"github.com/okian/tally/internal/domain/rules"
	"github.com/okian/tally/internal/domain/stats"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

const (
	readHeaderTimeout         = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := run(); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := newService(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	metrics.Configure(
		metrics.WithMetricsEnabled(cfg.Metrics.Enabled),
		metrics.WithRefreshInterval(cfg.Metrics.RefreshInterval),
	)
	if metrics.Enabled() {
		go startSystemMetricsUpdater(ctx)
		go startServiceMetricsUpdater(ctx, svc)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc, log),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.Store.Driver),
			logger.String("timezone", cfg.Timezone),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newService builds the ledger service and its adapters from cfg.
func newService(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	store, err := repository.Open(ctx, cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	choices := make([]votes.Choice, 0, len(cfg.Votes.Options))
	for _, o := range cfg.Votes.Options {
		choices = append(choices, votes.Choice{Key: o.Key, Label: o.Label})
	}
	ballot := votes.NewBox(votes.Ballot{
		Title:   cfg.Votes.Title,
		Active:  cfg.Votes.Active,
		Choices: choices,
		Codes:   cfg.Votes.Codes,
	})

	challenges := make([]service.Challenge, 0, len(cfg.Challenges))
	for _, c := range cfg.Challenges {
		final := make(map[string]int, len(c.FinalScores))
		for _, fs := range c.FinalScores {
			final[fs.Player] = fs.Score
		}
		challenges = append(challenges, service.Challenge{
			Title:       c.Title,
			Subtitle:    c.Subtitle,
			Ended:       c.Ended,
			FinalScores: final,
		})
	}

	return service.New(
		service.WithLogger(log),
		service.WithStore(store),
		service.WithAPIKey(cfg.APIKey),
		service.WithLocation(loc),
		service.WithSeasonYear(cfg.SeasonYear),
		service.WithRules(rules.Config{
			MaxEntryAgeDays: cfg.Rules.MaxEntryAgeDays,
			NoBackfill:      cfg.Rules.NoBackfill,
			NonDecreasing:   cfg.Rules.NonDecreasing,
			AllowedGains:    cfg.Rules.AllowedGains,
		}),
		service.WithPot(stats.PotConfig{
			BetAmount: cfg.Pot.BetAmount,
			Excluded:  cfg.Pot.Excluded,
			Payouts:   cfg.Pot.Payouts,
		}),
		service.WithProfiles(profiles.New(cfg.ProfilesPath)),
		service.WithVotes(ballot),
		service.WithChallenges(challenges...),
	), nil
}

// newHandler mounts the API, the docs and the dashboard on one mux.
func newHandler(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Validate already rejected malformed entries.
	proxies, _ := cfg.TrustedPrefixes()
	apiServer := api.NewServer(svc, svc,
		api.WithVoteLimiter(votes.NewLimiter(cfg.Votes.RateLimit, cfg.Votes.RateWindow)),
		api.WithTrustedProxies(proxies),
		api.WithAllowedOrigins(cfg.AllowedOrigins),
		api.WithServerLogger(log),
	)
	apiServer.Register(ctx, mux)
	swagger.Register(ctx, mux)
	site.Register(ctx, mux)

	return apiServer.Handler(mux)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the ledger gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats updates the ledger gauges as a side effect.
			_ = svc.GetStats()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
