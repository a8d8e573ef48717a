package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/replay"
	"github.com/okian/tally/pkg/logger"
)

// Default configuration constants.
const (
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
	defaultDays       = 30
	defaultPlayers    = 6
	defaultJoiners    = 2
)

func main() {
	app := &cli.App{
		Name:  "replay",
		Usage: "replay a score history against a tally service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "log format: json or text"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "log level"},
		},
		Before: func(c *cli.Context) error {
			if err := logger.Init(logger.WithFormat(c.String("log-format"))); err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			return logger.SetLevelString(c.String("log-level"))
		},
		Commands: []*cli.Command{
			runCommand(),
			generateCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func generateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "start", Value: fmt.Sprintf("%d-01-01", time.Now().Year()), Usage: "first generated date (YYYY-MM-DD)"},
		&cli.IntFlag{Name: "days", Value: defaultDays, Usage: "number of generated entries"},
		&cli.IntFlag{Name: "players", Value: defaultPlayers, Usage: "players present from the first day"},
		&cli.IntFlag{Name: "joiners", Value: defaultJoiners, Usage: "players joining part way through"},
		&cli.IntSliceFlag{Name: "gains", Usage: "allowed daily gains (default 0,1,2,4)"},
		&cli.Uint64Flag{Name: "seed", Usage: "generator seed; 0 picks a random one"},
	}
}

func generateConfig(c *cli.Context) (replay.GenerateConfig, error) {
	start, err := model.ParseDate(c.String("start"))
	if err != nil {
		return replay.GenerateConfig{}, fmt.Errorf("invalid start date: %w", err)
	}
	return replay.GenerateConfig{
		Start:   start,
		Days:    c.Int("days"),
		Players: c.Int("players"),
		Joiners: c.Int("joiners"),
		Gains:   c.IntSlice("gains"),
		Seed:    c.Uint64("seed"),
	}, nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "submit a history to the service and verify it",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:9080", Usage: "base URL of the service"},
			&cli.StringFlag{Name: "api-key", EnvVars: []string{"TALLY_API_KEY"}, Usage: "key sent as X-API-Key"},
			&cli.StringFlag{Name: "input", Usage: "ledger file to replay; empty generates one"},
			&cli.StringFlag{Name: "output", Usage: "file to save the replayed history to"},
			&cli.BoolFlag{Name: "force", Usage: "overwrite entries that already exist"},
			&cli.DurationFlag{Name: "timeout", Value: defaultTimeout, Usage: "HTTP request timeout"},
			&cli.BoolFlag{Name: "verbose", Usage: "log every submission"},
		}, generateFlags()...),
		Action: func(c *cli.Context) error {
			gen, err := generateConfig(c)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(c.Context, defaultRunTimeout)
			defer cancel()

			_, err = replay.Run(ctx, replay.Config{
				BaseURL:  c.String("url"),
				APIKey:   c.String("api-key"),
				Input:    c.String("input"),
				Output:   c.String("output"),
				Force:    c.Bool("force"),
				Timeout:  c.Duration("timeout"),
				Verbose:  c.Bool("verbose"),
				Generate: gen,
			})
			return err
		},
	}
}

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "write a generated history to a file",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "output", Value: "ledger.json", Usage: "destination file"},
		}, generateFlags()...),
		Action: func(c *cli.Context) error {
			gen, err := generateConfig(c)
			if err != nil {
				return err
			}
			entries, err := replay.Generate(c.Context, gen)
			if err != nil {
				return err
			}
			if err := replay.Save(c.String("output"), entries); err != nil {
				return err
			}
			logger.Get().Info(c.Context, "history written",
				logger.String("output", c.String("output")),
				logger.Int("entries", len(entries)),
			)
			return nil
		},
	}
}
