package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/adapters/votes"
	service "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/domain/rules"
	"github.com/okian/tally/internal/domain/stats"
	"github.com/okian/tally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const testKey = "secret"

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// fixedClock returns noon UTC on the given day of January 2026.
func fixedClock(day int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, time.January, day, 12, 0, 0, 0, time.UTC)
	}
}

func newStarted(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithAPIKey(testKey),
		service.WithClock(fixedClock(2)),
		service.WithStore(repository.NewMemoryStore()),
	}
	svc := service.New(append(base, opts...)...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(svc.GetStats()["timezone"], ShouldEqual, "UTC")
		})
	})

	Convey("Given a new service with custom options", t, func() {
		loc := time.FixedZone("PST", -8*60*60)
		svc := service.New(
			service.WithAPIKey(testKey),
			service.WithLocation(loc),
			service.WithSeasonYear(2025),
		)

		Convey("Then it should be created successfully", func() {
			So(svc, ShouldNotBeNil)
			So(svc.GetStats()["timezone"], ShouldEqual, "PST")
			So(svc.GetStats()["seasonYear"], ShouldEqual, 2025)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()
		defer svc.Stop()

		Convey("Ledger operations fail before Start", func() {
			_, err := svc.Scores(context.Background())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				So(svc.GetStats()["started"], ShouldEqual, true)
				So(svc.GetStats()["totalEntries"], ShouldEqual, 0)
			})

			Convey("And starting twice is harmless", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And stopping marks it stopped", func() {
				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
				svc.Stop()
			})
		})
	})
}

func TestService_Today(t *testing.T) {
	Convey("Given a clock just after midnight UTC", t, func() {
		loc := time.FixedZone("PST", -8*60*60)
		clock := func() time.Time { return time.Date(2026, time.January, 2, 3, 0, 0, 0, time.UTC) }

		Convey("Today follows the challenge time zone", func() {
			svc := service.New(service.WithClock(clock), service.WithLocation(loc))
			So(svc.Today().String(), ShouldEqual, "2026-01-01")

			utc := service.New(service.WithClock(clock))
			So(utc.Today().String(), ShouldEqual, "2026-01-02")
		})
	})
}

func TestService_SubmitUpdate(t *testing.T) {
	Convey("Given a started service with an empty ledger", t, func() {
		ctx := context.Background()
		svc := newStarted()
		defer svc.Stop()

		Convey("A valid message is accepted and becomes the latest entry", func() {
			res, err := svc.SubmitUpdate(ctx, "January 2\nJosh: 2\nPepo: 1", testKey, false)
			So(err, ShouldBeNil)
			So(res.Outcome, ShouldEqual, service.OutcomeAccepted)
			So(res.Created, ShouldBeTrue)
			So(res.Message, ShouldEqual, "Entry added for 2026-01-02")
			So(res.Entry.Scores, ShouldResemble, map[string]int{"Josh": 2, "Pepo": 1})

			latest, err := svc.Latest(ctx)
			So(err, ShouldBeNil)
			So(latest.Date.String(), ShouldEqual, "2026-01-02")
			So(latest.Scores, ShouldResemble, map[string]int{"Josh": 2, "Pepo": 1})
		})

		Convey("A missing or wrong credential is unauthorized", func() {
			for _, cred := range []string{"", "wrong"} {
				res, err := svc.SubmitUpdate(ctx, "January 2\nJosh: 2", cred, false)
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, service.OutcomeRejected)
				So(res.Reason, ShouldEqual, service.ReasonUnauthorized)
			}
			So(svc.GetStats()["totalEntries"], ShouldEqual, 0)
		})

		Convey("A malformed message is an invalid format", func() {
			res, err := svc.SubmitUpdate(ctx, "Smarch 2\nJosh: 2", testKey, false)
			So(err, ShouldBeNil)
			So(res.Reason, ShouldEqual, service.ReasonInvalidFormat)
			So(res.Date, ShouldBeNil)
			So(res.Message, ShouldContainSubstring, "unknown month")

			res, err = svc.SubmitUpdate(ctx, "January 2\nno scores here", testKey, false)
			So(err, ShouldBeNil)
			So(res.Reason, ShouldEqual, service.ReasonInvalidFormat)
		})

		Convey("A score too large for an int rejects the whole message", func() {
			res, err := svc.SubmitUpdate(ctx, "January 2\nA: 3\nB: 99999999999999999999", testKey, false)
			So(err, ShouldBeNil)
			So(res.Outcome, ShouldEqual, service.OutcomeRejected)
			So(res.Reason, ShouldEqual, service.ReasonInvalidFormat)
			So(res.Message, ShouldContainSubstring, "score out of range")

			scores, err := svc.Scores(ctx)
			So(err, ShouldBeNil)
			So(scores, ShouldBeEmpty)
		})

		Convey("Dates outside the window are invalid entries", func() {
			res, err := svc.SubmitUpdate(ctx, "January 3\nJosh: 2", testKey, false)
			So(err, ShouldBeNil)
			So(res.Reason, ShouldEqual, service.ReasonInvalidEntry)
			So(res.Violations, ShouldHaveLength, 1)
			So(res.Violations[0], ShouldContainSubstring, "future")

			res, err = svc.SubmitUpdate(ctx, "December 30\nJosh: 2", testKey, false)
			So(err, ShouldBeNil)
			So(res.Reason, ShouldEqual, service.ReasonInvalidEntry)
			So(res.Date.String(), ShouldEqual, "2025-12-30")

			res, err = svc.SubmitUpdate(ctx, "January 1\nJosh: 2", testKey, false)
			So(err, ShouldBeNil)
			So(res.Outcome, ShouldEqual, service.OutcomeAccepted)
		})
	})
}

func TestService_ConfirmationProtocol(t *testing.T) {
	Convey("Given a ledger with an entry for today", t, func() {
		ctx := context.Background()
		svc := newStarted()
		defer svc.Stop()

		_, err := svc.SubmitUpdate(ctx, "January 1\nJosh: 1\nPepo: 1", testKey, false)
		So(err, ShouldBeNil)
		_, err = svc.SubmitUpdate(ctx, "January 2\nJosh: 2\nPepo: 1", testKey, false)
		So(err, ShouldBeNil)

		Convey("Resubmitting without force asks for confirmation and changes nothing", func() {
			res, err := svc.SubmitUpdate(ctx, "January 2\nJosh: 3\nPepo: 1", testKey, false)
			So(err, ShouldBeNil)
			So(res.Outcome, ShouldEqual, service.OutcomeRequiresConfirmation)
			So(res.Date.String(), ShouldEqual, "2026-01-02")
			So(res.Message, ShouldEqual, "Entry for 2026-01-02 already exists. Confirm to overwrite.")

			latest, err := svc.Latest(ctx)
			So(err, ShouldBeNil)
			So(latest.Scores["Josh"], ShouldEqual, 2)

			Convey("And confirming with force overwrites the entry", func() {
				res, err := svc.SubmitUpdate(ctx, "January 2\nJosh: 3\nPepo: 1", testKey, true)
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, service.OutcomeAccepted)
				So(res.Created, ShouldBeFalse)
				So(res.Message, ShouldEqual, "Entry updated for 2026-01-02")

				latest, err := svc.Latest(ctx)
				So(err, ShouldBeNil)
				So(latest.Scores["Josh"], ShouldEqual, 3)
			})
		})

		Convey("Replaying a forced update is idempotent", func() {
			for i := 0; i < 2; i++ {
				res, err := svc.SubmitUpdate(ctx, "January 2\nJosh: 3\nPepo: 2", testKey, true)
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, service.OutcomeAccepted)
			}
			scores, err := svc.Scores(ctx)
			So(err, ShouldBeNil)
			So(scores, ShouldHaveLength, 2)
			So(scores[1].Scores, ShouldResemble, map[string]int{"Josh": 3, "Pepo": 2})
		})

		Convey("Overwrites are checked against the entry before the latest", func() {
			res, err := svc.SubmitUpdate(ctx, "January 2\nJosh: 0\nPepo: 1", testKey, true)
			So(err, ShouldBeNil)
			So(res.Reason, ShouldEqual, service.ReasonInvalidEntry)
			So(res.Violations[0], ShouldContainSubstring, "Josh: 1 -> 0")
		})

		Convey("Backfilling before the latest entry is refused", func() {
			res, err := svc.SubmitUpdate(ctx, "January 1\nJosh: 1\nPepo: 1", testKey, true)
			So(err, ShouldBeNil)
			So(res.Reason, ShouldEqual, service.ReasonInvalidEntry)
		})
	})
}

func TestService_AllowedGains(t *testing.T) {
	Convey("Given a service that only allows gains of 0, 1, 2 or 4", t, func() {
		ctx := context.Background()
		svc := newStarted(service.WithRules(rules.Config{
			MaxEntryAgeDays: 1,
			NonDecreasing:   true,
			AllowedGains:    []int{0, 1, 2, 4},
		}))
		defer svc.Stop()

		_, err := svc.SubmitUpdate(ctx, "January 1\nJosh: 1", testKey, false)
		So(err, ShouldBeNil)

		Convey("A gain of 3 is rejected", func() {
			res, err := svc.SubmitUpdate(ctx, "January 2\nJosh: 4", testKey, false)
			So(err, ShouldBeNil)
			So(res.Reason, ShouldEqual, service.ReasonInvalidEntry)
		})

		Convey("A gain of 4 is accepted and a new player is welcome", func() {
			res, err := svc.SubmitUpdate(ctx, "January 2\nJosh: 5\nMene: 7", testKey, false)
			So(err, ShouldBeNil)
			So(res.Outcome, ShouldEqual, service.OutcomeAccepted)
		})
	})
}

func TestService_SeasonYear(t *testing.T) {
	Convey("Given a service pinned to the 2025 season", t, func() {
		ctx := context.Background()
		svc := newStarted(
			service.WithSeasonYear(2025),
			service.WithClock(func() time.Time { return time.Date(2025, time.March, 5, 9, 0, 0, 0, time.UTC) }),
		)
		defer svc.Stop()

		Convey("Messages are dated in that season", func() {
			res, err := svc.SubmitUpdate(ctx, "March 5\nJosh: 1", testKey, false)
			So(err, ShouldBeNil)
			So(res.Outcome, ShouldEqual, service.OutcomeAccepted)
			So(res.Date.String(), ShouldEqual, "2025-03-05")
		})
	})
}

func TestService_Views(t *testing.T) {
	Convey("Given a ledger with a few days of scores", t, func() {
		ctx := context.Background()
		svc := newStarted(
			service.WithRules(rules.Config{MaxEntryAgeDays: -1}),
			service.WithClock(fixedClock(5)),
			service.WithPot(stats.PotConfig{BetAmount: 20, Excluded: []string{"Mene"}, Payouts: []int{60, 40}}),
			service.WithChallenges(service.Challenge{
				Title:       "Pushup Challenge 2025",
				FinalScores: map[string]int{"Josh": 117, "Pocho": 111, "Pepo": 110, "Mene": 107},
			}),
		)
		defer svc.Stop()

		for _, msg := range []string{
			"January 1\nJosh: 1\nPepo: 1\nMene: 1",
			"January 2\nJosh: 3\nPepo: 2\nMene: 1",
			"January 3\nJosh: 5\nPepo: 4\nMene: 1",
			"January 4\nJosh: 7\nPepo: 6\nMene: 1",
		} {
			res, err := svc.SubmitUpdate(ctx, msg, testKey, false)
			So(err, ShouldBeNil)
			So(res.Outcome, ShouldEqual, service.OutcomeAccepted)
		}

		Convey("The leaderboard ranks the latest scores", func() {
			board, err := svc.Leaderboard(ctx)
			So(err, ShouldBeNil)
			So(board.Rows, ShouldHaveLength, 3)
			So(board.Rows[0].Player, ShouldEqual, "Josh")
			So(board.Rows[0].Rank, ShouldEqual, 1)
		})

		Convey("Fun stats cover the ledger", func() {
			fun, err := svc.FunStats(ctx)
			So(err, ShouldBeNil)
			So(fun.Entries, ShouldEqual, 4)
			So(fun.Pot, ShouldNotBeNil)
			So(fun.Pot.Total, ShouldEqual, 40)
			So(fun.Pot.Payouts[0].Amount, ShouldEqual, 24.0)
		})

		Convey("Challenges are ranked", func() {
			archive := svc.Challenges(ctx)
			So(archive, ShouldHaveLength, 1)
			So(archive[0].FinalScores[0].Player, ShouldEqual, "Josh")
			So(archive[0].FinalScores[3].Rank, ShouldEqual, 4)
		})

		Convey("The chart and workbook render", func() {
			png, err := svc.ChartPNG(ctx)
			So(err, ShouldBeNil)
			So(string(png[1:4]), ShouldEqual, "PNG")

			xlsx, err := svc.ExportXLSX(ctx)
			So(err, ShouldBeNil)
			So(string(xlsx[:2]), ShouldEqual, "PK")
		})

		Convey("Profiles default to empty", func() {
			p, err := svc.Profiles(ctx)
			So(err, ShouldBeNil)
			So(p, ShouldBeEmpty)
		})

		Convey("Stats report the latest date", func() {
			s := svc.GetStats()
			So(s["totalEntries"], ShouldEqual, 4)
			So(s["latestDate"], ShouldEqual, "2026-01-04")
			So(s["players"], ShouldEqual, 3)
		})
	})
}

func TestService_Votes(t *testing.T) {
	Convey("Given a service with an active ballot", t, func() {
		ctx := context.Background()
		box := votes.NewBox(votes.Ballot{
			Title:   "Next challenge",
			Active:  true,
			Choices: []votes.Choice{{Key: "squats", Label: "Squats"}, {Key: "plank", Label: "Plank"}},
			Codes:   map[string]string{"abc": "Josh"},
		})
		svc := newStarted(service.WithVotes(box))
		defer svc.Stop()

		Convey("A vote is recorded once", func() {
			r, err := svc.SubmitVote(ctx, "abc", "plank")
			So(err, ShouldBeNil)
			So(r.Name, ShouldEqual, "Josh")

			_, err = svc.SubmitVote(ctx, "abc", "squats")
			So(errors.Is(err, votes.ErrAlreadyVoted), ShouldBeTrue)

			status := svc.Votes(ctx)
			So(status.VotesCast, ShouldEqual, 1)
			So(status.VoteCounts["plank"], ShouldEqual, 1)
		})
	})
}
