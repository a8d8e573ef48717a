package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/okian/tally/internal/adapters/http/api"
	"github.com/okian/tally/internal/adapters/votes"
	service "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/stats"
	"github.com/okian/tally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func mustDate(s string) model.Date {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Mock implementations for testing
type mockDeps struct {
	entries []model.ScoreEntry
	readErr error

	update    service.UpdateResult
	updateErr error
	gotRaw    string
	gotKey    string
	gotForce  bool

	box *votes.Box
}

func (m *mockDeps) Scores(context.Context) ([]model.ScoreEntry, error) {
	return m.entries, m.readErr
}

func (m *mockDeps) Latest(context.Context) (stats.LatestView, error) {
	return stats.Latest(m.entries), m.readErr
}

func (m *mockDeps) Leaderboard(context.Context) (stats.Board, error) {
	return stats.Leaderboard(m.entries), m.readErr
}

func (m *mockDeps) FunStats(context.Context) (stats.FunStats, error) {
	return stats.Summarize(m.entries, stats.PotConfig{}), m.readErr
}

func (m *mockDeps) Profiles(context.Context) (map[string]model.PlayerProfile, error) {
	age := 30
	return map[string]model.PlayerProfile{"Josh": {Nickname: "J", Age: &age}}, m.readErr
}

func (m *mockDeps) Challenges(context.Context) []service.ChallengeResult {
	return []service.ChallengeResult{{
		Title:       "Pushup Challenge 2025",
		FinalScores: stats.Ranked(map[string]int{"Josh": 117, "Pepo": 110}),
	}}
}

func (m *mockDeps) SubmitUpdate(_ context.Context, raw, credential string, force bool) (service.UpdateResult, error) {
	m.gotRaw, m.gotKey, m.gotForce = raw, credential, force
	return m.update, m.updateErr
}

func (m *mockDeps) ChartPNG(context.Context) ([]byte, error) {
	return []byte("\x89PNG fake"), m.readErr
}

func (m *mockDeps) ExportXLSX(context.Context) ([]byte, error) {
	return []byte("PK fake"), m.readErr
}

func (m *mockDeps) Votes(ctx context.Context) votes.Status {
	return m.box.Status(ctx)
}

func (m *mockDeps) SubmitVote(ctx context.Context, code, choice string) (votes.Receipt, error) {
	return m.box.Cast(ctx, code, choice)
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newDeps() *mockDeps {
	return &mockDeps{
		entries: []model.ScoreEntry{
			{Date: mustDate("2026-01-01"), Scores: map[string]int{"Josh": 1, "Pepo": 1}},
			{Date: mustDate("2026-01-02"), Scores: map[string]int{"Josh": 3, "Pepo": 2}},
		},
		box: votes.NewBox(votes.Ballot{
			Title:   "Chart view",
			Active:  true,
			Choices: []votes.Choice{{Key: "timeline", Label: "Timeline"}, {Key: "scroll", Label: "Scroll"}},
			Codes:   map[string]string{"c1": "Josh", "c2": "Pepo"},
		}),
	}
}

func newMux(deps *mockDeps, opts ...api.ServerOption) http.Handler {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}, opts...)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return server.Handler(mux)
}

func do(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	return doFrom(h, "", method, path, body, headers...)
}

// doFrom is do with the request arriving from remote; empty keeps the
// httptest default address.
func doFrom(h http.Handler, remote, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, http.NoBody)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	if remote != "" {
		r.RemoteAddr = remote
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := newDeps()
		h := newMux(deps)

		Convey("Health reports ok", func() {
			w := do(h, http.MethodGet, "/api/health", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["status"], ShouldEqual, "ok")
		})

		Convey("Metrics are exposed", func() {
			do(h, http.MethodGet, "/api/health", "")
			w := do(h, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("Status returns the service stats", func() {
			w := do(h, http.MethodGet, "/api/status", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Scores are wrapped in an entries object", func() {
			w := do(h, http.MethodGet, "/api/scores", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			entries := body["entries"].([]any)
			So(entries, ShouldHaveLength, 2)
			So(entries[0].(map[string]any)["date"], ShouldEqual, "2026-01-01")
		})

		Convey("Latest carries daily gains", func() {
			w := do(h, http.MethodGet, "/api/latest", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["date"], ShouldEqual, "2026-01-02")
			So(body["daily_gains"].(map[string]any)["Josh"], ShouldEqual, 2.0)
		})

		Convey("Leaderboard, stats, profiles and challenges answer", func() {
			for _, path := range []string{"/api/leaderboard", "/api/stats", "/api/profiles", "/api/challenges"} {
				w := do(h, http.MethodGet, path, "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			}
		})

		Convey("Read endpoints reject other methods", func() {
			w := do(h, http.MethodPost, "/api/scores", "{}")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Read failures are 500 without details", func() {
			deps.readErr = errors.New("disk on fire")
			w := do(h, http.MethodGet, "/api/scores", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldNotContainSubstring, "disk on fire")
		})

		Convey("The chart and export carry their content types", func() {
			w := do(h, http.MethodGet, "/api/chart.png", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "image/png")

			w = do(h, http.MethodGet, "/api/export.xlsx", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, api.ContentTypeXLSX)
			So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "scores.xlsx")
		})
	})
}

func TestServer_Update(t *testing.T) {
	Convey("Given the update endpoint", t, func() {
		deps := newDeps()
		h := newMux(deps)
		date := mustDate("2026-01-02")

		Convey("The body and key reach the service", func() {
			deps.update = service.UpdateResult{Outcome: service.OutcomeAccepted, Date: &date, Created: true, Message: "Entry added for 2026-01-02"}
			w := do(h, http.MethodPost, "/api/update", `{"message":"Jan 2\nJosh: 3","force":true}`, api.HeaderAPIKey, "k")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotRaw, ShouldEqual, "Jan 2\nJosh: 3")
			So(deps.gotKey, ShouldEqual, "k")
			So(deps.gotForce, ShouldBeTrue)

			body := decode(w)
			So(body["success"], ShouldEqual, true)
			So(body["created"], ShouldEqual, true)
			So(body["date"], ShouldEqual, "2026-01-02")
		})

		Convey("A conflict asks for confirmation", func() {
			deps.update = service.UpdateResult{Outcome: service.OutcomeRequiresConfirmation, Date: &date, Message: "confirm"}
			w := do(h, http.MethodPost, "/api/update", `{"message":"x"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["success"], ShouldEqual, false)
			So(body["requires_confirmation"], ShouldEqual, true)
		})

		Convey("Rejections map to status codes", func() {
			cases := []struct {
				reason service.Reason
				status int
			}{
				{service.ReasonUnauthorized, http.StatusUnauthorized},
				{service.ReasonInvalidFormat, http.StatusBadRequest},
				{service.ReasonInvalidEntry, http.StatusBadRequest},
			}
			for _, c := range cases {
				deps.update = service.UpdateResult{Outcome: service.OutcomeRejected, Reason: c.reason, Message: "no", Violations: []string{"v"}}
				w := do(h, http.MethodPost, "/api/update", `{"message":"x"}`)
				So(w.Code, ShouldEqual, c.status)
				So(decode(w)["code"], ShouldEqual, string(c.reason))
			}
		})

		Convey("A malformed body is a bad request", func() {
			w := do(h, http.MethodPost, "/api/update", `not json`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "bad_request")
		})

		Convey("A store failure is a 500", func() {
			deps.updateErr = errors.New("write failed")
			w := do(h, http.MethodPost, "/api/update", `{"message":"x"}`)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldNotContainSubstring, "write failed")
		})

		Convey("GET is not routed", func() {
			w := do(h, http.MethodGet, "/api/update", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServer_Votes(t *testing.T) {
	Convey("Given the vote endpoints with a limiter of two per minute", t, func() {
		deps := newDeps()
		h := newMux(deps, api.WithVoteLimiter(votes.NewLimiter(2, time.Minute)))

		Convey("A valid vote is recorded", func() {
			w := do(h, http.MethodPost, "/api/vote", `{"code":"c1","choice":"timeline"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["name"], ShouldEqual, "Josh")
			So(body["choice"], ShouldEqual, "timeline")

			w = do(h, http.MethodGet, "/api/votes", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			status := decode(w)
			So(status["votes_cast"], ShouldEqual, 1.0)
		})

		Convey("Ballot errors are 400 with a code", func() {
			cases := []struct {
				body string
				code string
			}{
				{`{"code":"nope","choice":"timeline"}`, "invalid_code"},
				{`{"code":"c2","choice":"pie"}`, "invalid_choice"},
			}
			for _, c := range cases {
				w := do(h, http.MethodPost, "/api/vote", c.body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["code"], ShouldEqual, c.code)
			}
		})

		Convey("Voting twice is refused", func() {
			do(h, http.MethodPost, "/api/vote", `{"code":"c1","choice":"timeline"}`)
			w := do(h, http.MethodPost, "/api/vote", `{"code":"c1","choice":"scroll"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["code"], ShouldEqual, "already_voted")
		})

		Convey("The third attempt from one address is rate limited", func() {
			for i := 0; i < 2; i++ {
				doFrom(h, "10.1.1.1:4000", http.MethodPost, "/api/vote", `{"code":"bad","choice":"x"}`)
			}
			w := doFrom(h, "10.1.1.1:4001", http.MethodPost, "/api/vote", `{"code":"c1","choice":"timeline"}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decode(w)["code"], ShouldEqual, "rate_limited")

			w = doFrom(h, "10.2.2.2:4000", http.MethodPost, "/api/vote", `{"code":"c1","choice":"timeline"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("A forged X-Forwarded-For does not reset the limit", func() {
			limited := 0
			for i := 0; i < 20; i++ {
				w := doFrom(h, "203.0.113.9:5000", http.MethodPost, "/api/vote", `{"code":"bad","choice":"x"}`,
					"X-Forwarded-For", fmt.Sprintf("1.2.3.%d", i))
				if w.Code == http.StatusTooManyRequests {
					limited++
				}
			}
			So(limited, ShouldEqual, 18)
		})
	})

	Convey("Given the vote endpoint behind a trusted proxy", t, func() {
		deps := newDeps()
		h := newMux(deps,
			api.WithVoteLimiter(votes.NewLimiter(1, time.Minute)),
			api.WithTrustedProxies([]netip.Prefix{netip.MustParsePrefix("10.9.0.0/16")}),
		)

		Convey("Clients are told apart by the hop left of the proxy", func() {
			w := doFrom(h, "10.9.0.1:80", http.MethodPost, "/api/vote", `{"code":"bad","choice":"x"}`,
				"X-Forwarded-For", "198.51.100.1")
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			w = doFrom(h, "10.9.0.1:80", http.MethodPost, "/api/vote", `{"code":"bad","choice":"x"}`,
				"X-Forwarded-For", "198.51.100.2")
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			w = doFrom(h, "10.9.0.1:80", http.MethodPost, "/api/vote", `{"code":"bad","choice":"x"}`,
				"X-Forwarded-For", "198.51.100.1")
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("A client cannot prepend a fake hop", func() {
			w := doFrom(h, "10.9.0.1:80", http.MethodPost, "/api/vote", `{"code":"bad","choice":"x"}`,
				"X-Forwarded-For", "1.1.1.1, 198.51.100.7")
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			w = doFrom(h, "10.9.0.1:80", http.MethodPost, "/api/vote", `{"code":"bad","choice":"x"}`,
				"X-Forwarded-For", "2.2.2.2, 198.51.100.7")
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
		})
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given the wrapped handler", t, func() {
		deps := newDeps()

		Convey("Request ids are assigned or propagated", func() {
			h := newMux(deps)
			w := do(h, http.MethodGet, "/api/health", "")
			So(w.Header().Get(api.HeaderRequestID), ShouldNotBeEmpty)

			w = do(h, http.MethodGet, "/api/health", "", api.HeaderRequestID, "abc-123")
			So(w.Header().Get(api.HeaderRequestID), ShouldEqual, "abc-123")
		})

		Convey("CORS allows configured origins only", func() {
			h := newMux(deps, api.WithAllowedOrigins([]string{"https://scores.example"}))

			w := do(h, http.MethodOptions, "/api/update", "", "Origin", "https://scores.example")
			So(w.Code, ShouldEqual, http.StatusNoContent)
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "https://scores.example")
			So(w.Header().Get("Access-Control-Allow-Headers"), ShouldContainSubstring, api.HeaderAPIKey)

			w = do(h, http.MethodGet, "/api/health", "", "Origin", "https://evil.example")
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
		})

		Convey("A wildcard allows any origin", func() {
			h := newMux(deps, api.WithAllowedOrigins([]string{"*"}))
			w := do(h, http.MethodGet, "/api/health", "", "Origin", "https://anywhere.example")
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
		})

		Convey("Panics become 500s", func() {
			h := api.Recover(logger.Get(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic("boom")
			}))
			w := do(h, http.MethodGet, "/", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestOpError(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("cause")

		Convey("Kinds and causes are both matched", func() {
			err := api.WrapKind("api.op", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: cause")

			var op *api.OpError
			So(errors.As(err, &op), ShouldBeTrue)
			So(op.Op, ShouldEqual, "api.op")
		})

		Convey("Kinds map to HTTP statuses", func() {
			cases := []struct {
				err    error
				status int
			}{
				{api.WrapKind("api.op", api.ErrBadRequest, cause), http.StatusBadRequest},
				{api.NewKind("api.op", api.ErrUnauthorized), http.StatusUnauthorized},
				{api.NewKind("api.op", api.ErrRateLimited), http.StatusTooManyRequests},
				{api.WrapKind("api.op", api.ErrInternal, cause), http.StatusInternalServerError},
				{api.Wrap("api.op", cause), http.StatusInternalServerError},
			}
			for _, c := range cases {
				So(api.StatusOf(c.err), ShouldEqual, c.status)
			}
		})

		Convey("Wrap keeps nil nil", func() {
			So(api.Wrap("api.op", nil), ShouldBeNil)
			So(api.NewKind("api.op", api.ErrRateLimited).Error(), ShouldEqual, "api.op: rate limited")
		})
	})
}
