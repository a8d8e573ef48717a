package stats

import (
	"cmp"
	"math"
	"slices"

	"github.com/okian/tally/internal/domain/model"
)

// Thresholds used by the fun stats.
const (
	HotStreakMin          = 2
	MinConsistencyEntries = 3
	MinConsistencyGains   = 2
	ConsistencyEpsilon    = 0.05
	RivalryMaxGap         = 5
	SlackerMinDays        = 2
	BigMoverWindow        = 21
	BigMoverMinGain       = 2
)

// Momentum of a rivalry, judged on the two players' latest gains.
const (
	MomentumClosing  = "closing"
	MomentumWidening = "widening"
	MomentumSteady   = "steady"
)

// Streak is a trailing run of positive gains.
type Streak struct {
	Player string `json:"player"`
	Days   int    `json:"days"`
}

// Consistency describes how steady a player's daily gains are.
type Consistency struct {
	Player  string  `json:"player"`
	CV      float64 `json:"cv"`
	AvgGain float64 `json:"avg_gain"`
	StdDev  float64 `json:"std_dev"`
}

// RivalPair is two score-adjacent players.
type RivalPair struct {
	Leader   string `json:"leader"`
	Chaser   string `json:"chaser"`
	Gap      int    `json:"gap"`
	Momentum string `json:"momentum"`
}

// Rivalry is either a shared lead or the closest pairs below the threshold.
type Rivalry struct {
	LeadTie   []string    `json:"lead_tie,omitempty"`
	LeadScore int         `json:"lead_score,omitempty"`
	Pairs     []RivalPair `json:"pairs,omitempty"`
}

// Inactivity is a trailing run of entries without a positive gain.
type Inactivity struct {
	Player string `json:"player"`
	Days   int    `json:"days"`
}

// Mover is the largest single-day gain in the recent window.
type Mover struct {
	Player string     `json:"player"`
	Date   model.Date `json:"date"`
	Gain   int        `json:"gain"`
}

// Streaks returns the current streak of every player in the latest entry.
// Fewer than two entries yields an empty map.
func Streaks(entries []model.ScoreEntry) map[string]int {
	if len(entries) < 2 {
		return map[string]int{}
	}
	return newTimeline(entries).streaks()
}

func (t *timeline) streaks() map[string]int {
	out := make(map[string]int)
	if len(t.entries) < 2 {
		return out
	}
	for _, player := range t.latest().Players() {
		n := 0
		for i := t.last(); i >= 0; i-- {
			g, ok := t.gain(i, player)
			if !ok || !g.Counts() || g.Value <= 0 {
				break
			}
			n++
		}
		out[player] = n
	}
	return out
}

// HotStreaks lists streaks of at least HotStreakMin days, longest first.
func HotStreaks(entries []model.ScoreEntry) []Streak {
	var out []Streak
	for player, days := range Streaks(entries) {
		if days >= HotStreakMin {
			out = append(out, Streak{Player: player, Days: days})
		}
	}
	slices.SortFunc(out, func(a, b Streak) int {
		if c := cmp.Compare(b.Days, a.Days); c != 0 {
			return c
		}
		return cmp.Compare(a.Player, b.Player)
	})
	return out
}

// MostConsistent returns the players with the lowest coefficient of
// variation of daily gains, all within ConsistencyEpsilon of the best.
// Players need MinConsistencyGains recorded gains and a positive mean.
func MostConsistent(entries []model.ScoreEntry) []Consistency {
	if len(entries) < MinConsistencyEntries {
		return nil
	}
	t := newTimeline(entries)

	var all []Consistency
	for _, player := range t.latest().Players() {
		var gains []float64
		for i := 1; i <= t.last(); i++ {
			if g, ok := t.gain(i, player); ok && g.Counts() {
				gains = append(gains, float64(g.Value))
			}
		}
		if len(gains) < MinConsistencyGains {
			continue
		}
		mean := 0.0
		for _, g := range gains {
			mean += g
		}
		mean /= float64(len(gains))
		if mean <= 0 {
			continue
		}
		variance := 0.0
		for _, g := range gains {
			variance += (g - mean) * (g - mean)
		}
		std := math.Sqrt(variance / float64(len(gains)))
		all = append(all, Consistency{Player: player, CV: std / mean, AvgGain: mean, StdDev: std})
	}
	if len(all) == 0 {
		return nil
	}

	slices.SortFunc(all, func(a, b Consistency) int {
		if c := cmp.Compare(a.CV, b.CV); c != 0 {
			return c
		}
		return cmp.Compare(a.Player, b.Player)
	})
	best := all[0].CV
	n := 1
	for n < len(all) && all[n].CV-best <= ConsistencyEpsilon {
		n++
	}
	return all[:n]
}

// FindRivalry reports an N-way tie for first place when there is one;
// otherwise the adjacent pairs with the smallest gap, provided that gap is
// at most RivalryMaxGap. Returns nil when there is no rivalry.
func FindRivalry(entries []model.ScoreEntry) *Rivalry {
	if len(entries) < 2 {
		return nil
	}
	t := newTimeline(entries)
	standings := Ranked(t.latest().Scores)
	if len(standings) < 2 {
		return nil
	}

	if standings[0].Score == standings[1].Score {
		r := &Rivalry{LeadScore: standings[0].Score}
		for _, s := range standings {
			if s.Rank != 1 {
				break
			}
			r.LeadTie = append(r.LeadTie, s.Player)
		}
		return r
	}

	closest := RivalryMaxGap
	var pairs []RivalPair
	for i := 0; i+1 < len(standings); i++ {
		leader, chaser := standings[i], standings[i+1]
		gap := leader.Score - chaser.Score
		if gap > closest {
			continue
		}
		if gap < closest {
			closest = gap
			pairs = pairs[:0]
		}
		pairs = append(pairs, RivalPair{
			Leader:   leader.Player,
			Chaser:   chaser.Player,
			Gap:      gap,
			Momentum: t.momentum(leader.Player, chaser.Player),
		})
	}
	if len(pairs) == 0 {
		return nil
	}
	return &Rivalry{Pairs: pairs}
}

func (t *timeline) momentum(leader, chaser string) string {
	lg, _ := t.gain(t.last(), leader)
	cg, _ := t.gain(t.last(), chaser)
	switch {
	case cg.Value > lg.Value:
		return MomentumClosing
	case cg.Value < lg.Value:
		return MomentumWidening
	default:
		return MomentumSteady
	}
}

// Slackers lists players whose trailing run of non-positive gains is at
// least SlackerMinDays entries, longest first.
func Slackers(entries []model.ScoreEntry) []Inactivity {
	if len(entries) < 2 {
		return nil
	}
	t := newTimeline(entries)

	var out []Inactivity
	for _, player := range t.latest().Players() {
		n := 0
		for i := t.last(); i >= 0; i-- {
			g, ok := t.gain(i, player)
			if !ok || !g.Counts() || g.Value > 0 {
				break
			}
			n++
		}
		if n >= SlackerMinDays {
			out = append(out, Inactivity{Player: player, Days: n})
		}
	}
	slices.SortFunc(out, func(a, b Inactivity) int {
		if c := cmp.Compare(b.Days, a.Days); c != 0 {
			return c
		}
		return cmp.Compare(a.Player, b.Player)
	})
	return out
}

// BigMover finds the largest single-day gain of at least BigMoverMinGain
// within the last BigMoverWindow entries. Ties go to the most recent entry,
// then to the alphabetically first player. Returns nil when no gain
// qualifies.
func BigMover(entries []model.ScoreEntry) *Mover {
	if len(entries) < 2 {
		return nil
	}
	t := newTimeline(entries)

	var best *Mover
	for i := t.last(); i >= max(0, len(entries)-BigMoverWindow); i-- {
		for _, player := range t.entries[i].Players() {
			g, _ := t.gain(i, player)
			if !g.Counts() || g.Value < BigMoverMinGain {
				continue
			}
			if best == nil || g.Value > best.Gain {
				best = &Mover{Player: player, Date: t.entries[i].Date, Gain: g.Value}
			}
		}
	}
	return best
}
