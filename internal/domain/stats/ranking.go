package stats

import (
	"cmp"
	"slices"

	"github.com/okian/tally/internal/domain/model"
)

// Standing is one player's place in a ranking.
type Standing struct {
	Rank   int    `json:"rank"`
	Player string `json:"player"`
	Score  int    `json:"score"`
}

// Ranked sorts scores descending and assigns competition ranks: equal scores
// share a rank and the next distinct score takes its 1-based position
// ([12,10,10,8] ranks [1,2,2,4]). Ties are listed by name.
func Ranked(scores map[string]int) []Standing {
	out := make([]Standing, 0, len(scores))
	for player, score := range scores {
		out = append(out, Standing{Player: player, Score: score})
	}
	slices.SortFunc(out, func(a, b Standing) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Player, b.Player)
	})
	for i := range out {
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out
}

// Ranks maps each player to their competition rank.
func Ranks(scores map[string]int) map[string]int {
	ranks := make(map[string]int, len(scores))
	for _, s := range Ranked(scores) {
		ranks[s.Player] = s.Rank
	}
	return ranks
}

// Trend directions relative to the previous entry's ranking.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendSame = "same"
)

// Trend is a rank movement since the previous entry.
type Trend struct {
	Direction string `json:"direction"`
	Delta     int    `json:"delta"`
}

// Row is one leaderboard line.
type Row struct {
	Standing
	Gain         int   `json:"gain"`
	New          bool  `json:"new"`
	Streak       int   `json:"streak"`
	Trend        Trend `json:"trend"`
	PointsBehind int   `json:"points_behind"`
}

// Board is the leaderboard for the latest entry.
type Board struct {
	Date     *model.Date `json:"date"`
	MaxScore int         `json:"max_score"`
	Rows     []Row       `json:"rows"`
}

// Leaderboard ranks the latest entry and decorates each row with its gain,
// streak and movement since the previous entry.
func Leaderboard(entries []model.ScoreEntry) Board {
	board := Board{MaxScore: 1, Rows: []Row{}}
	if len(entries) == 0 {
		return board
	}
	t := newTimeline(entries)
	latest := t.latest()
	board.Date = &latest.Date

	for _, e := range entries {
		for _, s := range e.Scores {
			board.MaxScore = max(board.MaxScore, s)
		}
	}

	var prevRanks map[string]int
	if len(entries) >= 2 {
		prevRanks = Ranks(entries[t.last()-1].Scores)
	}
	streaks := t.streaks()

	standings := Ranked(latest.Scores)
	if len(standings) == 0 {
		return board
	}
	leader := standings[0].Score
	for _, s := range standings {
		g, _ := t.gain(t.last(), s.Player)
		board.Rows = append(board.Rows, Row{
			Standing:     s,
			Gain:         g.Value,
			New:          g.New,
			Streak:       streaks[s.Player],
			Trend:        trend(prevRanks, s),
			PointsBehind: leader - s.Score,
		})
	}
	return board
}

func trend(prevRanks map[string]int, s Standing) Trend {
	prev, ok := prevRanks[s.Player]
	if !ok {
		return Trend{Direction: TrendSame}
	}
	switch diff := prev - s.Rank; {
	case diff > 0:
		return Trend{Direction: TrendUp, Delta: diff}
	case diff < 0:
		return Trend{Direction: TrendDown, Delta: -diff}
	default:
		return Trend{Direction: TrendSame}
	}
}
