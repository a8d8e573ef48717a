package stats

import "github.com/okian/tally/internal/domain/model"

// FunStats bundles the dashboard's fun stats.
type FunStats struct {
	Entries        int           `json:"entries"`
	HotStreaks     []Streak      `json:"hot_streaks"`
	MostConsistent []Consistency `json:"most_consistent"`
	Rivalry        *Rivalry      `json:"rivalry"`
	Slackers       []Inactivity  `json:"slackers"`
	BigMover       *Mover        `json:"big_mover"`
	Pot            *Pot          `json:"pot"`
}

// Summarize computes every fun stat over entries.
func Summarize(entries []model.ScoreEntry, pot PotConfig) FunStats {
	fs := FunStats{
		Entries:        len(entries),
		HotStreaks:     orEmpty(HotStreaks(entries)),
		MostConsistent: orEmpty(MostConsistent(entries)),
		Rivalry:        FindRivalry(entries),
		Slackers:       orEmpty(Slackers(entries)),
		BigMover:       BigMover(entries),
	}
	if len(entries) > 0 {
		fs.Pot = PrizePool(entries[len(entries)-1].Players(), pot)
	}
	return fs
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
