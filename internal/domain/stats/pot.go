package stats

import "slices"

// PotConfig describes the side bet.
type PotConfig struct {
	BetAmount int
	// Excluded players are in the challenge but not in the bet.
	Excluded []string
	// Payouts are percentages of the pot by finishing place.
	Payouts []int
}

// Payout is one place's share of the pot.
type Payout struct {
	Place   int     `json:"place"`
	Percent int     `json:"percent"`
	Amount  float64 `json:"amount"`
}

// Pot is the prize pool for the current players.
type Pot struct {
	Total     int      `json:"total"`
	Bettors   int      `json:"bettors"`
	BetAmount int      `json:"bet_amount"`
	Payouts   []Payout `json:"payouts"`
}

// PrizePool computes the pot for players. Returns nil when no bet is set.
func PrizePool(players []string, cfg PotConfig) *Pot {
	if cfg.BetAmount <= 0 {
		return nil
	}
	bettors := 0
	for _, p := range players {
		if !slices.Contains(cfg.Excluded, p) {
			bettors++
		}
	}
	pot := &Pot{
		Total:     bettors * cfg.BetAmount,
		Bettors:   bettors,
		BetAmount: cfg.BetAmount,
		Payouts:   make([]Payout, 0, len(cfg.Payouts)),
	}
	for i, pct := range cfg.Payouts {
		pot.Payouts = append(pot.Payouts, Payout{
			Place:   i + 1,
			Percent: pct,
			Amount:  float64(pot.Total*pct) / 100,
		})
	}
	return pot
}
