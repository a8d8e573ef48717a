package replay

import (
	"fmt"
	"strings"

	"github.com/okian/tally/internal/domain/model"
)

// Format writes entry as a daily update message: the month name and day on
// the first line, then one "Name: score" line per player in name order.
func Format(entry model.ScoreEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d", entry.Date.Month, entry.Date.Day)
	for _, player := range entry.Players() {
		fmt.Fprintf(&b, "\n%s: %d", player, entry.Scores[player])
	}
	return b.String()
}
