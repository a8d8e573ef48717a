package render

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/stats"
	"github.com/okian/tally/pkg/metrics"
)

// Sheet names in the exported workbook.
const (
	SheetScores      = "Scores"
	SheetGains       = "Daily gains"
	SheetLeaderboard = "Leaderboard"
)

// Workbook exports the ledger as XLSX: cumulative scores and daily gains
// (one row per date, one column per player) and the current leaderboard.
// Cells for dates a player was absent stay blank.
func Workbook(entries []model.ScoreEntry) (b []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordRenderLatency("xlsx", float64(time.Since(start).Milliseconds()))
		if err != nil {
			metrics.RecordErrorByComponent("render", "xlsx_failed")
		}
	}()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("xlsx style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetScores); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	for _, name := range []string{SheetGains, SheetLeaderboard} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("xlsx sheet: %w", err)
		}
	}

	players := make([]string, 0)
	for _, line := range stats.Series(entries) {
		players = append(players, line.Player)
	}
	header := make([]any, 0, len(players)+1)
	header = append(header, "Date")
	for _, p := range players {
		header = append(header, p)
	}

	scores := [][]any{header}
	gains := [][]any{header}
	timeline := stats.AllGains(entries)
	for i, e := range entries {
		daily := timeline[i]
		srow := []any{e.Date.String()}
		grow := []any{e.Date.String()}
		for _, p := range players {
			score, ok := e.Scores[p]
			if !ok {
				srow = append(srow, nil)
				grow = append(grow, nil)
				continue
			}
			srow = append(srow, score)
			if g := daily[p]; g.New {
				grow = append(grow, "new")
			} else {
				grow = append(grow, g.Value)
			}
		}
		scores = append(scores, srow)
		gains = append(gains, grow)
	}

	board := stats.Leaderboard(entries)
	leaders := [][]any{{"Rank", "Player", "Score", "Gain", "Streak", "Behind"}}
	for _, r := range board.Rows {
		leaders = append(leaders, []any{r.Rank, r.Player, r.Score, r.Gain, r.Streak, r.PointsBehind})
	}

	for sheet, rows := range map[string][][]any{
		SheetScores:      scores,
		SheetGains:       gains,
		SheetLeaderboard: leaders,
	} {
		if err := writeRows(f, sheet, rows, bold); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("xlsx %s: %w", sheet, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx %s: %w", sheet, err)
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("xlsx %s: %w", sheet, err)
	}
	return nil
}
