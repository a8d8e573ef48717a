// Package render draws the ledger as a PNG progress chart and exports it as
// an XLSX workbook.
package render

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/stats"
	"github.com/okian/tally/pkg/metrics"
)

// Palette colours the chart.
type Palette struct {
	Background drawing.Color
	Text       drawing.Color
}

// DefaultPalette is a dark background with light text.
var DefaultPalette = Palette{ //nolint:gochecknoglobals // read-only default
	Background: drawing.ColorFromHex("111827"),
	Text:       drawing.ColorFromHex("e5e7eb"),
}

// ChartOptions sizes and colours the progress chart.
type ChartOptions struct {
	Width   int
	Height  int
	Title   string
	Palette Palette
}

func (o ChartOptions) withDefaults() ChartOptions {
	if o.Width <= 0 {
		o.Width = 960
	}
	if o.Height <= 0 {
		o.Height = 480
	}
	if o.Palette == (Palette{}) {
		o.Palette = DefaultPalette
	}
	return o
}

// ProgressChart renders each player's cumulative score over time. Players
// missing from the latest entry are drawn dashed. An empty ledger renders a
// "no data" placeholder.
func ProgressChart(entries []model.ScoreEntry, opts ChartOptions) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRenderLatency("png", float64(time.Since(start).Milliseconds()))
	}()

	opts = opts.withDefaults()
	if len(entries) == 0 {
		return placeholder(opts, "No scores yet")
	}

	lines := stats.Series(entries)
	maxScore := 1
	series := make([]chart.Series, 0, len(lines))
	for i, line := range lines {
		xs := make([]time.Time, len(line.Points))
		ys := make([]float64, len(line.Points))
		for j, p := range line.Points {
			xs[j] = p.Date.Time()
			ys[j] = float64(p.Score)
			maxScore = max(maxScore, p.Score)
		}
		colour := chart.GetDefaultColor(i)
		style := chart.Style{
			StrokeColor: colour,
			StrokeWidth: 2,
			DotColor:    colour,
			DotWidth:    3,
		}
		if !line.Active {
			style.StrokeDashArray = []float64{5, 5}
		}
		series = append(series, chart.TimeSeries{
			Name:    line.Player,
			XValues: xs,
			YValues: ys,
			Style:   style,
		})
	}

	// Explicit ranges keep a single entry or an all-zero ledger drawable.
	first, last := entries[0].Date, entries[len(entries)-1].Date
	if first == last {
		first, last = first.AddDays(-1), last.AddDays(1)
	}

	graph := chart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		TitleStyle: chart.Style{
			FontColor: opts.Palette.Text,
		},
		Background: chart.Style{
			FillColor: opts.Palette.Background,
			Padding:   chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{
			FillColor: opts.Palette.Background,
		},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("Jan 2"),
			Style: chart.Style{
				FontColor:   opts.Palette.Text,
				StrokeColor: opts.Palette.Text,
			},
			Range: &chart.ContinuousRange{
				Min: chart.TimeToFloat64(first.Time()),
				Max: chart.TimeToFloat64(last.Time()),
			},
		},
		YAxis: chart.YAxis{
			Name: "Score",
			Style: chart.Style{
				FontColor:   opts.Palette.Text,
				StrokeColor: opts.Palette.Text,
			},
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: float64(maxScore) * 1.1,
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph, chart.Style{
		FillColor:   opts.Palette.Background,
		FontColor:   opts.Palette.Text,
		StrokeColor: opts.Palette.Text,
	})}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		metrics.RecordErrorByComponent("render", "chart_failed")
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// placeholder draws msg centred on an empty canvas.
func placeholder(opts ChartOptions, msg string) ([]byte, error) {
	r, err := chart.PNG(opts.Width, opts.Height)
	if err != nil {
		return nil, fmt.Errorf("render placeholder: %w", err)
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return nil, fmt.Errorf("render placeholder: %w", err)
	}

	w, h := opts.Width, opts.Height
	r.SetFillColor(opts.Palette.Background)
	r.MoveTo(0, 0)
	r.LineTo(w, 0)
	r.LineTo(w, h)
	r.LineTo(0, h)
	r.Close()
	r.Fill()

	r.SetFont(font)
	r.SetFontColor(opts.Palette.Text)
	r.SetFontSize(14.0)
	tb := r.MeasureText(msg)
	r.Text(msg, (w-tb.Width())/2, (h+tb.Height())/2)

	var buf bytes.Buffer
	if err := r.Save(&buf); err != nil {
		return nil, fmt.Errorf("render placeholder: %w", err)
	}
	return buf.Bytes(), nil
}
