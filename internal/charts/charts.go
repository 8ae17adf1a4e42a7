// Package charts renders sensor history into PNG images for chart screens.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/Anykei/telegram-ha-bot/internal/ha"
)

// ErrNoData means the window holds nothing plottable.
var ErrNoData = errors.New("charts: no plottable history")

var (
	lineColor = drawing.Color{R: 54, G: 134, B: 255, A: 255}
	fillColor = drawing.Color{R: 54, G: 134, B: 255, A: 60}
)

// Render draws the history window for one entity. Numeric sensors get a
// continuous line; binary sensors get a 0/1 step outline.
func Render(res *ha.HistoryResult, title string) ([]byte, error) {
	if res == nil || len(res.Points) == 0 {
		return nil, ErrNoData
	}

	xs, ys, ok := numericSeries(res)
	if !ok {
		xs, ys, ok = binarySeries(res)
	}
	if !ok || len(xs) == 0 {
		return nil, ErrNoData
	}
	// go-chart needs at least two points to span an axis.
	if len(xs) == 1 {
		xs = append(xs, res.End)
		ys = append(ys, ys[0])
	}

	graph := chart.Chart{
		Title:  title,
		Width:  900,
		Height: 500,
		XAxis: chart.XAxis{
			ValueFormatter: timeFormatter(res.Start, res.End),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: lineColor,
					StrokeWidth: 2,
					FillColor:   fillColor,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("charts: render: %w", err)
	}
	return buf.Bytes(), nil
}

// numericSeries extracts float-valued points, skipping unavailable gaps.
// It reports false when fewer than half the points parse, meaning the
// entity is not a numeric sensor.
func numericSeries(res *ha.HistoryResult) ([]time.Time, []float64, bool) {
	xs := make([]time.Time, 0, len(res.Points))
	ys := make([]float64, 0, len(res.Points))
	for _, p := range res.Points {
		v, err := strconv.ParseFloat(p.State, 64)
		if err != nil {
			continue
		}
		xs = append(xs, p.At)
		ys = append(ys, v)
	}
	if len(xs)*2 < len(res.Points) {
		return nil, nil, false
	}
	return xs, ys, true
}

// binarySeries maps on/off style states onto a step outline: each change
// emits the old level and the new level at the same timestamp.
func binarySeries(res *ha.HistoryResult) ([]time.Time, []float64, bool) {
	var xs []time.Time
	var ys []float64
	prev := -1.0
	for _, p := range res.Points {
		v, ok := binaryLevel(p.State)
		if !ok {
			continue
		}
		if prev >= 0 && v != prev {
			xs = append(xs, p.At)
			ys = append(ys, prev)
		}
		xs = append(xs, p.At)
		ys = append(ys, v)
		prev = v
	}
	if len(xs) == 0 {
		return nil, nil, false
	}
	// Extend the last level to the window edge so the plateau is visible.
	xs = append(xs, res.End)
	ys = append(ys, prev)
	return xs, ys, true
}

func binaryLevel(state string) (float64, bool) {
	switch state {
	case "on", "open", "detected", "home", "locked":
		return 1, true
	case "off", "closed", "clear", "not_home", "unlocked":
		return 0, true
	default:
		return 0, false
	}
}

// timeFormatter picks tick labels appropriate for the window size: clock
// time inside a day, day+time beyond.
func timeFormatter(start, end time.Time) chart.ValueFormatter {
	layout := "15:04"
	if end.Sub(start) > 24*time.Hour {
		layout = "02 Jan 15:04"
	}
	return func(v any) string {
		switch t := v.(type) {
		case time.Time:
			return t.Format(layout)
		case float64:
			return time.Unix(0, int64(t)).Format(layout)
		default:
			return ""
		}
	}
}
