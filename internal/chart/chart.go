package chart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"

	"fundingwatch/internal/state"
)

// ErrNotEnoughSamples is returned when a window cannot form a line.
var ErrNotEnoughSamples = errors.New("chart: need at least two samples")

// Series is one pair's sample window.
type Series struct {
	Pair    string
	Samples []state.Sample
}

// Options size the rendered image and optionally draw threshold lines.
type Options struct {
	Width          int
	Height         int
	Title          string
	LongThreshold  *float64
	ShortThreshold *float64
}

// RenderPNG 将一个或多个费率窗口绘制为 PNG。
func RenderPNG(w io.Writer, series []Series, opts Options) error {
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 512
	}

	var (
		lines    []gochart.Series
		min, max time.Time
	)
	for _, s := range series {
		if len(s.Samples) < 2 {
			continue
		}
		x := make([]time.Time, len(s.Samples))
		y := make([]float64, len(s.Samples))
		for i, sample := range s.Samples {
			x[i] = sample.Timestamp
			y[i] = sample.Rate * 100
		}
		if min.IsZero() || x[0].Before(min) {
			min = x[0]
		}
		if last := x[len(x)-1]; last.After(max) {
			max = last
		}
		lines = append(lines, gochart.TimeSeries{Name: s.Pair, XValues: x, YValues: y})
	}
	if len(lines) == 0 {
		return ErrNotEnoughSamples
	}

	lines = appendThreshold(lines, "Long threshold", opts.LongThreshold, min, max)
	lines = appendThreshold(lines, "Short threshold", opts.ShortThreshold, min, max)

	rateFormatter := func(v interface{}) string {
		return gochart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	yAxis := gochart.YAxis{
		Name:           "Funding rate (%)",
		ValueFormatter: rateFormatter,
	}
	if lo, hi := yBounds(lines); lo == hi {
		// go-chart refuses a zero-height range.
		yAxis.Range = &gochart.ContinuousRange{Min: lo - 0.01, Max: hi + 0.01}
	}

	graph := gochart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: gochart.XAxis{
			ValueFormatter: gochart.TimeMinuteValueFormatter,
		},
		YAxis:  yAxis,
		Series: lines,
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	return graph.Render(gochart.PNG, w)
}

func appendThreshold(lines []gochart.Series, name string, v *float64, from, to time.Time) []gochart.Series {
	if v == nil {
		return lines
	}
	return append(lines, gochart.TimeSeries{
		Name:    name,
		XValues: []time.Time{from, to},
		YValues: []float64{*v * 100, *v * 100},
		Style: gochart.Style{
			StrokeDashArray: []float64{5, 5},
			StrokeColor:     gochart.ColorAlternateGray,
		},
	})
}

func yBounds(lines []gochart.Series) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, l := range lines {
		ts, ok := l.(gochart.TimeSeries)
		if !ok {
			continue
		}
		for _, v := range ts.YValues {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}

// PNGBytes renders into memory, e.g. for a chat photo upload.
func PNGBytes(series []Series, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderPNG(&buf, series, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile renders to path, creating parent directories.
func WriteFile(path string, series []Series, opts Options) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := RenderPNG(file, series, opts); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return nil
}

// FromHistory turns a persisted history map into series sorted by pair.
func FromHistory(history map[string][]state.Sample) []Series {
	pairs := make([]string, 0, len(history))
	for pair := range history {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	out := make([]Series, 0, len(pairs))
	for _, pair := range pairs {
		out = append(out, Series{Pair: pair, Samples: history[pair]})
	}
	return out
}
