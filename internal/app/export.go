package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"metric-alerts/internal/storage"
)

// Export renders a symbol's sample history as CSV and/or PNG, with admitted
// alert times overlaid as a second series.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Symbol == "" {
		return errors.New("--symbol is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; cannot export")
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.SamplesInWindow(ctx, opts.Symbol, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Str("symbol", opts.Symbol).Msg("no samples found for export window")
		return nil
	}

	events, err := store.ListAlertEvents(ctx, storage.EventFilter{Since: from})
	if err != nil {
		return err
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().
		Str("symbol", opts.Symbol).
		Int("total", len(samples)).
		Int("exported", len(downsampled)).
		Int("alerts", len(events)).
		Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, opts.Symbol, downsampled, events); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSamples(samples []storage.MetricSample, max int) []storage.MetricSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}

	result := make([]storage.MetricSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []storage.MetricSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"ts", "symbol", "source", "value"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		record := []string{
			sample.Timestamp.UTC().Format(time.RFC3339),
			sample.Symbol,
			sample.Source,
			sample.Value.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSamplesPNG(path, symbol string, samples []storage.MetricSample, events []storage.AlertEvent) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(samples))
	values := make([]float64, len(samples))
	for i, sample := range samples {
		x[i] = sample.Timestamp
		values[i] = sample.Value.InexactFloat64()
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    symbol,
			XValues: x,
			YValues: values,
		},
	}

	// Mark each admitted alert at the nearest sample's value so triggers are
	// visible against the metric line.
	if markers := alertMarkers(samples, events); len(markers.XValues) > 0 {
		series = append(series, markers)
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Value",
			ValueFormatter: valueFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func alertMarkers(samples []storage.MetricSample, events []storage.AlertEvent) chart.TimeSeries {
	markers := chart.TimeSeries{
		Name: "Alerts",
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    4,
		},
	}

	for _, event := range events {
		idx := nearestSample(samples, event.TriggeredAt)
		if idx < 0 {
			continue
		}
		markers.XValues = append(markers.XValues, event.TriggeredAt)
		markers.YValues = append(markers.YValues, samples[idx].Value.InexactFloat64())
	}

	return markers
}

func nearestSample(samples []storage.MetricSample, at time.Time) int {
	best := -1
	var bestDelta time.Duration
	for i, sample := range samples {
		delta := sample.Timestamp.Sub(at)
		if delta < 0 {
			delta = -delta
		}
		if best < 0 || delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}
	return best
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
