package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"cockpit-alerts/internal/series"
)

// metricPoint is one exported observation.
type metricPoint struct {
	Date  time.Time
	Value float64
}

// Export renders one metric series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Metric == "" {
		return errors.New("--metric is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	var from, to time.Time
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if opts.To != nil {
		to = opts.To.UTC()
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return errors.New("from must be before to")
	}

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	if rt.series == nil {
		return errors.New("series source not configured; cannot export")
	}

	frame, err := rt.series.Load(ctx)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}

	points, ok := metricPoints(frame.Between(from, to), opts.Metric)
	if !ok {
		return fmt.Errorf("metric %q not found in series", opts.Metric)
	}
	if len(points) == 0 {
		a.Logger.Info().Str("metric", opts.Metric).Msg("no observations found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Str("metric", opts.Metric).Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting series")

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, opts.Metric, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSeriesPNG(opts.PNGPath, opts.Metric, opts.Threshold, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func metricPoints(frame *series.Frame, metric string) ([]metricPoint, bool) {
	dates, values, ok := frame.Samples(metric)
	if !ok {
		return nil, false
	}
	points := make([]metricPoint, len(values))
	for i := range values {
		points[i] = metricPoint{Date: dates[i], Value: values[i]}
	}
	return points, true
}

func downsamplePoints(points []metricPoint, max int) []metricPoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]metricPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeSeriesCSV(path, metric string, points []metricPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"date", metric}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.Date.Format("2006-01-02"),
			strconv.FormatFloat(p.Value, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSeriesPNG(path, metric string, threshold *float64, points []metricPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Date
		y[i] = p.Value
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
			Name:           metric,
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    metric,
				XValues: x,
				YValues: y,
			},
		},
	}
	if threshold != nil {
		line := make([]float64, len(points))
		for i := range line {
			line[i] = *threshold
		}
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    fmt.Sprintf("threshold %.4g", *threshold),
			XValues: x,
			YValues: line,
			Style: chart.Style{
				StrokeColor:     chart.ColorRed,
				StrokeDashArray: []float64{5, 5},
			},
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
