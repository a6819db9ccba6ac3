package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"cockpit-alerts/internal/series"
	"cockpit-alerts/internal/storage"
)

// BackfillOptions configure loading a KPI export into daily_metrics.
type BackfillOptions struct {
	Path   string
	From   time.Time
	To     time.Time
	DryRun bool
}

// Backfill 将 CSV 中的每日指标写入 daily_metrics。
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	file, err := os.Open(opts.Path)
	if err != nil {
		return fmt.Errorf("open backfill csv: %w", err)
	}
	defer file.Close()

	frame, err := series.ReadCSV(file)
	if err != nil {
		return err
	}
	frame = frame.Between(opts.From, opts.To)

	metrics := dailyMetrics(frame)
	if len(metrics) == 0 {
		return errors.New("回填范围为空，请检查 --from/--to")
	}

	if opts.DryRun {
		a.Logger.Warn().Int("observations", len(metrics)).Int("days", frame.Len()).Msg("回填 dry-run：不会写入数据库")
		return nil
	}

	pg, err := a.openPostgres(ctx)
	if err != nil {
		return err
	}
	if pg == nil {
		return errors.New("database.dsn 未配置，无法回填")
	}
	defer pg.Close()

	if err := pg.UpsertDailyMetrics(ctx, metrics); err != nil {
		return err
	}
	a.Logger.Info().Int("observations", len(metrics)).Int("days", frame.Len()).Msg("回填完成")
	return nil
}

// dailyMetrics flattens a frame into rows, dropping missing cells.
func dailyMetrics(frame *series.Frame) []storage.DailyMetric {
	dates := frame.Dates()
	var out []storage.DailyMetric
	for _, name := range frame.Columns() {
		values, _ := frame.Column(name)
		for i, v := range values {
			if math.IsNaN(v) {
				continue
			}
			out = append(out, storage.DailyMetric{Day: dates[i], Metric: name, Value: v})
		}
	}
	return out
}
