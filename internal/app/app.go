package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cockpit-alerts/internal/alerting"
	"cockpit-alerts/internal/alerts"
	"cockpit-alerts/internal/config"
	"cockpit-alerts/internal/dispatch"
	"cockpit-alerts/internal/rules"
	"cockpit-alerts/internal/scheduler"
	"cockpit-alerts/internal/series"
	"cockpit-alerts/internal/server"
	"cockpit-alerts/internal/service"
	"cockpit-alerts/internal/sheets"
	"cockpit-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output; stdout when nil.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// runtime holds everything opened for one command; close releases it.
type runtime struct {
	rules   rules.Store
	state   dispatch.StateStore
	pg      *storage.Store
	series  series.Source
	closers []func()
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// open connects the configured backends. A missing database DSN is not
// fatal: the database-backed categories then report as unavailable.
func (a *App) open(ctx context.Context) (*runtime, error) {
	rt := &runtime{}

	if err := a.openRuleStorage(rt); err != nil {
		rt.close()
		return nil, err
	}

	pg, err := a.openPostgres(ctx)
	if err != nil {
		rt.close()
		return nil, err
	}
	if pg != nil {
		rt.pg = pg
		rt.closers = append(rt.closers, pg.Close)
	}

	src, err := a.newSeriesSource(ctx, pg)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.series = src
	return rt, nil
}

func (a *App) openRuleStorage(rt *runtime) error {
	switch a.Config.Storage.Backend {
	case config.BackendSQLite:
		db, err := storage.NewSQLiteStore(a.Config.Storage.SQLitePath, a.Logger)
		if err != nil {
			return err
		}
		rt.rules = db
		rt.state = db.DispatchState()
		rt.closers = append(rt.closers, func() {
			if err := db.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close sqlite failed")
			}
		})
	default:
		rt.rules = rules.NewFileStore(a.Config.Storage.RulesPath, a.Logger)
		rt.state = dispatch.NewFileStateStore(a.Config.Storage.StatePath, a.Logger)
	}
	return nil
}

func (a *App) openPostgres(ctx context.Context) (*storage.Store, error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if errors.Is(err, storage.ErrNotConfigured) {
		a.Logger.Warn().Msg("database.dsn not configured; inventory, compliance, margin and ppc categories disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return storage.NewStore(pool), nil
}

func (a *App) newSeriesSource(ctx context.Context, pg *storage.Store) (series.Source, error) {
	cfg := a.Config.Series
	switch cfg.Source {
	case config.SourceSheets:
		reader, err := sheets.NewSeriesReader(ctx, sheets.Config{
			SpreadsheetID:   a.Config.Sheets.SpreadsheetID,
			Range:           a.Config.Sheets.Range,
			CredentialsFile: a.Config.Sheets.CredentialsFile,
			Timeout:         a.Config.Sheets.Timeout,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		return reader, nil
	case config.SourceCSV:
		return series.CSVSource{Path: cfg.CSVPath}, nil
	case config.SourcePostgres:
		if pg == nil {
			// rule digest degrades to an unavailable category
			return nil, nil
		}
		return storage.MetricsSource{Store: pg, LookbackDays: cfg.LookbackDays}, nil
	default:
		return nil, fmt.Errorf("unsupported series.source %q", cfg.Source)
	}
}

func (a *App) newDispatcher(state dispatch.StateStore) *dispatch.Dispatcher {
	n := a.Config.Notify
	email := alerting.NewEmailNotifier(alerting.EmailConfig{
		APIKey:  n.Email.APIKey,
		From:    n.Email.From,
		To:      n.Email.To,
		APIBase: n.Email.APIBase,
		Timeout: n.Email.Timeout,
	}, a.Logger)
	webhook := alerting.NewWebhookNotifier(alerting.WebhookConfig{
		URL:     n.Webhook.URL,
		Headers: n.Webhook.Headers,
		Timeout: n.Webhook.Timeout,
	}, a.Logger)
	return dispatch.NewDispatcher(email, webhook, state, n.Subject, a.Logger)
}

func (a *App) buildService(rt *runtime, sched *scheduler.Scheduler) *service.Service {
	var readers alerts.Readers
	if rt.pg != nil {
		readers = alerts.Readers{Inventory: rt.pg, Compliance: rt.pg, Margins: rt.pg, Campaigns: rt.pg}
	}
	agg := alerts.NewAggregator(alerts.StandardSources(a.Config.Alerts.Thresholds(), readers, rt.rules, rt.series), a.Logger)

	return service.New(service.Deps{
		Aggregator: agg,
		Dispatcher: a.newDispatcher(rt.state),
		Rules:      rt.rules,
		Series:     rt.series,
		Scheduler:  sched,
	}, a.Logger)
}

// withService opens the backends, runs fn and releases everything.
func (a *App) withService(ctx context.Context, fn func(*service.Service) error) error {
	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(a.buildService(rt, nil))
}

// Run executes the scheduled dispatch loop until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched, err := scheduler.New(scheduler.Options{
		Schedule:     a.Config.Scheduler.Schedule,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	svc := a.buildService(rt, sched)

	a.Logger.Info().Str("schedule", a.Config.Scheduler.Schedule).Msg("starting alert dispatch loop")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert dispatch loop stopped")
	return nil
}

// Serve runs the HTTP API until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.withService(ctx, func(svc *service.Service) error {
		srv := server.New(svc, server.Options{
			Addr:            a.Config.Server.Addr,
			Mode:            a.Config.Server.Mode,
			ShutdownTimeout: a.Config.Server.ShutdownTimeout,
		}, a.Logger)
		return srv.Run(ctx)
	})
}

// ExportOptions hold parameters for exporting a metric series.
type ExportOptions struct {
	Metric    string
	Threshold *float64
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// PreviewOptions configure the preview command.
type PreviewOptions struct {
	OutPath string
}
