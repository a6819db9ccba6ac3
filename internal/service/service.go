package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cockpit-alerts/internal/alerts"
	"cockpit-alerts/internal/dispatch"
	"cockpit-alerts/internal/rules"
	"cockpit-alerts/internal/scheduler"
	"cockpit-alerts/internal/series"
)

// Deps are the collaborators of a Service. Scheduler is only needed by Run.
type Deps struct {
	Aggregator *alerts.Aggregator
	Dispatcher *dispatch.Dispatcher
	Rules      rules.Store
	Series     series.Source
	Scheduler  *scheduler.Scheduler
}

// Service orchestrates aggregation, rule evaluation and dispatch.
type Service struct {
	aggregator *alerts.Aggregator
	dispatcher *dispatch.Dispatcher
	rules      rules.Store
	series     series.Source
	scheduler  *scheduler.Scheduler
	logger     zerolog.Logger
}

// Preview is a rendered snapshot that was not sent.
type Preview struct {
	Snapshot    alerts.Snapshot
	Fingerprint string
	Subject     string
	HTML        string
}

// New constructs the alert service.
func New(deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		aggregator: deps.Aggregator,
		dispatcher: deps.Dispatcher,
		rules:      deps.Rules,
		series:     deps.Series,
		scheduler:  deps.Scheduler,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled notify loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Tick)
}

// Tick 执行一次调度周期：汇总并在内容变化时发送。
func (s *Service) Tick(ctx context.Context, at time.Time) error {
	res, snap := s.NotifyIfChanged(ctx)
	s.logger.Info().
		Time("at", at).
		Str("status", res.Status).
		Int("total", snap.Total()).
		Int("failed_categories", len(snap.Failed())).
		Msg("dispatch cycle finished")
	return nil
}

// Snapshot aggregates the current alert state.
func (s *Service) Snapshot(ctx context.Context) alerts.Snapshot {
	return s.aggregator.Aggregate(ctx)
}

// NotifyIfChanged aggregates and dispatches when the fingerprint changed.
func (s *Service) NotifyIfChanged(ctx context.Context) (dispatch.Result, alerts.Snapshot) {
	snap := s.Snapshot(ctx)
	return s.dispatcher.NotifyIfChanged(ctx, snap), snap
}

// ResendLatest rebuilds the snapshot and sends it regardless of state.
func (s *Service) ResendLatest(ctx context.Context) (dispatch.Result, alerts.Snapshot) {
	snap := s.Snapshot(ctx)
	return s.dispatcher.Send(ctx, snap), snap
}

// Preview renders the current snapshot without sending or touching state.
func (s *Service) Preview(ctx context.Context, subject string) (Preview, error) {
	snap := s.Snapshot(ctx)
	html, err := dispatch.Render(snap)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Snapshot:    snap,
		Fingerprint: dispatch.Fingerprint(snap),
		Subject:     dispatch.Subject(subject, snap),
		HTML:        html,
	}, nil
}

// CheckRules evaluates every stored rule against the current series.
// When the series cannot be loaded the outcomes still come back, each
// reporting no data, together with the load error.
func (s *Service) CheckRules(ctx context.Context) ([]rules.Outcome, error) {
	if s.rules == nil {
		return nil, errors.New("rule store not configured")
	}
	stored := s.rules.List(ctx)

	var frame *series.Frame
	var loadErr error
	if s.series == nil {
		loadErr = errors.New("series source not configured")
	} else if frame, loadErr = s.series.Load(ctx); loadErr != nil {
		loadErr = fmt.Errorf("load series: %w", loadErr)
	}
	if loadErr != nil {
		s.logger.Warn().Err(loadErr).Msg("series unavailable; rules report no data")
		frame = nil
	}

	outcomes := rules.EvaluateAll(stored, frame)
	for _, out := range outcomes {
		if out.ShortWindow() {
			s.logger.Warn().
				Str("metric", out.Rule.Metric).
				Int("lookback_days", out.Rule.LookbackDays).
				Int("samples", out.Samples).
				Msg("rule evaluated on fewer samples than its lookback; check series.lookback_days")
		}
	}
	return outcomes, loadErr
}

// Rules exposes the rule store to the CLI and HTTP layers.
func (s *Service) Rules() rules.Store {
	return s.rules
}

// Series exposes the series source.
func (s *Service) Series() series.Source {
	return s.series
}
