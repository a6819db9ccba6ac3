package service

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cockpit-alerts/internal/alerting"
	"cockpit-alerts/internal/alerts"
	"cockpit-alerts/internal/dispatch"
	"cockpit-alerts/internal/rules"
	"cockpit-alerts/internal/series"
)

type countingEmail struct{ calls int }

func (c *countingEmail) SendEmail(context.Context, string, string) alerting.Delivery {
	c.calls++
	return alerting.Delivery{Status: alerting.StatusOK}
}

type countingWebhook struct{ calls int }

func (c *countingWebhook) PostJSON(context.Context, any) alerting.Delivery {
	c.calls++
	return alerting.Delivery{Status: alerting.StatusSkipped}
}

type inventory struct{ items []alerts.InventoryItem }

func (i *inventory) ListInventory(context.Context) ([]alerts.InventoryItem, error) {
	return i.items, nil
}

type staticSource struct {
	frame *series.Frame
	err   error
}

func (s staticSource) Load(context.Context) (*series.Frame, error) { return s.frame, s.err }

type fixture struct {
	svc     *Service
	inv     *inventory
	email   *countingEmail
	webhook *countingWebhook
	store   *rules.FileStore
}

func newFixture(t *testing.T, src series.Source) fixture {
	t.Helper()
	dir := t.TempDir()
	logger := zerolog.Nop()

	inv := &inventory{}
	store := rules.NewFileStore(filepath.Join(dir, "rules.json"), logger)
	agg := alerts.NewAggregator([]alerts.Source{
		alerts.LowStock{Reader: inv, MinDaysOfCover: 14},
		alerts.RuleDigest{Rules: store, Series: src},
	}, logger)

	email, webhook := &countingEmail{}, &countingWebhook{}
	d := dispatch.NewDispatcher(email, webhook, dispatch.NewFileStateStore(filepath.Join(dir, "state.json"), logger), "Cockpit", logger)

	svc := New(Deps{Aggregator: agg, Dispatcher: d, Rules: store, Series: src}, logger)
	return fixture{svc: svc, inv: inv, email: email, webhook: webhook, store: store}
}

func acosFrame(t *testing.T) *series.Frame {
	t.Helper()
	dates := make([]time.Time, 7)
	for i := range dates {
		dates[i] = time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC)
	}
	f, err := series.NewFrame(dates, map[string][]float64{"acos": {0.2, 0.22, 0.21, 0.24, 0.26, 0.28, 0.30}})
	require.NoError(t, err)
	return f
}

func TestNotifyIfChangedLifecycle(t *testing.T) {
	fx := newFixture(t, staticSource{frame: acosFrame(t)})
	ctx := context.Background()

	first, snap := fx.svc.NotifyIfChanged(ctx)
	assert.Equal(t, dispatch.StatusSent, first.Status)
	assert.Equal(t, 0, snap.Total())

	second, _ := fx.svc.NotifyIfChanged(ctx)
	assert.Equal(t, dispatch.StatusNoChange, second.Status)
	assert.Equal(t, 1, fx.email.calls)

	fx.inv.items = []alerts.InventoryItem{{SKU: "A", UnitsAvailable: 3, ReorderPoint: 10, DaysOfCover: decimal.NewFromInt(2)}}
	third, snap := fx.svc.NotifyIfChanged(ctx)
	assert.Equal(t, dispatch.StatusSent, third.Status)
	assert.Equal(t, 1, snap.Total())
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)

	resent, _ := fx.svc.ResendLatest(ctx)
	assert.Equal(t, dispatch.StatusSent, resent.Status)
	assert.Equal(t, third.Fingerprint, resent.Fingerprint)
	assert.Equal(t, 3, fx.email.calls)
	assert.Equal(t, 3, fx.webhook.calls)
}

func TestRuleDigestFlowsIntoSnapshot(t *testing.T) {
	fx := newFixture(t, staticSource{frame: acosFrame(t)})
	ctx := context.Background()
	require.NoError(t, fx.store.Add(ctx, rules.New("acos", rules.OpGreater, 0.25, 7)))

	preview, err := fx.svc.Preview(ctx, "Cockpit")
	require.NoError(t, err)

	digest, ok := preview.Snapshot.Get(alerts.CategoryRuleDigest)
	require.True(t, ok)
	require.Equal(t, 1, digest.Count)
	reason, _ := digest.Samples[0].Get("reason")
	assert.Contains(t, reason, "acos(0.3000) > 0.2500 over 7 samples")
	assert.Equal(t, "Cockpit: 1 active", preview.Subject)
	assert.Contains(t, preview.HTML, "Metric rules fired (1)")
	assert.Equal(t, 0, fx.email.calls)
}

func TestCheckRules(t *testing.T) {
	fx := newFixture(t, staticSource{frame: acosFrame(t)})
	ctx := context.Background()
	require.NoError(t, fx.store.Add(ctx, rules.New("acos", rules.OpGreaterEqual, 0.30, 3)))
	require.NoError(t, fx.store.Add(ctx, rules.New("sessions", rules.OpLess, 10, 3)))

	outcomes, err := fx.svc.CheckRules(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Passed)
	assert.Equal(t, rules.KindNoData, outcomes[1].Kind)
}

func TestCheckRulesWarnsOnShortWindow(t *testing.T) {
	ctx := context.Background()
	store := rules.NewFileStore(filepath.Join(t.TempDir(), "rules.json"), zerolog.Nop())
	require.NoError(t, store.Add(ctx, rules.New("acos", rules.OpGreater, 0.25, 30)))
	require.NoError(t, store.Add(ctx, rules.New("acos", rules.OpGreater, 0.25, 7)))

	var buf bytes.Buffer
	svc := New(Deps{Rules: store, Series: staticSource{frame: acosFrame(t)}}, zerolog.New(&buf))

	outcomes, err := svc.CheckRules(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].ShortWindow())
	assert.Equal(t, 7, outcomes[0].Samples)
	assert.False(t, outcomes[1].ShortWindow())

	logged := buf.String()
	assert.Equal(t, 1, strings.Count(logged, "fewer samples than its lookback"))
	assert.Contains(t, logged, `"lookback_days":30`)
	assert.Contains(t, logged, `"samples":7`)
}

func TestCheckRulesSeriesFailure(t *testing.T) {
	fx := newFixture(t, staticSource{err: errors.New("sheet offline")})
	ctx := context.Background()
	require.NoError(t, fx.store.Add(ctx, rules.New("acos", rules.OpGreater, 0.25, 7)))

	outcomes, err := fx.svc.CheckRules(ctx)
	require.Error(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, rules.ReasonNoData, outcomes[0].Reason)

	snap := fx.svc.Snapshot(ctx)
	digest, _ := snap.Get(alerts.CategoryRuleDigest)
	assert.Error(t, digest.Err)
	assert.Equal(t, 0, digest.Count)
}

func TestRunWithoutScheduler(t *testing.T) {
	fx := newFixture(t, staticSource{})
	assert.Error(t, fx.svc.Run(context.Background()))
	assert.NoError(t, fx.svc.Tick(context.Background(), time.Now()))
}
