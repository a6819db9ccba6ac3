package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cockpit-alerts/internal/alerting"
	"cockpit-alerts/internal/alerts"
)

type fakeEmail struct {
	calls    int
	subjects []string
	status   alerting.DeliveryStatus
}

func (f *fakeEmail) SendEmail(_ context.Context, subject, _ string) alerting.Delivery {
	f.calls++
	f.subjects = append(f.subjects, subject)
	if f.status == "" {
		return alerting.Delivery{Status: alerting.StatusOK}
	}
	return alerting.Delivery{Status: f.status}
}

type fakeWebhook struct {
	calls  int
	status alerting.DeliveryStatus
}

func (f *fakeWebhook) PostJSON(context.Context, any) alerting.Delivery {
	f.calls++
	if f.status == "" {
		return alerting.Delivery{Status: alerting.StatusOK}
	}
	return alerting.Delivery{Status: f.status, Message: "boom"}
}

type memState struct {
	st    State
	saves int
	err   error
}

func (m *memState) Load(context.Context) State { return m.st }

func (m *memState) Save(_ context.Context, st State) error {
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.st = st
	return nil
}

func snapshot(inventory int, samples ...alerts.Record) alerts.Snapshot {
	return alerts.Snapshot{
		GeneratedAt: time.Now(),
		Categories: []alerts.CategorySnapshot{
			{Category: alerts.CategoryInventory, Count: inventory, Samples: samples},
			{Category: alerts.CategoryCompliance, Samples: []alerts.Record{}},
		},
	}
}

func TestNotifyIfChangedIsStable(t *testing.T) {
	email, hook, state := &fakeEmail{}, &fakeWebhook{}, &memState{}
	d := NewDispatcher(email, hook, state, "", zerolog.Nop())
	ctx := context.Background()

	first := d.NotifyIfChanged(ctx, snapshot(0))
	require.Equal(t, StatusSent, first.Status)

	second := d.NotifyIfChanged(ctx, snapshot(0))
	assert.Equal(t, StatusNoChange, second.Status)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 1, email.calls)
	assert.Equal(t, 1, hook.calls)
	assert.Equal(t, 1, state.saves)
}

func TestNotifyIfChangedDetectsNewAlert(t *testing.T) {
	email, hook, state := &fakeEmail{}, &fakeWebhook{}, &memState{}
	d := NewDispatcher(email, hook, state, "Cockpit", zerolog.Nop())
	ctx := context.Background()

	allClear := d.NotifyIfChanged(ctx, snapshot(0))
	firing := d.NotifyIfChanged(ctx, snapshot(1, alerts.Record{{Key: "sku", Value: "A"}}))

	assert.NotEqual(t, allClear.Fingerprint, firing.Fingerprint)
	assert.Equal(t, StatusSent, firing.Status)
	assert.Equal(t, firing.Fingerprint, state.st.LastFingerprint)
	assert.Equal(t, []string{"Cockpit: all clear", "Cockpit: 1 active"}, email.subjects)
}

func TestNotifyIfChangedPersistsDespiteTransportFailure(t *testing.T) {
	email := &fakeEmail{status: alerting.StatusError}
	hook := &fakeWebhook{status: alerting.StatusError}
	state := &memState{}
	d := NewDispatcher(email, hook, state, "", zerolog.Nop())
	ctx := context.Background()
	snap := snapshot(2, alerts.Record{{Key: "sku", Value: "A"}}, alerts.Record{{Key: "sku", Value: "B"}})

	res := d.NotifyIfChanged(ctx, snap)
	require.Equal(t, StatusSent, res.Status)
	assert.Equal(t, alerting.StatusError, res.Webhook.Status)

	// unchanged content is not retried
	again := d.NotifyIfChanged(ctx, snap)
	assert.Equal(t, StatusNoChange, again.Status)
	assert.Equal(t, 1, hook.calls)
}

func TestNotifyIfChangedSurvivesStateWriteFailure(t *testing.T) {
	state := &memState{err: errors.New("disk full")}
	d := NewDispatcher(&fakeEmail{}, &fakeWebhook{}, state, "", zerolog.Nop())

	res := d.NotifyIfChanged(context.Background(), snapshot(0))
	assert.Equal(t, StatusSent, res.Status)
	assert.Equal(t, 1, state.saves)
}

func TestSendBypassesState(t *testing.T) {
	email, hook := &fakeEmail{}, &fakeWebhook{}
	state := &memState{}
	d := NewDispatcher(email, hook, state, "", zerolog.Nop())
	ctx := context.Background()

	first := d.NotifyIfChanged(ctx, snapshot(0))
	resent := d.Send(ctx, snapshot(0))

	assert.Equal(t, StatusSent, resent.Status)
	assert.Equal(t, first.Fingerprint, resent.Fingerprint)
	assert.NotEqual(t, first.RunID, resent.RunID)
	assert.Equal(t, 2, email.calls)
	assert.Equal(t, 1, state.saves)
}

func TestEmailSkippedWebhookDelivered(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(
		alerting.NewEmailNotifier(alerting.EmailConfig{}, zerolog.Nop()),
		alerting.NewWebhookNotifier(alerting.WebhookConfig{URL: srv.URL}, zerolog.Nop()),
		NewFileStateStore(filepath.Join(t.TempDir(), "state.json"), zerolog.Nop()),
		"", zerolog.Nop(),
	)

	res := d.NotifyIfChanged(context.Background(), snapshot(1, alerts.Record{{Key: "sku", Value: "A"}}))
	assert.Equal(t, alerting.StatusSkipped, res.Email.Status)
	assert.Equal(t, alerting.StatusOK, res.Webhook.Status)
	assert.Equal(t, 1, hits)
}

func TestFingerprintIgnoresTimestampAndTrailingFields(t *testing.T) {
	a := snapshot(1, alerts.Record{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}, {Key: "d", Value: "4"}, {Key: "e", Value: "5"}, {Key: "f", Value: "6"}, {Key: "g", Value: "x"}})
	b := snapshot(1, alerts.Record{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}, {Key: "d", Value: "4"}, {Key: "e", Value: "5"}, {Key: "f", Value: "6"}, {Key: "g", Value: "y"}})
	b.GeneratedAt = a.GeneratedAt.Add(time.Hour)
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	c := snapshot(1, alerts.Record{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}, {Key: "c", Value: "3"}, {Key: "d", Value: "4"}, {Key: "e", Value: "5"}, {Key: "f", Value: "7"}})
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
	assert.Len(t, Fingerprint(a), 64)
}

func TestRender(t *testing.T) {
	snap := snapshot(1, alerts.Record{{Key: "sku", Value: "<A&B>"}, {Key: "days_of_cover", Value: "3.5"}})
	snap.Categories[1].Err = errors.New("db down")

	html, err := Render(snap)
	require.NoError(t, err)
	assert.Contains(t, html, "Low stock (1)")
	assert.Contains(t, html, "&lt;A&amp;B&gt;")
	assert.NotContains(t, html, "Compliance documents expiring (")
	assert.Contains(t, html, "Unavailable: compliance")

	allClear, err := Render(snapshot(0))
	require.NoError(t, err)
	assert.Contains(t, allClear, "No active alerts")
}

func TestFileStateStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStateStore(path, zerolog.Nop())
	ctx := context.Background()

	assert.Equal(t, State{}, store.Load(ctx))

	sent := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, State{LastFingerprint: "abc", SentAt: sent}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"last_fp": "abc"`))

	loaded := store.Load(ctx)
	assert.Equal(t, "abc", loaded.LastFingerprint)
	assert.True(t, loaded.SentAt.Equal(sent))

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	assert.Equal(t, State{}, store.Load(ctx))
}

func TestConcurrentNotifySendsOnce(t *testing.T) {
	email, hook, state := &fakeEmail{}, &fakeWebhook{}, &memState{}
	d := NewDispatcher(email, hook, state, "", zerolog.Nop())
	snap := snapshot(1, alerts.Record{{Key: "sku", Value: "A"}})

	var wg sync.WaitGroup
	results := make([]Result, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.NotifyIfChanged(context.Background(), snap)
		}(i)
	}
	wg.Wait()

	sent := 0
	for _, r := range results {
		if r.Status == StatusSent {
			sent++
		}
	}
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, email.calls)
	assert.Equal(t, 1, hook.calls)
}

func TestSubjectReportsUnavailableCategories(t *testing.T) {
	assert.Equal(t, "Cockpit: all clear", Subject("Cockpit", snapshot(0)))
	assert.Equal(t, "Seller cockpit alerts: 2 active", Subject("", snapshot(2)))

	degraded := snapshot(0)
	degraded.Categories[0].Err = errors.New("db down")
	degraded.Categories[1].Err = errors.New("db down")
	assert.Equal(t, "Cockpit: 0 active, 2 unavailable", Subject("Cockpit", degraded))

	html, err := Render(degraded)
	require.NoError(t, err)
	assert.NotContains(t, html, "All clear")
	assert.Contains(t, html, "2 could not be checked")

	partial := snapshot(3)
	partial.Categories[1].Err = errors.New("timeout")
	assert.Equal(t, "Cockpit: 3 active, 1 unavailable", Subject("Cockpit", partial))
}
