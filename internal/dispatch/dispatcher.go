package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cockpit-alerts/internal/alerting"
	"cockpit-alerts/internal/alerts"
	"cockpit-alerts/internal/metrics"
)

// Result statuses.
const (
	StatusNoChange = "no_change"
	StatusSent     = "sent"
)

// Result reports what one dispatch did.
type Result struct {
	Status      string            `json:"status"`
	RunID       string            `json:"run_id"`
	Fingerprint string            `json:"fingerprint"`
	Email       alerting.Delivery `json:"email"`
	Webhook     alerting.Delivery `json:"webhook"`
}

// WebhookPayload is the JSON body posted to the webhook.
type WebhookPayload struct {
	Fingerprint string                    `json:"fingerprint"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Total       int                       `json:"total"`
	Categories  []alerts.CategorySnapshot `json:"categories"`
}

// Dispatcher sends a snapshot when its fingerprint differs from the last one.
// Dispatches run one at a time so overlapping callers cannot both act on
// the same stored fingerprint.
type Dispatcher struct {
	mu      sync.Mutex
	email   alerting.EmailSender
	webhook alerting.WebhookSender
	state   StateStore
	subject string
	logger  zerolog.Logger
	now     func() time.Time
}

// NewDispatcher wires the transports and the state store.
func NewDispatcher(email alerting.EmailSender, webhook alerting.WebhookSender, state StateStore, subject string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		email:   email,
		webhook: webhook,
		state:   state,
		subject: subject,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		now:     time.Now,
	}
}

// NotifyIfChanged dispatches snap only when its fingerprint is new.
// The new fingerprint is stored whatever the transports report, so a
// failed send of unchanged content is not retried on the next cycle.
func (d *Dispatcher) NotifyIfChanged(ctx context.Context, snap alerts.Snapshot) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	fp := Fingerprint(snap)
	prev := d.state.Load(ctx)
	if prev.LastFingerprint == fp {
		metrics.DispatchTotal.WithLabelValues(StatusNoChange).Inc()
		d.logger.Debug().Str("fingerprint", fp).Msg("snapshot unchanged; nothing to send")
		return Result{Status: StatusNoChange, Fingerprint: fp}
	}

	res := d.send(ctx, snap, fp)

	if err := d.state.Save(ctx, State{LastFingerprint: fp, SentAt: d.now().UTC()}); err != nil {
		metrics.StateWriteFailuresTotal.Inc()
		d.logger.Error().Err(err).Str("run_id", res.RunID).Msg("persist dispatch state failed")
	}
	return res
}

// Send dispatches snap unconditionally. State is neither read nor written.
func (d *Dispatcher) Send(ctx context.Context, snap alerts.Snapshot) Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.send(ctx, snap, Fingerprint(snap))
}

func (d *Dispatcher) send(ctx context.Context, snap alerts.Snapshot, fp string) Result {
	res := Result{Status: StatusSent, RunID: uuid.NewString(), Fingerprint: fp}
	log := d.logger.With().Str("run_id", res.RunID).Str("fingerprint", fp).Logger()

	html, err := Render(snap)
	if err != nil {
		res.Email = alerting.Delivery{Status: alerting.StatusError, Message: err.Error()}
	} else {
		res.Email = d.email.SendEmail(ctx, Subject(d.subject, snap), html)
	}

	res.Webhook = d.webhook.PostJSON(ctx, WebhookPayload{
		Fingerprint: fp,
		GeneratedAt: snap.GeneratedAt,
		Total:       snap.Total(),
		Categories:  snap.Categories,
	})

	metrics.DispatchTotal.WithLabelValues(StatusSent).Inc()
	log.Info().
		Int("total", snap.Total()).
		Str("email", string(res.Email.Status)).
		Str("webhook", string(res.Webhook.Status)).
		Msg("snapshot dispatched")
	return res
}
