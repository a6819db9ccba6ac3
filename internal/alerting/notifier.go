package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cockpit-alerts/internal/metrics"
)

// DeliveryStatus 是单个通道的投递结果。
type DeliveryStatus string

const (
	StatusOK      DeliveryStatus = "ok"
	StatusError   DeliveryStatus = "error"
	StatusSkipped DeliveryStatus = "skipped"
)

// maxBodyRunes caps how much of an error response is echoed back.
const maxBodyRunes = 300

// Delivery 描述一次投递的状态与说明。
type Delivery struct {
	Status  DeliveryStatus `json:"status"`
	Message string         `json:"message,omitempty"`
}

func skipped(msg string) Delivery { return Delivery{Status: StatusSkipped, Message: msg} }

func failed(err error) Delivery { return Delivery{Status: StatusError, Message: err.Error()} }

// EmailSender 定义邮件通道。
type EmailSender interface {
	SendEmail(ctx context.Context, subject, html string) Delivery
}

// WebhookSender 定义 webhook 通道。
type WebhookSender interface {
	PostJSON(ctx context.Context, payload any) Delivery
}

// EmailConfig configures the HTTP mail API.
type EmailConfig struct {
	APIKey  string
	From    string
	To      []string
	APIBase string
	Timeout time.Duration
}

// EmailNotifier 通过 SendGrid v3 风格的 mail/send 接口发送 HTML 邮件。
type EmailNotifier struct {
	cfg    EmailConfig
	client *http.Client
	logger zerolog.Logger
}

// NewEmailNotifier 构造邮件告警器。
func NewEmailNotifier(cfg EmailConfig, logger zerolog.Logger) *EmailNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.sendgrid.com"
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")

	return &EmailNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

type mailAddress struct {
	Email string `json:"email"`
}

type mailPersonalization struct {
	To []mailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailRequest struct {
	Personalizations []mailPersonalization `json:"personalizations"`
	From             mailAddress           `json:"from"`
	Subject          string                `json:"subject"`
	Content          []mailContent         `json:"content"`
}

func (n *EmailNotifier) recipients() []mailAddress {
	out := make([]mailAddress, 0, len(n.cfg.To))
	for _, addr := range n.cfg.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, mailAddress{Email: addr})
		}
	}
	return out
}

// SendEmail 调用 /v3/mail/send 发送邮件；缺少密钥、发件人或收件人时返回 skipped。
func (n *EmailNotifier) SendEmail(ctx context.Context, subject, html string) (d Delivery) {
	start := time.Now()
	defer func() { observe("email", d, start) }()

	to := n.recipients()
	switch {
	case strings.TrimSpace(n.cfg.APIKey) == "":
		return skipped("email api key not configured")
	case strings.TrimSpace(n.cfg.From) == "":
		return skipped("email sender not configured")
	case len(to) == 0:
		return skipped("email recipients not configured")
	}

	payload := mailRequest{
		Personalizations: []mailPersonalization{{To: to}},
		From:             mailAddress{Email: strings.TrimSpace(n.cfg.From)},
		Subject:          subject,
		Content:          []mailContent{{Type: "text/html", Value: html}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failed(fmt.Errorf("marshal email payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.APIBase+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return failed(fmt.Errorf("create email request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(n.cfg.APIKey))

	resp, err := n.client.Do(req)
	if err != nil {
		return failed(fmt.Errorf("send email request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failed(unexpectedStatus("email", resp))
	}

	n.logger.Info().Int("recipients", len(to)).Str("subject", subject).Msg("告警邮件已发送")
	return Delivery{Status: StatusOK}
}

// WebhookConfig configures the JSON webhook.
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// WebhookNotifier POSTs the snapshot as JSON.
type WebhookNotifier struct {
	cfg    WebhookConfig
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier 构造 webhook 告警器。
func NewWebhookNotifier(cfg WebhookConfig, logger zerolog.Logger) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "alert_webhook").Logger(),
	}
}

// PostJSON 推送 JSON；未配置 URL 时返回 skipped，非 2xx 返回 error。
func (n *WebhookNotifier) PostJSON(ctx context.Context, payload any) (d Delivery) {
	start := time.Now()
	defer func() { observe("webhook", d, start) }()

	url := strings.TrimSpace(n.cfg.URL)
	if url == "" {
		return skipped("webhook url not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return failed(fmt.Errorf("marshal webhook payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failed(fmt.Errorf("create webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range n.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return failed(fmt.Errorf("send webhook request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failed(unexpectedStatus("webhook", resp))
	}

	n.logger.Info().Int("status", resp.StatusCode).Msg("webhook 已推送")
	return Delivery{Status: StatusOK}
}

func unexpectedStatus(prefix string, resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("%s status=%d (read body: %w)", prefix, resp.StatusCode, err)
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return fmt.Errorf("%s status=%d", prefix, resp.StatusCode)
	}
	if r := []rune(trimmed); len(r) > maxBodyRunes {
		trimmed = string(r[:maxBodyRunes]) + "..."
	}
	return fmt.Errorf("%s status=%d body=%s", prefix, resp.StatusCode, trimmed)
}

func observe(transport string, d Delivery, start time.Time) {
	metrics.TransportDeliveriesTotal.WithLabelValues(transport, string(d.Status)).Inc()
	if d.Status != StatusSkipped {
		metrics.TransportDuration.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	}
}

var (
	_ EmailSender   = (*EmailNotifier)(nil)
	_ WebhookSender = (*WebhookNotifier)(nil)
)
