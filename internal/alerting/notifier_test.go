package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailNotifierSuccess(t *testing.T) {
	var received mailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received), "解析请求体失败")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	notifier := NewEmailNotifier(EmailConfig{
		APIKey:  "key",
		From:    "alerts@example.com",
		To:      []string{"ops@example.com", " "},
		APIBase: srv.URL + "/",
		Timeout: time.Second,
	}, testLogger())

	d := notifier.SendEmail(context.Background(), "Cockpit alerts", "<p>hi</p>")
	require.Equal(t, StatusOK, d.Status, "邮件应发送成功: %+v", d)
	require.Len(t, received.Personalizations, 1)
	assert.Len(t, received.Personalizations[0].To, 1, "空白收件人应被忽略")
	assert.Equal(t, "Cockpit alerts", received.Subject)
	require.NotEmpty(t, received.Content)
	assert.Equal(t, "text/html", received.Content[0].Type)
}

func TestEmailNotifierSkipsWhenUnconfigured(t *testing.T) {
	cases := []EmailConfig{
		{From: "a@example.com", To: []string{"b@example.com"}},
		{APIKey: "key", To: []string{"b@example.com"}},
		{APIKey: "key", From: "a@example.com"},
	}
	for _, cfg := range cases {
		cfg.APIBase = "http://127.0.0.1:1"
		d := NewEmailNotifier(cfg, testLogger()).SendEmail(context.Background(), "s", "h")
		assert.Equal(t, StatusSkipped, d.Status, "缺少配置应 skipped: %+v", cfg)
	}
}

func TestEmailNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("  bad key \n"))
	}))
	defer srv.Close()

	notifier := NewEmailNotifier(EmailConfig{APIKey: "k", From: "a@x", To: []string{"b@x"}, APIBase: srv.URL}, testLogger())
	d := notifier.SendEmail(context.Background(), "s", "h")
	assert.Equal(t, StatusError, d.Status)
	assert.Equal(t, "email status=401 body=bad key", d.Message)
}

func TestWebhookNotifierSendsHeaders(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.Header.Get("X-Token"), "自定义 header 缺失")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Headers: map[string]string{"X-Token": "abc"}}, testLogger())
	d := notifier.PostJSON(context.Background(), map[string]int{"total": 3})
	require.Equal(t, StatusOK, d.Status, "webhook 应成功: %+v", d)
	assert.Equal(t, float64(3), payload["total"])
}

func TestWebhookNotifierSkipsWithoutURL(t *testing.T) {
	d := NewWebhookNotifier(WebhookConfig{URL: "  "}, testLogger()).PostJSON(context.Background(), nil)
	assert.Equal(t, StatusSkipped, d.Status, "未配置 URL 应 skipped")
}

func TestWebhookNotifierTruncatesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	d := NewWebhookNotifier(WebhookConfig{URL: srv.URL}, testLogger()).PostJSON(context.Background(), map[string]string{})
	assert.Equal(t, StatusError, d.Status)
	assert.True(t, strings.HasPrefix(d.Message, "webhook status=502 body="), d.Message)
	assert.True(t, strings.HasSuffix(d.Message, "..."), d.Message)
}

func TestWebhookNotifierTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := NewWebhookNotifier(WebhookConfig{URL: url, Timeout: time.Second}, testLogger()).PostJSON(context.Background(), 1)
	assert.Equal(t, StatusError, d.Status, "连接失败应返回 error")
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
