package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Name)
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, SourcePostgres, cfg.Series.Source)
	assert.Equal(t, 10*time.Second, cfg.Notify.Email.Timeout)
	assert.Equal(t, "*/15 * * * *", cfg.Scheduler.Schedule)
	assert.Equal(t, 14.0, cfg.Alerts.MinDaysOfCover)
	assert.Equal(t, 5000, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 10, cfg.ResolveMaxPoints(10))
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: sqlite
  sqlite_path: /tmp/cockpit.db
series:
  source: csv
  csv_path: kpis.csv
notify:
  webhook:
    url: https://hooks.example.com/x
    headers:
      X-Token: abc
    timeout: 3s
scheduler:
  schedule: "0 8 * * *"
`)
	t.Setenv("COCKPIT_NOTIFY_EMAIL_API_KEY", "sg-key")
	t.Setenv("COCKPIT_NOTIFY_EMAIL_TO", "a@example.com,b@example.com")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "kpis.csv", cfg.Series.CSVPath)
	assert.Equal(t, 3*time.Second, cfg.Notify.Webhook.Timeout)
	assert.Equal(t, "abc", cfg.Notify.Webhook.Headers["x-token"])
	assert.Equal(t, "sg-key", cfg.Notify.Email.APIKey)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Notify.Email.To)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"backend":  "storage:\n  backend: redis\n",
		"csv path": "series:\n  source: csv\n",
		"sheets":   "series:\n  source: sheets\n",
		"source":   "series:\n  source: bigquery\n",
		"cron":     "scheduler:\n  schedule: every now and then\n",
		"ratio":    "alerts:\n  ppc_surge_ratio: 0\n",
		"export":   "export:\n  max_data_points: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestThresholds(t *testing.T) {
	cfg, err := Load(writeConfig(t, "alerts:\n  min_margin_pct: 22.5\n"))
	require.NoError(t, err)
	th := cfg.Alerts.Thresholds()
	assert.Equal(t, 22.5, th.MinMarginPct)
	assert.Equal(t, 30, th.ComplianceWindowDays)
}
