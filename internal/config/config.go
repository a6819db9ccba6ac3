package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"cockpit-alerts/internal/alerts"
	"cockpit-alerts/internal/logging"
)

// Storage backends for rules and dispatch state.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Series sources.
const (
	SourcePostgres = "postgres"
	SourceSheets   = "sheets"
	SourceCSV      = "csv"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Series    SeriesConfig    `mapstructure:"series"`
	Sheets    SheetsConfig    `mapstructure:"sheets"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StorageConfig selects where rules and dispatch state live.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	RulesPath  string `mapstructure:"rules_path"`
	StatePath  string `mapstructure:"state_path"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// SeriesConfig chooses where daily metric observations come from.
type SeriesConfig struct {
	Source       string `mapstructure:"source"`
	CSVPath      string `mapstructure:"csv_path"`
	// LookbackDays bounds how many days the postgres source loads. Rules
	// with a longer lookback_days only see this many days of samples.
	LookbackDays int    `mapstructure:"lookback_days"`
}

// SheetsConfig points at a KPI tab in Google Sheets.
type SheetsConfig struct {
	SpreadsheetID   string        `mapstructure:"spreadsheet_id"`
	Range           string        `mapstructure:"range"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// AlertsConfig tunes the category thresholds.
type AlertsConfig struct {
	MinDaysOfCover       float64 `mapstructure:"min_days_of_cover"`
	ComplianceWindowDays int     `mapstructure:"compliance_window_days"`
	MinMarginPct         float64 `mapstructure:"min_margin_pct"`
	PPCSurgeRatio        float64 `mapstructure:"ppc_surge_ratio"`
	PPCMinSpend          float64 `mapstructure:"ppc_min_spend"`
}

// Thresholds converts the section into aggregator thresholds.
func (a AlertsConfig) Thresholds() alerts.Thresholds {
	return alerts.Thresholds{
		MinDaysOfCover:       a.MinDaysOfCover,
		ComplianceWindowDays: a.ComplianceWindowDays,
		MinMarginPct:         a.MinMarginPct,
		PPCSurgeRatio:        a.PPCSurgeRatio,
		PPCMinSpend:          a.PPCMinSpend,
	}
}

// NotifyConfig defines the notification transports.
type NotifyConfig struct {
	Subject string        `mapstructure:"subject"`
	Email   EmailConfig   `mapstructure:"email"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// EmailConfig 描述邮件 API 参数。缺少 api_key/from/to 时邮件通道跳过。
type EmailConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	From    string        `mapstructure:"from"`
	To      []string      `mapstructure:"to"`
	APIBase string        `mapstructure:"api_base"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WebhookConfig 描述 webhook 参数。
type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// SchedulerConfig governs the dispatch cadence of `run`.
type SchedulerConfig struct {
	Schedule     string        `mapstructure:"schedule"`
	RunOnStart   bool          `mapstructure:"run_on_start"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COCKPIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cockpit-alerts")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.rules_path", "data/alert_rules.json")
	v.SetDefault("storage.state_path", "data/alert_state.json")
	v.SetDefault("storage.sqlite_path", "data/cockpit.db")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrate_on_start", false)

	v.SetDefault("series.source", SourcePostgres)
	v.SetDefault("series.csv_path", "")
	v.SetDefault("series.lookback_days", 90)

	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.range", "KPIs!A:Z")
	v.SetDefault("sheets.credentials_file", "")
	v.SetDefault("sheets.timeout", "15s")

	v.SetDefault("alerts.min_days_of_cover", 14.0)
	v.SetDefault("alerts.compliance_window_days", 30)
	v.SetDefault("alerts.min_margin_pct", 15.0)
	v.SetDefault("alerts.ppc_surge_ratio", 2.0)
	v.SetDefault("alerts.ppc_min_spend", 20.0)

	v.SetDefault("notify.subject", "Seller cockpit alerts")
	v.SetDefault("notify.email.api_key", "")
	v.SetDefault("notify.email.from", "")
	v.SetDefault("notify.email.to", []string{})
	v.SetDefault("notify.email.api_base", "https://api.sendgrid.com")
	v.SetDefault("notify.email.timeout", "10s")
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.webhook.timeout", "10s")

	v.SetDefault("scheduler.schedule", "*/15 * * * *")
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("export.max_data_points", 5000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.RulesPath == "" || c.Storage.StatePath == "" {
			return fmt.Errorf("storage.rules_path and storage.state_path are required for the file backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendFile, BackendSQLite, c.Storage.Backend)
	}

	switch c.Series.Source {
	case SourcePostgres:
	case SourceCSV:
		if c.Series.CSVPath == "" {
			return fmt.Errorf("series.csv_path is required when series.source is csv")
		}
	case SourceSheets:
		if c.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("sheets.spreadsheet_id is required when series.source is sheets")
		}
	default:
		return fmt.Errorf("series.source must be postgres, sheets or csv, got %q", c.Series.Source)
	}
	if c.Series.LookbackDays <= 0 {
		return fmt.Errorf("series.lookback_days must be greater than zero")
	}

	if c.Alerts.MinDaysOfCover < 0 || c.Alerts.MinMarginPct < 0 || c.Alerts.PPCMinSpend < 0 {
		return fmt.Errorf("alerts thresholds cannot be negative")
	}
	if c.Alerts.ComplianceWindowDays < 0 {
		return fmt.Errorf("alerts.compliance_window_days cannot be negative")
	}
	if c.Alerts.PPCSurgeRatio <= 0 {
		return fmt.Errorf("alerts.ppc_surge_ratio must be greater than zero")
	}

	if _, err := cron.ParseStandard(c.Scheduler.Schedule); err != nil {
		return fmt.Errorf("scheduler.schedule 无效: %w", err)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
