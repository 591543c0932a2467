package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"metalwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Source    SourceConfig    `mapstructure:"source"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs ingestion cadence.
type SchedulerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// SourceConfig covers the scraped metal quote page.
type SourceConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	Attribution    string        `mapstructure:"attribution"`
}

// CryptoConfig captures third-party market feed connectivity.
type CryptoConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	TopN           int           `mapstructure:"top_n"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Attribution    string        `mapstructure:"attribution"`
}

// ServerConfig tunes the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	SparklinePoints int           `mapstructure:"sparkline_points"`
	RollupDays      int           `mapstructure:"rollup_days"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig points at the hosted identity service. An empty base URL
// disables session resolution, so alert creation is always rejected.
type AuthConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines alert delivery and debounce behaviour.
type AlertingConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
	Resend   ResendConfig  `mapstructure:"resend"`
}

// ResendConfig describes the outbound email provider.
type ResendConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	From           string        `mapstructure:"from"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("METALWATCH")
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
	v.SetDefault("app.name", "metalwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("source.url", "https://stooq.com/t/?i=554")
	v.SetDefault("source.request_timeout", "10s")
	v.SetDefault("source.user_agent", "metalwatch/1.0")
	v.SetDefault("source.attribution", "stooq.com/t/?i=554 (scraped every 5 mins)")

	v.SetDefault("crypto.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("crypto.top_n", 10)
	v.SetDefault("crypto.request_timeout", "10s")
	v.SetDefault("crypto.attribution", "CoinGecko Demo API")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cache_ttl", "5m")
	v.SetDefault("server.sparkline_points", 20)
	v.SetDefault("server.rollup_days", 7)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("auth.request_timeout", "10s")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.debounce", "1h")
	v.SetDefault("alerting.resend.from", "onboarding@resend.dev")
	v.SetDefault("alerting.resend.api_base", "https://api.resend.com")
	v.SetDefault("alerting.resend.request_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if c.Crypto.TopN <= 0 {
		return fmt.Errorf("crypto.top_n must be greater than zero")
	}
	if c.Server.CacheTTL <= 0 {
		return fmt.Errorf("server.cache_ttl must be greater than zero")
	}
	if c.Server.SparklinePoints <= 0 {
		return fmt.Errorf("server.sparkline_points must be greater than zero")
	}
	if c.Server.RollupDays <= 0 {
		return fmt.Errorf("server.rollup_days must be greater than zero")
	}
	if c.Alerting.Debounce <= 0 {
		return fmt.Errorf("alerting.debounce must be greater than zero")
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
