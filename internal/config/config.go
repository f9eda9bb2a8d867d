package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	Breaker    BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig configures the data.gov.in MGNREGA resource.
type SourceConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	PageSize    int    `yaml:"page_size" mapstructure:"page_size"`
	PageDelayMs int    `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// PageDelay returns the minimum spacing between upstream requests.
func (c SourceConfig) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMs) * time.Millisecond
}

// Timeout returns the per-request timeout.
func (c SourceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SyncConfig configures the orchestrator.
type SyncConfig struct {
	// FinYears is empty unless configured; the syncer then uses its default year.
	FinYears      []string `yaml:"fin_years" mapstructure:"fin_years"`
	RegionDelayMs int      `yaml:"region_delay_ms" mapstructure:"region_delay_ms"`
	Workers       int      `yaml:"workers" mapstructure:"workers"`
	Schedule      string   `yaml:"schedule" mapstructure:"schedule"`
}

// RegionDelay returns the pause between state iterations.
func (c SyncConfig) RegionDelay() time.Duration {
	return time.Duration(c.RegionDelayMs) * time.Millisecond
}

// BreakerConfig configures the upstream circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the ops HTTP server of the schedule command.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures sync health alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleAfterHours      int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	StuckAfterHours      int     `yaml:"stuck_after_hours" mapstructure:"stuck_after_hours"`
	RenotifyAfterHours   int     `yaml:"renotify_after_hours" mapstructure:"renotify_after_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultAPIKey is the public sample key published by data.gov.in.
const DefaultAPIKey = "579b464db66ec23bdd000001cdd3946e44ce4aad7209ff7b23ac571b"

// legacyEnv maps keys to the environment names used by the original backend.
var legacyEnv = map[string]string{
	"source.api_key":     "DATA_GOV_API_KEY",
	"sync.fin_years":     "SYNC_FIN_YEARS",
	"store.database_url": "DATABASE_URL",
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NREGA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, "NREGA_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("source.base_url", "https://api.data.gov.in/resource/ee03643a-ee4c-48c2-ac30-9f2ff26ab722")
	v.SetDefault("source.api_key", DefaultAPIKey)
	v.SetDefault("source.page_size", 500)
	v.SetDefault("source.page_delay_ms", 1000)
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.user_agent", "nrega-sync/1.0")
	v.SetDefault("sync.region_delay_ms", 100)
	v.SetDefault("sync.workers", 1)
	v.SetDefault("sync.schedule", "0 2 * * *")
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 48)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.stale_after_hours", 36)
	v.SetDefault("monitoring.stuck_after_hours", 6)
	v.SetDefault("monitoring.renotify_after_hours", 12)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Sync.FinYears = SplitList(cfg.Sync.FinYears...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would make a sync run misbehave.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: unsupported store.driver %q (valid: postgres, sqlite)", c.Store.Driver)
	}
	if c.Source.BaseURL == "" {
		return eris.New("config: source.base_url is required")
	}
	if c.Source.PageSize <= 0 {
		return eris.Errorf("config: source.page_size must be positive, got %d", c.Source.PageSize)
	}
	if c.Sync.Workers <= 0 {
		return eris.Errorf("config: sync.workers must be positive, got %d", c.Sync.Workers)
	}
	return nil
}

// SplitList splits comma-separated values, trims whitespace and drops empty
// and duplicate entries while keeping first-seen order.
func SplitList(values ...string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	return out
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
