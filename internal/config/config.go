package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/joelkehle/objection-desk/internal/backend"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Backend   BackendConfig   `yaml:"backend" mapstructure:"backend"`
	Settings  SettingsConfig  `yaml:"settings" mapstructure:"settings"`
	Intake    IntakeConfig    `yaml:"intake" mapstructure:"intake"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

type ServerConfig struct {
	Addr                string `yaml:"addr" mapstructure:"addr"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// BackendConfig configures the analysis service client.
type BackendConfig struct {
	URL                    string  `yaml:"url" mapstructure:"url"`
	TimeoutSecs            int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSecond          float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst                  int     `yaml:"burst" mapstructure:"burst"`
	RetryMaxAttempts       int     `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryInitialBackoffMs  int     `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs      int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	BreakerEnabled         bool    `yaml:"breaker_enabled" mapstructure:"breaker_enabled"`
	BreakerMinRequests     uint32  `yaml:"breaker_min_requests" mapstructure:"breaker_min_requests"`
	BreakerFailureRatio    float64 `yaml:"breaker_failure_ratio" mapstructure:"breaker_failure_ratio"`
	BreakerOpenTimeoutSecs int     `yaml:"breaker_open_timeout_secs" mapstructure:"breaker_open_timeout_secs"`
}

// Retry converts the flat config keys into the client's retry policy.
func (b BackendConfig) Retry() backend.RetryConfig {
	return backend.RetryConfig{
		MaxAttempts:         b.RetryMaxAttempts,
		InitialBackoff:      time.Duration(b.RetryInitialBackoffMs) * time.Millisecond,
		MaxBackoff:          time.Duration(b.RetryMaxBackoffMs) * time.Millisecond,
		Multiplier:          2,
		BreakerEnabled:      b.BreakerEnabled,
		BreakerMinRequests:  b.BreakerMinRequests,
		BreakerFailureRatio: b.BreakerFailureRatio,
		BreakerOpenTimeout:  time.Duration(b.BreakerOpenTimeoutSecs) * time.Second,
	}
}

type SettingsConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	Path    string `yaml:"path" mapstructure:"path"`
}

type IntakeConfig struct {
	CacheTTLMins int `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// ExportConfig configures the headless Chromium used for PDF export.
type ExportConfig struct {
	ChromePath  string `yaml:"chrome_path" mapstructure:"chrome_path"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure" mapstructure:"insecure"`
	ServiceName  string `yaml:"service_name" mapstructure:"service_name"`
}

// Load reads configuration from an optional config.yaml and DESK_ environment
// variables. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("backend.url", "http://localhost:5000")
	v.SetDefault("backend.timeout_secs", 180)
	v.SetDefault("backend.rate_per_second", 2)
	v.SetDefault("backend.burst", 2)
	v.SetDefault("backend.retry_max_attempts", 3)
	v.SetDefault("backend.retry_initial_backoff_ms", 250)
	v.SetDefault("backend.retry_max_backoff_ms", 2000)
	v.SetDefault("backend.breaker_enabled", true)
	v.SetDefault("backend.breaker_min_requests", 5)
	v.SetDefault("backend.breaker_failure_ratio", 0.6)
	v.SetDefault("backend.breaker_open_timeout_secs", 30)
	v.SetDefault("settings.backend", "sqlite")
	v.SetDefault("settings.path", "data/desk.db")
	v.SetDefault("intake.cache_ttl_mins", 30)
	v.SetDefault("export.chrome_path", "")
	v.SetDefault("export.timeout_secs", 45)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "objection-desk")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.URL) == "" {
		return eris.New("config: backend.url is required")
	}
	switch c.Settings.Backend {
	case "sqlite", "file":
	default:
		return eris.Errorf("config: settings.backend must be sqlite or file, got %q", c.Settings.Backend)
	}
	if strings.TrimSpace(c.Settings.Path) == "" {
		return eris.New("config: settings.path is required")
	}
	return nil
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
