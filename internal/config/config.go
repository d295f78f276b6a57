package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is loaded once at
// startup and passed down as an immutable value; nothing in the engine
// reads process-wide state.
type Config struct {
	Engine   EngineConfig   `yaml:"engine" mapstructure:"engine"`
	Priority PriorityConfig `yaml:"priority" mapstructure:"priority"`
	Currency CurrencyConfig `yaml:"currency" mapstructure:"currency"`
	Units    UnitsConfig    `yaml:"units" mapstructure:"units"`
	Columns  ColumnsConfig  `yaml:"columns" mapstructure:"columns"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// EngineConfig holds the detection tolerances and matcher settings.
type EngineConfig struct {
	// RateTolerancePct is the relative billed-vs-agreed rate deviation
	// below which no RateMismatch fires (0.005 = 0.5%).
	RateTolerancePct float64 `yaml:"rate_tolerance_pct" mapstructure:"rate_tolerance_pct"`
	// UsageTolerancePct is the relative reported-vs-implied usage
	// deviation below which no UsageMismatch fires.
	UsageTolerancePct float64 `yaml:"usage_tolerance_pct" mapstructure:"usage_tolerance_pct"`
	// GapDays is how far outside an entity's period a record may fall
	// and still pair with it.
	GapDays int `yaml:"gap_days" mapstructure:"gap_days"`
	// ConfidenceSaturation scales the tolerance multiple at which
	// detector confidence saturates to 1.0.
	ConfidenceSaturation float64 `yaml:"confidence_saturation" mapstructure:"confidence_saturation"`
	// Workers bounds the detector pool.
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// PriorityConfig holds the priority tier thresholds, applied to
// |financial impact| x confidence.
type PriorityConfig struct {
	Critical float64 `yaml:"critical" mapstructure:"critical"`
	High     float64 `yaml:"high" mapstructure:"high"`
	Medium   float64 `yaml:"medium" mapstructure:"medium"`
}

// CurrencyConfig maps currency codes to units per one canonical unit.
type CurrencyConfig struct {
	Canonical string             `yaml:"canonical" mapstructure:"canonical"`
	Rates     map[string]float64 `yaml:"rates" mapstructure:"rates"`
}

// UnitMapping converts one source unit into a canonical unit.
type UnitMapping struct {
	Canonical string  `yaml:"canonical" mapstructure:"canonical"`
	Factor    float64 `yaml:"factor" mapstructure:"factor"`
}

// UnitsConfig maps source usage units to canonical units.
type UnitsConfig map[string]UnitMapping

// ColumnsConfig maps canonical field names to source column names, one
// map per source dataset.
type ColumnsConfig struct {
	Billing  map[string]string `yaml:"billing" mapstructure:"billing"`
	Contract map[string]string `yaml:"contract" mapstructure:"contract"`
	Usage    map[string]string `yaml:"usage" mapstructure:"usage"`
	Service  map[string]string `yaml:"service" mapstructure:"service"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from an optional config.yaml and the
// environment (REVGUARD_ prefix), with defaults suitable for a local run.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REVGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.rate_tolerance_pct", 0.005)
	v.SetDefault("engine.usage_tolerance_pct", 0.05)
	v.SetDefault("engine.gap_days", 1)
	v.SetDefault("engine.confidence_saturation", 3.0)
	v.SetDefault("engine.workers", 8)

	v.SetDefault("priority.critical", 10000.0)
	v.SetDefault("priority.high", 1000.0)
	v.SetDefault("priority.medium", 100.0)

	v.SetDefault("currency.canonical", "USD")
	v.SetDefault("currency.rates", map[string]float64{
		"USD": 1.0,
		"EUR": 0.92,
		"GBP": 0.79,
		"KES": 129.5,
		"NGN": 1580.0,
	})

	v.SetDefault("units", map[string]map[string]any{
		"GB":       {"canonical": "GB", "factor": 1.0},
		"TB":       {"canonical": "GB", "factor": 1024.0},
		"MB":       {"canonical": "GB", "factor": 1.0 / 1024.0},
		"hours":    {"canonical": "hours", "factor": 1.0},
		"minutes":  {"canonical": "hours", "factor": 1.0 / 60.0},
		"calls":    {"canonical": "calls", "factor": 1.0},
		"kcalls":   {"canonical": "calls", "factor": 1000.0},
		"months":   {"canonical": "months", "factor": 1.0},
		"unitless": {"canonical": "unitless", "factor": 1.0},
	})

	v.SetDefault("store.path", "revguard.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Default returns the configuration with no file or environment applied.
// Used by tests and the one-shot CLI path.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(&cfg)
	return &cfg
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
