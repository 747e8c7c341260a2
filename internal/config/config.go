package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Veraticus/spendtag/internal/analytics"
	"github.com/Veraticus/spendtag/internal/classifier"
	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/engine"
	"github.com/Veraticus/spendtag/internal/model"
)

// EnvPrefix is the prefix of environment overrides, e.g. SPENDTAG_DATABASE_PATH.
const EnvPrefix = "SPENDTAG"

// Config is the resolved application configuration.
type Config struct {
	Database   DatabaseConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
	Tags       TagsConfig
	Classifier ClassifierConfig
	Anomaly    AnomalyConfig
	Engine     EngineConfig
	Views      ViewsConfig
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string
}

// LoggingConfig configures the default slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string
}

// TagsConfig configures the tag store.
type TagsConfig struct {
	SingleValuedKeys []string
}

// ClassifierConfig holds the amount heuristics.
type ClassifierConfig struct {
	LargeTransferThreshold    decimal.Decimal
	MicroTransactionThreshold decimal.Decimal
}

// AnomalyConfig holds the standard-deviation multiples per sensitivity.
type AnomalyConfig struct {
	LowMultiplier    float64
	MediumMultiplier float64
	HighMultiplier   float64
}

// EngineConfig configures bulk auto-tagging.
type EngineConfig struct {
	BulkConcurrency int
}

// ViewsConfig configures analytics views.
type ViewsConfig struct {
	DefaultCacheTTL time.Duration
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "~/.local/share/spendtag/spendtag.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("classifier.large_transfer_threshold", "10000")
	v.SetDefault("classifier.micro_transaction_threshold", "5")
	v.SetDefault("anomaly.low_multiplier", 3.0)
	v.SetDefault("anomaly.medium_multiplier", 2.0)
	v.SetDefault("anomaly.high_multiplier", 1.0)
	v.SetDefault("tags.single_valued_keys", []string{model.TagKeyClassification, model.TagKeyCategory})
	v.SetDefault("engine.bulk_concurrency", 4)
	v.SetDefault("views.default_cache_ttl", time.Hour)
	v.SetDefault("metrics.addr", "")
}

// New returns a viper instance with defaults and environment overrides bound.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var errs []error

	large, err := decimal.NewFromString(v.GetString("classifier.large_transfer_threshold"))
	if err != nil {
		errs = append(errs, fmt.Errorf("classifier.large_transfer_threshold: %w", err))
	}
	micro, err := decimal.NewFromString(v.GetString("classifier.micro_transaction_threshold"))
	if err != nil {
		errs = append(errs, fmt.Errorf("classifier.micro_transaction_threshold: %w", err))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, errors.Join(errs...))
	}

	cfg := &Config{
		Database: DatabaseConfig{Path: ExpandPath(v.GetString("database.path"))},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Metrics: MetricsConfig{Addr: v.GetString("metrics.addr")},
		Tags:    TagsConfig{SingleValuedKeys: v.GetStringSlice("tags.single_valued_keys")},
		Classifier: ClassifierConfig{
			LargeTransferThreshold:    large,
			MicroTransactionThreshold: micro,
		},
		Anomaly: AnomalyConfig{
			LowMultiplier:    v.GetFloat64("anomaly.low_multiplier"),
			MediumMultiplier: v.GetFloat64("anomaly.medium_multiplier"),
			HighMultiplier:   v.GetFloat64("anomaly.high_multiplier"),
		},
		Engine: EngineConfig{BulkConcurrency: v.GetInt("engine.bulk_concurrency")},
		Views:  ViewsConfig{DefaultCacheTTL: v.GetDuration("views.default_cache_ttl")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every out-of-range value at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of console, json", c.Logging.Format))
	}
	if !c.Classifier.LargeTransferThreshold.IsPositive() {
		errs = append(errs, errors.New("classifier.large_transfer_threshold must be positive"))
	}
	if !c.Classifier.MicroTransactionThreshold.IsPositive() {
		errs = append(errs, errors.New("classifier.micro_transaction_threshold must be positive"))
	}
	a := c.Anomaly
	if a.HighMultiplier <= 0 || a.MediumMultiplier <= a.HighMultiplier || a.LowMultiplier <= a.MediumMultiplier {
		errs = append(errs, fmt.Errorf("anomaly multipliers must satisfy low > medium > high > 0, got %v/%v/%v",
			a.LowMultiplier, a.MediumMultiplier, a.HighMultiplier))
	}
	if c.Engine.BulkConcurrency < 1 {
		errs = append(errs, fmt.Errorf("engine.bulk_concurrency must be at least 1, got %d", c.Engine.BulkConcurrency))
	}
	if c.Views.DefaultCacheTTL <= 0 {
		errs = append(errs, errors.New("views.default_cache_ttl must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// AutoTaggerConfig returns the auto-tagger configuration.
func (c *Config) AutoTaggerConfig() engine.Config {
	return engine.Config{
		Thresholds: classifier.Thresholds{
			LargeTransfer:    c.Classifier.LargeTransferThreshold,
			MicroTransaction: c.Classifier.MicroTransactionThreshold,
		},
		BulkConcurrency: c.Engine.BulkConcurrency,
	}
}

// AnalyticsConfig returns the analytics engine configuration.
func (c *Config) AnalyticsConfig() analytics.Config {
	return analytics.Config{
		Multipliers: analytics.Multipliers{
			Low:    c.Anomaly.LowMultiplier,
			Medium: c.Anomaly.MediumMultiplier,
			High:   c.Anomaly.HighMultiplier,
		},
	}
}
