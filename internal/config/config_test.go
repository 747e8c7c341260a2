package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendtag/internal/common"
)

func TestLoad_Defaults(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".local/share/spendtag/spendtag.db"), cfg.Database.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.True(t, decimal.NewFromInt(10000).Equal(cfg.Classifier.LargeTransferThreshold))
	assert.True(t, decimal.NewFromInt(5).Equal(cfg.Classifier.MicroTransactionThreshold))
	assert.Equal(t, AnomalyConfig{LowMultiplier: 3, MediumMultiplier: 2, HighMultiplier: 1}, cfg.Anomaly)
	assert.Equal(t, []string{"classification", "category"}, cfg.Tags.SingleValuedKeys)
	assert.Equal(t, 4, cfg.Engine.BulkConcurrency)
	assert.Equal(t, time.Hour, cfg.Views.DefaultCacheTTL)
	assert.Empty(t, cfg.Metrics.Addr)

	ac := cfg.AnalyticsConfig()
	assert.InDelta(t, 2.0, ac.Multipliers.Medium, 1e-9)
	assert.Equal(t, 4, cfg.AutoTaggerConfig().BulkConcurrency)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SPENDTAG_ENGINE_BULK_CONCURRENCY", "16")
	t.Setenv("SPENDTAG_CLASSIFIER_LARGE_TRANSFER_THRESHOLD", "2500.50")
	t.Setenv("SPENDTAG_METRICS_ADDR", ":9090")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Engine.BulkConcurrency)
	assert.True(t, decimal.RequireFromString("2500.50").Equal(cfg.Classifier.LargeTransferThreshold))
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: `+filepath.Join(dir, "ledger.db")+`
logging:
  level: debug
  format: json
anomaly:
  low_multiplier: 4
  medium_multiplier: 2.5
  high_multiplier: 1.5
views:
  default_cache_ttl: 15m
tags:
  single_valued_keys: [classification, category, priority]
`), 0o600))

	v := New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, AnomalyConfig{LowMultiplier: 4, MediumMultiplier: 2.5, HighMultiplier: 1.5}, cfg.Anomaly)
	assert.Equal(t, 15*time.Minute, cfg.Views.DefaultCacheTTL)
	assert.Equal(t, []string{"classification", "category", "priority"}, cfg.Tags.SingleValuedKeys)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		set     map[string]any
		name    string
		wantMsg []string
	}{
		{
			name:    "unparseable threshold",
			set:     map[string]any{"classifier.micro_transaction_threshold": "five"},
			wantMsg: []string{"classifier.micro_transaction_threshold"},
		},
		{
			name:    "non-positive threshold",
			set:     map[string]any{"classifier.large_transfer_threshold": "0"},
			wantMsg: []string{"large_transfer_threshold must be positive"},
		},
		{
			name:    "multipliers not decreasing",
			set:     map[string]any{"anomaly.medium_multiplier": 3.0},
			wantMsg: []string{"low > medium > high"},
		},
		{
			name: "every violation is reported",
			set: map[string]any{
				"engine.bulk_concurrency": 0,
				"logging.level":           "loud",
				"logging.format":          "xml",
				"views.default_cache_ttl": "0s",
			},
			wantMsg: []string{"bulk_concurrency", "logging.level", "logging.format", "default_cache_ttl"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := Load(v)
			require.ErrorIs(t, err, common.ErrInvalidConfig)
			for _, msg := range tt.wantMsg {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("SPENDTAG_TEST_DIR", "/var/data")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/db/spendtag.db", filepath.Join(home, "db/spendtag.db")},
		{"$SPENDTAG_TEST_DIR/spendtag.db", "/var/data/spendtag.db"},
		{"/abs/path.db", "/abs/path.db"},
		{"~other/path", "~other/path"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}
