package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "usd", cfg.Market.DefaultFiat)
	require.Equal(t, 5, cfg.Market.RefreshSeconds)
	require.Equal(t, 120, cfg.Market.BufferCapacity)
	require.Equal(t, []string{"bitcoin", "ethereum", "solana"}, cfg.Market.DefaultWatchlist)
	require.Equal(t, 2*time.Second, cfg.Backoff.Base)
	require.Equal(t, 20*time.Second, cfg.Backoff.Max)
	require.Equal(t, 250*time.Millisecond, cfg.Providers.DexScreener.Spacing)
	require.Equal(t, "none", cfg.Sink.Type)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	path := writeConfig(t, `
environment: production
market:
  default_fiat: eur
  refresh_seconds: 10
  top_count: 10
backoff:
  base: 1s
  max: 8s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "production", cfg.Environment)
	require.Equal(t, "eur", cfg.Market.DefaultFiat)
	require.Equal(t, 10, cfg.Market.RefreshSeconds)
	require.Equal(t, 10, cfg.Market.TopCount)
	require.Equal(t, time.Second, cfg.Backoff.Base)
	require.Equal(t, 8*time.Second, cfg.Backoff.Max)
	// untouched sections keep their defaults
	require.Equal(t, 120, cfg.Market.BufferCapacity)
}

func TestValidateRefreshFloor(t *testing.T) {
	path := writeConfig(t, "market:\n  refresh_seconds: 1\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Market.RefreshSeconds)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"top count":   "market:\n  top_count: 30\n",
		"buffer":      "market:\n  buffer_capacity: 5\n",
		"backoff max": "backoff:\n  base: 5s\n  max: 1s\n",
		"sink type":   "sink:\n  type: s3\n",
		"kafka":       "sink:\n  type: kafka\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("COINPULSE_FIAT", "GBP")
	t.Setenv("COINPULSE_REFRESH_SECONDS", "15")
	t.Setenv("SINK_TYPE", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "gbp", cfg.Market.DefaultFiat)
	require.Equal(t, 15, cfg.Market.RefreshSeconds)
	require.Equal(t, "kafka", cfg.Sink.Type)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Sink.Kafka.Brokers)
}

func TestLoadWithEnvIgnoresBadPort(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")

	cfg, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
}
