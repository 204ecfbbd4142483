package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, []string{"BTC_USDT", "ETH_USDT", "SOL_USDT"}, cfg.Monitor.Pairs)
	assert.Equal(t, -0.001, cfg.Monitor.LongThreshold)
	assert.Equal(t, 0.001, cfg.Monitor.ShortThreshold)
	assert.Equal(t, 12, cfg.Monitor.HistorySize)
	assert.Equal(t, "https://api.gateio.ws/api/v4", cfg.Exchange.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Exchange.RequestTimeout)
	assert.Equal(t, BackendJSONBin, cfg.Persistence.Backend)
	assert.False(t, cfg.Persistence.Enabled(), "no bin id means no persistence")
	assert.False(t, cfg.Telegram.Enabled())
	assert.Equal(t, "0 9 * * *", cfg.Digest.Schedule)
}

func TestLoadLegacyEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ALERT_CHAT_ID", "-100500")
	t.Setenv("MONITORED_PAIRS", "pepe_usdt, DOGE_USDT")
	t.Setenv("CRITICAL_FR_LONG", "-0.002")
	t.Setenv("CRITICAL_FR_SHORT", "0.0025")
	t.Setenv("UPDATE_INTERVAL", "60")
	t.Setenv("DEBUG", "true")
	t.Setenv("JSONBIN_BIN_ID", "bin-1")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Telegram.Enabled())
	assert.Equal(t, "-100500", cfg.Telegram.ChatID)
	assert.Equal(t, []string{"PEPE_USDT", "DOGE_USDT"}, cfg.Monitor.Pairs)
	assert.Equal(t, -0.002, cfg.Monitor.LongThreshold)
	assert.Equal(t, 0.0025, cfg.Monitor.ShortThreshold)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Persistence.Enabled())
}

func TestPrefixedEnvReachesKeysWithoutDefaults(t *testing.T) {
	t.Setenv("FUNDINGWATCH_PERSISTENCE_BACKEND", "postgres")
	t.Setenv("FUNDINGWATCH_PERSISTENCE_POSTGRES_DSN", "postgres://watch@db/funding")
	t.Setenv("FUNDINGWATCH_PERSISTENCE_REDIS_ADDR", "redis:6379")
	t.Setenv("FUNDINGWATCH_PERSISTENCE_REDIS_PASSWORD", "s3cret")
	t.Setenv("FUNDINGWATCH_PERSISTENCE_FILE_PATH", "/var/lib/fundingwatch/state.db")
	t.Setenv("FUNDINGWATCH_METRICS_LISTEN", ":9100")
	t.Setenv("FUNDINGWATCH_LOGGING_FILE_PATH", "/var/log/fundingwatch.log")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Persistence.Backend)
	assert.Equal(t, "postgres://watch@db/funding", cfg.Persistence.Postgres.DSN)
	assert.True(t, cfg.Persistence.Enabled())
	assert.Equal(t, "redis:6379", cfg.Persistence.Redis.Addr)
	assert.Equal(t, "s3cret", cfg.Persistence.Redis.Password)
	assert.Equal(t, "/var/lib/fundingwatch/state.db", cfg.Persistence.File.Path)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
	assert.Equal(t, "/var/log/fundingwatch.log", cfg.Logging.File.Path)
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("UPDATE_INTERVAL", "60")
	t.Setenv("FUNDINGWATCH_SCHEDULER_INTERVAL", "2m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.Interval)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
monitor:
  pairs: [ARB_USDT]
  threshold_step: 0.0005
persistence:
  backend: File
  file:
    path: /tmp/fundingwatch.db
digest:
  schedule: "30 8 * * 1-5"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ARB_USDT"}, cfg.Monitor.Pairs)
	assert.Equal(t, 0.0005, cfg.Monitor.ThresholdStep)
	assert.Equal(t, BackendFile, cfg.Persistence.Backend)
	assert.True(t, cfg.Persistence.Enabled())
	assert.Equal(t, "30 8 * * 1-5", cfg.Digest.Schedule)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Scheduler:   SchedulerConfig{Interval: time.Minute},
			Monitor:     MonitorConfig{HistorySize: 12, ThresholdStep: 0.0001, TopN: 10},
			Persistence: PersistenceConfig{Backend: BackendNone},
			Digest:      DigestConfig{Enabled: true, Schedule: "0 9 * * *", Timezone: "UTC"},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"interval":     func(c *Config) { c.Scheduler.Interval = 0 },
		"history size": func(c *Config) { c.Monitor.HistorySize = 2 },
		"step":         func(c *Config) { c.Monitor.ThresholdStep = 0 },
		"backend":      func(c *Config) { c.Persistence.Backend = "s3" },
		"cron":         func(c *Config) { c.Digest.Schedule = "every day" },
		"timezone":     func(c *Config) { c.Digest.Timezone = "Nowhere/Land" },
		"send rate":    func(c *Config) { c.Telegram.SendRate = -1 },
	}
	for name, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}
