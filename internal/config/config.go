package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"fundingwatch/internal/logging"
)

// Persistence backends.
const (
	BackendNone     = "none"
	BackendJSONBin  = "jsonbin"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendFile     = "file"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Debug       bool              `mapstructure:"debug"`
	Exchange    ExchangeConfig    `mapstructure:"exchange"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Digest      DigestConfig      `mapstructure:"digest"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig covers the Gate.io futures endpoint.
type ExchangeConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ContractSuffix string        `mapstructure:"contract_suffix"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MonitorConfig holds default thresholds and pair list used on first start and reset.
type MonitorConfig struct {
	Pairs            []string `mapstructure:"pairs"`
	LongThreshold    float64  `mapstructure:"long_threshold"`
	ShortThreshold   float64  `mapstructure:"short_threshold"`
	ThresholdStep    float64  `mapstructure:"threshold_step"`
	HistorySize      int      `mapstructure:"history_size"`
	TopN             int      `mapstructure:"top_n"`
	SqueezeThreshold float64  `mapstructure:"squeeze_threshold"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// DigestConfig schedules the daily summary.
type DigestConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
	Timezone string `mapstructure:"timezone"`
}

// TelegramConfig 描述 Telegram 推送与指令参数。
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	SendRate       float64       `mapstructure:"send_rate"`
	SendBurst      int           `mapstructure:"send_burst"`
	Commands       bool          `mapstructure:"commands"`
}

// Enabled reports whether credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// PersistenceConfig selects and configures the state mirror.
type PersistenceConfig struct {
	Backend  string         `mapstructure:"backend"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	JSONBin  JSONBinConfig  `mapstructure:"jsonbin"`
	Postgres DatabaseConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	File     FileConfig     `mapstructure:"file"`
}

// Enabled reports whether the selected backend has what it needs.
func (p PersistenceConfig) Enabled() bool {
	switch p.Backend {
	case BackendJSONBin:
		return p.JSONBin.BinID != ""
	case BackendPostgres:
		return p.Postgres.DSN != ""
	case BackendRedis:
		return p.Redis.Addr != ""
	case BackendFile:
		return p.File.Path != ""
	default:
		return false
	}
}

// JSONBinConfig identifies the remote JSON blob.
type JSONBinConfig struct {
	BaseURL string `mapstructure:"base_url"`
	BinID   string `mapstructure:"bin_id"`
	APIKey  string `mapstructure:"api_key"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	DocumentID      string        `mapstructure:"document_id"`
}

// RedisConfig points at a single key holding the document.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// FileConfig stores the document in a local buntdb file.
type FileConfig struct {
	Path string `mapstructure:"path"`
	Key  string `mapstructure:"key"`
}

// MetricsConfig exposes prometheus metrics when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// legacyEnv maps config keys to the environment names used by earlier deployments.
var legacyEnv = map[string]string{
	"telegram.bot_token":          "TELEGRAM_BOT_TOKEN",
	"telegram.chat_id":            "ALERT_CHAT_ID",
	"monitor.pairs":               "MONITORED_PAIRS",
	"monitor.long_threshold":      "CRITICAL_FR_LONG",
	"monitor.short_threshold":     "CRITICAL_FR_SHORT",
	"scheduler.interval":          "UPDATE_INTERVAL",
	"debug":                       "DEBUG",
	"persistence.jsonbin.api_key": "JSONBIN_API_KEY",
	"persistence.jsonbin.bin_id":  "JSONBIN_BIN_ID",
}

// Load builds configuration from file, .env, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("FUNDINGWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "FUNDINGWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

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

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// setDefaults registers every key, including empty ones: AutomaticEnv only
// reaches Unmarshal for keys viper already knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fundingwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.pretty", false)
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.compress", false)
	v.SetDefault("logging.file.max_size_mb", 50)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age_days", 14)
	v.SetDefault("debug", false)

	v.SetDefault("exchange.base_url", "https://api.gateio.ws/api/v4")
	v.SetDefault("exchange.contract_suffix", "_USDT")
	v.SetDefault("exchange.request_timeout", "10s")
	v.SetDefault("exchange.user_agent", "fundingwatch/1.0")

	v.SetDefault("monitor.pairs", []string{"BTC_USDT", "ETH_USDT", "SOL_USDT"})
	v.SetDefault("monitor.long_threshold", -0.001)
	v.SetDefault("monitor.short_threshold", 0.001)
	v.SetDefault("monitor.threshold_step", 0.0001)
	v.SetDefault("monitor.history_size", 12)
	v.SetDefault("monitor.top_n", 10)
	v.SetDefault("monitor.squeeze_threshold", 0.003)

	v.SetDefault("scheduler.interval", "90s")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("digest.enabled", true)
	v.SetDefault("digest.schedule", "0 9 * * *")
	v.SetDefault("digest.timezone", "UTC")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.request_timeout", "10s")
	v.SetDefault("telegram.poll_timeout", "10s")
	v.SetDefault("telegram.send_rate", 1.0)
	v.SetDefault("telegram.send_burst", 3)
	v.SetDefault("telegram.commands", true)

	v.SetDefault("persistence.backend", BackendJSONBin)
	v.SetDefault("persistence.timeout", "10s")
	v.SetDefault("persistence.jsonbin.base_url", "https://api.jsonbin.io/v3")
	v.SetDefault("persistence.jsonbin.bin_id", "")
	v.SetDefault("persistence.jsonbin.api_key", "")
	v.SetDefault("persistence.postgres.dsn", "")
	v.SetDefault("persistence.postgres.max_open_conns", 4)
	v.SetDefault("persistence.postgres.max_idle_conns", 1)
	v.SetDefault("persistence.postgres.conn_max_lifetime", "30m")
	v.SetDefault("persistence.postgres.document_id", "fundingwatch")
	v.SetDefault("persistence.redis.addr", "")
	v.SetDefault("persistence.redis.password", "")
	v.SetDefault("persistence.redis.db", 0)
	v.SetDefault("persistence.redis.key", "fundingwatch:state")
	v.SetDefault("persistence.file.path", "")
	v.SetDefault("persistence.file.key", "state")

	v.SetDefault("metrics.listen", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// secondsToDurationHookFunc accepts bare integers as seconds, as UPDATE_INTERVAL=90 did.
func secondsToDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				return time.Duration(secs) * time.Second, nil
			}
		case int:
			return time.Duration(value) * time.Second, nil
		case int64:
			return time.Duration(value) * time.Second, nil
		}
		return data, nil
	}
}

func (c *Config) normalize() {
	if c.Debug {
		c.Logging.Level = "debug"
	}
	pairs := make([]string, 0, len(c.Monitor.Pairs))
	for _, p := range c.Monitor.Pairs {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			pairs = append(pairs, p)
		}
	}
	c.Monitor.Pairs = pairs
	c.Persistence.Backend = strings.ToLower(strings.TrimSpace(c.Persistence.Backend))
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Monitor.HistorySize < 3 {
		return fmt.Errorf("monitor.history_size must be at least 3")
	}
	if c.Monitor.ThresholdStep <= 0 {
		return fmt.Errorf("monitor.threshold_step must be greater than zero")
	}
	if c.Monitor.TopN <= 0 {
		return fmt.Errorf("monitor.top_n must be greater than zero")
	}
	switch c.Persistence.Backend {
	case BackendNone, BackendJSONBin, BackendPostgres, BackendRedis, BackendFile:
	default:
		return fmt.Errorf("persistence.backend %q 不受支持", c.Persistence.Backend)
	}
	if c.Digest.Enabled {
		if _, err := cron.ParseStandard(c.Digest.Schedule); err != nil {
			return fmt.Errorf("digest.schedule 不合法: %w", err)
		}
		if _, err := time.LoadLocation(c.Digest.Timezone); err != nil {
			return fmt.Errorf("digest.timezone 不合法: %w", err)
		}
	}
	if c.Telegram.SendRate < 0 {
		return fmt.Errorf("telegram.send_rate cannot be negative")
	}
	return nil
}
