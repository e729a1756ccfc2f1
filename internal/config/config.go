package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/mento-protocol/oracle-v2-playground/internal/feed"
	"github.com/mento-protocol/oracle-v2-playground/internal/fixed"
	"github.com/mento-protocol/oracle-v2-playground/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
	Feeds    []FeedConfig   `mapstructure:"feeds"`
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

// ServerConfig covers the HTTP read API.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SweepConfig governs the staleness sweep cadence.
type SweepConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines alert routing for feeds losing validity.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// FeedConfig declares one rate feed and its tunables.
type FeedConfig struct {
	ID                 string        `mapstructure:"id"`
	WindowSize         int           `mapstructure:"window_size"`
	AllowedDeviation   string        `mapstructure:"allowed_deviation"`
	Quorum             int           `mapstructure:"quorum"`
	CertaintyThreshold int           `mapstructure:"certainty_threshold"`
	AllowedStaleness   time.Duration `mapstructure:"allowed_staleness"`
	Providers          []string      `mapstructure:"providers"`
}

// EngineConfig converts the declared tunables into the engine's config,
// parsing the allowed deviation from its human-readable decimal form.
func (f FeedConfig) EngineConfig() (feed.Config, error) {
	cfg := feed.Config{
		WindowSize:         f.WindowSize,
		Quorum:             f.Quorum,
		CertaintyThreshold: f.CertaintyThreshold,
		AllowedStaleness:   int64(f.AllowedStaleness / time.Second),
	}

	if f.AllowedDeviation != "" {
		d, err := decimal.NewFromString(f.AllowedDeviation)
		if err != nil {
			return feed.Config{}, fmt.Errorf("feed %s: parse allowed_deviation: %w", f.ID, err)
		}
		value, err := fixed.FromDecimal(d)
		if err != nil {
			return feed.Config{}, fmt.Errorf("feed %s: allowed_deviation: %w", f.ID, err)
		}
		cfg.AllowedDeviation = value.Raw()
	}

	if err := cfg.Validate(); err != nil {
		return feed.Config{}, fmt.Errorf("feed %s: %w", f.ID, err)
	}
	return cfg, nil
}

// ProviderAddresses parses the feed's allow-listed reporter addresses.
func (f FeedConfig) ProviderAddresses() ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(f.Providers))
	for _, raw := range f.Providers {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("feed %s: invalid provider address %q", f.ID, raw)
		}
		addrs = append(addrs, common.HexToAddress(raw))
	}
	return addrs, nil
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RATEFEED")
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
	v.SetDefault("app.name", "ratefeedd")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.listen_addr", ":8380")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("sweep.interval", "30s")
	v.SetDefault("sweep.align_to_bucket", true)
	v.SetDefault("sweep.advisory_lock_key", int64(0x72617465))
	v.SetDefault("sweep.startup_delay", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}

	seen := make(map[string]struct{}, len(c.Feeds))
	for _, f := range c.Feeds {
		if f.ID == "" {
			return fmt.Errorf("feeds entries require an id")
		}
		if _, dup := seen[f.ID]; dup {
			return fmt.Errorf("feed %s declared twice", f.ID)
		}
		seen[f.ID] = struct{}{}

		if _, err := f.EngineConfig(); err != nil {
			return err
		}
		if _, err := f.ProviderAddresses(); err != nil {
			return err
		}
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
