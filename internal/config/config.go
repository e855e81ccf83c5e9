package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	AppName              = "uptimed"
	EnvPrefix            = "UPTIMED"
	UserAgent            = "uptimed/1.0"
	DefaultCheckInterval = 60
	DefaultTimeout       = 10
	NotificationCooldown = 4 * time.Hour
)

// ErrConfiguration marks a missing or invalid startup setting. The daemon
// refuses to start when Load returns an error wrapping it.
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Feed     FeedConfig     `mapstructure:"feed"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Desktop  DesktopConfig  `mapstructure:"desktop"`
	Alert    AlertConfig    `mapstructure:"alert"`
	Log      LogConfig      `mapstructure:"log"`
	Status   StatusConfig   `mapstructure:"status"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type FeedConfig struct {
	Driver       string        `mapstructure:"driver"`
	URL          string        `mapstructure:"url"`
	Channels     []string      `mapstructure:"channels"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MinReconnect time.Duration `mapstructure:"min_reconnect"`
	MaxReconnect time.Duration `mapstructure:"max_reconnect"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Enabled reports whether an outbound mail transport was configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DesktopConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type AlertConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

type ShutdownConfig struct {
	Grace time.Duration `mapstructure:"grace"`
}

// Load reads configuration from an optional .env file, an optional config
// file at path and UPTIMED_* environment variables, in increasing order of
// precedence. The result is validated before it is returned.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to decode config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal, including the ones that have no meaningful default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("feed.driver", "postgres")
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.channels", []string{"monitor_changes", "new_monitor"})
	v.SetDefault("feed.poll_interval", 30*time.Second)
	v.SetDefault("feed.min_reconnect", 10*time.Second)
	v.SetDefault("feed.max_reconnect", time.Minute)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("desktop.enabled", false)

	v.SetDefault("alert.cooldown", NotificationCooldown)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", false)

	v.SetDefault("status.addr", "")
	v.SetDefault("shutdown.grace", 30*time.Second)
}

// Validate reports every problem at once; each one wraps ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...))
	}

	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		fail("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		fail("database.dsn is required")
	}

	switch c.Feed.Driver {
	case "postgres", "redis":
		if c.Feed.URL == "" {
			fail("feed.url is required for feed.driver %q", c.Feed.Driver)
		}
		if c.Feed.Driver == "postgres" && len(c.Feed.Channels) == 0 {
			fail("feed.channels must name at least one channel")
		}
	case "poll":
		if c.Feed.PollInterval <= 0 {
			fail("feed.poll_interval must be positive")
		}
	default:
		fail("unsupported feed.driver %q", c.Feed.Driver)
	}

	if c.SMTP.Enabled() {
		if c.SMTP.From == "" {
			fail("smtp.from is required when smtp.host is set")
		}
		if c.SMTP.Port <= 0 {
			fail("smtp.port must be positive")
		}
	}

	if c.Alert.Cooldown < 0 {
		fail("alert.cooldown must not be negative")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		fail("unsupported log.format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}
