package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("UPTIMED_DATABASE_DSN", "postgres://uptimed@db:5432/uptimed")
	t.Setenv("UPTIMED_FEED_URL", "postgres://uptimed@db:5432/uptimed")
	t.Setenv("UPTIMED_FEED_CHANNELS", "monitor_changes,new_monitor")
	t.Setenv("UPTIMED_ALERT_COOLDOWN", "90m")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://uptimed@db:5432/uptimed", cfg.Database.DSN)
	assert.Equal(t, []string{"monitor_changes", "new_monitor"}, cfg.Feed.Channels)
	assert.Equal(t, 90*time.Minute, cfg.Alert.Cooldown)
	assert.Equal(t, 30*time.Second, cfg.Shutdown.Grace)
	assert.False(t, cfg.SMTP.Enabled())
}

func TestLoadDefaultsCooldownToFourHours(t *testing.T) {
	t.Setenv("UPTIMED_DATABASE_DSN", "file.db")
	t.Setenv("UPTIMED_DATABASE_DRIVER", "sqlite")
	t.Setenv("UPTIMED_FEED_DRIVER", "poll")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, NotificationCooldown, cfg.Alert.Cooldown)
	assert.Equal(t, 30*time.Second, cfg.Feed.PollInterval)
}

func TestLoadMissingDatabaseIsConfigurationError(t *testing.T) {
	t.Setenv("UPTIMED_FEED_DRIVER", "poll")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "database.dsn")
}

func TestLoadMissingFeedURL(t *testing.T) {
	t.Setenv("UPTIMED_DATABASE_DSN", "postgres://db/uptimed")
	t.Setenv("UPTIMED_FEED_DRIVER", "redis")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "feed.url")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uptimed.yaml")
	content := `
database:
  driver: mysql
  dsn: "uptimed@tcp(127.0.0.1:3306)/uptimed?parseTime=true"
feed:
  driver: redis
  url: redis://127.0.0.1:6379/0
  channels: [monitor_changes]
smtp:
  host: smtp.example.com
  port: 2525
  from: alerts@example.com
log:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "redis", cfg.Feed.Driver)
	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidateSMTPRequiresFrom(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "x.db"},
		Feed:     FeedConfig{Driver: "poll", PollInterval: time.Second},
		SMTP:     SMTPConfig{Host: "smtp.example.com", Port: 587},
		Log:      LogConfig{Format: "text"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "smtp.from")
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Driver: "oracle"},
		Feed:     FeedConfig{Driver: "carrier-pigeon"},
		Log:      LogConfig{Format: "xml"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"database.driver", "database.dsn", "feed.driver", "log.format"} {
		assert.Contains(t, err.Error(), want)
	}
}
