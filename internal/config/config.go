// Package config loads the bot configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// TelegramToken is the bot API token from BotFather.
	TelegramToken string `mapstructure:"telegram_token"`
	// RootUser is always allow-listed and gets the admin screens.
	RootUser int64 `mapstructure:"root_user"`

	// HAURL is the Home Assistant base URL, e.g. http://ha.local:8123.
	HAURL string `mapstructure:"ha_url"`
	// HAToken is a long-lived Home Assistant access token.
	HAToken string `mapstructure:"ha_token"`

	DatabasePath string `mapstructure:"database_path"`
	// ListenAddr serves /health and /metrics.
	ListenAddr string `mapstructure:"listen_addr"`

	// EventQueueCapacity bounds the fan-out ingest queue; events beyond it
	// are shed.
	EventQueueCapacity int `mapstructure:"event_queue_capacity"`

	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	// EventRetention is how long device events stay in the log.
	EventRetention time.Duration `mapstructure:"event_retention"`
	// AlertWindow is how far back the live header looks.
	AlertWindow time.Duration `mapstructure:"alert_window"`

	// NotificationTTL is how long push notifications stay before the bot
	// deletes them.
	NotificationTTL time.Duration `mapstructure:"notification_ttl"`

	BackupDir string `mapstructure:"backup_dir"`
	// BackupSchedule is a cron spec; empty disables backups.
	BackupSchedule string `mapstructure:"backup_schedule"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads configPath (optional; env-only setups pass "") and applies
// BOT_-prefixed environment overrides, e.g. BOT_TELEGRAM_TOKEN.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_path", "bot.db")
	v.SetDefault("listen_addr", ":8090")
	v.SetDefault("event_queue_capacity", 32)
	v.SetDefault("maintenance_interval", 90*time.Second)
	v.SetDefault("event_retention", 14*24*time.Hour)
	v.SetDefault("alert_window", 30*time.Minute)
	v.SetDefault("notification_ttl", 30*time.Second)
	v.SetDefault("backup_schedule", "0 4 * * *")
	v.SetDefault("log_level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Bind explicitly so env vars work without a config file present.
	for _, key := range []string{
		"telegram_token", "root_user", "ha_url", "ha_token",
		"database_path", "listen_addr", "event_queue_capacity",
		"maintenance_interval", "event_retention", "alert_window",
		"notification_ttl", "backup_dir", "backup_schedule", "log_level",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var problems []string
	if c.TelegramToken == "" {
		problems = append(problems, "telegram_token is required")
	}
	if c.RootUser == 0 {
		problems = append(problems, "root_user is required")
	}
	if c.HAURL == "" {
		problems = append(problems, "ha_url is required")
	}
	if c.HAToken == "" {
		problems = append(problems, "ha_token is required")
	}
	if c.EventQueueCapacity <= 0 {
		problems = append(problems, "event_queue_capacity must be positive")
	}
	if c.MaintenanceInterval <= 0 {
		problems = append(problems, "maintenance_interval must be positive")
	}
	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}
