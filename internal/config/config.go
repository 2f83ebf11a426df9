// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Bot       BotConfig       `mapstructure:"bot"`
	Log       LogConfig       `mapstructure:"log"`
	Drive     DriveConfig     `mapstructure:"drive"`
	Referral  ReferralConfig  `mapstructure:"referral"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Timezone        string        `mapstructure:"timezone"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AuthConfig holds JWT verification settings.
// Tokens are issued upstream; this service only verifies them.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// AdminConfig holds Telegram admin user configuration.
type AdminConfig struct {
	TelegramIDs []int64 `mapstructure:"telegram_ids"`
}

// BotConfig holds the optional Telegram admin bot configuration.
type BotConfig struct {
	Token       string  `mapstructure:"token"`
	NotifyChats []int64 `mapstructure:"notify_chats"`
}

// Enabled reports whether the admin bot should be started.
func (b BotConfig) Enabled() bool {
	return strings.TrimSpace(b.Token) != ""
}

// IsNotifyChat reports whether chatID is one of the notification chats.
func (b BotConfig) IsNotifyChat(chatID int64) bool {
	for _, id := range b.NotifyChats {
		if id == chatID {
			return true
		}
	}
	return false
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DriveConfig holds per-tier drive policy.
type DriveConfig struct {
	Tiers map[string]TierConfig `mapstructure:"tiers"`
}

// TierConfig holds the drive shape and policy for one tier.
// Money values are decimal strings.
type TierConfig struct {
	TasksRequired  int    `mapstructure:"tasks_required"`
	MinBalance     string `mapstructure:"min_balance"`
	CommissionRate string `mapstructure:"commission_rate"`
	MinPrice       string `mapstructure:"min_price"`
	MaxPrice       string `mapstructure:"max_price"`
	MinQuantity    int    `mapstructure:"min_quantity"`
	MaxQuantity    int    `mapstructure:"max_quantity"`
}

// ReferralConfig holds upline bonus rates, level 1 first.
type ReferralConfig struct {
	Rates []string `mapstructure:"rates"`
}

// SchedulerConfig holds maintenance job configuration.
type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ReconcileSpec string        `mapstructure:"reconcile_spec"`
	StaleSpec     string        `mapstructure:"stale_spec"`
	FreezeSpec    string        `mapstructure:"freeze_spec"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	JobTimeout    time.Duration `mapstructure:"job_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslMode,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase
	// e.g., DATABASE_HOST, AUTH_JWT_SECRET, BOT_TOKEN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can provide everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Drive.Tiers) == 0 {
		return fmt.Errorf("drive.tiers must configure at least one tier")
	}
	for name, tier := range c.Drive.Tiers {
		if tier.TasksRequired <= 0 {
			return fmt.Errorf("drive.tiers.%s.tasks_required must be positive", name)
		}
		if tier.MinQuantity <= 0 || tier.MaxQuantity < tier.MinQuantity {
			return fmt.Errorf("drive.tiers.%s quantity bounds are invalid", name)
		}
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.request_timeout", "20s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.timezone", "UTC")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "driveledger")
	v.SetDefault("database.name", "driveledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.password", "")

	// Secrets have empty defaults so env overrides are picked up
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "driveledger")
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.notify_chats", []int64{})
	v.SetDefault("admin.telegram_ids", []int64{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Drive policy defaults per tier
	setTierDefaults(v, "bronze", 40, "50", "0.005", "10", "500")
	setTierDefaults(v, "silver", 40, "100", "0.01", "20", "1500")
	setTierDefaults(v, "gold", 45, "300", "0.015", "50", "4000")
	setTierDefaults(v, "platinum", 50, "500", "0.02", "100", "8000")

	v.SetDefault("referral.rates", []string{"0.20", "0.10", "0.05"})

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.reconcile_spec", "*/15 * * * *")
	v.SetDefault("scheduler.stale_spec", "5 * * * *")
	v.SetDefault("scheduler.freeze_spec", "*/30 * * * *")
	v.SetDefault("scheduler.stale_after", "72h")
	v.SetDefault("scheduler.job_timeout", "2m")
}

func setTierDefaults(v *viper.Viper, tier string, tasks int, minBalance, rate, minPrice, maxPrice string) {
	prefix := "drive.tiers." + tier + "."
	v.SetDefault(prefix+"tasks_required", tasks)
	v.SetDefault(prefix+"min_balance", minBalance)
	v.SetDefault(prefix+"commission_rate", rate)
	v.SetDefault(prefix+"min_price", minPrice)
	v.SetDefault(prefix+"max_price", maxPrice)
	v.SetDefault(prefix+"min_quantity", 1)
	v.SetDefault(prefix+"max_quantity", 5)
}

// Location returns the timezone daily statistics are bucketed in.
func (s ServerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsAdmin checks if a Telegram user ID is in the admin list.
func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.Admin.TelegramIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}
