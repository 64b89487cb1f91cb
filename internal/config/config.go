package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	AuthIssuer    string `mapstructure:"AUTH_ISSUER"`
	AuthAudience  string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Reminder engine cadence. ReminderHour is the local hour (0-23) the
	// daily passes run at; DigestWeekday is the day the weekly digest runs.
	ReminderHour  int    `mapstructure:"REMINDER_HOUR"`
	DigestWeekday string `mapstructure:"DIGEST_WEEKDAY"`

	// SubscriptionMaxAgeDays is the age threshold for the periodic
	// subscription purge.
	SubscriptionMaxAgeDays int `mapstructure:"SUBSCRIPTION_MAX_AGE_DAYS"`

	// WebhookPushURL, when set, enables the HTTP push sender used for
	// push-channel reminders.
	WebhookPushURL string `mapstructure:"WEBHOOK_PUSH_URL"`

	CatalogVersion string `mapstructure:"CATALOG_VERSION"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REMINDER_HOUR", 8)
	v.SetDefault("DIGEST_WEEKDAY", "monday")
	v.SetDefault("SUBSCRIPTION_MAX_AGE_DAYS", 90)
	v.SetDefault("CATALOG_VERSION", "2024")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("REMINDER_HOUR")
	v.BindEnv("DIGEST_WEEKDAY")
	v.BindEnv("SUBSCRIPTION_MAX_AGE_DAYS")
	v.BindEnv("WEBHOOK_PUSH_URL")
	v.BindEnv("CATALOG_VERSION")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DigestDay resolves DIGEST_WEEKDAY to a time.Weekday. Unknown values fall
// back to Monday.
func (c *Config) DigestDay() time.Weekday {
	switch strings.ToLower(c.DigestWeekday) {
	case "sunday":
		return time.Sunday
	case "monday":
		return time.Monday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	}
	return time.Monday
}

// Validate checks that the configuration is safe to run. In non-development
// modes a JWT secret (or an external issuer) must be configured so that real
// authentication is enforced, and the reminder cadence must be sane.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthJWTSecret == "" && c.AuthIssuer == "" {
		return fmt.Errorf(
			"AUTH_JWT_SECRET or AUTH_ISSUER must be set when ENV=%q; "+
				"refusing to start without authentication configuration", c.Env)
	}
	if c.ReminderHour < 0 || c.ReminderHour > 23 {
		return fmt.Errorf("REMINDER_HOUR must be between 0 and 23, got %d", c.ReminderHour)
	}
	if c.SubscriptionMaxAgeDays <= 0 {
		return fmt.Errorf("SUBSCRIPTION_MAX_AGE_DAYS must be positive, got %d", c.SubscriptionMaxAgeDays)
	}
	return nil
}
