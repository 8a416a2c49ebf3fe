package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	ClinicTimezone string `mapstructure:"CLINIC_TIMEZONE"`
	SlotMinutes    int    `mapstructure:"SLOT_MINUTES"`

	SyncIntervalMinutes   int `mapstructure:"SYNC_INTERVAL_MINUTES"`
	SyncCooldownMinutes   int `mapstructure:"SYNC_COOLDOWN_MINUTES"`
	SyncConcurrency       int `mapstructure:"SYNC_CONCURRENCY"`
	SyncBatchPauseSeconds int `mapstructure:"SYNC_BATCH_PAUSE_SECONDS"`
	SyncWindowDays        int `mapstructure:"SYNC_WINDOW_DAYS"`
	FetchTimeoutSeconds   int `mapstructure:"FETCH_TIMEOUT_SECONDS"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`

	OperatorJWTSecret string `mapstructure:"OPERATOR_JWT_SECRET"`
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
	v.SetDefault("CLINIC_TIMEZONE", "America/New_York")
	v.SetDefault("SLOT_MINUTES", 60)
	v.SetDefault("SYNC_INTERVAL_MINUTES", 10)
	v.SetDefault("SYNC_COOLDOWN_MINUTES", 5)
	v.SetDefault("SYNC_CONCURRENCY", 3)
	v.SetDefault("SYNC_BATCH_PAUSE_SECONDS", 2)
	v.SetDefault("SYNC_WINDOW_DAYS", 21)
	v.SetDefault("FETCH_TIMEOUT_SECONDS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("CLINIC_TIMEZONE")
	v.BindEnv("SLOT_MINUTES")
	v.BindEnv("SYNC_INTERVAL_MINUTES")
	v.BindEnv("SYNC_COOLDOWN_MINUTES")
	v.BindEnv("SYNC_CONCURRENCY")
	v.BindEnv("SYNC_BATCH_PAUSE_SECONDS")
	v.BindEnv("SYNC_WINDOW_DAYS")
	v.BindEnv("FETCH_TIMEOUT_SECONDS")
	v.BindEnv("GOOGLE_CLIENT_ID")
	v.BindEnv("GOOGLE_CLIENT_SECRET")
	v.BindEnv("OPERATOR_JWT_SECRET")

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

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Operator endpoints are open — all requests get operator access.")
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

// Location resolves the clinic operating timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.ClinicTimezone)
}

// SyncInterval returns the scheduler tick interval.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// SyncCooldown returns the per-clinician cooldown window.
func (c *Config) SyncCooldown() time.Duration {
	return time.Duration(c.SyncCooldownMinutes) * time.Minute
}

// SyncBatchPause returns the pause between worker-pool batches.
func (c *Config) SyncBatchPause() time.Duration {
	return time.Duration(c.SyncBatchPauseSeconds) * time.Second
}

// FetchTimeout bounds a single remote calendar fetch.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Validate checks that the configuration is safe to run. Production
// requires an operator JWT secret and Google OAuth client credentials;
// the sync knobs must fall inside sane bounds everywhere.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		return fmt.Errorf("CLINIC_TIMEZONE %q is not a valid IANA zone: %w", c.ClinicTimezone, err)
	}
	if c.SlotMinutes <= 0 || c.SlotMinutes > 480 {
		return fmt.Errorf("SLOT_MINUTES must be between 1 and 480, got %d", c.SlotMinutes)
	}
	if c.SyncWindowDays < 1 || c.SyncWindowDays > 60 {
		return fmt.Errorf("SYNC_WINDOW_DAYS must be between 1 and 60, got %d", c.SyncWindowDays)
	}
	if c.SyncConcurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1, got %d", c.SyncConcurrency)
	}
	if c.SyncIntervalMinutes < 1 {
		return fmt.Errorf("SYNC_INTERVAL_MINUTES must be at least 1, got %d", c.SyncIntervalMinutes)
	}
	if c.SyncCooldownMinutes < 0 {
		return fmt.Errorf("SYNC_COOLDOWN_MINUTES must not be negative, got %d", c.SyncCooldownMinutes)
	}
	if c.IsProduction() {
		if c.OperatorJWTSecret == "" {
			return fmt.Errorf("OPERATOR_JWT_SECRET is required in production")
		}
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
			return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required in production")
		}
	}
	return nil
}
