package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Host            string        `mapstructure:"HOST"`
	Env             string        `mapstructure:"ENV"`
	OrthancURL      string        `mapstructure:"ORTHANC_URL"`
	OrthancUsername string        `mapstructure:"ORTHANC_USERNAME"`
	OrthancPassword string        `mapstructure:"ORTHANC_PASSWORD"`
	OrthancTimeout  time.Duration `mapstructure:"ORTHANC_TIMEOUT"`
	OrthancRPS      float64       `mapstructure:"ORTHANC_RPS"`
	PollInterval    time.Duration `mapstructure:"POLL_INTERVAL"`
	ResultsFile     string        `mapstructure:"RESULTS_FILE"`
	ArchiveDir      string        `mapstructure:"ARCHIVE_DIR"`
	CleanupOnExit   bool          `mapstructure:"CLEANUP_ON_EXIT"`
	TargetsFile     string        `mapstructure:"TARGETS_FILE"`
	StoreDriver     string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	AuthSigningKey  string        `mapstructure:"AUTH_SIGNING_KEY"`
}

var keys = []string{
	"PORT", "HOST", "ENV",
	"ORTHANC_URL", "ORTHANC_USERNAME", "ORTHANC_PASSWORD", "ORTHANC_TIMEOUT", "ORTHANC_RPS",
	"POLL_INTERVAL", "RESULTS_FILE", "ARCHIVE_DIR", "CLEANUP_ON_EXIT", "TARGETS_FILE",
	"STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "AUTH_SIGNING_KEY",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "5001")
	v.SetDefault("HOST", "localhost")
	v.SetDefault("ENV", "development")
	v.SetDefault("ORTHANC_URL", "http://localhost:8080")
	v.SetDefault("ORTHANC_USERNAME", "orthanc")
	v.SetDefault("ORTHANC_PASSWORD", "orthanc")
	v.SetDefault("ORTHANC_TIMEOUT", "10s")
	v.SetDefault("ORTHANC_RPS", 5)
	v.SetDefault("POLL_INTERVAL", "5s")
	v.SetDefault("RESULTS_FILE", "parameters.json")
	v.SetDefault("CLEANUP_ON_EXIT", true)
	v.SetDefault("STORE_DRIVER", StoreMemory)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.OrthancURL = strings.TrimRight(cfg.OrthancURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		log.Println("WARNING: AUTH_SIGNING_KEY is not set; /api/v1 is served without authentication.")
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

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Validate checks that the configuration is usable. SQL store drivers need a
// DATABASE_URL, and production deployments must protect /api/v1 with a
// signing key.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres, StoreSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q, %q or %q, got %q", StoreMemory, StorePostgres, StoreSQLite, c.StoreDriver)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.OrthancURL == "" {
		return fmt.Errorf("ORTHANC_URL is required")
	}
	if c.ResultsFile == "" {
		return fmt.Errorf("RESULTS_FILE is required")
	}
	if c.IsProduction() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
	}
	return nil
}
