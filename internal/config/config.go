package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the server configuration, read from SURVEYOR_* variables.
type Config struct {
	Addr          string `env:"SURVEYOR_ADDR" envDefault:":8080"`
	DBPath        string `env:"SURVEYOR_DB_PATH"`
	SQLiteDriver  string `env:"SURVEYOR_SQLITE_DRIVER" envDefault:"sqlite3"`
	MigrationsDir string `env:"SURVEYOR_MIGRATIONS_DIR"`
	SeedPath      string `env:"SURVEYOR_SEED_PATH"`
	StaticDir     string `env:"SURVEYOR_STATIC_DIR"`
	// Browser origins allowed to call the API; empty allows any.
	CORSOrigins []string `env:"SURVEYOR_CORS_ORIGINS" envSeparator:","`

	JWTSecret   string `env:"SURVEYOR_JWT_SECRET" envDefault:"surveyor-dev-secret"`
	IdentityKey string `env:"SURVEYOR_IDENTITY_KEY"`

	// Statistics over at least this many responses are tabulated in parallel;
	// zero disables sharding.
	TabulateParallelThreshold int `env:"SURVEYOR_TABULATE_PARALLEL_THRESHOLD" envDefault:"2000"`

	OTelEndpoint string `env:"SURVEYOR_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"SURVEYOR_OTEL_ENABLED" envDefault:"true"`

	Commit    string `env:"SURVEYOR_COMMIT" envDefault:"dev"`
	BuildTime string `env:"SURVEYOR_BUILD_TIME"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and checks the server configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.SQLiteDriver = strings.ToLower(strings.TrimSpace(cfg.SQLiteDriver))
	switch cfg.SQLiteDriver {
	case "sqlite3", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported sqlite driver %q", cfg.SQLiteDriver)
	}
	if cfg.TabulateParallelThreshold < 0 {
		return Config{}, fmt.Errorf("tabulate parallel threshold must not be negative")
	}
	// Identity sealing falls back to the JWT secret so a bare dev setup works.
	if cfg.IdentityKey == "" {
		cfg.IdentityKey = cfg.JWTSecret
	}
	return cfg, nil
}
