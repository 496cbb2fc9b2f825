package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"SURVEYOR_ADDR", "SURVEYOR_DB_PATH", "SURVEYOR_SQLITE_DRIVER", "SURVEYOR_JWT_SECRET", "SURVEYOR_IDENTITY_KEY", "SURVEYOR_TABULATE_PARALLEL_THRESHOLD", "SURVEYOR_OTEL_ENABLED"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.SQLiteDriver != "sqlite3" || cfg.TabulateParallelThreshold != 2000 || !cfg.OTelEnabled {
		t.Fatalf("defaults %+v", cfg)
	}
	if cfg.IdentityKey != cfg.JWTSecret {
		t.Fatalf("identity key should fall back to the jwt secret")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SURVEYOR_ADDR", ":9000")
	t.Setenv("SURVEYOR_SQLITE_DRIVER", " SQLite ")
	t.Setenv("SURVEYOR_IDENTITY_KEY", "k")
	t.Setenv("SURVEYOR_TABULATE_PARALLEL_THRESHOLD", "10")
	t.Setenv("SURVEYOR_OTEL_ENABLED", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.SQLiteDriver != "sqlite" || cfg.IdentityKey != "k" || cfg.TabulateParallelThreshold != 10 || cfg.OTelEnabled {
		t.Fatalf("overrides %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("SURVEYOR_SQLITE_DRIVER", "postgres")
	if _, err := Load(); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	t.Setenv("SURVEYOR_SQLITE_DRIVER", "")
	t.Setenv("SURVEYOR_TABULATE_PARALLEL_THRESHOLD", "many")
	_, err := Load()
	if err == nil || !strings.HasPrefix(err.Error(), "parse env:") {
		t.Fatalf("got %v, want parse env error", err)
	}
}
