package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Service.Name != "be-plan-amendments" {
		t.Errorf("unexpected service name %q", cfg.Service.Name)
	}
	if cfg.Cache.PlanTTL != 20*time.Minute {
		t.Errorf("expected default plan TTL 20m, got %s", cfg.Cache.PlanTTL)
	}
	if cfg.NATS.Enabled {
		t.Error("NATS must default to disabled")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("PLAN_CACHE_TTL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("expected db host override, got %q", cfg.Database.Host)
	}
	if !cfg.NATS.Enabled {
		t.Error("expected NATS enabled")
	}
	if cfg.Cache.PlanTTL != 5*time.Minute {
		t.Errorf("expected plan TTL 5m, got %s", cfg.Cache.PlanTTL)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
service:
  name: amendments-staging
server:
  port: 8181
database:
  host: db.staging
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Service.Name != "amendments-staging" {
		t.Errorf("expected name from file, got %q", cfg.Service.Name)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("expected port from file, got %d", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.staging" {
		t.Errorf("expected db host from file, got %q", cfg.Database.Host)
	}
	// Untouched keys keep their defaults.
	if cfg.Database.Port != 5432 {
		t.Errorf("expected default db port, got %d", cfg.Database.Port)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("PORT", "70000")
	if _, err := Load(); err == nil {
		t.Error("expected error for out-of-range port")
	}
}
