package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("REDIS_URL", "")
	path := writeConfig(t, `
database:
  url: postgres://localhost/teamflow
auth:
  jwt_secret: s3cret
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.Mode != "release" {
		t.Fatalf("server defaults not applied: %+v", cfg.Server)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour || cfg.Redis.TagTTL != 5*time.Minute {
		t.Fatalf("duration defaults not applied: %v %v", cfg.Auth.TokenTTL, cfg.Redis.TagTTL)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("log defaults not applied: %+v", cfg.Log)
	}
	if cfg.Redis.URL != "" || cfg.Email.Enabled || cfg.Telegram.Enabled {
		t.Fatalf("optional integrations should stay off")
	}
}

func TestLoadParsesDurationsAndEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/teamflow")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("REDIS_URL", "redis://env:6379/1")
	path := writeConfig(t, `
server:
  port: 9000
database:
  url: postgres://file/teamflow
auth:
  jwt_secret: from-file
  token_ttl: 90m
redis:
  tag_ttl: 30s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "postgres://env/teamflow" || cfg.Auth.JWTSecret != "from-env" || cfg.Redis.URL != "redis://env:6379/1" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Auth.TokenTTL != 90*time.Minute || cfg.Redis.TagTTL != 30*time.Second {
		t.Fatalf("durations: %v %v", cfg.Auth.TokenTTL, cfg.Redis.TagTTL)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("port: %d", cfg.Server.Port)
	}
}

func TestLoadRejects(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("REDIS_URL", "")

	cases := map[string]struct {
		body string
		want string
	}{
		"missing secrets": {"server:\n  port: 8080\n", "database.url is required"},
		"unknown field":   {"database:\n  url: x\n  nope: 1\n", "nope"},
		"telegram":        {"database:\n  url: x\nauth:\n  jwt_secret: s\ntelegram:\n  enabled: true\n", "telegram.bot_token"},
		"email":           {"database:\n  url: x\nauth:\n  jwt_secret: s\nemail:\n  enabled: true\n", "email.smtp_host"},
		"log format":      {"database:\n  url: x\nauth:\n  jwt_secret: s\nlog:\n  format: xml\n", "log.format"},
	}
	for name, tc := range cases {
		_, err := Load(writeConfig(t, tc.body))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", name, tc.want, err)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSampleConfigLoads(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("REDIS_URL", "")
	cfg, err := Load(filepath.Join("..", "..", DefaultPath))
	if err != nil {
		t.Fatalf("sample config: %v", err)
	}
	if !cfg.Report.Enabled {
		t.Fatalf("sample config should enable reports")
	}
}
