package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
	t.Setenv("DATABASE_DSN", "postgres://localhost/auth_test")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %s", cfg.HTTPAddr)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %s", cfg.RedisAddr)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 7*24*time.Hour {
		t.Errorf("RefreshTTL = %v", cfg.RefreshTTL)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.LockTTL != 5*time.Second {
		t.Errorf("LockTTL = %v", cfg.LockTTL)
	}
	if cfg.EventBuffer != 256 {
		t.Errorf("EventBuffer = %d", cfg.EventBuffer)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %s", cfg.HTTPAddr)
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d", cfg.RedisDB)
	}
	want := []string{"https://app.example.com", "https://admin.example.com"}
	if len(cfg.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	for i := range want {
		if cfg.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %s", i, cfg.CORSOrigins[i])
		}
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T)
	}{
		{"missing secrets", func(t *testing.T) {
			t.Setenv("DATABASE_DSN", "postgres://localhost/auth_test")
		}},
		{"identical secrets", func(t *testing.T) {
			setRequired(t)
			t.Setenv("JWT_REFRESH_SECRET", "access-secret")
		}},
		{"missing dsn", func(t *testing.T) {
			setRequired(t)
			t.Setenv("DATABASE_DSN", "")
		}},
		{"bad duration", func(t *testing.T) {
			setRequired(t)
			t.Setenv("JWT_ACCESS_TTL", "soon")
		}},
		{"negative ttl", func(t *testing.T) {
			setRequired(t)
			t.Setenv("SESSION_TTL", "-1h")
		}},
		{"bad int", func(t *testing.T) {
			setRequired(t)
			t.Setenv("REDIS_DB", "three")
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setup(t)
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
