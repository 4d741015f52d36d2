package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.StorageDriver != "memory" {
		t.Fatalf("driver = %q, want memory", cfg.StorageDriver)
	}
	if cfg.SQLitePath != "torrens.db" {
		t.Fatalf("sqlite path = %q", cfg.SQLitePath)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Fatalf("metrics addr = %q", cfg.MetricsAddr)
	}
	if cfg.SweepInterval != time.Hour {
		t.Fatalf("sweep interval = %v", cfg.SweepInterval)
	}
	if cfg.VerifyCacheTTL != 0 {
		t.Fatalf("verify cache ttl = %v, want disabled", cfg.VerifyCacheTTL)
	}
	if cfg.Retention != nil {
		t.Fatalf("retention = %+v, want none", cfg.Retention)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TORRENS_STORAGE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/torrens")
	t.Setenv("TORRENS_BYPASS_ROLE", "chief_registrar")
	t.Setenv("TORRENS_VERIFY_CACHE_TTL", "5m")
	t.Setenv("TORRENS_SWEEP_INTERVAL", "30m")
	t.Setenv("TORRENS_VERIFY_ON_START", "yes")
	t.Setenv("REDIS_DB", "3")

	cfg := FromEnv()
	if cfg.StorageDriver != "postgres" || cfg.PostgresDSN == "" {
		t.Fatalf("postgres config lost: %+v", cfg)
	}
	if cfg.BypassRole != "chief_registrar" {
		t.Fatalf("bypass role = %q", cfg.BypassRole)
	}
	if cfg.VerifyCacheTTL != 5*time.Minute {
		t.Fatalf("verify cache ttl = %v", cfg.VerifyCacheTTL)
	}
	if cfg.SweepInterval != 30*time.Minute {
		t.Fatalf("sweep interval = %v", cfg.SweepInterval)
	}
	if !cfg.VerifyOnStart {
		t.Fatal("verify on start not set")
	}
	if cfg.RedisDB != 3 {
		t.Fatalf("redis db = %d", cfg.RedisDB)
	}
}

func TestFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("TORRENS_SWEEP_INTERVAL", "soon")
	t.Setenv("TORRENS_VERIFY_CACHE_TTL", "-10s")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := FromEnv()
	if cfg.SweepInterval != time.Hour {
		t.Fatalf("sweep interval = %v, want fallback", cfg.SweepInterval)
	}
	if cfg.VerifyCacheTTL != 0 {
		t.Fatalf("verify cache ttl = %v, want fallback", cfg.VerifyCacheTTL)
	}
	if cfg.RedisDB != 0 {
		t.Fatalf("redis db = %d, want fallback", cfg.RedisDB)
	}
}

func TestParseRetention(t *testing.T) {
	rules := ParseRetention("view=720h, verify=2160h,broken,=1h,update=nope,empty=,late=-4h")
	if len(rules) != 2 {
		t.Fatalf("rules = %+v, want 2 surviving", rules)
	}
	if rules[0].EventType != "view" || rules[0].RetainFor != 720*time.Hour {
		t.Fatalf("first rule = %+v", rules[0])
	}
	if rules[1].EventType != "verify" || rules[1].RetainFor != 2160*time.Hour {
		t.Fatalf("second rule = %+v", rules[1])
	}
}
