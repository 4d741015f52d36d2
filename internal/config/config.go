package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	StorageDriver string
	PostgresDSN   string
	SQLitePath    string

	LogLevel string

	TablesDir  string
	BypassRole string

	AuthzPolicyPath string

	VerifyCacheTTL time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	MetricsAddr   string
	SweepInterval time.Duration
	VerifyOnStart bool
	Retention     []RetentionRule
}

// RetentionRule maps an audit event type to how long its entries stay
// unarchived. Parsed from TORRENS_RETENTION, e.g. "view=720h,verify=2160h".
type RetentionRule struct {
	EventType string
	RetainFor time.Duration
}

func FromEnv() Config {
	return Config{
		StorageDriver:   envDefault("TORRENS_STORAGE_DRIVER", "memory"),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		SQLitePath:      envDefault("TORRENS_SQLITE_PATH", "torrens.db"),
		LogLevel:        envDefault("LOG_LEVEL", "info"),
		TablesDir:       os.Getenv("TORRENS_TABLES_DIR"),
		BypassRole:      os.Getenv("TORRENS_BYPASS_ROLE"),
		AuthzPolicyPath: os.Getenv("TORRENS_AUTHZ_POLICY_PATH"),
		VerifyCacheTTL:  envDurationDefault("TORRENS_VERIFY_CACHE_TTL", 0),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         envIntDefault("REDIS_DB", 0),
		MetricsAddr:     envDefault("METRICS_ADDR", ":9090"),
		SweepInterval:   envDurationDefault("TORRENS_SWEEP_INTERVAL", time.Hour),
		VerifyOnStart:   envBoolDefault("TORRENS_VERIFY_ON_START", false),
		Retention:       ParseRetention(os.Getenv("TORRENS_RETENTION")),
	}
}

// ParseRetention reads comma-separated "event_type=duration" pairs.
// Malformed segments are dropped rather than failing startup.
func ParseRetention(raw string) []RetentionRule {
	if raw == "" {
		return nil
	}
	var rules []RetentionRule
	for _, segment := range strings.Split(raw, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		eventType, spec, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		eventType = strings.TrimSpace(eventType)
		retain, err := time.ParseDuration(strings.TrimSpace(spec))
		if eventType == "" || err != nil || retain <= 0 {
			continue
		}
		rules = append(rules, RetentionRule{EventType: eventType, RetainFor: retain})
	}
	return rules
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func envDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}
