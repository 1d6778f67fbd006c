package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("MODE", "")
	t.Setenv("VIOLATION_LIMIT", "")
	t.Setenv("VIOLATION_DEBOUNCE", "")

	cfg := FromEnv()
	if cfg.Mode != ModeOffline {
		t.Fatalf("mode = %q, want offline", cfg.Mode)
	}
	if cfg.ViolationLimit != 3 {
		t.Fatalf("violation limit = %d, want 3", cfg.ViolationLimit)
	}
	if cfg.ViolationDebounce != 500*time.Millisecond {
		t.Fatalf("debounce = %s, want 500ms", cfg.ViolationDebounce)
	}
	if !cfg.SeedDefaultClasses {
		t.Fatalf("offline mode should seed default classes")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("VIOLATION_LIMIT", "5")
	t.Setenv("SESSION_IDLE_TTL", "30m")
	t.Setenv("CORS_ORIGINS_ONLINE", " https://a.example , ,https://b.example")
	t.Setenv("SEED_DEFAULT_CLASSES", "")

	cfg := FromEnv()
	if cfg.ViolationLimit != 5 {
		t.Fatalf("violation limit = %d, want 5", cfg.ViolationLimit)
	}
	if cfg.SessionIdleTTL != 30*time.Minute {
		t.Fatalf("idle ttl = %s", cfg.SessionIdleTTL)
	}
	got := cfg.CORSOrigins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("origins = %v", got)
	}
	if cfg.SeedDefaultClasses {
		t.Fatalf("online mode should not seed by default")
	}
}

func TestEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("VIOLATION_LIMIT", "three")
	if got := FromEnv().ViolationLimit; got != 3 {
		t.Fatalf("got %d, want fallback 3", got)
	}
}
