package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GRIDPACK_PROJECT_ROOT", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("GRIDPACK_HOOKS_ENABLED", "")
	t.Setenv("GRIDPACK_EVENT_HOOKS_ENABLED", "")

	cfg := Load()
	if cfg.ProjectRoot != "." {
		t.Fatalf("unexpected project root: %s", cfg.ProjectRoot)
	}
	if cfg.NatsURL != "nats://localhost:4222" {
		t.Fatalf("unexpected nats url: %s", cfg.NatsURL)
	}
	if !cfg.HooksEnabled {
		t.Fatalf("hooks should default on")
	}
	if cfg.EventHooksEnabled {
		t.Fatalf("event hooks should default off")
	}
	if cfg.InvokeTimeout != 30*time.Second {
		t.Fatalf("unexpected invoke timeout: %s", cfg.InvokeTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GRIDPACK_PROJECT_ROOT", "/srv/gridpack")
	t.Setenv("GRIDPACK_HOOKS_ENABLED", "off")
	t.Setenv("GRIDPACK_EVENT_HOOKS_ENABLED", "yes")
	t.Setenv("GRIDPACK_INVOKE_TIMEOUT", "5s")

	cfg := Load()
	if cfg.ProjectRoot != "/srv/gridpack" {
		t.Fatalf("unexpected project root: %s", cfg.ProjectRoot)
	}
	if cfg.HooksEnabled {
		t.Fatalf("hooks should be disabled")
	}
	if !cfg.EventHooksEnabled {
		t.Fatalf("event hooks should be enabled")
	}
	if cfg.InvokeTimeout != 5*time.Second {
		t.Fatalf("unexpected invoke timeout: %s", cfg.InvokeTimeout)
	}
}
