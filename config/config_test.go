package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "prod" {
		t.Fatalf("Env = %q, want prod", cfg.Env)
	}
	if cfg.DeviceName != "BikeTracker" {
		t.Fatalf("DeviceName = %q", cfg.DeviceName)
	}
	if cfg.IdleTimeout != 10*time.Minute {
		t.Fatalf("IdleTimeout = %v, want 10m", cfg.IdleTimeout)
	}
	if cfg.CheckpointInterval != 5*time.Minute {
		t.Fatalf("CheckpointInterval = %v, want 5m", cfg.CheckpointInterval)
	}
	if cfg.MinSessionDuration != 5*time.Minute {
		t.Fatalf("MinSessionDuration = %v, want 5m", cfg.MinSessionDuration)
	}
	if cfg.CSCNotifyInterval != 2*time.Second {
		t.Fatalf("CSCNotifyInterval = %v, want 2s", cfg.CSCNotifyInterval)
	}
}

func TestDevProfile(t *testing.T) {
	t.Setenv("BIKETRACKER_ENV", "dev")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IdleTimeout != DevIdleTimeout {
		t.Fatalf("IdleTimeout = %v, want %v", cfg.IdleTimeout, DevIdleTimeout)
	}
	if cfg.DeviceName != "BikeTracker-dev" {
		t.Fatalf("DeviceName = %q, want dev suffix", cfg.DeviceName)
	}
}

func TestExplicitOverrides(t *testing.T) {
	t.Setenv("BIKETRACKER_IDLE_TIMEOUT", "90s")
	t.Setenv("BIKETRACKER_SESSIONS_FILE", "/tmp/s.json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IdleTimeout != 90*time.Second {
		t.Fatalf("IdleTimeout = %v, want 90s", cfg.IdleTimeout)
	}
	if cfg.SessionsFile != "/tmp/s.json" {
		t.Fatalf("SessionsFile = %q", cfg.SessionsFile)
	}
}
