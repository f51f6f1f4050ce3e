// Package config loads daemon configuration from the environment and
// watches the env file for out-of-band edits.
//
// BIKETRACKER_ENV selects a profile: "prod" (the default) uses the
// production timeouts; "dev" shortens the idle timeout to 30 seconds and
// suffixes the device name so a test rig never pollutes a real phone's
// health records.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joeshaw/envdecode"
)

// Config is the peripheral daemon's tunable surface. Idle timeout and
// checkpoint interval are deliberately configuration, not constants.
type Config struct {
	// Env selects the profile: "prod" or "dev". ENV: BIKETRACKER_ENV
	Env string `env:"BIKETRACKER_ENV,default=prod"`
	// DeviceName is the BLE advertised name. ENV: BIKETRACKER_DEVICE_NAME
	DeviceName string `env:"BIKETRACKER_DEVICE_NAME,default=BikeTracker"`
	// SessionsFile is the snapshot path. ENV: BIKETRACKER_SESSIONS_FILE
	SessionsFile string `env:"BIKETRACKER_SESSIONS_FILE,default=/var/lib/biketracker/sessions.json"`
	// IdleTimeout closes the active session after this much silence.
	// ENV: BIKETRACKER_IDLE_TIMEOUT
	IdleTimeout time.Duration `env:"BIKETRACKER_IDLE_TIMEOUT,default=10m"`
	// CheckpointInterval persists the active session this often.
	// ENV: BIKETRACKER_CHECKPOINT_INTERVAL
	CheckpointInterval time.Duration `env:"BIKETRACKER_CHECKPOINT_INTERVAL,default=5m"`
	// MinSessionDuration discards shorter sessions at close. Zero keeps all.
	// ENV: BIKETRACKER_MIN_SESSION_DURATION
	MinSessionDuration time.Duration `env:"BIKETRACKER_MIN_SESSION_DURATION,default=5m"`
	// CSCNotifyInterval is the telemetry notification cadence.
	// ENV: BIKETRACKER_CSC_NOTIFY_INTERVAL
	CSCNotifyInterval time.Duration `env:"BIKETRACKER_CSC_NOTIFY_INTERVAL,default=2s"`
}

// DevIdleTimeout is the dev profile's shortened idle timeout, for exercising
// session boundaries without waiting ten minutes.
const DevIdleTimeout = 30 * time.Second

// Load decodes the environment and applies the selected profile.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if cfg.Env == "dev" {
		cfg.IdleTimeout = DevIdleTimeout
		cfg.DeviceName += "-dev"
	}
	return cfg, nil
}

// Watch observes the given env file and signals on the returned channel
// whenever it changes. The daemon reads environment variables once at
// startup, so a change means a restart is needed; Watch makes that visible
// instead of silently running stale settings.
func Watch(ctx context.Context, path string, log *slog.Logger) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	changed := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		defer close(changed)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				log.Warn("config file changed; restart to apply", "path", ev.Name)
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("config watcher error", "err", err)
			}
		}
	}()
	return changed, nil
}
