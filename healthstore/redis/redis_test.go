package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/biketracker/biketracker-go/healthstore"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "example.internal:6380")
	t.Setenv("BIKETRACKER_KEY_PREFIX", "test:records:")

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.RedisAddr != "example.internal:6380" {
		t.Fatalf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.KeyPrefix != "test:records:" {
		t.Fatalf("KeyPrefix = %q", cfg.KeyPrefix)
	}
}

// Integration tests; run against a real Redis by setting REDIS_ADDR.
func testStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis integration test")
	}
	s, err := New(context.Background(), Config{
		RedisAddr: addr,
		KeyPrefix: "biketracker-test:" + t.Name() + ":" + time.Now().Format("150405.000") + ":",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndCursor(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	if max, err := s.MaxStartTime(ctx, "AA:BB"); err != nil || max != 0 {
		t.Fatalf("empty cursor = %d, %v; want 0, nil", max, err)
	}

	rec := healthstore.Record{PeripheralID: "AA:BB", StartTime: 100, EndTime: 150, Revolutions: 10}
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	rec.EndTime = 160
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert replay: %v", err)
	}
	if err := s.Upsert(ctx, healthstore.Record{PeripheralID: "AA:BB", StartTime: 300, EndTime: 400, Revolutions: 50}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	max, err := s.MaxStartTime(ctx, "AA:BB")
	if err != nil {
		t.Fatalf("MaxStartTime: %v", err)
	}
	if max != 300 {
		t.Fatalf("cursor = %d, want 300", max)
	}

	// Replays did not grow the index.
	n, err := s.client.ZCard(ctx, s.indexKey("AA:BB")).Result()
	if err != nil {
		t.Fatalf("zcard: %v", err)
	}
	if n != 2 {
		t.Fatalf("index has %d entries, want 2", n)
	}
}
