// Package redis provides a Redis-backed healthstore.Store. Records live in
// hashes keyed by record id; a per-peripheral sorted set scored by start
// time makes cursor resolution a single ZREVRANGE.
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/biketracker/biketracker-go/healthstore"
)

// Config for the Redis-backed store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: BIKETRACKER_KEY_PREFIX
	KeyPrefix string `env:"BIKETRACKER_KEY_PREFIX,default=biketracker:records:"`
}

// Store implements healthstore.Store on Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

var _ healthstore.Store = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "biketracker:records:"
	}
	return &Store{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv(ctx context.Context) (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return New(ctx, cfg)
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) recordKey(id string) string { return s.keyPrefix + "rec:" + id }
func (s *Store) indexKey(peripheralID string) string {
	return s.keyPrefix + "by-start:" + peripheralID
}

// MaxStartTime reads the top score from the peripheral's index.
func (s *Store) MaxStartTime(ctx context.Context, peripheralID string) (int64, error) {
	vals, err := s.client.ZRevRangeWithScores(ctx, s.indexKey(peripheralID), 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zrevrange: %w", err)
	}
	if len(vals) == 0 {
		return 0, nil
	}
	return int64(vals[0].Score), nil
}

// Upsert writes the record hash and index entry in one transaction. Both
// writes key off the deterministic record id, so replays overwrite in place.
func (s *Store) Upsert(ctx context.Context, rec healthstore.Record) error {
	id := rec.ID()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.recordKey(id), map[string]any{
			"peripheral_id": rec.PeripheralID,
			"start_time":    strconv.FormatInt(rec.StartTime, 10),
			"end_time":      strconv.FormatInt(rec.EndTime, 10),
			"revolutions":   strconv.Itoa(rec.Revolutions),
		})
		pipe.ZAdd(ctx, s.indexKey(rec.PeripheralID), redis.Z{
			Score:  float64(rec.StartTime),
			Member: id,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis upsert: %w", err)
	}
	return nil
}
