package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKey       = "articles:recent"
	defaultTTL       = 24 * time.Hour
	defaultCapacity  = 100000
	defaultErrorRate = 0.001
	opTimeout        = 5 * time.Second
)

// RecentConfig configures the Redis-backed recent-fingerprint filter.
type RecentConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
	// Capacity sets the initial BF.RESERVE capacity (number of items).
	Capacity int
	// ErrorRate sets the desired false positive probability.
	ErrorRate float64
}

// RecentFilter is a probabilistic recently-seen check backed by RedisBloom.
// A hit means the fingerprint was almost certainly persisted within the TTL
// window, letting the pipeline skip the store lookup. Misses always fall
// through to the store, so false negatives cost nothing but a query.
type RecentFilter struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRecentFilter connects to Redis and reserves the bloom filter when the
// key does not exist yet. BF.RESERVE failures are non-fatal: BF.ADD can
// auto-create the filter depending on RedisBloom settings.
func NewRecentFilter(cfg RecentConfig) (*RecentFilter, error) {
	if cfg.Key == "" {
		cfg.Key = defaultKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.ErrorRate <= 0 {
		cfg.ErrorRate = defaultErrorRate
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	exists, err := client.Exists(ctx, cfg.Key).Result()
	if err == nil && exists == 0 {
		// BF.RESERVE <key> <error_rate> <capacity>
		_ = client.Do(ctx, "BF.RESERVE", cfg.Key, fmt.Sprintf("%f", cfg.ErrorRate), cfg.Capacity).Err()
	}

	return &RecentFilter{client: client, key: cfg.Key, ttl: cfg.TTL}, nil
}

// Seen checks whether the fingerprint is present in the filter.
func (r *RecentFilter) Seen(ctx context.Context, fingerprint string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.client.Do(ctx, "BF.EXISTS", r.key, fingerprint).Result()
	if err != nil {
		return false, err
	}
	switch v := res.(type) {
	case int64:
		return v == 1, nil
	case string:
		return v == "1", nil
	default:
		return false, fmt.Errorf("unexpected BF.EXISTS response type %T: %v", res, res)
	}
}

// Mark inserts the fingerprint and refreshes the key TTL so the filter stays
// alive for the full window after the most recent insertion.
func (r *RecentFilter) Mark(ctx context.Context, fingerprint string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Do(ctx, "BF.ADD", r.key, fingerprint).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, r.key, r.ttl).Err()
}

// Close closes the underlying Redis client.
func (r *RecentFilter) Close() error {
	return r.client.Close()
}
