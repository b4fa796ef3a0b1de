package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aiharvest/store"
)

const defaultQueueKey = "summarize:queue"

// Queue pushes persisted article records onto a Redis list consumed by the
// summarization worker. It is a lighter alternative to the Kafka hand-off for
// single-node deployments.
type Queue struct {
	client *redis.Client
	key    string
}

// NewQueue connects to Redis and targets the given list key. An empty key
// uses the default summarization queue.
func NewQueue(addr, password, key string) (*Queue, error) {
	if key == "" {
		key = defaultQueueKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &Queue{client: client, key: key}, nil
}

// queueEntry is the minimal shape the summarization worker needs; it refetches
// the full record from the store by natural key.
type queueEntry struct {
	NaturalKey string    `json:"natural_key"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// PublishArticle enqueues one persisted record.
func (q *Queue) PublishArticle(ctx context.Context, rec *store.Record) error {
	payload, err := json.Marshal(queueEntry{
		NaturalKey: rec.NaturalKey,
		URL:        rec.Article.URL,
		Title:      rec.Article.Title,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding queue entry: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return q.client.RPush(ctx, q.key, payload).Err()
}

// Close closes the underlying Redis client.
func (q *Queue) Close() error {
	return q.client.Close()
}
