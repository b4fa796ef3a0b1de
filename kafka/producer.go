// Package kafka hands persisted articles to the downstream summarization
// pipeline.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"aiharvest/logging"
	"aiharvest/store"
)

// DefaultTopic is where persisted articles are announced.
const DefaultTopic = "articles.persisted"

// ProducerConfig holds broker and topic settings.
type ProducerConfig struct {
	Brokers []string
	Topic   string
}

// Producer publishes persisted article records as JSON messages, keyed by
// natural key so re-crawls of the same item land on the same partition.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	log      zerolog.Logger
}

// NewProducer connects a synchronous producer to the given brokers.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Timeout = 10 * time.Second

	p, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("connecting kafka producer: %w", err)
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Producer{
		producer: p,
		topic:    topic,
		log:      logging.New("kafka"),
	}, nil
}

// articleMessage is the wire shape consumed by the summarization stage.
type articleMessage struct {
	NaturalKey  string    `json:"natural_key"`
	Fingerprint string    `json:"fingerprint"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	SourceType  string    `json:"source_type"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
	PersistedAt time.Time `json:"persisted_at"`
}

// PublishArticle sends one persisted record to the topic.
func (p *Producer) PublishArticle(ctx context.Context, rec *store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := articleMessage{
		NaturalKey:  rec.NaturalKey,
		Fingerprint: rec.Fingerprint,
		Title:       rec.Article.Title,
		Summary:     rec.Article.Summary,
		URL:         rec.Article.URL,
		SourceType:  string(rec.Article.SourceType),
		Category:    rec.Article.Category,
		PublishedAt: rec.Article.PublishedAt,
		PersistedAt: rec.LastSeen,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding article message: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(rec.NaturalKey),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("publishing article %s: %w", rec.NaturalKey, err)
	}

	p.log.Debug().
		Str("key", rec.NaturalKey).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("article published")
	return nil
}

// Close flushes and shuts down the producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}
