package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
)

// Config selects the brokers and topic for the audit stream. No brokers
// means forwarding is off.
type Config struct {
	Brokers  []string `env:"ESCROW_KAFKA_BROKERS" envSeparator:","`
	Topic    string   `env:"ESCROW_KAFKA_TOPIC" envDefault:"escrow_auth_events"`
	ClientID string   `env:"ESCROW_KAFKA_CLIENT_ID" envDefault:"escrowctl"`
}

// Enabled reports whether any brokers are configured.
func (c Config) Enabled() bool { return len(c.Brokers) > 0 }

// syncClient is the part of *kgo.Client the producer uses.
type syncClient interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Ping(ctx context.Context) error
	Close()
}

// Producer publishes records synchronously.
type Producer struct {
	client syncClient
	logger logging.Logger
}

// NewProducer creates a producer for cfg.Brokers.
func NewProducer(cfg Config, logger logging.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{client: client, logger: logging.OrDiscard(logger)}, nil
}

func (p *Producer) Close() error {
	p.client.Close()
	return nil
}

// Publish produces one record and waits for the broker ack, at most 5s.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: value,
	}
	for k, v := range headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

func (p *Producer) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}
