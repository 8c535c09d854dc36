// Package kafka publishes incident lifecycle events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-console/internal/notifications"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrNoBrokers is returned when no seed brokers are configured.
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
	Linger   time.Duration
}

// producer is the subset of *kgo.Client used by Publisher.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher writes events as JSON records keyed by incident ID, so all events
// of one incident land on the same partition in order.
type Publisher struct {
	topic  string
	client producer
}

// NewPublisher connects a franz-go client to the configured brokers.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(cfg.Linger),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return newPublisher(cfg.Topic, client), nil
}

func newPublisher(topic string, client producer) *Publisher {
	return &Publisher{topic: topic, client: client}
}

// Name returns the publisher name.
func (p *Publisher) Name() string {
	return "kafka"
}

// Publish produces one record and waits for the broker acknowledgment.
func (p *Publisher) Publish(ctx context.Context, change notifications.StatusChange, _ notifications.Message) error {
	value, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(change.Incident.ID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(change.EventID)},
			{Key: "event_type", Value: []byte(change.Type)},
		},
		Timestamp: change.OccurredAt,
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce record: %w", err)
	}
	return nil
}

// Close flushes and closes the client.
func (p *Publisher) Close() {
	p.client.Close()
}
