package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher produces messages to Kafka. It is safe for concurrent use.
type Publisher struct {
	client *kgo.Client
}

// NewPublisher connects to the brokers and ensures the given topics exist.
// Returns nil if no brokers are configured (events disabled).
func NewPublisher(ctx context.Context, brokers []string, topics ...string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(0),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopics(ctx, client, topics); err != nil {
		client.Close()
		return nil, err
	}

	return &Publisher{client: client}, nil
}

// ensureTopics creates missing topics with broker defaults.
func ensureTopics(ctx context.Context, client *kgo.Client, topics []string) error {
	if len(topics) == 0 {
		return nil
	}
	adm := kadm.NewClient(client)
	resps, err := adm.CreateTopics(ctx, -1, -1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, resp := range resps {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

// Publish produces one message synchronously. Nil-safe so callers can run
// without Kafka wired.
func (p *Publisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	if p == nil {
		return nil
	}
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending records and closes the client.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.client.Close()
}
