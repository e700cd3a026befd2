package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConsumer consumes one topic as a durable consumer group member.
// Offsets are committed explicitly through Ack, never automatically, so a
// message is only removed from the pending set once the pipeline finished
// with it.
type KafkaConsumer struct {
	client   *kgo.Client
	logger   *slog.Logger
	buffered []*kgo.Record
}

func NewKafkaConsumer(brokers []string, group, topic string, logger *slog.Logger) (*KafkaConsumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("connect consumer: %w", err)
	}
	return &KafkaConsumer{client: client, logger: logger}, nil
}

func (c *KafkaConsumer) Fetch(ctx context.Context) (*Message, error) {
	for len(c.buffered) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil, fmt.Errorf("broker client closed")
		}
		for _, fetchErr := range fetches.Errors() {
			if errors.Is(fetchErr.Err, context.Canceled) || errors.Is(fetchErr.Err, context.DeadlineExceeded) {
				return nil, fetchErr.Err
			}
			c.logger.Warn("fetch error",
				"topic", fetchErr.Topic, "partition", fetchErr.Partition, "error", fetchErr.Err)
		}
		fetches.EachRecord(func(rec *kgo.Record) {
			c.buffered = append(c.buffered, rec)
		})
	}

	rec := c.buffered[0]
	c.buffered = c.buffered[1:]
	return &Message{
		Topic:     rec.Topic,
		Key:       rec.Key,
		Body:      rec.Value,
		Timestamp: rec.Timestamp,
		rec:       rec,
	}, nil
}

func (c *KafkaConsumer) Ack(ctx context.Context, msg *Message) error {
	if msg == nil || msg.rec == nil {
		return nil
	}
	if err := c.client.CommitRecords(ctx, msg.rec); err != nil {
		return fmt.Errorf("commit offset: %w", err)
	}
	return nil
}

func (c *KafkaConsumer) Close() error {
	c.client.Close()
	return nil
}

// KafkaPublisher produces persistent records, used for outbound events and the
// dead-letter escape hatch.
type KafkaPublisher struct {
	client *kgo.Client
}

func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("connect publisher: %w", err)
	}
	return &KafkaPublisher{client: client}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key, body []byte) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: body}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.client.Close()
	return nil
}

// EnsureTopics declares the given topics durably, mirroring the origin
// system's exchange/queue declaration at startup. Already-existing topics are
// fine.
func EnsureTopics(ctx context.Context, brokers []string, topics ...string) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("connect admin: %w", err)
	}
	defer client.Close()

	adm := kadm.NewClient(client)
	responses, err := adm.CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, resp := range responses.Sorted() {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}
