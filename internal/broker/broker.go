// Package broker adapts the durable topic-based message transport. The
// reconciliation pipeline only sees opaque message bodies with acknowledge
// semantics; connection management stays behind these interfaces.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one delivery from the transport. Body is raw UTF-8 JSON text as
// published by the origin system.
type Message struct {
	Topic     string
	Key       []byte
	Body      []byte
	Timestamp time.Time

	rec *kgo.Record
}

// Consumer is a durable subscription to a single topic. Fetch blocks until a
// message arrives or ctx is cancelled; messages stay pending until Ack commits
// them, so an unacked message is redelivered after a restart.
type Consumer interface {
	Fetch(ctx context.Context) (*Message, error)
	Ack(ctx context.Context, msg *Message) error
	Close() error
}

// Publisher sends persistent messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, body []byte) error
	Close() error
}

// StampEnvelope decorates an outbound event body with this service's origin
// tag and the publication timestamp, the contract every consumer of these
// topics relies on.
func StampEnvelope(body []byte, origin string, now time.Time) ([]byte, error) {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("stamp envelope: %w", err)
	}
	envelope["origin"] = origin
	envelope["start_date"] = now.UTC().Format(time.RFC3339Nano)
	return json.Marshal(envelope)
}

// StampedPublisher stamps every outbound body before delegating, so anything
// this service produces carries its origin tag.
type StampedPublisher struct {
	inner  Publisher
	origin string
	now    func() time.Time
}

func NewStampedPublisher(inner Publisher, origin string) *StampedPublisher {
	return &StampedPublisher{inner: inner, origin: origin, now: time.Now}
}

func (p *StampedPublisher) Publish(ctx context.Context, topic string, key, body []byte) error {
	stamped, err := StampEnvelope(body, p.origin, p.now())
	if err != nil {
		return err
	}
	return p.inner.Publish(ctx, topic, key, stamped)
}

func (p *StampedPublisher) Close() error { return p.inner.Close() }
