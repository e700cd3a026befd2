package broker

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is a channel-backed transport for unit tests: published
// messages on the consumed topic become fetchable, everything else is
// recorded for assertions.
type MemoryBroker struct {
	topic    string
	messages chan *Message

	mu        sync.Mutex
	acked     []*Message
	published map[string][]*Message
}

func NewMemory(topic string, buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 16
	}
	return &MemoryBroker{
		topic:     topic,
		messages:  make(chan *Message, buffer),
		published: make(map[string][]*Message),
	}
}

func (b *MemoryBroker) Fetch(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-b.messages:
		return msg, nil
	}
}

func (b *MemoryBroker) Ack(_ context.Context, msg *Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acked = append(b.acked, msg)
	return nil
}

func (b *MemoryBroker) Publish(_ context.Context, topic string, key, body []byte) error {
	msg := &Message{Topic: topic, Key: key, Body: body, Timestamp: time.Now()}
	if topic == b.topic {
		b.messages <- msg
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[topic] = append(b.published[topic], msg)
	return nil
}

func (b *MemoryBroker) Close() error { return nil }

// Acked returns the messages acknowledged so far.
func (b *MemoryBroker) Acked() []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Message(nil), b.acked...)
}

// Published returns messages produced to a topic other than the consumed one.
func (b *MemoryBroker) Published(topic string) []*Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Message(nil), b.published[topic]...)
}
