package hrsync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sellsync/internal/broker"
	"sellsync/internal/hrsync/dedupe"
	"sellsync/internal/hrsync/metrics"
)

// Listener is the long-lived consumer loop: fetch -> decode -> filter ->
// apply -> ack, strictly one message at a time. Fatal reconciliation errors
// are logged and dead-lettered, the message is still acknowledged, and the
// loop moves on; nothing a single message carries may kill the listener.
type Listener struct {
	consumer broker.Consumer
	filter   *ScopeFilter
	engine   *Engine

	deduper  dedupe.Deduper   // optional
	dlq      broker.Publisher // optional
	dlqTopic string

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu    sync.Mutex
	stats Stats
}

// Stats is a point-in-time snapshot of listener activity, served by the sync
// status endpoint.
type Stats struct {
	Consumed      uint64     `json:"consumed"`
	Applied       uint64     `json:"applied"`
	Dropped       uint64     `json:"dropped"`
	Failed        uint64     `json:"failed"`
	LastEventAt   *time.Time `json:"last_event_at,omitempty"`
	LastEventKind string     `json:"last_event_kind,omitempty"`
}

type ListenerOption func(*Listener)

func WithDeduper(d dedupe.Deduper) ListenerOption {
	return func(l *Listener) { l.deduper = d }
}

// WithDeadLetter publishes messages that exhausted storage retries to the
// given topic so they can be inspected and replayed by hand.
func WithDeadLetter(pub broker.Publisher, topic string) ListenerOption {
	return func(l *Listener) {
		l.dlq = pub
		l.dlqTopic = topic
	}
}

func WithListenerLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) ListenerOption {
	return func(l *Listener) { l.metrics = m }
}

func NewListener(consumer broker.Consumer, filter *ScopeFilter, engine *Engine, opts ...ListenerOption) (*Listener, error) {
	if consumer == nil || filter == nil || engine == nil {
		return nil, errors.New("consumer, filter, and engine are required")
	}
	l := &Listener{
		consumer: consumer,
		filter:   filter,
		engine:   engine,
		logger:   slog.Default(),
		tracer:   otel.Tracer("sellsync/hrsync"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run consumes messages until ctx is cancelled, finishing the in-flight
// message first. It returns ctx.Err() on cancellation and a transport error
// only when the consumer is unusable.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("event listener started")
	for {
		msg, err := l.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("event listener stopping")
				return ctx.Err()
			}
			return err
		}

		l.handle(ctx, msg)

		// Acknowledge regardless of outcome: at-most-once by design, a
		// poison message must not loop forever.
		if err := l.consumer.Ack(ctx, msg); err != nil {
			l.logger.Error("acknowledge failed", "topic", msg.Topic, "error", err)
		}
	}
}

func (l *Listener) handle(ctx context.Context, msg *broker.Message) {
	ctx, span := l.tracer.Start(ctx, "hrsync.message")
	defer span.End()

	l.count(func(s *Stats) { s.Consumed++ })
	if l.metrics != nil {
		l.metrics.MessagesConsumed.Inc()
	}

	ev, err := Decode(msg.Body)
	if err != nil {
		l.logger.Error("dropping undecodable message",
			"topic", msg.Topic, "error", err, "body", string(msg.Body))
		l.count(func(s *Stats) { s.Dropped++ })
		if l.metrics != nil {
			l.metrics.DecodeFailures.Inc()
		}
		return
	}

	span.SetAttributes(
		attribute.String("event.kind", string(ev.Kind)),
		attribute.String("event.origin", ev.Origin),
	)

	if !l.filter.Applicable(ev) {
		l.count(func(s *Stats) { s.Dropped++ })
		if l.metrics != nil {
			l.metrics.EventsFiltered.Inc()
		}
		return
	}

	fingerprint := dedupe.Fingerprint(msg.Body)
	if l.deduper != nil {
		seen, err := l.deduper.Seen(ctx, fingerprint)
		if err != nil {
			l.logger.Warn("dedupe lookup failed, processing anyway", "error", err)
		} else if seen {
			l.logger.Info("skipping already-processed message", "event", string(ev.Kind))
			l.count(func(s *Stats) { s.Dropped++ })
			if l.metrics != nil {
				l.metrics.EventsDuplicate.Inc()
			}
			return
		}
	}

	if err := l.engine.Apply(ctx, ev); err != nil {
		var fatal *FatalError
		if errors.As(err, &fatal) {
			l.logger.Error("event abandoned after exhausting retries",
				"event", string(ev.Kind), "attempts", fatal.Attempts, "error", fatal.Err)
		} else {
			l.logger.Error("event failed", "event", string(ev.Kind), "error", err)
		}
		l.count(func(s *Stats) { s.Failed++ })
		if l.metrics != nil {
			l.metrics.FatalFailures.Inc()
		}
		l.deadLetter(ctx, msg, err)
		return
	}

	if l.deduper != nil {
		if err := l.deduper.Mark(ctx, fingerprint); err != nil {
			l.logger.Warn("dedupe mark failed", "error", err)
		}
	}

	now := time.Now()
	l.count(func(s *Stats) {
		s.Applied++
		s.LastEventAt = &now
		s.LastEventKind = string(ev.Kind)
	})
	if l.metrics != nil {
		l.metrics.EventsApplied.WithLabelValues(string(ev.Kind)).Inc()
	}
}

// deadLetterRecord is the JSON body published for an abandoned message.
type deadLetterRecord struct {
	ID       string    `json:"id"`
	Topic    string    `json:"topic"`
	Body     string    `json:"body"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func (l *Listener) deadLetter(ctx context.Context, msg *broker.Message, cause error) {
	if l.dlq == nil || l.dlqTopic == "" {
		return
	}
	record := deadLetterRecord{
		ID:       uuid.NewString(),
		Topic:    msg.Topic,
		Body:     string(msg.Body),
		Error:    cause.Error(),
		FailedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(record)
	if err != nil {
		l.logger.Error("encode dead-letter record", "error", err)
		return
	}
	if err := l.dlq.Publish(ctx, l.dlqTopic, []byte(record.ID), body); err != nil {
		l.logger.Error("publish dead-letter record", "topic", l.dlqTopic, "error", err)
		return
	}
	if l.metrics != nil {
		l.metrics.DeadLettered.Inc()
	}
}

func (l *Listener) count(update func(*Stats)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	update(&l.stats)
}

// Status returns a copy of the listener counters.
func (l *Listener) Status() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	if l.stats.LastEventAt != nil {
		t := *l.stats.LastEventAt
		s.LastEventAt = &t
	}
	return s
}
