package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the event-sync pipeline.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	DecodeFailures   prometheus.Counter
	EventsFiltered   prometheus.Counter
	EventsApplied    *prometheus.CounterVec
	EventsDuplicate  prometheus.Counter
	FatalFailures    prometheus.Counter
	DeadLettered     prometheus.Counter
}

// New creates and registers all pipeline metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production wiring.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sellsync_messages_consumed_total",
			Help: "Total messages pulled from the broker topic.",
		}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sellsync_decode_failures_total",
			Help: "Messages dropped because the payload was malformed.",
		}),
		EventsFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "sellsync_events_filtered_total",
			Help: "Decoded events dropped by the scope filter.",
		}),
		EventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sellsync_events_applied_total",
			Help: "Events applied to the local mirror, by event kind.",
		}, []string{"event"}),
		EventsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "sellsync_events_duplicate_total",
			Help: "Events skipped because their fingerprint was already processed.",
		}),
		FatalFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sellsync_fatal_failures_total",
			Help: "Events abandoned after exhausting storage retries.",
		}),
		DeadLettered: factory.NewCounter(prometheus.CounterOpts{
			Name: "sellsync_dead_lettered_total",
			Help: "Messages published to the dead-letter topic.",
		}),
	}
}
