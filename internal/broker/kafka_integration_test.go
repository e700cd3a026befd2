//go:build integration

package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sellsync/internal/broker"
	"sellsync/pkg/testutil/containers"
)

func TestKafkaRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rp := containers.NewRedpandaContainer(t)
	const topic = "rh_event.sells"
	require.NoError(t, broker.EnsureTopics(ctx, rp.Brokers, topic, topic+".dlq"))
	// A second declaration of the same topics must be a no-op.
	require.NoError(t, broker.EnsureTopics(ctx, rp.Brokers, topic))

	pub, err := broker.NewKafkaPublisher(rp.Brokers)
	require.NoError(t, err)
	defer pub.Close()

	consumer, err := broker.NewKafkaConsumer(rp.Brokers, "rhevents-rh", topic, nil)
	require.NoError(t, err)
	defer consumer.Close()

	body, err := broker.StampEnvelope(
		[]byte(`{"event":"USER_DELETED","event_scope":"Sells","data":{"id":42}}`),
		"rh", time.Now())
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, topic, []byte("42"), body))

	msg, err := consumer.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, []byte("42"), msg.Key)
	assert.JSONEq(t, string(body), string(msg.Body))

	require.NoError(t, consumer.Ack(ctx, msg))
}

func TestKafkaConsumer_FetchStopsOnCancellation(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	const topic = "rh_event.sells"
	require.NoError(t, broker.EnsureTopics(context.Background(), rp.Brokers, topic))

	consumer, err := broker.NewKafkaConsumer(rp.Brokers, "rhevents-rh", topic, nil)
	require.NoError(t, err)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = consumer.Fetch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
