//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodywatch/internal/changeevent"
	"custodywatch/internal/jurisdiction"
	platformkafka "custodywatch/internal/platform/kafka"
	"custodywatch/internal/simulation/sinks/kafka"
	"custodywatch/pkg/testutil/containers"
)

var errDone = errors.New("done")

func TestSink_PublishesToBroker(t *testing.T) {
	broker := containers.NewKafkaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := platformkafka.Config{
		Brokers:           broker.Brokers,
		Topic:             "custodywatch.change-events",
		Partitions:        3,
		ReplicationFactor: 1,
	}
	producer, err := platformkafka.NewProducer(cfg)
	require.NoError(t, err)
	defer func() { _ = producer.Close(context.Background()) }()

	require.NoError(t, platformkafka.EnsureTopic(ctx, producer.Client(), cfg, nil))
	// second call tolerates the existing topic
	require.NoError(t, platformkafka.EnsureTopic(ctx, producer.Client(), cfg, nil))

	sink := kafka.New(producer)
	src := jurisdiction.SourceRef{JurisdictionID: "TX-01", SourceKind: jurisdiction.SourceJailRoster}
	sink.HandleChangeEvent(changeevent.ChangeEvent{ID: "evt-1", Status: changeevent.StatusIntake, Source: src, PersonID: "TX-01-P001", Confidence: 0.91})
	sink.HandleChangeEvent(changeevent.ChangeEvent{ID: "evt-1", Status: changeevent.StatusResolve, Source: src, PersonID: "TX-01-P001", Confidence: 0.91})
	sink.Flush(ctx)
	require.Equal(t, 0, sink.Pending())

	consumer, err := platformkafka.NewConsumer(cfg, "", nil)
	require.NoError(t, err)
	defer consumer.Close()

	var got []changeevent.Summary
	err = consumer.Run(ctx, platformkafka.HandlerFunc(func(_ context.Context, msg *platformkafka.Message) error {
		var sum changeevent.Summary
		if err := json.Unmarshal(msg.Value, &sum); err != nil {
			return err
		}
		assert.Equal(t, "evt-1", string(msg.Key))
		got = append(got, sum)
		if len(got) == 2 {
			return errDone
		}
		return nil
	}))
	require.ErrorIs(t, err, errDone)

	// same key lands on one partition, so order is preserved
	assert.Equal(t, changeevent.StatusIntake, got[0].Status)
	assert.Equal(t, changeevent.StatusResolve, got[1].Status)
}
