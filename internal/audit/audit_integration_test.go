//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"formflow/internal/audit"
	"formflow/internal/platform/kafka"
	id "formflow/pkg/domain"
	"formflow/pkg/testutil/containers"
)

func TestAuditPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	broker := containers.NewKafkaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	producer, err := kafka.NewPublisher(ctx, []string{broker.Broker}, audit.Topic)
	require.NoError(t, err)
	t.Cleanup(producer.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := audit.NewPublisher(producer, logger)

	appID := id.NewApplicationID()
	event := audit.Event{
		Category:      audit.CategoryCompliance,
		Timestamp:     time.Now().UTC().Truncate(time.Microsecond),
		ApplicationID: appID.String(),
		Template:      "parentalleave",
		ActorHash:     audit.HashActor("0101307789"),
		Role:          "applicant",
		Action:        audit.ActionTransition,
		Event:         "SUBMIT",
		FromState:     "draft",
		ToState:       "employerApproval",
	}
	publisher.Emit(ctx, event)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics(audit.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	// Partition key is the application id, keeping one trail ordered.
	assert.Equal(t, appID.String(), string(records[0].Key))

	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, event, got)
}

func TestPublisherSecondTopic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	broker := containers.NewKafkaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Boot creates both topics; reconnecting over an existing one must not
	// fail on TopicAlreadyExists.
	producer, err := kafka.NewPublisher(ctx, []string{broker.Broker}, audit.Topic, "notifications")
	require.NoError(t, err)
	producer.Close()

	producer, err = kafka.NewPublisher(ctx, []string{broker.Broker}, audit.Topic, "notifications")
	require.NoError(t, err)
	t.Cleanup(producer.Close)

	require.NoError(t, producer.Publish(ctx, "notifications", []byte("key"), []byte(`{"type":"employerApprovalRequested"}`)))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics("notifications"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	require.Len(t, fetches.Records(), 1)
	assert.Equal(t, "key", string(fetches.Records()[0].Key))
}
