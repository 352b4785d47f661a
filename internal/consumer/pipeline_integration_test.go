//go:build integration

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/Nissan15/hackathon/internal/domain"
	"github.com/Nissan15/hackathon/internal/outbox"
	"github.com/Nissan15/hackathon/internal/persistence/postgres"
)

type fixedRegistry struct{ id int }

func (r fixedRegistry) EnsureSchema(context.Context, string, string) (int, error) {
	return r.id, nil
}

func TestActivityFlowsFromOutboxToAudit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0", kafkacontainer.WithClusterID("campus-carbon"))
	testcontainers.CleanupContainer(t, kafkaC)
	require.NoError(t, err)

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	for _, topic := range postgres.Topics() {
		require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
	}
	_ = conn.Close()

	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	service := domain.NewService(postgres.NewRepository(pool))
	raw := 1500.0
	_, err = service.RecordActivity(ctx, domain.RecordActivityInput{Date: "2025-03-01", SourceType: "electricity", RawValue: &raw, Unit: "kWh"})
	require.NoError(t, err)
	_, err = service.UpsertHumanCount(ctx, "2025-03-01", 900)
	require.NoError(t, err)

	producer := outbox.NewKafkaProducer(brokers)
	defer func() { _ = producer.Close() }()
	dispatcher := outbox.NewDispatcher(pool, producer, fixedRegistry{id: 7}, zerolog.Nop(), time.Second, 10)
	require.NoError(t, dispatcher.RunOnce(ctx))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	handler := NewAuditHandler(pool)
	for _, topic := range postgres.Topics() {
		reader := NewKafkaReader(brokers, "campus-carbon-it", topic)
		proc := NewProcessor(reader, handler)
		go func() {
			defer func() { _ = reader.Close() }()
			_ = proc.Run(runCtx)
		}()
	}

	require.Eventually(t, func() bool {
		var n int
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM event_audit`).Scan(&n); err != nil {
			return false
		}
		return n == 2
	}, time.Minute, 500*time.Millisecond)

	var eventTypes []string
	rows, err := pool.Query(ctx, `SELECT event_type FROM event_audit ORDER BY event_type`)
	require.NoError(t, err)
	for rows.Next() {
		var et string
		require.NoError(t, rows.Scan(&et))
		eventTypes = append(eventTypes, et)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"activity.recorded", "headcount.upserted"}, eventTypes)
}
