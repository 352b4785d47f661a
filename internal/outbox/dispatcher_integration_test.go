//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Nissan15/hackathon/internal/persistence"
	"github.com/Nissan15/hackathon/internal/persistence/migrations"
	platformevents "github.com/Nissan15/hackathon/internal/platform/events"
)

const (
	activityTopic   = "campus_activity_records"
	activitySubject = "campus_activity_records-value"
)

// TestOutboxLifecycle shares one Postgres container; every subtest starts
// from empty outbox tables.
func TestOutboxLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)

	run := func(name string, fn func(t *testing.T)) {
		_, err := pool.Exec(ctx, `TRUNCATE outbox, outbox_dlq RESTART IDENTITY`)
		require.NoError(t, err)
		t.Run(name, fn)
	}

	run("publishes and marks rows", func(t *testing.T) {
		enqueueActivity(t, ctx, pool)
		producer := &stubProducer{}
		delivered := testutil.ToFloat64(deliveredCounter)
		observed := batchSamples(t)

		require.NoError(t, NewDispatcher(pool, producer, &stubRegistry{id: 42}, zerolog.Nop(), time.Second, 5).RunOnce(ctx))

		require.Len(t, producer.writes, 1)
		assert.Equal(t, activityTopic, producer.writes[0].topic)
		assert.Equal(t, delivered+1, testutil.ToFloat64(deliveredCounter))
		assert.Greater(t, batchSamples(t), observed)
		assert.Equal(t, 1, count(t, ctx, pool, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`))
	})

	run("idle batch is a no-op", func(t *testing.T) {
		producer := &stubProducer{}
		require.NoError(t, NewDispatcher(pool, producer, &stubRegistry{id: 1}, zerolog.Nop(), time.Second, 5).RunOnce(ctx))
		assert.Empty(t, producer.writes)
	})

	run("failed publish dead-letters the batch", func(t *testing.T) {
		enqueueActivity(t, ctx, pool)
		enqueueActivity(t, ctx, pool)
		failed := testutil.ToFloat64(failedCounter)
		dead := testutil.ToFloat64(dlqCounter.WithLabelValues(activityTopic))

		broken := &stubProducer{err: errors.New("kafka write failed")}
		require.NoError(t, NewDispatcher(pool, broken, &stubRegistry{id: 7}, zerolog.Nop(), time.Second, 5).RunOnce(ctx))

		assert.Equal(t, failed+2, testutil.ToFloat64(failedCounter))
		assert.Equal(t, dead+2, testutil.ToFloat64(dlqCounter.WithLabelValues(activityTopic)))
		assert.Equal(t, 2, count(t, ctx, pool, `SELECT COUNT(*) FROM outbox_dlq WHERE reason LIKE '%kafka write failed%'`))
		assert.Equal(t, 2, count(t, ctx, pool, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`))
	})

	run("dlq replay requeues for the next dispatch", func(t *testing.T) {
		enqueueActivity(t, ctx, pool)
		registry := &stubRegistry{id: 100}
		broken := &stubProducer{err: errors.New("upstream kafka unavailable")}
		require.NoError(t, NewDispatcher(pool, broken, registry, zerolog.Nop(), time.Second, 10).RunOnce(ctx))

		requeued, err := NewDLQManager(pool, zerolog.Nop(), 5, time.Second).RunOnce(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, requeued)
		assert.Zero(t, count(t, ctx, pool, `SELECT COUNT(*) FROM outbox_dlq`))

		producer := &stubProducer{}
		require.NoError(t, NewDispatcher(pool, producer, registry, zerolog.Nop(), time.Second, 10).RunOnce(ctx))
		assert.Len(t, producer.writes, 1)
	})

	run("unroutable entry backs off", func(t *testing.T) {
		deadLetter(t, ctx, pool, "", 0)

		requeued, err := NewDLQManager(pool, zerolog.Nop(), 5, time.Minute).RunOnce(ctx, 10)
		require.ErrorContains(t, err, "no schema_subject")
		assert.Zero(t, requeued)
		assert.Equal(t, 1, count(t, ctx, pool,
			`SELECT COUNT(*) FROM outbox_dlq WHERE retry_count = 1 AND next_retry_at > NOW() AND quarantined_at IS NULL`))

		requeued, err = NewDLQManager(pool, zerolog.Nop(), 5, time.Minute).RunOnce(ctx, 10)
		require.NoError(t, err, "entry is not due yet")
		assert.Zero(t, requeued)
	})

	run("exhausted entry is quarantined", func(t *testing.T) {
		deadLetter(t, ctx, pool, activitySubject, 5)

		requeued, err := NewDLQManager(pool, zerolog.Nop(), 5, time.Second).RunOnce(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, requeued)
		assert.Equal(t, 1, count(t, ctx, pool, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NOT NULL`))
	})
}

func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()
	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("campus"),
		postgrescontainer.WithUsername("carbon"),
		postgrescontainer.WithPassword("carbon"),
		postgrescontainer.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, pg)
	require.NoError(t, err)

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	_, err = migrations.Run(persistence.Postgres, dsn, migrations.Latest)
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func enqueueActivity(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	id := uuid.NewString()
	payload, err := json.Marshal(platformevents.ActivityRecorded{
		RecordID:   id,
		Date:       "2025-01-10",
		SourceType: "electricity",
		RawValue:   1000,
		Unit:       "kWh",
		RecordedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
VALUES ('activity_record', $1, $2, $3, $4, $1, $5)`,
		id, platformevents.TypeActivityRecorded, activityTopic, activitySubject, payload)
	require.NoError(t, err)
}

func deadLetter(t *testing.T, ctx context.Context, pool *pgxpool.Pool, subject string, retries int) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count)
VALUES (1, $1, $2, '{}', 'boom', 'activity_record', 'a', $3, 'a', $4)`,
		platformevents.TypeActivityRecorded, activityTopic, subject, retries)
	require.NoError(t, err)
}

func count(t *testing.T, ctx context.Context, pool *pgxpool.Pool, query string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(ctx, query).Scan(&n))
	return n
}

func batchSamples(t *testing.T) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, batchDuration.Write(&m))
	return m.GetHistogram().GetSampleCount()
}
