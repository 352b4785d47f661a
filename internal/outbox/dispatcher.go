// Package outbox persists and delivers domain events to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Kafka headers attached to every published record.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaSubject = "schema_subject"
	HeaderEventID       = "event_id"
)

const (
	claimBatchSQL = `SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
FROM outbox
WHERE published_at IS NULL
ORDER BY event_id
LIMIT $1
FOR UPDATE SKIP LOCKED`
	markClaimedSQL   = `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`
	markPublishedSQL = `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`
	countPendingSQL  = `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`
	deadLetterSQL    = `INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`
)

// Message is one outbox row. Field order matches claimBatchSQL.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Dispatcher polls the outbox table and publishes claimed rows to Kafka.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	registry     schemaRegistrar
	logger       zerolog.Logger
	pollInterval time.Duration
	batchSize    int
	done         chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, logger zerolog.Logger, pollInterval time.Duration, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Dispatcher{
		pool:         pool,
		producer:     producer,
		registry:     registry,
		logger:       logger.With().Str("component", "outbox_dispatcher").Logger(),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		done:         make(chan struct{}),
	}
}

// Start polls until ctx is cancelled. Run it in its own goroutine and use
// Wait to block on shutdown.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if err := d.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error().Err(err).Msg("outbox batch failed")
		}
		d.samplePending(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

// RunOnce claims and publishes a single batch. A batch that cannot be
// published is copied to outbox_dlq and then marked published so the
// poller does not spin on it.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	start := time.Now()
	batch, err := d.claim(ctx)
	if err != nil || len(batch) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, batch); err != nil {
		d.logger.Warn().Err(err).Int("messages", len(batch)).Msg("delivery failed, routing batch to dlq")
		failedCounter.Add(float64(len(batch)))
		if err := d.moveToDLQ(ctx, batch, err.Error()); err != nil {
			return err
		}
	} else {
		deliveredCounter.Add(float64(len(batch)))
	}
	_, err = d.pool.Exec(ctx, markPublishedSQL, eventIDs(batch))
	return err
}

func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	var batch []Message
	err := pgx.BeginTxFunc(ctx, d.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, claimBatchSQL, d.batchSize)
		if err != nil {
			return err
		}
		batch, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Message])
		if err != nil || len(batch) == 0 {
			return err
		}
		_, err = tx.Exec(ctx, markClaimedSQL, eventIDs(batch))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	return batch, nil
}

// deliver frames every message with its registry schema id and writes one
// Kafka batch per topic, in topic order.
func (d *Dispatcher) deliver(ctx context.Context, batch []Message) error {
	schemaIDs := make(map[string]int)
	byTopic := make(map[string][]kafka.Message)
	now := time.Now().UTC()

	for _, msg := range batch {
		schema, ok := eventSchemas[msg.EventType]
		if !ok {
			return fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
		}
		id, seen := schemaIDs[msg.SchemaSubject]
		if !seen {
			var err error
			if id, err = d.registry.EnsureSchema(ctx, msg.SchemaSubject, schema); err != nil {
				return err
			}
			schemaIDs[msg.SchemaSubject] = id
		}
		byTopic[msg.Topic] = append(byTopic[msg.Topic], kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: encodeWireFormat(id, msg.Payload),
			Time:  now,
			Headers: []kafka.Header{
				{Key: HeaderEventType, Value: []byte(msg.EventType)},
				{Key: HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
				{Key: HeaderEventID, Value: []byte(strconv.FormatInt(msg.EventID, 10))},
			},
		})
	}

	topics := make([]string, 0, len(byTopic))
	for topic := range byTopic {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		if err := d.producer.WriteMessages(ctx, topic, byTopic[topic]...); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
	}
	return nil
}

// moveToDLQ copies batch into outbox_dlq, due for immediate replay.
func (d *Dispatcher) moveToDLQ(ctx context.Context, batch []Message, reason string) error {
	rows := &pgx.Batch{}
	for _, msg := range batch {
		rows.Queue(deadLetterSQL,
			msg.EventID, msg.EventType, msg.Topic, msg.Payload,
			fmt.Sprintf("%s (topic=%s)", reason, msg.Topic),
			msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
		)
	}
	if err := d.pool.SendBatch(ctx, rows).Close(); err != nil {
		return fmt.Errorf("dead-letter %d events: %w", len(batch), err)
	}
	for _, msg := range batch {
		dlqCounter.WithLabelValues(msg.Topic).Inc()
	}
	return nil
}

func (d *Dispatcher) samplePending(ctx context.Context) {
	var pending int
	if err := d.pool.QueryRow(ctx, countPendingSQL).Scan(&pending); err == nil {
		pendingGauge.Set(float64(pending))
	}
}

func eventIDs(batch []Message) []int64 {
	ids := make([]int64, len(batch))
	for i, msg := range batch {
		ids[i] = msg.EventID
	}
	return ids
}

// encodeWireFormat prefixes payload with the Confluent magic byte and the
// big-endian schema id.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
