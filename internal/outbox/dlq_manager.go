package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	dueDLQEntriesSQL = `SELECT dlq_id, event_type, topic, payload, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
FROM outbox_dlq
WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
ORDER BY created_at
LIMIT $1`
	requeueSQL = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	deleteDLQEntrySQL = `DELETE FROM outbox_dlq WHERE dlq_id = $1`
	quarantineSQL     = `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`
	scheduleRetrySQL  = `UPDATE outbox_dlq
SET retry_count = retry_count + 1, last_attempt_at = NOW(), next_retry_at = NOW() + $1::interval, reason = $2
WHERE dlq_id = $3`
	dlqBacklogSQL = `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`
)

const maxBackoff = time.Hour

// dlqEntry is an outbox_dlq row due for replay. Field order matches dueDLQEntriesSQL.
type dlqEntry struct {
	ID            int64
	EventType     string
	Topic         string
	Payload       []byte
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

// DLQManager moves dead-lettered events back into the outbox. Entries that
// fail to requeue back off exponentially and are quarantined once
// maxRetries is reached.
type DLQManager struct {
	pool       *pgxpool.Pool
	logger     zerolog.Logger
	maxRetries int
	baseDelay  time.Duration
}

func NewDLQManager(pool *pgxpool.Pool, logger zerolog.Logger, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DLQManager{
		pool:       pool,
		logger:     logger.With().Str("component", "dlq_manager").Logger(),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Run calls RunOnce every interval until ctx is cancelled.
func (m *DLQManager) Run(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := m.RunOnce(ctx, batchSize)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			m.logger.Error().Err(err).Msg("dlq pass failed")
		case n > 0:
			m.logger.Info().Int("requeued", n).Msg("dlq pass complete")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce handles up to batchSize due entries and reports how many were
// requeued. Per-entry failures are joined into the returned error.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	rows, err := m.pool.Query(ctx, dueDLQEntriesSQL, batchSize)
	if err != nil {
		return 0, err
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[dlqEntry])
	if err != nil {
		return 0, err
	}

	var (
		requeued int
		errs     []error
	)
	for _, entry := range entries {
		if entry.RetryCount >= m.maxRetries {
			errs = append(errs, m.quarantine(ctx, entry))
			continue
		}
		if err := m.requeue(ctx, entry); err != nil {
			errs = append(errs, m.scheduleRetry(ctx, entry, err))
			continue
		}
		requeued++
	}

	var backlog int
	if err := m.pool.QueryRow(ctx, dlqBacklogSQL).Scan(&backlog); err == nil {
		dlqBacklog.Set(float64(backlog))
	}
	return requeued, errors.Join(errs...)
}

func (m *DLQManager) requeue(ctx context.Context, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("dlq entry %d has no schema_subject", entry.ID)
	}
	err := pgx.BeginTxFunc(ctx, m.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, requeueSQL,
			entry.AggregateType, entry.AggregateID, entry.EventType, entry.Topic,
			entry.SchemaSubject, entry.PartitionKey, entry.Payload,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, deleteDLQEntrySQL, entry.ID)
		return err
	})
	if err == nil {
		countDLQOutcome(entry, "requeued")
	}
	return err
}

func (m *DLQManager) quarantine(ctx context.Context, entry dlqEntry) error {
	if _, err := m.pool.Exec(ctx, quarantineSQL, "retry limit reached", entry.ID); err != nil {
		return err
	}
	countDLQOutcome(entry, "quarantined")
	m.logger.Warn().Int64("dlq_id", entry.ID).Str("event_type", entry.EventType).Int("retries", entry.RetryCount).Msg("dlq entry quarantined")
	return nil
}

// scheduleRetry pushes next_retry_at out and returns cause so the pass
// reports the failure.
func (m *DLQManager) scheduleRetry(ctx context.Context, entry dlqEntry, cause error) error {
	delay := m.backoffDelay(entry.RetryCount + 1)
	if _, err := m.pool.Exec(ctx, scheduleRetrySQL, delay, cause.Error(), entry.ID); err != nil {
		return errors.Join(cause, err)
	}
	countDLQOutcome(entry, "retry_scheduled")
	return cause
}

// backoffDelay doubles baseDelay per attempt, capped at maxBackoff.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	if attempt > 16 {
		return maxBackoff
	}
	return min(m.baseDelay<<(attempt-1), maxBackoff)
}

func countDLQOutcome(entry dlqEntry, outcome string) {
	dlqOutcomes.WithLabelValues(entry.Topic, entry.EventType, outcome).Inc()
}
