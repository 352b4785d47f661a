// Package postgres persists campus data in Postgres and records outbox events
// for every accepted write.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nissan15/hackathon/internal/dashboard"
	"github.com/Nissan15/hackathon/internal/domain"
	"github.com/Nissan15/hackathon/internal/observability"
	"github.com/Nissan15/hackathon/internal/persistence"
	platformevents "github.com/Nissan15/hackathon/internal/platform/events"
)

// Repository provides Postgres-backed persistence for activities, head-counts and outbox events.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// Connect opens a pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, persistence.Unavailable(err)
	}
	return pool, nil
}

// Acquire implements dashboard.Store.
func (r *Repository) Acquire(ctx context.Context) (dashboard.Conn, error) {
	c, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, persistence.Unavailable(err)
	}
	return &conn{conn: c}, nil
}

// InsertActivities persists records and their outbox events inside a single transaction.
func (r *Repository) InsertActivities(ctx context.Context, records []domain.ActivityRecord) error {
	const insertActivity = `INSERT INTO activity_data (id, date, source_type, raw_value, unit, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	var latest time.Time
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if _, err := tx.Exec(ctx, insertActivity, rec.ID, rec.Date, rec.SourceType, rec.RawValue, rec.Unit, rec.CreatedAt); err != nil {
				return err
			}
			event := platformevents.ActivityRecorded{
				RecordID:   rec.ID,
				Date:       domain.FormatDate(rec.Date),
				SourceType: rec.SourceType,
				RawValue:   rec.RawValue,
				Unit:       rec.Unit,
				RecordedAt: rec.CreatedAt,
			}
			if err := r.insertOutbox(ctx, tx, "activity_record", rec.ID, platformevents.TypeActivityRecorded, event); err != nil {
				return err
			}
			latest = maxTime(latest, rec.CreatedAt)
		}
		return nil
	})
	if err != nil {
		return classify(err, "activity_data")
	}
	observability.RecordActivityPersisted(latest)
	return nil
}

// UpsertHumanCount writes the head-count for a date and records a headcount event.
func (r *Repository) UpsertHumanCount(ctx context.Context, count domain.HumanCount) error {
	const upsert = `INSERT INTO human_count (date, humans) VALUES ($1, $2)
ON CONFLICT (date) DO UPDATE SET humans = EXCLUDED.humans, updated_at = NOW()`

	date := domain.FormatDate(count.Date)
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsert, count.Date, count.Humans); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, "human_count", date, platformevents.TypeHeadcountUpserted, platformevents.HeadcountUpserted{
			Date:       date,
			Humans:     count.Humans,
			OccurredAt: r.now().UTC(),
		})
	})
	return classify(err, "human_count")
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	// Head-count upserts repeat for a date, so their dedupe key carries the write time.
	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)
	if eventType == platformevents.TypeHeadcountUpserted {
		dedupeKey = fmt.Sprintf("%s:%d", dedupeKey, r.now().UnixNano())
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = tx.Exec(ctx, stmt, aggregateType, aggregateID, eventType, meta.Topic, meta.SchemaSubject, meta.PartitionKeyFn(aggregateID), body, dedupeKey)
	return classify(err, "outbox")
}

// ListEmissionFactors implements domain.Repository.
func (r *Repository) ListEmissionFactors(ctx context.Context) ([]domain.EmissionFactor, error) {
	rows, err := r.pool.Query(ctx, `SELECT source_type, factor, unit FROM emission_factors ORDER BY source_type`)
	if err != nil {
		return nil, classify(err, "emission_factors")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.EmissionFactor, error) {
		var f domain.EmissionFactor
		err := row.Scan(&f.SourceType, &f.Factor, &f.Unit)
		return f, err
	})
}

// UpsertEmissionFactor implements domain.Repository.
func (r *Repository) UpsertEmissionFactor(ctx context.Context, factor domain.EmissionFactor) error {
	const stmt = `INSERT INTO emission_factors (source_type, factor, unit) VALUES ($1,$2,$3)
        ON CONFLICT (source_type) DO UPDATE SET factor = EXCLUDED.factor, unit = EXCLUDED.unit`
	_, err := r.pool.Exec(ctx, stmt, factor.SourceType, factor.Factor, factor.Unit)
	return classify(err, "emission_factors")
}

// SourceTotals returns all-time emissions per source, largest first.
func (r *Repository) SourceTotals(ctx context.Context) ([]domain.SourceTotal, error) {
	const query = `SELECT a.source_type, SUM(a.raw_value * e.factor / 1000)
FROM activity_data a
JOIN emission_factors e ON a.source_type = e.source_type
GROUP BY a.source_type`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, classify(err, "activity_data")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SourceTotal, error) {
		var t domain.SourceTotal
		err := row.Scan(&t.Source, &t.Emissions)
		return t, err
	})
	if err != nil {
		return nil, err
	}
	persistence.SortSourceTotals(out)
	return out, nil
}

// FindUser looks a user up by name.
func (r *Repository) FindUser(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `SELECT id, username, password_hash FROM users WHERE username=$1`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, classify(err, "users")
	}
	return u, nil
}

// UpsertUser creates the user or replaces its password hash.
func (r *Repository) UpsertUser(ctx context.Context, username, passwordHash string) error {
	const stmt = `INSERT INTO users (username, password_hash) VALUES ($1,$2)
        ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash`
	_, err := r.pool.Exec(ctx, stmt, username, passwordHash)
	return classify(err, "users")
}

type conn struct {
	conn *pgxpool.Conn
}

func (c *conn) EmissionRows(ctx context.Context, start, end time.Time) ([]domain.EmissionRow, error) {
	const query = `SELECT a.date, a.source_type, a.raw_value, a.unit, e.factor
        FROM activity_data a
        JOIN emission_factors e ON a.source_type = e.source_type
        WHERE a.date BETWEEN $1 AND $2
        ORDER BY a.date, a.source_type, a.id`

	rows, err := c.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, classify(err, "activity_data")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.EmissionRow, error) {
		var (
			date         time.Time
			source, unit string
			raw, factor  float64
		)
		if err := row.Scan(&date, &source, &raw, &unit, &factor); err != nil {
			return domain.EmissionRow{}, err
		}
		return domain.NewEmissionRow(domain.Day(date), source, raw, unit, factor), nil
	})
}

func (c *conn) HumanCounts(ctx context.Context, start, end time.Time) ([]domain.HumanCount, error) {
	rows, err := c.conn.Query(ctx, `SELECT date, humans FROM human_count WHERE date BETWEEN $1 AND $2 ORDER BY date`, start, end)
	if err != nil {
		return nil, classify(err, "human_count")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.HumanCount, error) {
		var hc domain.HumanCount
		err := row.Scan(&hc.Date, &hc.Humans)
		hc.Date = domain.Day(hc.Date)
		return hc, err
	})
}

func (c *conn) Release() {
	c.conn.Release()
}

func classify(err error, table string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return persistence.SchemaMissing(table)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return persistence.Unavailable(err)
	}
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(aggregateID string) string
}

var eventCatalog = map[string]EventMetadata{
	platformevents.TypeActivityRecorded: {
		Topic:          "campus_activity_records",
		SchemaSubject:  "campus_activity_records-value",
		PartitionKeyFn: func(id string) string { return id },
	},
	platformevents.TypeHeadcountUpserted: {
		Topic:         "campus_headcounts",
		SchemaSubject: "campus_headcounts-value",
		// Keyed by date so every revision of a day lands on one partition.
		PartitionKeyFn: func(date string) string { return date },
	},
}

// Topics lists every topic the outbox publishes to.
func Topics() []string {
	return []string{eventCatalog[platformevents.TypeActivityRecorded].Topic, eventCatalog[platformevents.TypeHeadcountUpserted].Topic}
}
