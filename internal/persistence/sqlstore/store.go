// Package sqlstore persists campus data in MySQL or SQLite through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/Nissan15/hackathon/internal/dashboard"
	"github.com/Nissan15/hackathon/internal/domain"
	"github.com/Nissan15/hackathon/internal/observability"
	"github.com/Nissan15/hackathon/internal/persistence"
)

const (
	emissionRowsQuery = `SELECT a.date, a.source_type, a.raw_value, a.unit, e.factor
        FROM activity_data a
        JOIN emission_factors e ON a.source_type = e.source_type
        WHERE a.date BETWEEN ? AND ?
        ORDER BY a.date, a.source_type, a.id`

	humanCountsQuery = `SELECT date, humans FROM human_count WHERE date BETWEEN ? AND ? ORDER BY date`

	sourceTotalsQuery = `SELECT a.source_type, SUM(a.raw_value * e.factor / 1000) AS total
        FROM activity_data a
        JOIN emission_factors e ON a.source_type = e.source_type
        GROUP BY a.source_type`
)

// Store is a database/sql backed repository.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to dsn with the driver of backend and verifies the connection.
func Open(ctx context.Context, backend persistence.Backend, dsn string) (*Store, error) {
	d, ok := dialects[backend]
	if !ok {
		return nil, fmt.Errorf("sqlstore does not support backend %q", backend)
	}
	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, err
	}
	if backend == persistence.SQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, persistence.Unavailable(err)
	}
	return &Store{db: db, dialect: d}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Acquire implements dashboard.Store.
func (s *Store) Acquire(ctx context.Context) (dashboard.Conn, error) {
	c, err := s.db.Conn(ctx)
	if err != nil {
		return nil, persistence.Unavailable(err)
	}
	return &conn{conn: c, dialect: s.dialect}, nil
}

// InsertActivities implements domain.Repository.
func (s *Store) InsertActivities(ctx context.Context, records []domain.ActivityRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.dialect.classify(err, "activity_data")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO activity_data (id, date, source_type, raw_value, unit, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return s.dialect.classify(err, "activity_data")
	}
	defer stmt.Close()

	var latest time.Time
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, domain.FormatDate(r.Date), r.SourceType, r.RawValue, r.Unit, r.CreatedAt.UTC()); err != nil {
			return s.dialect.classify(err, "activity_data")
		}
		if r.CreatedAt.After(latest) {
			latest = r.CreatedAt
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	observability.RecordActivityPersisted(latest)
	return nil
}

// UpsertHumanCount implements domain.Repository.
func (s *Store) UpsertHumanCount(ctx context.Context, count domain.HumanCount) error {
	_, err := s.db.ExecContext(ctx, s.dialect.upsertHeadcount, domain.FormatDate(count.Date), count.Humans)
	return s.dialect.classify(err, "human_count")
}

// ListEmissionFactors implements domain.Repository.
func (s *Store) ListEmissionFactors(ctx context.Context) ([]domain.EmissionFactor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_type, factor, unit FROM emission_factors ORDER BY source_type`)
	if err != nil {
		return nil, s.dialect.classify(err, "emission_factors")
	}
	defer rows.Close()

	var out []domain.EmissionFactor
	for rows.Next() {
		var f domain.EmissionFactor
		if err := rows.Scan(&f.SourceType, &f.Factor, &f.Unit); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpsertEmissionFactor implements domain.Repository.
func (s *Store) UpsertEmissionFactor(ctx context.Context, factor domain.EmissionFactor) error {
	_, err := s.db.ExecContext(ctx, s.dialect.upsertFactor, factor.SourceType, factor.Factor, factor.Unit)
	return s.dialect.classify(err, "emission_factors")
}

// SourceTotals returns all-time emissions per source, largest first.
func (s *Store) SourceTotals(ctx context.Context) ([]domain.SourceTotal, error) {
	rows, err := s.db.QueryContext(ctx, sourceTotalsQuery)
	if err != nil {
		return nil, s.dialect.classify(err, "activity_data")
	}
	defer rows.Close()

	var out []domain.SourceTotal
	for rows.Next() {
		var t domain.SourceTotal
		if err := rows.Scan(&t.Source, &t.Emissions); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	persistence.SortSourceTotals(out)
	return out, nil
}

// FindUser looks a user up by name.
func (s *Store) FindUser(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, `SELECT id, username, password_hash FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, s.dialect.classify(err, "users")
	}
	return u, nil
}

// UpsertUser creates the user or replaces its password hash.
func (s *Store) UpsertUser(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.upsertUser, username, passwordHash)
	return s.dialect.classify(err, "users")
}

type conn struct {
	conn    *sql.Conn
	dialect dialect
}

func (c *conn) EmissionRows(ctx context.Context, start, end time.Time) ([]domain.EmissionRow, error) {
	rows, err := c.conn.QueryContext(ctx, emissionRowsQuery, domain.FormatDate(start), domain.FormatDate(end))
	if err != nil {
		return nil, c.dialect.classify(err, "activity_data")
	}
	defer rows.Close()

	var out []domain.EmissionRow
	for rows.Next() {
		var (
			date   sqlDate
			source string
			raw    float64
			unit   string
			factor float64
		)
		if err := rows.Scan(&date, &source, &raw, &unit, &factor); err != nil {
			return nil, err
		}
		out = append(out, domain.NewEmissionRow(date.Time, source, raw, unit, factor))
	}
	return out, rows.Err()
}

func (c *conn) HumanCounts(ctx context.Context, start, end time.Time) ([]domain.HumanCount, error) {
	rows, err := c.conn.QueryContext(ctx, humanCountsQuery, domain.FormatDate(start), domain.FormatDate(end))
	if err != nil {
		return nil, c.dialect.classify(err, "human_count")
	}
	defer rows.Close()

	var out []domain.HumanCount
	for rows.Next() {
		var (
			date   sqlDate
			humans int
		)
		if err := rows.Scan(&date, &humans); err != nil {
			return nil, err
		}
		out = append(out, domain.HumanCount{Date: date.Time, Humans: humans})
	}
	return out, rows.Err()
}

func (c *conn) Release() {
	_ = c.conn.Close()
}
