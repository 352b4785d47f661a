// Package migrations applies the embedded schema of each backend.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/Nissan15/hackathon/internal/persistence"
)

//go:embed postgres/*.sql mysql/*.sql sqlite/*.sql
var migrationsFS embed.FS

// Latest migrates to the newest embedded version when passed as target.
const Latest = -1

// Result describes what a run changed.
type Result struct {
	From    uint
	To      uint
	Changed bool
}

// Run migrates the database at dsn. A negative target migrates to the latest
// version, zero rolls everything back, and a positive target migrates to
// exactly that version.
func Run(backend persistence.Backend, dsn string, target int) (Result, error) {
	db, driver, err := open(backend, dsn)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = db.Close() }()

	sub, err := fs.Sub(migrationsFS, string(backend))
	if err != nil {
		return Result{}, fmt.Errorf("failed to access %s migrations: %w", backend, err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(backend), driver)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Result{}, fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return Result{}, fmt.Errorf("database is dirty at version %d, fix it manually or force a version", from)
	}

	switch {
	case target < 0:
		err = m.Up()
	case target == 0:
		err = m.Down()
	default:
		err = m.Migrate(uint(target))
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return Result{From: from, To: from}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("migration failed: %w", err)
	}

	to, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Result{}, err
	}
	return Result{From: from, To: to, Changed: true}, nil
}

func open(backend persistence.Backend, dsn string) (*sql.DB, database.Driver, error) {
	var (
		db     *sql.DB
		driver database.Driver
		err    error
	)
	switch backend {
	case persistence.Postgres:
		if db, err = sql.Open("pgx", dsn); err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		driver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	case persistence.MySQL:
		cfg, parseErr := mysql.ParseDSN(dsn)
		if parseErr != nil {
			return nil, nil, fmt.Errorf("invalid mysql dsn: %w", parseErr)
		}
		cfg.MultiStatements = true
		if db, err = sql.Open("mysql", cfg.FormatDSN()); err != nil {
			return nil, nil, fmt.Errorf("failed to open mysql database: %w", err)
		}
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case persistence.SQLite:
		if db, err = sql.Open("sqlite", dsn); err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	default:
		return nil, nil, fmt.Errorf("migrations are not supported for backend %q", backend)
	}
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to create %s migrate driver: %w", backend, err)
	}
	return db, driver, nil
}
