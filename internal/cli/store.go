package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nissan15/hackathon/internal/auth"
	"github.com/Nissan15/hackathon/internal/config"
	"github.com/Nissan15/hackathon/internal/dashboard"
	"github.com/Nissan15/hackathon/internal/domain"
	"github.com/Nissan15/hackathon/internal/persistence"
	"github.com/Nissan15/hackathon/internal/persistence/memory"
	"github.com/Nissan15/hackathon/internal/persistence/postgres"
	"github.com/Nissan15/hackathon/internal/persistence/sqlstore"
	"github.com/Nissan15/hackathon/internal/recommend"
)

// Store is the full storage surface the commands use.
type Store interface {
	dashboard.Store
	domain.Repository
	auth.UserStore
	recommend.TotalsStore
}

// openedStore pairs a Store with its resources. pool is set only for the
// postgres backend, which also carries the outbox.
type openedStore struct {
	Store
	pool  *pgxpool.Pool
	close func()
}

func (s *openedStore) Close() {
	if s.close != nil {
		s.close()
	}
}

func openStore(ctx context.Context, cfg config.Config) (*openedStore, error) {
	switch cfg.StoreBackend {
	case persistence.Postgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &openedStore{Store: postgres.NewRepository(pool), pool: pool, close: pool.Close}, nil
	case persistence.MySQL, persistence.SQLite:
		store, err := sqlstore.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &openedStore{Store: store, close: func() { _ = store.Close() }}, nil
	case persistence.Memory:
		return &openedStore{Store: memory.NewStore()}, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

var errNeedsPostgres = errors.New("event commands require STORE_BACKEND=postgres")

func (a *app) authConfig() auth.Config {
	return auth.Config{Secret: a.cfg.JWTSecret, Issuer: a.cfg.JWTIssuer, TTL: a.cfg.TokenTTL}
}

func (a *app) engine(store dashboard.Store) *dashboard.Engine {
	return dashboard.NewEngine(store,
		dashboard.WithLogger(a.logger),
		dashboard.WithDefaultWindow(a.cfg.DefaultWindowDays),
	)
}
