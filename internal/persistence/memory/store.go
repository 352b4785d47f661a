// Package memory keeps every table in process memory for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Nissan15/hackathon/internal/dashboard"
	"github.com/Nissan15/hackathon/internal/domain"
	"github.com/Nissan15/hackathon/internal/persistence"
)

// Store is an in-memory implementation of every repository interface.
type Store struct {
	mu         sync.RWMutex
	activities []domain.ActivityRecord
	factors    map[string]domain.EmissionFactor
	counts     map[string]domain.HumanCount
	users      map[string]domain.User
	nextUserID int64

	acquireErr         error
	queryErr           error
	queryAfter         int
	queries            int
	humanCountsMissing bool
	released           int
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		factors: make(map[string]domain.EmissionFactor),
		counts:  make(map[string]domain.HumanCount),
		users:   make(map[string]domain.User),
	}
}

// FailAcquire makes every subsequent Acquire return err.
func (s *Store) FailAcquire(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireErr = err
}

// FailQueries makes every subsequent connection query return err.
func (s *Store) FailQueries(err error) {
	s.FailQueriesAfter(0, err)
}

// FailQueriesAfter lets the next n connection queries succeed and fails every
// one after them with err.
func (s *Store) FailQueriesAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryErr = err
	s.queryAfter = s.queries + n
}

// DropHumanCounts simulates a database where the human_count table was never created.
func (s *Store) DropHumanCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.humanCountsMissing = true
	s.counts = make(map[string]domain.HumanCount)
}

// Released reports how many connections have been returned.
func (s *Store) Released() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.released
}

// Acquire implements dashboard.Store.
func (s *Store) Acquire(ctx context.Context) (dashboard.Conn, error) {
	s.mu.RLock()
	err := s.acquireErr
	s.mu.RUnlock()
	if err != nil {
		return nil, persistence.Unavailable(err)
	}
	return &conn{store: s}, nil
}

// InsertActivities implements domain.Repository.
func (s *Store) InsertActivities(ctx context.Context, records []domain.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, records...)
	return nil
}

// UpsertHumanCount implements domain.Repository.
func (s *Store) UpsertHumanCount(ctx context.Context, count domain.HumanCount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.humanCountsMissing {
		return persistence.SchemaMissing("human_count")
	}
	s.counts[domain.FormatDate(count.Date)] = count
	return nil
}

// ListEmissionFactors implements domain.Repository.
func (s *Store) ListEmissionFactors(ctx context.Context) ([]domain.EmissionFactor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.EmissionFactor, 0, len(s.factors))
	for _, f := range s.factors {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceType < out[j].SourceType })
	return out, nil
}

// UpsertEmissionFactor implements domain.Repository.
func (s *Store) UpsertEmissionFactor(ctx context.Context, factor domain.EmissionFactor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factors[factor.SourceType] = factor
	return nil
}

// SourceTotals returns all-time emissions per source, largest first.
func (s *Store) SourceTotals(ctx context.Context) ([]domain.SourceTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals := make(map[string]float64)
	for _, row := range s.joinLocked(time.Time{}, time.Time{}) {
		totals[row.SourceType] += row.EmissionsTonnes
	}
	out := make([]domain.SourceTotal, 0, len(totals))
	for source, total := range totals {
		out = append(out, domain.SourceTotal{Source: source, Emissions: total})
	}
	persistence.SortSourceTotals(out)
	return out, nil
}

// FindUser looks a user up by name.
func (s *Store) FindUser(ctx context.Context, username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

// UpsertUser creates the user or replaces its password hash.
func (s *Store) UpsertUser(ctx context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		s.nextUserID++
		user = domain.User{ID: s.nextUserID, Username: username}
	}
	user.PasswordHash = passwordHash
	s.users[username] = user
	return nil
}

// joinLocked inner-joins activities with factors. Zero bounds are open.
func (s *Store) joinLocked(start, end time.Time) []domain.EmissionRow {
	rows := make([]domain.EmissionRow, 0, len(s.activities))
	for _, a := range s.activities {
		if !start.IsZero() && a.Date.Before(start) {
			continue
		}
		if !end.IsZero() && a.Date.After(end) {
			continue
		}
		f, ok := s.factors[a.SourceType]
		if !ok {
			continue
		}
		rows = append(rows, domain.NewEmissionRow(a.Date, a.SourceType, a.RawValue, a.Unit, f.Factor))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].SourceType < rows[j].SourceType
	})
	return rows
}

type conn struct {
	store *Store
}

func (s *Store) nextQuery() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.queryErr == nil || s.queries <= s.queryAfter {
		return nil
	}
	return persistence.Unavailable(s.queryErr)
}

func (c *conn) EmissionRows(ctx context.Context, start, end time.Time) ([]domain.EmissionRow, error) {
	if err := c.store.nextQuery(); err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return c.store.joinLocked(start, end), nil
}

func (c *conn) HumanCounts(ctx context.Context, start, end time.Time) ([]domain.HumanCount, error) {
	if err := c.store.nextQuery(); err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	if c.store.humanCountsMissing {
		return nil, persistence.SchemaMissing("human_count")
	}
	out := make([]domain.HumanCount, 0, len(c.store.counts))
	for _, hc := range c.store.counts {
		if hc.Date.Before(start) || hc.Date.After(end) {
			continue
		}
		out = append(out, hc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (c *conn) Release() {
	c.store.mu.Lock()
	c.store.released++
	c.store.mu.Unlock()
}
