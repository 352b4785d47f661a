// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"fmt"
	"sort"

	"github.com/Nissan15/hackathon/internal/domain"
)

// Backend names a storage engine.
type Backend string

// Supported backends.
const (
	Postgres Backend = "postgres"
	MySQL    Backend = "mysql"
	SQLite   Backend = "sqlite"
	Memory   Backend = "memory"
)

// ParseBackend validates a configured backend name.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(name); b {
	case Postgres, MySQL, SQLite, Memory:
		return b, nil
	default:
		return "", fmt.Errorf("unsupported store backend %q", name)
	}
}

// Unavailable wraps a connectivity failure as domain.ErrStorageUnavailable.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}

// SchemaMissing reports that table does not exist.
func SchemaMissing(table string) error {
	return fmt.Errorf("%w: table %s does not exist", domain.ErrSchemaMissing, table)
}

// SortSourceTotals orders totals by emissions descending, then source name.
func SortSourceTotals(totals []domain.SourceTotal) {
	sort.SliceStable(totals, func(i, j int) bool {
		if totals[i].Emissions != totals[j].Emissions {
			return totals[i].Emissions > totals[j].Emissions
		}
		return totals[i].Source < totals[j].Source
	})
}
