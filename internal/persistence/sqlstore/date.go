package sqlstore

import (
	"fmt"
	"time"

	"github.com/Nissan15/hackathon/internal/domain"
)

// sqlDate scans DATE columns from MySQL (bytes or time.Time) and TEXT dates
// from SQLite into a UTC calendar day.
type sqlDate struct {
	time.Time
}

func (d *sqlDate) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.Time = domain.Day(v)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("unsupported date column type %T", src)
	}
}

func (d *sqlDate) parse(s string) error {
	if len(s) > len(domain.DateLayout) {
		s = s[:len(domain.DateLayout)]
	}
	parsed, err := domain.ParseDate(s)
	if err != nil {
		return err
	}
	d.Time = parsed
	return nil
}
