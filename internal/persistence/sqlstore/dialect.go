package sqlstore

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Nissan15/hackathon/internal/persistence"
)

// mysqlNoSuchTable is ER_NO_SUCH_TABLE.
const mysqlNoSuchTable = 1146

type dialect struct {
	driverName      string
	upsertHeadcount string
	upsertFactor    string
	upsertUser      string
	missingTable    func(error) bool
	unreachable     func(error) bool
}

var dialects = map[persistence.Backend]dialect{
	persistence.MySQL: {
		driverName:      "mysql",
		upsertHeadcount: `INSERT INTO human_count (date, humans) VALUES (?, ?) ON DUPLICATE KEY UPDATE humans = VALUES(humans)`,
		upsertFactor:    `INSERT INTO emission_factors (source_type, factor, unit) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE factor = VALUES(factor), unit = VALUES(unit)`,
		upsertUser:      `INSERT INTO users (username, password_hash) VALUES (?, ?) ON DUPLICATE KEY UPDATE password_hash = VALUES(password_hash)`,
		missingTable: func(err error) bool {
			var me *mysql.MySQLError
			return errors.As(err, &me) && me.Number == mysqlNoSuchTable
		},
		unreachable: func(err error) bool {
			var netErr net.Error
			return errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.As(err, &netErr)
		},
	},
	persistence.SQLite: {
		driverName:      "sqlite",
		upsertHeadcount: `INSERT INTO human_count (date, humans) VALUES (?, ?) ON CONFLICT(date) DO UPDATE SET humans = excluded.humans, updated_at = CURRENT_TIMESTAMP`,
		upsertFactor:    `INSERT INTO emission_factors (source_type, factor, unit) VALUES (?, ?, ?) ON CONFLICT(source_type) DO UPDATE SET factor = excluded.factor, unit = excluded.unit`,
		upsertUser:      `INSERT INTO users (username, password_hash) VALUES (?, ?) ON CONFLICT(username) DO UPDATE SET password_hash = excluded.password_hash`,
		missingTable: func(err error) bool {
			return err != nil && strings.Contains(err.Error(), "no such table")
		},
		unreachable: func(err error) bool {
			var se *sqlite.Error
			return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CANTOPEN
		},
	},
}

// classify maps driver errors onto the domain taxonomy.
func (d dialect) classify(err error, table string) error {
	switch {
	case err == nil:
		return nil
	case d.missingTable(err):
		return persistence.SchemaMissing(table)
	case errors.Is(err, sql.ErrConnDone) || d.unreachable(err):
		return persistence.Unavailable(err)
	default:
		return err
	}
}
