package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour spoken by the analytics database.
type Dialect string

const (
	// Postgres is the production dialect (lib/pq).
	Postgres Dialect = "postgres"
	// SQLite is used for local runs and tests (mattn/go-sqlite3).
	SQLite Dialect = "sqlite3"
)

// Dialects lists every dialect the analytics tables can live in.
func Dialects() []Dialect {
	return []Dialect{Postgres, SQLite}
}

// ParseDialect maps a database/sql driver name onto a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// DriverName returns the name the driver registered with database/sql.
func (d Dialect) DriverName() string {
	return string(d)
}

// Rebind rewrites '?' placeholders into the dialect's bind syntax.
// Queries passed here must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// TimestampParam renders the n-th (1-based) bound parameter as a timestamp.
// Postgres gets an explicit cast so the parameter type never has to be
// inferred from the select list; SQLite gets a numbered parameter so the
// same argument can be referenced more than once in any order.
func (d Dialect) TimestampParam(n int) string {
	if d == Postgres {
		return "CAST($" + strconv.Itoa(n) + " AS TIMESTAMPTZ)"
	}
	return "?" + strconv.Itoa(n)
}

// TimestampType is the column type used for UTC instants.
func (d Dialect) TimestampType() string {
	if d == Postgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

// SerialPrimaryKey is the column definition of an auto-incrementing id.
func (d Dialect) SerialPrimaryKey() string {
	if d == Postgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// TruncateStatement empties a table.
func (d Dialect) TruncateStatement(table string) string {
	if d == Postgres {
		return "TRUNCATE TABLE " + table
	}
	return "DELETE FROM " + table
}
