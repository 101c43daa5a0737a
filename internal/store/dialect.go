package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect identifies the SQL engine behind a store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// sqliteTimeLayout matches SQLite's datetime('now') so defaults and
// application-written timestamps sort together.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// ParseDialect maps a driver name from configuration to a Dialect.
func ParseDialect(value string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unknown database driver: %s", value)
	}
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Placeholder returns the bind parameter for the 1-based index.
func (d Dialect) Placeholder(index int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(index)
	}
	return "?"
}

// Rebind rewrites ? placeholders for the dialect. Queries must not contain
// literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	index := 1
	for _, r := range query {
		if r == '?' {
			b.WriteString(d.Placeholder(index))
			index++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) likeOperator() string {
	if d == DialectPostgres {
		return "ILIKE"
	}
	return "LIKE"
}

// timeArg converts a timestamp into the bind value the dialect stores.
func (d Dialect) timeArg(t time.Time) any {
	if d == DialectPostgres {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeLayout)
}
