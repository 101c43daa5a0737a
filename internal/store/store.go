// Package store persists tasks, activities and login sessions in SQLite or
// Postgres behind one SQL implementation.
package store

import (
	"context"
	"database/sql"
	"time"
)

type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) q(query string) string {
	return s.dialect.Rebind(query)
}

// timestamp is the current time at the one-second resolution both
// dialects store.
func (s *SQLStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

// nullable unwraps an optional value into a bind argument.
func nullable[T any](value *T) any {
	if value == nil {
		return nil
	}
	return *value
}

func emptyToNil(value string) any {
	if value == "" {
		return nil
	}
	return value
}
