package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrSnapshotUnsupported = errors.New("snapshots are only supported for sqlite; use pg_dump for postgres")

// Snapshot writes a consistent copy of the database to path, which must not exist yet.
func (s *SQLStore) Snapshot(ctx context.Context, path string) error {
	if s.dialect != DialectSQLite {
		return ErrSnapshotUnsupported
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("snapshot %s: file already exists", path)
	}
	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO "+quoted); err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}
	return nil
}
