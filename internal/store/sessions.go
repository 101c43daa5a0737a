package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// SaveSession records a login session keyed by the hash of its token id.
func (s *SQLStore) SaveSession(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO sessions (token_hash, created_at, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (token_hash) DO UPDATE SET expires_at=EXCLUDED.expires_at
	`), tokenHash, s.dialect.timeArg(s.timestamp()), s.dialect.timeArg(expiresAt))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LookupSession returns ErrSessionNotFound for unknown, revoked or expired sessions.
func (s *SQLStore) LookupSession(ctx context.Context, tokenHash string) error {
	var expiresAt dbTime
	err := s.db.QueryRowContext(ctx, s.q(`SELECT expires_at FROM sessions WHERE token_hash=?`), tokenHash).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	if !expiresAt.Time.After(s.now()) {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLStore) RevokeSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE token_hash=?`), tokenHash)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes sessions that expired before now.
func (s *SQLStore) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE expires_at <= ?`), s.dialect.timeArg(now))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	purged, _ := result.RowsAffected()
	return purged, nil
}
