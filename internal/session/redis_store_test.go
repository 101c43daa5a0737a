package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"jarvis/board/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })
	return sessions, mr
}

func TestNewRedisStore(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	if err := sessions.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-redis-url"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestSaveAndLookupSession(t *testing.T) {
	sessions, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := sessions.SaveSession(ctx, "hash-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if err := sessions.LookupSession(ctx, "hash-1"); err != nil {
		t.Fatalf("LookupSession failed: %v", err)
	}
	if ttl := mr.TTL("jarvis:session:hash-1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected key ttl within an hour, got %s", ttl)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	sessions, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := sessions.SaveSession(ctx, "short", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if err := sessions.LookupSession(ctx, "short"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSaveAlreadyExpiredSessionIsNotStored(t *testing.T) {
	sessions, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := sessions.SaveSession(ctx, "stale", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if mr.Exists("jarvis:session:stale") {
		t.Fatal("expected expired session not to be stored")
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	if err := sessions.LookupSession(context.Background(), "missing"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRevokeSession(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	for _, hash := range []string{"token-1", "token-2"} {
		if err := sessions.SaveSession(ctx, hash, expiresAt); err != nil {
			t.Fatalf("SaveSession %s failed: %v", hash, err)
		}
	}

	if err := sessions.RevokeSession(ctx, "token-1"); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if err := sessions.LookupSession(ctx, "token-1"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected revoked session to be gone, got %v", err)
	}
	if err := sessions.LookupSession(ctx, "token-2"); err != nil {
		t.Fatalf("expected other session to survive, got %v", err)
	}

	// Revoking twice is not an error.
	if err := sessions.RevokeSession(ctx, "token-1"); err != nil {
		t.Fatalf("second RevokeSession failed: %v", err)
	}
}
