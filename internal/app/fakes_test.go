package app

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"jarvis/board/internal/config"
	"jarvis/board/internal/store"
)

type fakeStore struct {
	listTasksFn       func(context.Context, store.TaskFilter) ([]store.Task, error)
	getTaskFn         func(context.Context, int64) (store.Task, error)
	createTaskFn      func(context.Context, store.Task) (store.Task, error)
	updateTaskFn      func(context.Context, int64, store.TaskPatch) (store.Task, error)
	deleteTaskFn      func(context.Context, int64) (bool, error)
	tasksDueBetweenFn func(context.Context, string, string) ([]store.Task, error)
	insertActivityFn  func(context.Context, store.ActivityInput) (store.Activity, error)
	listActivitiesFn  func(context.Context, store.ActivityFilter) ([]store.Activity, error)
	activityStatsFn   func(context.Context, time.Time) (store.ActivityStats, error)
	searchTasksFn     func(context.Context, string, int) ([]store.SearchHit, error)
	pingFn            func(context.Context) error
}

func (f *fakeStore) ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, error) {
	if f.listTasksFn != nil {
		return f.listTasksFn(ctx, filter)
	}
	return []store.Task{}, nil
}

func (f *fakeStore) GetTask(ctx context.Context, id int64) (store.Task, error) {
	if f.getTaskFn != nil {
		return f.getTaskFn(ctx, id)
	}
	return store.Task{}, sql.ErrNoRows
}

func (f *fakeStore) CreateTask(ctx context.Context, task store.Task) (store.Task, error) {
	if f.createTaskFn != nil {
		return f.createTaskFn(ctx, task)
	}
	task.ID = 1
	return task, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, id int64, patch store.TaskPatch) (store.Task, error) {
	if f.updateTaskFn != nil {
		return f.updateTaskFn(ctx, id, patch)
	}
	return store.Task{}, sql.ErrNoRows
}

func (f *fakeStore) DeleteTask(ctx context.Context, id int64) (bool, error) {
	if f.deleteTaskFn != nil {
		return f.deleteTaskFn(ctx, id)
	}
	return false, nil
}

func (f *fakeStore) TasksDueBetween(ctx context.Context, start, end string) ([]store.Task, error) {
	if f.tasksDueBetweenFn != nil {
		return f.tasksDueBetweenFn(ctx, start, end)
	}
	return []store.Task{}, nil
}

func (f *fakeStore) InsertActivity(ctx context.Context, input store.ActivityInput) (store.Activity, error) {
	if f.insertActivityFn != nil {
		return f.insertActivityFn(ctx, input)
	}
	return store.Activity{ID: 1, Action: input.Action}, nil
}

func (f *fakeStore) ListActivities(ctx context.Context, filter store.ActivityFilter) ([]store.Activity, error) {
	if f.listActivitiesFn != nil {
		return f.listActivitiesFn(ctx, filter)
	}
	return []store.Activity{}, nil
}

func (f *fakeStore) ActivityStats(ctx context.Context, now time.Time) (store.ActivityStats, error) {
	if f.activityStatsFn != nil {
		return f.activityStatsFn(ctx, now)
	}
	return store.ActivityStats{ByAction: map[string]int64{}, ByEntityType: map[string]int64{}}, nil
}

func (f *fakeStore) SearchTasks(ctx context.Context, text string, limit int) ([]store.SearchHit, error) {
	if f.searchTasksFn != nil {
		return f.searchTasksFn(ctx, text, limit)
	}
	return []store.SearchHit{}, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

// memorySessions is a sessionStore kept in a map.
type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]time.Time
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: map[string]time.Time{}}
}

func (m *memorySessions) SaveSession(_ context.Context, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tokenHash] = expiresAt
	return nil
}

func (m *memorySessions) LookupSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiresAt, ok := m.sessions[tokenHash]
	if !ok || !time.Now().Before(expiresAt) {
		return store.ErrSessionNotFound
	}
	return nil
}

func (m *memorySessions) RevokeSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}

func (m *memorySessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func testConfig() config.Config {
	return config.Config{
		APITokens:     []string{"token-one", "token-two"},
		AuthPass:      "hunter2",
		SessionSecret: "test-secret",
		SessionTTL:    time.Hour,
		CORSOrigin:    "*",
	}
}

func newTestService(t *testing.T, fs *fakeStore, cfg config.Config) (*Service, *memorySessions) {
	t.Helper()
	sessions := newMemorySessions()
	return New(cfg, fs, sessions, nil, zaptest.NewLogger(t)), sessions
}
