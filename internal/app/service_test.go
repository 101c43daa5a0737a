package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jarvis/board/internal/store"
)

// newSQLiteService runs the service against a migrated SQLite database.
func newSQLiteService(t *testing.T) (*Service, *store.SQLStore) {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.DialectSQLite, filepath.Join(t.TempDir(), "jarvis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.ApplyMigrations(ctx, db, store.DialectSQLite))

	st := store.NewSQLStore(db, store.DialectSQLite)
	svc := New(testConfig(), st, st, nil, zaptest.NewLogger(t))
	svc.now = func() time.Time { return time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC) }
	return svc, st
}

func activityDetails(t *testing.T, activity store.Activity) map[string]any {
	t.Helper()
	var details map[string]any
	require.NoError(t, json.Unmarshal(activity.Details, &details))
	return details
}

func str(value string) *string { return &value }

func TestServiceTaskLifecycleRecordsActivities(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSQLiteService(t)

	created, err := svc.CreateTask(ctx, TaskInput{Title: "  Draft plan  ", Category: str("Coding")})
	require.NoError(t, err)
	assert.Equal(t, "Draft plan", created.Title)
	assert.Equal(t, "Coding", created.Category)
	assert.Equal(t, store.DefaultPriority, created.Priority)
	assert.Equal(t, store.DefaultStatus, created.Status)

	_, err = svc.UpdateTask(ctx, created.ID, store.TaskPatch{Status: str("doing")})
	require.NoError(t, err)
	_, err = svc.UpdateTask(ctx, created.ID, store.TaskPatch{Priority: str("High"), Description: str("with notes")})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTask(ctx, created.ID))

	activities, err := svc.ListActivities(ctx, store.ActivityFilter{EntityType: "task"})
	require.NoError(t, err)
	require.Len(t, activities, 4)

	// Newest first.
	actions := []string{}
	for _, activity := range activities {
		actions = append(actions, activity.Action)
		require.NotNil(t, activity.EntityID)
		assert.Equal(t, "1", *activity.EntityID)
	}
	assert.Equal(t, []string{"task.delete", "task.update", "task.status_change", "task.create"}, actions)

	assert.Equal(t, map[string]any{"title": "Draft plan"}, activityDetails(t, activities[0]))
	assert.Equal(t, map[string]any{
		"fields": []any{"description", "priority"},
		"title":  "Draft plan",
	}, activityDetails(t, activities[1]))
	assert.Equal(t, map[string]any{"from": "todo", "to": "doing", "title": "Draft plan"}, activityDetails(t, activities[2]))
	assert.Equal(t, map[string]any{
		"title":    "Draft plan",
		"category": "Coding",
		"priority": "Medium",
		"status":   "todo",
	}, activityDetails(t, activities[3]))
}

func TestServiceSameStatusIsPlainUpdate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSQLiteService(t)

	created, err := svc.CreateTask(ctx, TaskInput{Title: "Stay put"})
	require.NoError(t, err)
	_, err = svc.UpdateTask(ctx, created.ID, store.TaskPatch{Status: str("todo")})
	require.NoError(t, err)

	activities, err := svc.ListActivities(ctx, store.ActivityFilter{Action: "task.status_change"})
	require.NoError(t, err)
	assert.Empty(t, activities)

	activities, err = svc.ListActivities(ctx, store.ActivityFilter{Action: "task.update"})
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, []any{}, activityDetails(t, activities[0])["fields"])
}

func TestServiceDeleteMissingTask(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSQLiteService(t)

	err := svc.DeleteTask(ctx, 404)
	var domainErr *DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, http.StatusNotFound, domainErr.Status)
	assert.Equal(t, "Task not found", domainErr.Message)

	stats, err := svc.ActivityStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalActivities)
}

func TestServiceNormalizesDueDates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSQLiteService(t)

	cases := map[string]string{
		"2024-06-01":           "2024-06-01",
		"2024-06-01T18:30:00Z": "2024-06-01",
		"tomorrow":             "2024-05-16",
	}
	for input, want := range cases {
		task, err := svc.CreateTask(ctx, TaskInput{Title: "Due " + input, DueDate: str(input)})
		require.NoError(t, err, input)
		require.NotNil(t, task.DueDate, input)
		assert.Equal(t, want, *task.DueDate, input)
	}

	_, err := svc.CreateTask(ctx, TaskInput{Title: "Never", DueDate: str("when pigs fly")})
	var domainErr *DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, http.StatusBadRequest, domainErr.Status)
}

func TestServiceRejectsMalformedDueDates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSQLiteService(t)

	created, err := svc.CreateTask(ctx, TaskInput{Title: "Dated", DueDate: str("2024-07-04")})
	require.NoError(t, err)

	for _, input := range []string{"2024-13-45", "2024-02-30", "zzz tomorrow qqq"} {
		_, err := svc.CreateTask(ctx, TaskInput{Title: "Bad " + input, DueDate: str(input)})
		var domainErr *DomainError
		require.True(t, errors.As(err, &domainErr), input)
		assert.Equal(t, http.StatusBadRequest, domainErr.Status, input)

		_, err = svc.UpdateTask(ctx, created.ID, store.TaskPatch{DueDate: store.Some(input)})
		require.True(t, errors.As(err, &domainErr), input)
		assert.Equal(t, http.StatusBadRequest, domainErr.Status, input)
	}

	task, err := svc.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-04", *task.DueDate)
}

func TestServiceClearsDueDate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSQLiteService(t)

	created, err := svc.CreateTask(ctx, TaskInput{Title: "Dated", DueDate: str("2024-07-04")})
	require.NoError(t, err)

	updated, err := svc.UpdateTask(ctx, created.ID, store.TaskPatch{DueDate: store.Some("")})
	require.NoError(t, err)
	assert.Nil(t, updated.DueDate)
}

func TestServiceRejectsBlankTitlePatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSQLiteService(t)

	created, err := svc.CreateTask(ctx, TaskInput{Title: "Keep me"})
	require.NoError(t, err)

	_, err = svc.UpdateTask(ctx, created.ID, store.TaskPatch{Title: str("  ")})
	require.Error(t, err)

	task, err := svc.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Keep me", task.Title)
}

func TestServiceCalendar(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSQLiteService(t)

	for _, due := range []string{"2024-05-01", "2024-05-20", "2024-06-02"} {
		_, err := svc.CreateTask(ctx, TaskInput{Title: "Due " + due, DueDate: str(due)})
		require.NoError(t, err)
	}
	_, err := svc.CreateTask(ctx, TaskInput{Title: "Undated"})
	require.NoError(t, err)

	tasks, err := svc.Calendar(ctx, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "2024-05-01", *tasks[0].DueDate)
	assert.Equal(t, "2024-05-20", *tasks[1].DueDate)

	tasks, err = svc.Calendar(ctx, "2024-06-30", "2024-06-01")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestServiceSearchFollowsWrites(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSQLiteService(t)

	created, err := svc.CreateTask(ctx, TaskInput{Title: "Quarterly report", Description: str("numbers for finance")})
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, TaskInput{Title: "Water plants"})
	require.NoError(t, err)

	resp, err := svc.Search(ctx, "report fin", 0)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, created.ID, resp.Results[0].ID)
	assert.Equal(t, "database", resp.Engine)

	_, err = svc.UpdateTask(ctx, created.ID, store.TaskPatch{Title: str("Annual summary")})
	require.NoError(t, err)
	resp, err = svc.Search(ctx, "quarterly", 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	require.NoError(t, svc.DeleteTask(ctx, created.ID))
	resp, err = svc.Search(ctx, "annual", 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	resp, err = svc.Search(ctx, "***", 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestServiceSessionsPersistInDatabase(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSQLiteService(t)
	svc.now = time.Now

	session, err := svc.Login(ctx, "hunter2")
	require.NoError(t, err)

	claims, err := svc.SessionFromCookie(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, sessionSubject, claims.Sub)

	require.NoError(t, svc.Logout(ctx, session.Token))
	_, err = svc.SessionFromCookie(ctx, session.Token)
	require.Error(t, err)
	assert.True(t, isAuthError(err))
}
