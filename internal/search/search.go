package search

import (
	"context"

	"jarvis/board/internal/store"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// Engine names reported in Response.Engine.
const (
	EngineMeili    = "meilisearch"
	EngineDatabase = "database"
)

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []store.SearchHit `json:"results"`
	Total   int               `json:"total"`
	Query   string            `json:"query"`
	Engine  string            `json:"engine"`
}

// TaskSource is the slice of the task repository search depends on.
type TaskSource interface {
	GetTask(ctx context.Context, id int64) (store.Task, error)
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, error)
	SearchTasks(ctx context.Context, text string, limit int) ([]store.SearchHit, error)
}

// TaskDocument is the data we index for a task.
type TaskDocument struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
}

func documentFor(task store.Task) TaskDocument {
	return TaskDocument{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Category:    task.Category,
		Priority:    task.Priority,
		Status:      task.Status,
	}
}

// ClampLimit applies the default and the upper bound.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
