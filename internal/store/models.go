package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultCategory = "Inbox"
	DefaultPriority = "Medium"
	DefaultStatus   = "todo"
)

var (
	Categories = []string{"Inbox", "Learnings", "Polymarket", "Side Projects", "Stravix", "Coding", "Workflow"}
	Priorities = []string{"Urgent", "High", "Medium", "Low"}
	Statuses   = []string{"todo", "doing", "review", "on_hold", "done"}
)

func ValidCategory(value string) bool { return contains(Categories, value) }
func ValidPriority(value string) bool { return contains(Priorities, value) }
func ValidStatus(value string) bool   { return contains(Statuses, value) }

// PriorityRank orders priorities Urgent first. Unknown values sort last.
func PriorityRank(priority string) int {
	for i, p := range Priorities {
		if p == priority {
			return i
		}
	}
	return len(Priorities)
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

type Task struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	Priority       string    `json:"priority"`
	Status         string    `json:"status"`
	Source         string    `json:"source"`
	DueDate        *string   `json:"due_date"`
	EstimatedHours *float64  `json:"estimated_hours"`
	ActualHours    *float64  `json:"actual_hours"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (t *Task) applyDefaults() {
	if t.Category == "" {
		t.Category = DefaultCategory
	}
	if t.Priority == "" {
		t.Priority = DefaultPriority
	}
	if t.Status == "" {
		t.Status = DefaultStatus
	}
}

// TaskFilter narrows ListTasks. Empty fields are ignored.
type TaskFilter struct {
	Status   string
	Category string
	Priority string
	Search   string
}

// Optional distinguishes an absent JSON field from an explicit null. Form
// clients send an empty string for a cleared input, so "" also clears, and
// numbers may arrive as numeric strings.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		number, ok := any(&v).(*float64)
		if !ok {
			return err
		}
		if *number, err = decodeNumericString(data); err != nil {
			return err
		}
	}
	o.Value = &v
	return nil
}

func decodeNumericString(data []byte) (float64, error) {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("expected a number, got %s", data)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("expected a number, got %q", raw)
	}
	return value, nil
}

// Some returns a set Optional holding value.
func Some[T any](value T) Optional[T] {
	return Optional[T]{Set: true, Value: &value}
}

// Null returns a set Optional that clears the field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// TaskPatch is a partial update. Nil string fields are left alone; the
// nullable fields use Optional so an explicit null clears them.
type TaskPatch struct {
	Title          *string           `json:"title"`
	Description    *string           `json:"description"`
	Category       *string           `json:"category"`
	Priority       *string           `json:"priority"`
	Status         *string           `json:"status"`
	Source         *string           `json:"source"`
	DueDate        Optional[string]  `json:"due_date"`
	EstimatedHours Optional[float64] `json:"estimated_hours"`
	ActualHours    Optional[float64] `json:"actual_hours"`
}

// Apply writes the patch onto task.
func (p TaskPatch) Apply(task *Task) {
	if p.Title != nil {
		task.Title = *p.Title
	}
	if p.Description != nil {
		task.Description = *p.Description
	}
	if p.Category != nil {
		task.Category = *p.Category
	}
	if p.Priority != nil {
		task.Priority = *p.Priority
	}
	if p.Status != nil {
		task.Status = *p.Status
	}
	if p.Source != nil {
		task.Source = *p.Source
	}
	if p.DueDate.Set {
		task.DueDate = p.DueDate.Value
	}
	if p.EstimatedHours.Set {
		task.EstimatedHours = p.EstimatedHours.Value
	}
	if p.ActualHours.Set {
		task.ActualHours = p.ActualHours.Value
	}
}

// ChangedFields lists the JSON names of the user-editable fields that
// differ between before and after.
func ChangedFields(before, after Task) []string {
	changed := make([]string, 0)
	add := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}
	add("title", before.Title != after.Title)
	add("description", before.Description != after.Description)
	add("category", before.Category != after.Category)
	add("priority", before.Priority != after.Priority)
	add("status", before.Status != after.Status)
	add("source", before.Source != after.Source)
	add("due_date", !equalPtr(before.DueDate, after.DueDate))
	add("estimated_hours", !equalPtr(before.EstimatedHours, after.EstimatedHours))
	add("actual_hours", !equalPtr(before.ActualHours, after.ActualHours))
	return changed
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type ActivityInput struct {
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	TokensUsed *int64         `json:"tokens_used,omitempty"`
}

type Activity struct {
	ID         int64           `json:"id"`
	Action     string          `json:"action"`
	EntityType *string         `json:"entity_type"`
	EntityID   *string         `json:"entity_id"`
	Details    json.RawMessage `json:"details"`
	SessionID  *string         `json:"session_id"`
	TokensUsed *int64          `json:"tokens_used"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ActivityFilter narrows ListActivities. Start and End are inclusive.
type ActivityFilter struct {
	Action     string
	EntityType string
	EntityID   string
	Start      *time.Time
	End        *time.Time
	Limit      int
	Offset     int
}

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 500
)

type ActivityStats struct {
	TotalActivities int64            `json:"total_activities"`
	TotalTokens     int64            `json:"total_tokens"`
	ByAction        map[string]int64 `json:"by_action"`
	ByEntityType    map[string]int64 `json:"by_entity_type"`
	Recent24h       int64            `json:"recent_24h"`
}

// SearchHit is a task matched by full-text search. Lower Rank is better
// on SQLite; Postgres ranks are negated so the same ordering holds.
type SearchHit struct {
	Task
	Rank float64 `json:"rank"`
}
