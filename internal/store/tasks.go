package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const taskColumns = `t.id, t.title, t.description, t.category, t.priority, t.status, t.source,
	t.due_date, t.estimated_hours, t.actual_hours, t.created_at, t.updated_at`

const priorityOrder = `CASE t.priority WHEN 'Urgent' THEN 0 WHEN 'High' THEN 1 WHEN 'Medium' THEN 2 WHEN 'Low' THEN 3 ELSE 4 END`

func scanTask(row rowScanner, extra ...any) (Task, error) {
	var (
		task      Task
		dueDate   dbDate
		estimated sql.NullFloat64
		actual    sql.NullFloat64
		createdAt dbTime
		updatedAt dbTime
	)
	dest := []any{
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Category,
		&task.Priority,
		&task.Status,
		&task.Source,
		&dueDate,
		&estimated,
		&actual,
		&createdAt,
		&updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Task{}, err
	}
	task.DueDate = dueDate.Value
	task.EstimatedHours = nullFloat(estimated)
	task.ActualHours = nullFloat(actual)
	task.CreatedAt = createdAt.Time
	task.UpdatedAt = updatedAt.Time
	return task, nil
}

func collectTasks(rows *sql.Rows, what string) ([]Task, error) {
	defer rows.Close()
	items := make([]Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		items = append(items, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return items, nil
}

// ListTasks returns tasks matching every set filter field, most urgent first
// and most recently updated first within a priority.
func (s *SQLStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		where = append(where, "t.category = ?")
		args = append(args, filter.Category)
	}
	if filter.Priority != "" {
		where = append(where, "t.priority = ?")
		args = append(args, filter.Priority)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		op := s.dialect.likeOperator()
		where = append(where, fmt.Sprintf(`(t.title %[1]s ? ESCAPE '\' OR t.description %[1]s ? ESCAPE '\')`, op))
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks t`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ` + priorityOrder + `, t.updated_at DESC, t.id DESC`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collectTasks(rows, "task")
}

// GetTask returns sql.ErrNoRows when the task does not exist.
func (s *SQLStore) GetTask(ctx context.Context, id int64) (Task, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`), id)
	task, err := scanTask(row)
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// CreateTask inserts the task with defaults applied and returns the stored row.
func (s *SQLStore) CreateTask(ctx context.Context, task Task) (Task, error) {
	task.applyDefaults()
	now := s.dialect.timeArg(s.timestamp())

	var id int64
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO tasks (title, description, category, priority, status, source, due_date, estimated_hours, actual_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		task.Title,
		task.Description,
		task.Category,
		task.Priority,
		task.Status,
		task.Source,
		nullable(task.DueDate),
		nullable(task.EstimatedHours),
		nullable(task.ActualHours),
		now,
		now,
	).Scan(&id)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}

	created, err := s.GetTask(ctx, id)
	if err != nil {
		return Task{}, fmt.Errorf("reload task: %w", err)
	}
	return created, nil
}

// UpdateTask applies patch to the stored task and bumps updated_at. It
// returns sql.ErrNoRows when the task does not exist.
func (s *SQLStore) UpdateTask(ctx context.Context, id int64, patch TaskPatch) (Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	patch.Apply(&task)

	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE tasks
		SET title=?, description=?, category=?, priority=?, status=?, source=?,
			due_date=?, estimated_hours=?, actual_hours=?, updated_at=?
		WHERE id=?
	`),
		task.Title,
		task.Description,
		task.Category,
		task.Priority,
		task.Status,
		task.Source,
		nullable(task.DueDate),
		nullable(task.EstimatedHours),
		nullable(task.ActualHours),
		s.dialect.timeArg(s.timestamp()),
		id,
	)
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return Task{}, sql.ErrNoRows
	}
	return s.GetTask(ctx, id)
}

// DeleteTask reports whether a row was removed.
func (s *SQLStore) DeleteTask(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM tasks WHERE id=?`), id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return affected > 0, nil
}

// TasksDueBetween returns tasks whose due date falls within [start, end],
// both YYYY-MM-DD, earliest first.
func (s *SQLStore) TasksDueBetween(ctx context.Context, start, end string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+taskColumns+`
		FROM tasks t
		WHERE t.due_date IS NOT NULL AND t.due_date >= ? AND t.due_date <= ?
		ORDER BY t.due_date ASC, `+priorityOrder+`, t.id ASC
	`), start, end)
	if err != nil {
		return nil, fmt.Errorf("list tasks due: %w", err)
	}
	return collectTasks(rows, "due task")
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
