package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const activityColumns = `id, action, entity_type, entity_id, details, session_id, tokens_used, created_at`

func scanActivity(row rowScanner) (Activity, error) {
	var (
		item       Activity
		entityType sql.NullString
		entityID   sql.NullString
		details    []byte
		sessionID  sql.NullString
		tokensUsed sql.NullInt64
		createdAt  dbTime
	)
	if err := row.Scan(&item.ID, &item.Action, &entityType, &entityID, &details, &sessionID, &tokensUsed, &createdAt); err != nil {
		return Activity{}, err
	}
	item.EntityType = nullString(entityType)
	item.EntityID = nullString(entityID)
	if len(details) > 0 {
		item.Details = json.RawMessage(details)
	}
	item.SessionID = nullString(sessionID)
	item.TokensUsed = nullInt(tokensUsed)
	item.CreatedAt = createdAt.Time
	return item, nil
}

// InsertActivity appends one entry to the activity log.
func (s *SQLStore) InsertActivity(ctx context.Context, input ActivityInput) (Activity, error) {
	var details any
	if input.Details != nil {
		encoded, err := json.Marshal(input.Details)
		if err != nil {
			return Activity{}, fmt.Errorf("encode activity details: %w", err)
		}
		details = string(encoded)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO activities (action, entity_type, entity_id, details, session_id, tokens_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		input.Action,
		emptyToNil(input.EntityType),
		emptyToNil(input.EntityID),
		details,
		emptyToNil(input.SessionID),
		nullable(input.TokensUsed),
		s.dialect.timeArg(s.timestamp()),
	).Scan(&id)
	if err != nil {
		return Activity{}, fmt.Errorf("insert activity: %w", err)
	}

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+activityColumns+` FROM activities WHERE id=?`), id)
	item, err := scanActivity(row)
	if err != nil {
		return Activity{}, fmt.Errorf("reload activity: %w", err)
	}
	return item, nil
}

// ListActivities returns matching entries newest first.
func (s *SQLStore) ListActivities(ctx context.Context, filter ActivityFilter) ([]Activity, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	if limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		where []string
		args  []any
	)
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.Start != nil {
		where = append(where, "created_at >= ?")
		args = append(args, s.dialect.timeArg(*filter.Start))
	}
	if filter.End != nil {
		where = append(where, "created_at <= ?")
		args = append(args, s.dialect.timeArg(*filter.End))
	}

	query := `SELECT ` + activityColumns + ` FROM activities`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		item, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return items, nil
}

// ActivityStats aggregates the whole log. Recent24h counts entries at or
// after now minus 24 hours.
func (s *SQLStore) ActivityStats(ctx context.Context, now time.Time) (ActivityStats, error) {
	stats := ActivityStats{
		ByAction:     map[string]int64{},
		ByEntityType: map[string]int64{},
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), CAST(COALESCE(SUM(tokens_used), 0) AS BIGINT) FROM activities`).
		Scan(&stats.TotalActivities, &stats.TotalTokens); err != nil {
		return ActivityStats{}, fmt.Errorf("count activities: %w", err)
	}

	if err := s.countBy(ctx, `SELECT action, COUNT(*) FROM activities GROUP BY action`, stats.ByAction); err != nil {
		return ActivityStats{}, fmt.Errorf("count activities by action: %w", err)
	}
	if err := s.countBy(ctx, `SELECT entity_type, COUNT(*) FROM activities WHERE entity_type IS NOT NULL GROUP BY entity_type`, stats.ByEntityType); err != nil {
		return ActivityStats{}, fmt.Errorf("count activities by entity type: %w", err)
	}

	cutoff := s.dialect.timeArg(now.Add(-24 * time.Hour))
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM activities WHERE created_at >= ?`), cutoff).
		Scan(&stats.Recent24h); err != nil {
		return ActivityStats{}, fmt.Errorf("count recent activities: %w", err)
	}
	return stats, nil
}

func (s *SQLStore) countBy(ctx context.Context, query string, into map[string]int64) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return rows.Err()
}
