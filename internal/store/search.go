package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

const maxSearchTerms = 16

// SearchTerms splits free text into lower-cased letter/digit tokens. Every
// other rune separates tokens, so no FTS operator syntax survives.
func SearchTerms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) > maxSearchTerms {
		fields = fields[:maxSearchTerms]
	}
	return fields
}

// ftsMatch builds an FTS5 expression requiring every term as a prefix.
func ftsMatch(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+term+`"*`)
	}
	return strings.Join(quoted, " ")
}

// tsQuery builds the Postgres equivalent of ftsMatch.
func tsQuery(terms []string) string {
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		parts = append(parts, term+":*")
	}
	return strings.Join(parts, " & ")
}

// SearchTasks ranks tasks whose title, description or category contain
// every term of text. Text without any terms matches nothing.
func (s *SQLStore) SearchTasks(ctx context.Context, text string, limit int) ([]SearchHit, error) {
	terms := SearchTerms(text)
	if len(terms) == 0 {
		return []SearchHit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var (
		query string
		arg   string
	)
	switch s.dialect {
	case DialectPostgres:
		query = `
			SELECT ` + taskColumns + `, -ts_rank(t.search_vector, query) AS rank
			FROM tasks t, to_tsquery('english', ?) query
			WHERE t.search_vector @@ query
			ORDER BY rank ASC, t.updated_at DESC
			LIMIT ?`
		arg = tsQuery(terms)
	default:
		query = `
			SELECT ` + taskColumns + `, fts.rank
			FROM tasks_fts fts
			JOIN tasks t ON t.id = fts.rowid
			WHERE tasks_fts MATCH ?
			ORDER BY fts.rank
			LIMIT ?`
		arg = ftsMatch(terms)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), arg, limit)
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	defer rows.Close()

	hits := make([]SearchHit, 0)
	for rows.Next() {
		var hit SearchHit
		task, err := scanTask(rows, &hit.Rank)
		if err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hit.Task = task
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return hits, nil
}

// RebuildSearchIndex regenerates the FTS5 index from the tasks table.
// Postgres keeps its generated tsvector column current on its own.
func (s *SQLStore) RebuildSearchIndex(ctx context.Context) error {
	if s.dialect != DialectSQLite {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO tasks_fts(tasks_fts) VALUES('rebuild')`); err != nil {
		return fmt.Errorf("rebuild search index: %w", err)
	}
	return nil
}
