package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jarvis/board/internal/store"
)

const catchUpTimeout = time.Minute

// Service is the facade that tries Meilisearch first and falls back to the
// database full-text index.
type Service struct {
	meili  *Meili
	tasks  TaskSource
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, tasks TaskSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{meili: meili, tasks: tasks, logger: logger.Named("search")}
	if meili != nil {
		meili.OnRecover(s.catchUp)
	}
	return s
}

// catchUp resends every task after an outage, when index pushes were skipped.
func (s *Service) catchUp() error {
	ctx, cancel := context.WithTimeout(context.Background(), catchUpTimeout)
	defer cancel()
	count, err := s.pushAll(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("reindexed tasks after meilisearch recovery", zap.Int("count", count))
	return nil
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search ranks tasks matching every term of text.
func (s *Service) Search(ctx context.Context, text string, limit int) (Response, error) {
	limit = ClampLimit(limit)
	resp := Response{Results: []store.SearchHit{}, Query: text, Engine: EngineDatabase}

	terms := store.SearchTerms(text)
	if len(terms) == 0 {
		return resp, nil
	}

	if s.meiliReady() {
		hits, total, err := s.meili.Search(terms, limit)
		if err == nil {
			results, err := s.hydrate(ctx, hits)
			if err == nil {
				resp.Results = results
				resp.Total = max(total, len(results))
				resp.Engine = EngineMeili
				return resp, nil
			}
			s.logger.Warn("hydrate meilisearch hits, falling back", zap.Error(err))
		} else {
			s.logger.Warn("meilisearch error, falling back", zap.Error(err))
		}
	}

	hits, err := s.tasks.SearchTasks(ctx, text, limit)
	if err != nil {
		return Response{}, fmt.Errorf("search tasks: %w", err)
	}
	resp.Results = hits
	resp.Total = len(hits)
	return resp, nil
}

// hydrate loads the tasks behind index hits in hit order. Hits for tasks
// that no longer exist are skipped.
func (s *Service) hydrate(ctx context.Context, hits []meiliHit) ([]store.SearchHit, error) {
	results := make([]store.SearchHit, 0, len(hits))
	for _, hit := range hits {
		task, err := s.tasks.GetTask(ctx, hit.ID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, store.SearchHit{Task: task, Rank: -hit.Score})
	}
	return results, nil
}

// IndexTask indexes a task (fire-and-forget to Meilisearch).
func (s *Service) IndexTask(task store.Task) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.IndexTasks([]TaskDocument{documentFor(task)}); err != nil {
			s.logger.Warn("index task", zap.Int64("task_id", task.ID), zap.Error(err))
		}
	}()
}

// DeleteTask removes a task from the search index (fire-and-forget).
func (s *Service) DeleteTask(id int64) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.DeleteTask(id); err != nil {
			s.logger.Warn("delete task from index", zap.Int64("task_id", id), zap.Error(err))
		}
	}()
}

// ReindexAll pushes every stored task to Meilisearch. It returns the number
// of tasks sent, or zero when Meilisearch is not in use.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	if !s.meiliReady() {
		return 0, nil
	}
	return s.pushAll(ctx)
}

func (s *Service) pushAll(ctx context.Context) (int, error) {
	tasks, err := s.tasks.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		return 0, fmt.Errorf("load tasks for reindex: %w", err)
	}
	documents := make([]TaskDocument, 0, len(tasks))
	for _, task := range tasks {
		documents = append(documents, documentFor(task))
	}
	if err := s.meili.IndexTasks(documents); err != nil {
		return 0, fmt.Errorf("reindex tasks: %w", err)
	}
	return len(documents), nil
}

// Engine reports which engine Search would try first.
func (s *Service) Engine() string {
	if s.meiliReady() {
		return EngineMeili
	}
	return EngineDatabase
}

// Close stops the Meilisearch health monitor, if any.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}
