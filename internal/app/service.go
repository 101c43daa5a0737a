package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"jarvis/board/internal/auth"
	"jarvis/board/internal/config"
	"jarvis/board/internal/dates"
	"jarvis/board/internal/search"
	"jarvis/board/internal/store"
	"jarvis/board/internal/util"
)

const sessionSubject = "owner"

type dataStore interface {
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, error)
	GetTask(ctx context.Context, id int64) (store.Task, error)
	CreateTask(ctx context.Context, task store.Task) (store.Task, error)
	UpdateTask(ctx context.Context, id int64, patch store.TaskPatch) (store.Task, error)
	DeleteTask(ctx context.Context, id int64) (bool, error)
	TasksDueBetween(ctx context.Context, start, end string) ([]store.Task, error)
	InsertActivity(ctx context.Context, input store.ActivityInput) (store.Activity, error)
	ListActivities(ctx context.Context, filter store.ActivityFilter) ([]store.Activity, error)
	ActivityStats(ctx context.Context, now time.Time) (store.ActivityStats, error)
	SearchTasks(ctx context.Context, text string, limit int) ([]store.SearchHit, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveSession(ctx context.Context, tokenHash string, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string) error
	RevokeSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	search   *search.Service
	tokens   auth.AllowList
	logger   *zap.Logger
	now      func() time.Time
}

// Session is an issued login cookie value.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// TaskInput is the body accepted when creating a task. Empty category,
// priority and status fall back to the defaults.
type TaskInput struct {
	Title          string                  `json:"title"`
	Description    *string                 `json:"description"`
	Category       *string                 `json:"category"`
	Priority       *string                 `json:"priority"`
	Status         *string                 `json:"status"`
	Source         *string                 `json:"source"`
	DueDate        *string                 `json:"due_date"`
	EstimatedHours store.Optional[float64] `json:"estimated_hours"`
	ActualHours    store.Optional[float64] `json:"actual_hours"`
}

// New wires the service. searchService may be nil, in which case search
// runs directly against the database index.
func New(cfg config.Config, data dataStore, sessions sessionStore, searchService *search.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if searchService == nil {
		searchService = search.NewService(nil, data, logger)
	}
	return &Service{
		cfg:      cfg,
		store:    data,
		sessions: sessions,
		search:   searchService,
		tokens:   auth.NewAllowList(cfg.APITokens),
		logger:   logger.Named("app"),
		now:      time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap pushes every task to the external search index, if one is up.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.search.Engine() != search.EngineMeili {
		return nil
	}
	count, err := s.search.ReindexAll(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap search index: %w", err)
	}
	s.logger.Info("search index bootstrapped", zap.Int("tasks", count))
	return nil
}

func (s *Service) ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, error) {
	return s.store.ListTasks(ctx, filter)
}

func (s *Service) GetTask(ctx context.Context, id int64) (store.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Task{}, notFoundError("Task not found")
	}
	return task, err
}

func (s *Service) CreateTask(ctx context.Context, input TaskInput) (store.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Task{}, validationError("Title is required")
	}
	input.Category = blankToNil(input.Category)
	input.Priority = blankToNil(input.Priority)
	input.Status = blankToNil(input.Status)
	if err := validateEnums(input.Category, input.Priority, input.Status); err != nil {
		return store.Task{}, err
	}

	task := store.Task{
		Title:          title,
		Description:    strings.TrimSpace(deref(input.Description)),
		Category:       deref(input.Category),
		Priority:       deref(input.Priority),
		Status:         deref(input.Status),
		Source:         strings.TrimSpace(deref(input.Source)),
		EstimatedHours: input.EstimatedHours.Value,
		ActualHours:    input.ActualHours.Value,
	}
	if input.DueDate != nil && strings.TrimSpace(*input.DueDate) != "" {
		due, err := s.normalizeDue(*input.DueDate)
		if err != nil {
			return store.Task{}, err
		}
		task.DueDate = &due
	}

	created, err := s.store.CreateTask(ctx, task)
	if err != nil {
		return store.Task{}, err
	}
	s.record(ctx, "task.create", created.ID, map[string]any{
		"title":    created.Title,
		"category": created.Category,
		"priority": created.Priority,
		"status":   created.Status,
	})
	s.search.IndexTask(created)
	return created, nil
}

func (s *Service) UpdateTask(ctx context.Context, id int64, patch store.TaskPatch) (store.Task, error) {
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		if trimmed == "" {
			return store.Task{}, validationError("Title is required")
		}
		patch.Title = &trimmed
	}
	if err := validateEnums(patch.Category, patch.Priority, patch.Status); err != nil {
		return store.Task{}, err
	}
	if patch.DueDate.Set && patch.DueDate.Value != nil {
		if strings.TrimSpace(*patch.DueDate.Value) == "" {
			patch.DueDate = store.Null[string]()
		} else {
			due, err := s.normalizeDue(*patch.DueDate.Value)
			if err != nil {
				return store.Task{}, err
			}
			patch.DueDate = store.Some(due)
		}
	}

	before, err := s.GetTask(ctx, id)
	if err != nil {
		return store.Task{}, err
	}
	updated, err := s.store.UpdateTask(ctx, id, patch)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Task{}, notFoundError("Task not found")
	}
	if err != nil {
		return store.Task{}, err
	}

	if before.Status != updated.Status {
		s.record(ctx, "task.status_change", id, map[string]any{
			"from":  before.Status,
			"to":    updated.Status,
			"title": updated.Title,
		})
	} else {
		s.record(ctx, "task.update", id, map[string]any{
			"fields": store.ChangedFields(before, updated),
			"title":  updated.Title,
		})
	}
	s.search.IndexTask(updated)
	return updated, nil
}

func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	before, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.store.DeleteTask(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return notFoundError("Task not found")
	}
	s.record(ctx, "task.delete", id, map[string]any{"title": before.Title})
	s.search.DeleteTask(id)
	return nil
}

// Calendar lists tasks due within [start, end], both YYYY-MM-DD.
func (s *Service) Calendar(ctx context.Context, start, end string) ([]store.Task, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return nil, validationError("start and end are required")
	}
	from, err := dates.ParseDay(start)
	if err != nil {
		return nil, validationError("start must be a YYYY-MM-DD date")
	}
	to, err := dates.ParseDay(end)
	if err != nil {
		return nil, validationError("end must be a YYYY-MM-DD date")
	}
	if to.Before(from) {
		return []store.Task{}, nil
	}
	return s.store.TasksDueBetween(ctx, start, end)
}

func (s *Service) ListActivities(ctx context.Context, filter store.ActivityFilter) ([]store.Activity, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, validationError("limit and offset must not be negative")
	}
	return s.store.ListActivities(ctx, filter)
}

func (s *Service) RecordActivity(ctx context.Context, input store.ActivityInput) (store.Activity, error) {
	input.Action = strings.TrimSpace(input.Action)
	if input.Action == "" {
		return store.Activity{}, validationError("Action is required")
	}
	if input.TokensUsed != nil && *input.TokensUsed < 0 {
		return store.Activity{}, validationError("tokens_used must not be negative")
	}
	return s.store.InsertActivity(ctx, input)
}

func (s *Service) ActivityStats(ctx context.Context) (store.ActivityStats, error) {
	return s.store.ActivityStats(ctx, s.now())
}

func (s *Service) Search(ctx context.Context, query string, limit int) (search.Response, error) {
	if strings.TrimSpace(query) == "" {
		return search.Response{}, validationError("Query parameter q is required")
	}
	return s.search.Search(ctx, query, limit)
}

// AllowsAPIToken reports whether token is on the configured bearer allow-list.
func (s *Service) AllowsAPIToken(token string) bool {
	return s.tokens.Allows(token)
}

func (s *Service) Login(ctx context.Context, password string) (Session, error) {
	if err := auth.CheckPassword(s.cfg.AuthPass, password); err != nil {
		return Session{}, unauthorizedError("Invalid password")
	}
	return s.issueSession(ctx)
}

func (s *Service) issueSession(ctx context.Context) (Session, error) {
	jti := util.NewID("sess")
	expiresAt := s.now().Add(s.cfg.SessionTTL).UTC()
	token, err := auth.IssueToken([]byte(s.cfg.SessionSecret), auth.Claims{
		Sub: sessionSubject,
		JTI: jti,
		Exp: expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveSession(ctx, auth.HashToken(jti), expiresAt); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	return Session{Token: token, ExpiresAt: expiresAt}, nil
}

// SessionFromCookie verifies a cookie value and that its session was not revoked.
func (s *Service) SessionFromCookie(ctx context.Context, token string) (auth.Claims, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return auth.Claims{}, err
	}
	if err := s.sessions.LookupSession(ctx, auth.HashToken(claims.JTI)); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return auth.Claims{}, auth.ErrInvalidToken
		}
		return auth.Claims{}, err
	}
	return claims, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return nil
	}
	return s.sessions.RevokeSession(ctx, auth.HashToken(claims.JTI))
}

func (s *Service) normalizeDue(value string) (string, error) {
	due, err := dates.NormalizeDue(value, s.now())
	if err != nil {
		return "", validationError(fmt.Sprintf("Could not understand due date %q", value))
	}
	return due, nil
}

// record appends an activity for a task. Failures are logged and swallowed.
func (s *Service) record(ctx context.Context, action string, taskID int64, details map[string]any) {
	_, err := s.store.InsertActivity(ctx, store.ActivityInput{
		Action:     action,
		EntityType: "task",
		EntityID:   strconv.FormatInt(taskID, 10),
		Details:    details,
	})
	if err != nil {
		s.logger.Warn("record activity", zap.String("action", action), zap.Int64("task_id", taskID), zap.Error(err))
	}
}

func validateEnums(category, priority, status *string) error {
	if category != nil && !store.ValidCategory(*category) {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid category", map[string]any{"allowed": store.Categories})
	}
	if priority != nil && !store.ValidPriority(*priority) {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid priority", map[string]any{"allowed": store.Priorities})
	}
	if status != nil && !store.ValidStatus(*status) {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid status", map[string]any{"allowed": store.Statuses})
	}
	return nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func blankToNil(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	return value
}
