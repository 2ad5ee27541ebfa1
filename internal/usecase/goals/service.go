// Package goals: цели пользователя и отметки прогресса.
package goals

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vibeailife/internal/domain"
)

const (
	checkinStep   = 10
	maxTitleRunes = 100
)

// Usage учитывает созданные цели.
type Usage interface {
	AddGoal(ctx context.Context, userID string) error
}

// Service управляет целями.
type Service struct {
	repo   domain.GoalRepo
	usage  Usage
	events domain.BusinessMetricRepo
	log    zerolog.Logger
}

// NewService создаёт сервис целей.
func NewService(repo domain.GoalRepo, usage Usage, events domain.BusinessMetricRepo, logger zerolog.Logger) *Service {
	return &Service{repo: repo, usage: usage, events: events, log: logger.With().Str("component", "goals").Logger()}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleRunes {
		return "", fmt.Errorf("заголовок цели от 1 до %d символов: %w", maxTitleRunes, domain.ErrInvalidInput)
	}
	return title, nil
}

// CreateInput: новая цель.
type CreateInput struct {
	Title       string
	Description string
	Deadline    *time.Time
}

// Create создаёт цель со статусом ACTIVE.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (domain.Goal, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return domain.Goal{}, err
	}
	goal, err := s.repo.CreateGoal(ctx, domain.Goal{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Deadline:    in.Deadline,
		Status:      domain.GoalStatusActive,
	})
	if err != nil {
		return domain.Goal{}, fmt.Errorf("создание цели: %w", err)
	}
	if s.usage != nil {
		if err := s.usage.AddGoal(ctx, userID); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("goal usage not counted")
		}
	}
	if s.events != nil {
		if err := s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
			Event:      domain.BusinessMetricEventGoalCreated,
			UserID:     userID,
			Metadata:   map[string]any{"goal_id": goal.ID},
			OccurredAt: goal.CreatedAt,
		}); err != nil {
			s.log.Warn().Err(err).Msg("business metric not recorded")
		}
	}
	return goal, nil
}

// List возвращает цели, при status="": все.
func (s *Service) List(ctx context.Context, userID string, status domain.GoalStatus) ([]domain.Goal, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("статус %q: %w", status, domain.ErrInvalidInput)
	}
	goals, err := s.repo.ListGoals(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("список целей: %w", err)
	}
	return goals, nil
}

// Get возвращает цель владельца.
func (s *Service) Get(ctx context.Context, userID, goalID string) (domain.Goal, error) {
	goal, err := s.repo.GetGoal(ctx, userID, goalID)
	if err != nil {
		return domain.Goal{}, fmt.Errorf("цель: %w", err)
	}
	return goal, nil
}

// Patch: частичное обновление; nil-поля не меняются.
type Patch struct {
	Title         *string
	Description   *string
	Deadline      *time.Time
	ClearDeadline bool
	Status        *domain.GoalStatus
	Progress      *int
}

// Update применяет изменения к цели владельца.
func (s *Service) Update(ctx context.Context, userID, goalID string, p Patch) (domain.Goal, error) {
	goal, err := s.repo.GetGoal(ctx, userID, goalID)
	if err != nil {
		return domain.Goal{}, fmt.Errorf("цель: %w", err)
	}
	if p.Title != nil {
		if goal.Title, err = validateTitle(*p.Title); err != nil {
			return domain.Goal{}, err
		}
	}
	if p.Description != nil {
		goal.Description = strings.TrimSpace(*p.Description)
	}
	switch {
	case p.ClearDeadline:
		goal.Deadline = nil
	case p.Deadline != nil:
		goal.Deadline = p.Deadline
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return domain.Goal{}, fmt.Errorf("статус %q: %w", *p.Status, domain.ErrInvalidInput)
		}
		goal.Status = *p.Status
	}
	if p.Progress != nil {
		if *p.Progress < 0 || *p.Progress > 100 {
			return domain.Goal{}, fmt.Errorf("прогресс от 0 до 100: %w", domain.ErrInvalidInput)
		}
		goal.Progress = *p.Progress
	}
	updated, err := s.repo.UpdateGoal(ctx, goal)
	if err != nil {
		return domain.Goal{}, fmt.Errorf("обновление цели: %w", err)
	}
	return updated, nil
}

// Delete удаляет цель владельца.
func (s *Service) Delete(ctx context.Context, userID, goalID string) error {
	if err := s.repo.DeleteGoal(ctx, userID, goalID); err != nil {
		return fmt.Errorf("удаление цели: %w", err)
	}
	return nil
}

// Checkin добавляет отметку и повышает прогресс на 10, не выше 100.
func (s *Service) Checkin(ctx context.Context, userID, goalID, note string) (domain.GoalCheckin, int, error) {
	c, progress, err := s.repo.CheckinGoal(ctx, userID, goalID, strings.TrimSpace(note), checkinStep)
	if err != nil {
		return domain.GoalCheckin{}, 0, fmt.Errorf("отметка цели: %w", err)
	}
	return c, progress, nil
}

// ListCheckins возвращает отметки цели, новые первыми.
func (s *Service) ListCheckins(ctx context.Context, userID, goalID string) ([]domain.GoalCheckin, error) {
	list, err := s.repo.ListCheckins(ctx, userID, goalID)
	if err != nil {
		return nil, fmt.Errorf("отметки цели: %w", err)
	}
	return list, nil
}
