// Package usage считает помесячное использование и проверяет лимиты тарифа.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vibeailife/internal/domain"
)

const (
	messageLimitMessage = "今日聊天次数已达上限，请升级到 Pro 版本解锁无限对话"
	vibeLimitMessage    = "今日 Vibe 记录次数已达上限，请升级到 Pro 版本解锁无限记录"
)

// Service: учёт использования.
type Service struct {
	repo domain.UsageRepo
	loc  *time.Location
	now  func() time.Time
}

// NewService создаёт сервис учёта.
func NewService(repo domain.UsageRepo, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, loc: loc, now: time.Now}
}

// SetClock подменяет часы.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) current(ctx context.Context, userID string) (domain.UsageLimit, error) {
	now := s.now()
	period := domain.UsagePeriod(now, s.loc)
	u, err := s.repo.GetUsage(ctx, userID, period)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.UsageLimit{UserID: userID, Period: period, ResetAt: domain.NextPeriodStart(now, s.loc)}, nil
	}
	if err != nil {
		return domain.UsageLimit{}, fmt.Errorf("получение счётчиков: %w", err)
	}
	return u, nil
}

// CheckMessageQuota возвращает RateLimitError, если лимит сообщений исчерпан.
func (s *Service) CheckMessageQuota(ctx context.Context, user domain.User) error {
	plan := user.Plan()
	if plan.MessagesUnlimited() {
		return nil
	}
	u, err := s.current(ctx, user.ID)
	if err != nil {
		return err
	}
	if u.MessageCount >= plan.MessageLimit {
		return &domain.RateLimitError{Resource: "messages", Message: messageLimitMessage}
	}
	return nil
}

// CheckVibeQuota возвращает RateLimitError, если лимит отметок исчерпан.
func (s *Service) CheckVibeQuota(ctx context.Context, user domain.User) error {
	plan := user.Plan()
	if plan.VibesUnlimited() {
		return nil
	}
	u, err := s.current(ctx, user.ID)
	if err != nil {
		return err
	}
	if u.VibeCount >= plan.VibeLimit {
		return &domain.RateLimitError{Resource: "vibes", Message: vibeLimitMessage}
	}
	return nil
}

func (s *Service) add(ctx context.Context, userID string, delta domain.UsageDelta) error {
	now := s.now()
	if err := s.repo.AddUsage(ctx, userID, domain.UsagePeriod(now, s.loc), domain.NextPeriodStart(now, s.loc), delta); err != nil {
		return fmt.Errorf("обновление счётчиков: %w", err)
	}
	return nil
}

// AddMessage учитывает успешный ход и токены ответа.
func (s *Service) AddMessage(ctx context.Context, userID string, tokens int) error {
	return s.add(ctx, userID, domain.UsageDelta{Messages: 1, Tokens: tokens})
}

// AddVibe учитывает отметку настроения.
func (s *Service) AddVibe(ctx context.Context, userID string) error {
	return s.add(ctx, userID, domain.UsageDelta{Vibes: 1})
}

// AddGoal учитывает созданную цель.
func (s *Service) AddGoal(ctx context.Context, userID string) error {
	return s.add(ctx, userID, domain.UsageDelta{Goals: 1})
}

// Summary: счётчики периода и лимиты тарифа. -1: без лимита.
type Summary struct {
	Period       string
	MessageCount int
	VibeCount    int
	GoalCount    int
	TokensUsed   int
	MaxMessages  int
	MaxVibes     int
	ResetAt      time.Time
}

// GetUsage возвращает использование за текущий период.
func (s *Service) GetUsage(ctx context.Context, user domain.User) (Summary, error) {
	u, err := s.current(ctx, user.ID)
	if err != nil {
		return Summary{}, err
	}
	plan := user.Plan()
	return Summary{
		Period:       u.Period,
		MessageCount: u.MessageCount,
		VibeCount:    u.VibeCount,
		GoalCount:    u.GoalCount,
		TokensUsed:   u.TokensUsed,
		MaxMessages:  domain.LimitOrUnlimited(plan.MessageLimit),
		MaxVibes:     domain.LimitOrUnlimited(plan.VibeLimit),
		ResetAt:      u.ResetAt,
	}, nil
}
