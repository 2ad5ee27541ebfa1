package memstore

import (
	"context"
	"time"

	"vibeailife/internal/domain"
)

// GetUsage возвращает счётчики периода.
func (s *Store) GetUsage(_ context.Context, userID, period string) (domain.UsageLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usage[usageKey{userID, period}]
	if !ok {
		return domain.UsageLimit{}, domain.ErrNotFound
	}
	return u, nil
}

// AddUsage создаёт запись периода или увеличивает счётчики.
func (s *Store) AddUsage(_ context.Context, userID, period string, resetAt time.Time, delta domain.UsageDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usageKey{userID, period}
	u, ok := s.usage[key]
	if !ok {
		u = domain.UsageLimit{UserID: userID, Period: period, ResetAt: resetAt}
	}
	u.MessageCount += delta.Messages
	u.VibeCount += delta.Vibes
	u.GoalCount += delta.Goals
	u.TokensUsed += delta.Tokens
	s.usage[key] = u
	return nil
}
