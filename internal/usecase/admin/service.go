// Package admin: статистика и модерация для панели администратора.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vibeailife/internal/domain"
)

const (
	statsCacheKey = "admin:stats"
	defaultLimit  = 20
	maxLimit      = 100
)

// Service обслуживает админку.
type Service struct {
	users    domain.AdminUserRepo
	payments domain.BillingRepo
	cache    domain.Cache
	ttl      time.Duration
	loc      *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

// NewService создаёт сервис админки. statsTTL: время жизни кэша статистики.
func NewService(users domain.AdminUserRepo, payments domain.BillingRepo, cache domain.Cache, statsTTL time.Duration, loc *time.Location, logger zerolog.Logger) *Service {
	return &Service{
		users:    users,
		payments: payments,
		cache:    cache,
		ttl:      statsTTL,
		loc:      loc,
		now:      time.Now,
		log:      logger.With().Str("component", "admin").Logger(),
	}
}

// SetClock подменяет часы.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Stats возвращает агрегаты по пользователям. Активные: заходившие сегодня.
func (s *Service) Stats(ctx context.Context) (domain.UserStats, error) {
	if raw, err := s.cache.Get(ctx, statsCacheKey); err == nil {
		var cached domain.UserStats
		if json.Unmarshal(raw, &cached) == nil {
			return cached, nil
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.log.Warn().Err(err).Msg("stats cache read failed")
	}

	stats, err := s.users.UserStats(ctx, domain.DayStart(s.now(), s.loc))
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("статистика пользователей: %w", err)
	}
	if stats.TotalUsers > 0 {
		stats.ConversionRate = float64(stats.PaidUsers) / float64(stats.TotalUsers)
	}
	if raw, err := json.Marshal(stats); err == nil {
		if err := s.cache.Set(ctx, statsCacheKey, raw, s.ttl); err != nil {
			s.log.Warn().Err(err).Msg("stats cache write failed")
		}
	}
	return stats, nil
}

// PageFromQuery переводит номер страницы с единицы в смещение.
func PageFromQuery(page, limit int) domain.Page {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	if page < 1 {
		page = 1
	}
	return domain.Page{Limit: limit, Offset: (page - 1) * limit}
}

// ListUsers ищет пользователей по email или имени.
func (s *Service) ListUsers(ctx context.Context, search string, page domain.Page) ([]domain.User, int, error) {
	users, total, err := s.users.ListUsers(ctx, domain.UserFilter{Search: strings.TrimSpace(search), Page: page})
	if err != nil {
		return nil, 0, fmt.Errorf("список пользователей: %w", err)
	}
	return users, total, nil
}

// SetBanned блокирует или разблокирует пользователя.
func (s *Service) SetBanned(ctx context.Context, userID string, banned bool) (domain.User, error) {
	user, err := s.users.SetBanned(ctx, userID, banned)
	if err != nil {
		return domain.User{}, fmt.Errorf("блокировка пользователя: %w", err)
	}
	s.log.Info().Str("user_id", userID).Bool("banned", banned).Msg("user ban updated")
	return user, nil
}

// ListPayments возвращает платежи. Статус ALL или пустой: без фильтра.
func (s *Service) ListPayments(ctx context.Context, status string, page domain.Page) ([]domain.Payment, int, error) {
	filter := domain.PaymentFilter{Page: page}
	switch st := domain.PaymentStatus(strings.ToUpper(strings.TrimSpace(status))); st {
	case "", "ALL":
	case domain.PaymentPending, domain.PaymentSucceeded, domain.PaymentFailed, domain.PaymentRefunded:
		filter.Status = st
	default:
		return nil, 0, fmt.Errorf("статус платежа %q: %w", status, domain.ErrInvalidInput)
	}
	payments, total, err := s.payments.ListPayments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("список платежей: %w", err)
	}
	return payments, total, nil
}
