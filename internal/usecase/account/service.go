// Package account: профиль пользователя, настройки и онбординг.
package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vibeailife/internal/domain"
)

// Service управляет учётной записью.
type Service struct {
	users  domain.UserRepo
	events domain.BusinessMetricRepo
	now    func() time.Time
	log    zerolog.Logger
}

// NewService создаёт сервис учётных записей.
func NewService(users domain.UserRepo, events domain.BusinessMetricRepo, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		events: events,
		now:    time.Now,
		log:    logger.With().Str("component", "account").Logger(),
	}
}

// EnsureTelegramUser находит пользователя по Telegram ID или регистрирует нового.
func (s *Service) EnsureTelegramUser(ctx context.Context, profile domain.TelegramProfile) (domain.User, error) {
	if profile.TGUserID == 0 {
		return domain.User{}, fmt.Errorf("пустой telegram id: %w", domain.ErrInvalidInput)
	}
	user, created, err := s.users.UpsertByTGID(ctx, profile)
	if err != nil {
		return domain.User{}, fmt.Errorf("регистрация пользователя: %w", err)
	}
	if created {
		s.log.Info().Str("user_id", user.ID).Int64("tg_user_id", profile.TGUserID).Msg("user registered")
		meta := map[string]any{"source": "telegram", "region": string(user.Region)}
		metric := domain.BusinessMetric{
			Event:      domain.BusinessMetricEventUserRegistered,
			UserID:     user.ID,
			Metadata:   meta,
			OccurredAt: s.now(),
		}
		if err := s.events.RecordBusinessMetric(ctx, metric); err != nil {
			s.log.Warn().Err(err).Msg("business metric not recorded")
		}
	}
	return user, nil
}

// GetUser возвращает пользователя.
func (s *Service) GetUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("пользователь: %w", err)
	}
	return user, nil
}

// Settings: пользовательские настройки.
type Settings struct {
	PreferredProvider string `json:"preferredProvider"`
	Region            string `json:"region"`
	Tier              string `json:"tier"`
}

func settingsOf(u domain.User) Settings {
	provider := string(u.PreferredProvider)
	if provider == "" {
		provider = "auto"
	}
	return Settings{PreferredProvider: provider, Region: string(u.Region), Tier: string(u.Tier)}
}

// GetSettings возвращает настройки.
func (s *Service) GetSettings(ctx context.Context, userID string) (Settings, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return Settings{}, err
	}
	return settingsOf(user), nil
}

// UpdateSettings меняет предпочитаемого провайдера: openai|zhipu|auto.
func (s *Service) UpdateSettings(ctx context.Context, userID, preferredProvider string) (Settings, error) {
	provider, err := domain.ParseProviderPreference(preferredProvider)
	if err != nil {
		return Settings{}, fmt.Errorf("провайдер %q: %w", preferredProvider, err)
	}
	user, err := s.users.UpdatePreferredProvider(ctx, userID, provider)
	if err != nil {
		return Settings{}, fmt.Errorf("сохранение настроек: %w", err)
	}
	return settingsOf(user), nil
}

// CompleteOnboarding сохраняет имя и регион. Пустое имя оставляет текущее.
func (s *Service) CompleteOnboarding(ctx context.Context, userID, name, region string) (domain.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = user.Name
	}
	user, err = s.users.CompleteOnboarding(ctx, userID, name, domain.ParseRegion(region))
	if err != nil {
		return domain.User{}, fmt.Errorf("онбординг: %w", err)
	}
	return user, nil
}
