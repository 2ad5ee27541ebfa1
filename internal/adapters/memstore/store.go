// Package memstore хранит данные в памяти процесса с теми же контрактами
// уникальности и атомарности, что и Postgres. Используется в тестах и в dev без БД.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vibeailife/internal/domain"
)

// Store реализует репозитории домена.
type Store struct {
	mu  sync.Mutex
	now func() time.Time
	seq int64

	users         map[string]domain.User
	tgIndex       map[int64]string
	conversations map[string]domain.Conversation
	messages      map[string][]storedMessage
	library       map[string]domain.FortuneEntry
	daily         map[dayKey]domain.DailyFortune
	usage         map[usageKey]domain.UsageLimit
	vibes         []storedVibe
	goals         map[string]domain.Goal
	checkins      map[string][]domain.GoalCheckin
	subs          map[string]domain.Subscription
	payments      []domain.Payment
	events        []domain.BusinessMetric
}

type storedMessage struct {
	seq int64
	msg domain.Message
}

type storedVibe struct {
	seq int64
	rec domain.VibeRecord
}

type dayKey struct {
	userID string
	day    string
}

type usageKey struct {
	userID string
	period string
}

var (
	_ domain.UserRepo           = (*Store)(nil)
	_ domain.AdminUserRepo      = (*Store)(nil)
	_ domain.ConversationRepo   = (*Store)(nil)
	_ domain.MessageRepo        = (*Store)(nil)
	_ domain.FortuneRepo        = (*Store)(nil)
	_ domain.UsageRepo          = (*Store)(nil)
	_ domain.VibeRepo           = (*Store)(nil)
	_ domain.GoalRepo           = (*Store)(nil)
	_ domain.BillingRepo        = (*Store)(nil)
	_ domain.BusinessMetricRepo = (*Store)(nil)
)

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		now:           time.Now,
		users:         map[string]domain.User{},
		tgIndex:       map[int64]string{},
		conversations: map[string]domain.Conversation{},
		messages:      map[string][]storedMessage{},
		library:       map[string]domain.FortuneEntry{},
		daily:         map[dayKey]domain.DailyFortune{},
		usage:         map[usageKey]domain.UsageLimit{},
		goals:         map[string]domain.Goal{},
		checkins:      map[string][]domain.GoalCheckin{},
		subs:          map[string]domain.Subscription{},
	}
}

// SetClock подменяет часы.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

func dayString(t time.Time) string {
	return t.Format("2006-01-02")
}

func paginate(total int, page domain.Page, defaultLimit int) (int, int) {
	limit := page.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	from := page.Offset
	if from < 0 {
		from = 0
	}
	if from > total {
		from = total
	}
	to := from + limit
	if to > total {
		to = total
	}
	return from, to
}

// PutUser добавляет или заменяет пользователя.
func (s *Store) PutUser(u domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Tier == "" {
		u.Tier = domain.TierFree
	}
	if u.Role == "" {
		u.Role = domain.UserRoleUser
	}
	if u.Region == "" {
		u.Region = domain.RegionInternational
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.UpdatedAt = s.now()
	s.users[u.ID] = u
	if u.TGUserID != 0 {
		s.tgIndex[u.TGUserID] = u.ID
	}
	return u
}

// GetUser возвращает пользователя.
func (s *Store) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

// UpsertByTGID создаёт пользователя Telegram при первом обращении.
func (s *Store) UpsertByTGID(_ context.Context, profile domain.TelegramProfile) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.tgIndex[profile.TGUserID]; ok {
		u := s.users[id]
		if u.Name == "" {
			u.Name = profile.DisplayName()
		}
		u.UpdatedAt = s.now()
		s.users[id] = u
		return u, false, nil
	}
	region := domain.RegionInternational
	if strings.HasPrefix(strings.ToLower(profile.Locale), "zh") {
		region = domain.RegionCN
	}
	now := s.now()
	u := domain.User{
		ID:        uuid.NewString(),
		TGUserID:  profile.TGUserID,
		Name:      profile.DisplayName(),
		Region:    region,
		Tier:      domain.TierFree,
		Role:      domain.UserRoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[u.ID] = u
	s.tgIndex[u.TGUserID] = u.ID
	return u, true, nil
}

func (s *Store) updateUser(id string, fn func(*domain.User)) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = s.now()
	s.users[id] = u
	return u, nil
}

// UpdatePreferredProvider задаёт провайдера.
func (s *Store) UpdatePreferredProvider(_ context.Context, userID string, provider domain.ProviderName) (domain.User, error) {
	return s.updateUser(userID, func(u *domain.User) { u.PreferredProvider = provider })
}

// CompleteOnboarding сохраняет имя и регион.
func (s *Store) CompleteOnboarding(_ context.Context, userID, name string, region domain.Region) (domain.User, error) {
	return s.updateUser(userID, func(u *domain.User) {
		u.Name = name
		u.Region = region
		u.HasOnboarded = true
	})
}

// TouchLastActive обновляет активность.
func (s *Store) TouchLastActive(_ context.Context, userID string, at time.Time) error {
	_, err := s.updateUser(userID, func(u *domain.User) { u.LastActiveAt = &at })
	return err
}

// ListUsers ищет пользователей без учёта регистра.
func (s *Store) ListUsers(_ context.Context, filter domain.UserFilter) ([]domain.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(filter.Search))
	var all []domain.User
	for _, u := range s.users {
		if q != "" && !strings.Contains(strings.ToLower(u.Email), q) && !strings.Contains(strings.ToLower(u.Name), q) {
			continue
		}
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	from, to := paginate(len(all), filter.Page, 20)
	return all[from:to], len(all), nil
}

// UserStats считает агрегаты.
func (s *Store) UserStats(_ context.Context, activeSince time.Time) (domain.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats domain.UserStats
	for _, u := range s.users {
		stats.TotalUsers++
		if u.LastActiveAt != nil && !u.LastActiveAt.Before(activeSince) {
			stats.ActiveUsers++
		}
		if u.Tier.IsPaid() {
			stats.PaidUsers++
		}
	}
	return stats, nil
}

// SetBanned меняет флаг блокировки.
func (s *Store) SetBanned(_ context.Context, userID string, banned bool) (domain.User, error) {
	return s.updateUser(userID, func(u *domain.User) { u.IsBanned = banned })
}

// RecordBusinessMetric сохраняет событие.
func (s *Store) RecordBusinessMetric(_ context.Context, metric domain.BusinessMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = s.now()
	}
	s.events = append(s.events, metric)
	return nil
}

// Events возвращает сохранённые бизнес-события.
func (s *Store) Events() []domain.BusinessMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BusinessMetric(nil), s.events...)
}
