package fortune

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/metrics"
)

const skipConflictMessage = "今天已经抽过签或跳过了"

// Service управляет ежедневными предсказаниями пользователя.
type Service struct {
	repo   domain.FortuneRepo
	events domain.BusinessMetricRepo
	loc    *time.Location
	now    func() time.Time
	pick   func(n int) int
	log    zerolog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPicker подменяет выбор случайного индекса.
func WithPicker(pick func(n int) int) Option {
	return func(s *Service) { s.pick = pick }
}

// NewService создаёт сервис. loc задаёт календарь, в котором считается «сегодня».
func NewService(repo domain.FortuneRepo, events domain.BusinessMetricRepo, loc *time.Location, logger zerolog.Logger, opts ...Option) *Service {
	if loc == nil {
		loc = time.Local
	}
	s := &Service{
		repo:   repo,
		events: events,
		loc:    loc,
		now:    time.Now,
		pick:   rand.IntN,
		log:    logger.With().Str("component", "fortune").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today возвращает полночь текущего дня.
func (s *Service) Today() time.Time {
	return domain.DayStart(s.now(), s.loc)
}

// TodayFortune возвращает предсказание на сегодня. ok=false, если не вытянуто или день пропущен.
func (s *Service) TodayFortune(ctx context.Context, userID string) (domain.FortuneContext, bool, error) {
	d, err := s.repo.GetDailyFortune(ctx, userID, s.Today())
	if errors.Is(err, domain.ErrNotFound) {
		return domain.FortuneContext{}, false, nil
	}
	if err != nil {
		return domain.FortuneContext{}, false, fmt.Errorf("предсказание на сегодня: %w", err)
	}
	fc, ok := d.Context()
	return fc, ok, nil
}

// CountAppliedToday возвращает, сколько раз сегодняшнее предсказание попало в ответы.
func (s *Service) CountAppliedToday(ctx context.Context, userID string) (int, error) {
	d, err := s.repo.GetDailyFortune(ctx, userID, s.Today())
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("счётчик применений: %w", err)
	}
	return d.AppliedCount, nil
}

// IncrementApplied атомарно увеличивает счётчик применений.
func (s *Service) IncrementApplied(ctx context.Context, userID string) error {
	if err := s.repo.IncrementApplied(ctx, userID, s.Today()); err != nil {
		return fmt.Errorf("увеличение счётчика применений: %w", err)
	}
	return nil
}

// Select выбирает предсказание, не выпадавшее за последние дни. Если все исключены, повторяет выборку без исключений.
func (s *Service) Select(ctx context.Context, userID string, fortuneType domain.FortuneType) (domain.FortuneEntry, error) {
	since := s.Today().AddDate(0, 0, -domain.FortuneLookbackDays)
	recent, err := s.repo.RecentFortuneIDs(ctx, userID, since)
	if err != nil {
		return domain.FortuneEntry{}, fmt.Errorf("недавние предсказания: %w", err)
	}
	candidates, err := s.repo.ListFortuneCandidates(ctx, fortuneType, recent, domain.FortuneCandidateLimit)
	if err != nil {
		return domain.FortuneEntry{}, fmt.Errorf("кандидаты: %w", err)
	}
	if len(candidates) == 0 && len(recent) > 0 {
		candidates, err = s.repo.ListFortuneCandidates(ctx, fortuneType, nil, domain.FortuneCandidateLimit)
		if err != nil {
			return domain.FortuneEntry{}, fmt.Errorf("кандидаты без исключений: %w", err)
		}
	}
	if len(candidates) == 0 {
		return domain.FortuneEntry{}, domain.ErrNoFortuneAvailable
	}
	return candidates[s.pick(len(candidates))], nil
}

// DrawResult: результат вытягивания.
type DrawResult struct {
	Fortune  domain.FortuneEntry
	DrawDate time.Time
}

// Draw вытягивает предсказание на сегодня. Повтор за день отсекает уникальный ключ хранилища.
func (s *Service) Draw(ctx context.Context, userID string, fortuneType domain.FortuneType) (DrawResult, error) {
	today := s.Today()
	entry, err := s.Select(ctx, userID, fortuneType)
	if err != nil {
		return DrawResult{}, err
	}
	if _, err := s.repo.InsertDraw(ctx, userID, entry.ID, today); err != nil {
		if errors.Is(err, domain.ErrAlreadyDrawn) {
			metrics.ObserveFortuneDraw("already")
			return DrawResult{}, err
		}
		return DrawResult{}, fmt.Errorf("сохранение вытягивания: %w", err)
	}
	metrics.ObserveFortuneDraw("drawn")
	s.record(ctx, domain.BusinessMetricEventFortuneDrawn, userID, map[string]any{
		"fortune_id": entry.ID,
		"type":       string(entry.Type),
		"level":      string(entry.Level),
	})
	s.log.Debug().Str("user_id", userID).Str("fortune_id", entry.ID).Msg("fortune drawn")
	return DrawResult{Fortune: entry, DrawDate: today}, nil
}

// SkipResult: результат пропуска дня.
type SkipResult struct {
	Skipped bool
	Message string
}

// Skip отмечает пропуск дня. Повторный вызов: успешный no-op.
func (s *Service) Skip(ctx context.Context, userID string) (SkipResult, error) {
	inserted, err := s.repo.InsertSkip(ctx, userID, s.Today())
	if err != nil {
		return SkipResult{}, fmt.Errorf("пропуск дня: %w", err)
	}
	if !inserted {
		return SkipResult{Skipped: true, Message: skipConflictMessage}, nil
	}
	metrics.ObserveFortuneDraw("skipped")
	s.record(ctx, domain.BusinessMetricEventFortuneSkipped, userID, nil)
	return SkipResult{Skipped: true}, nil
}

// Status описывает состояние дня.
type Status struct {
	HasDrawn     bool
	CanDraw      bool
	Fortune      *domain.FortuneEntry
	AppliedCount int
	Skipped      bool
}

// Status возвращает состояние сегодняшнего предсказания.
func (s *Service) Status(ctx context.Context, userID string) (Status, error) {
	d, err := s.repo.GetDailyFortune(ctx, userID, s.Today())
	if errors.Is(err, domain.ErrNotFound) {
		return Status{CanDraw: true}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("статус дня: %w", err)
	}
	st := Status{HasDrawn: true, AppliedCount: d.AppliedCount, Skipped: d.Skipped}
	if !d.Skipped {
		st.Fortune = d.Fortune
	}
	return st, nil
}

// History возвращает вытянутые предсказания по убыванию даты.
func (s *Service) History(ctx context.Context, userID string, page domain.Page) ([]domain.DailyFortune, int, error) {
	if page.Limit <= 0 {
		page.Limit = 30
	}
	items, total, err := s.repo.ListFortuneHistory(ctx, userID, page)
	if err != nil {
		return nil, 0, fmt.Errorf("история предсказаний: %w", err)
	}
	return items, total, nil
}

// ClearToday удаляет записи начиная с сегодняшнего дня.
func (s *Service) ClearToday(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.DeleteDailyFortunes(ctx, userID, s.Today())
	if err != nil {
		return 0, fmt.Errorf("очистка записи дня: %w", err)
	}
	s.log.Info().Str("user_id", userID).Int("deleted", n).Msg("daily fortune cleared")
	return n, nil
}

// Seed загружает записи каталога.
func (s *Service) Seed(ctx context.Context, entries []domain.FortuneEntry) (int, error) {
	for i, entry := range entries {
		if entry.ID == "" || entry.Title == "" || entry.Text == "" {
			return i, fmt.Errorf("запись %d: %w", i, domain.ErrInvalidInput)
		}
		if t, err := domain.ParseFortuneType(string(entry.Type)); err != nil || t == "" {
			return i, fmt.Errorf("запись %s: неизвестная категория %q: %w", entry.ID, entry.Type, domain.ErrInvalidInput)
		}
		if err := s.repo.UpsertFortuneEntry(ctx, entry); err != nil {
			return i, fmt.Errorf("сохранение записи %s: %w", entry.ID, err)
		}
	}
	return len(entries), nil
}

func (s *Service) record(ctx context.Context, event, userID string, meta map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{Event: event, UserID: userID, Metadata: meta, OccurredAt: s.now()}); err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("business metric not recorded")
	}
}
