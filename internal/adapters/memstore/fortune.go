package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"vibeailife/internal/domain"
)

// UpsertFortuneEntry добавляет запись каталога.
func (s *Store) UpsertFortuneEntry(_ context.Context, entry domain.FortuneEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.library[entry.ID] = entry
	return nil
}

func (s *Store) withEntry(d domain.DailyFortune) domain.DailyFortune {
	if d.FortuneID != "" {
		if f, ok := s.library[d.FortuneID]; ok {
			entry := f
			d.Fortune = &entry
		}
	}
	return d
}

// GetDailyFortune возвращает запись за день.
func (s *Store) GetDailyFortune(_ context.Context, userID string, day time.Time) (domain.DailyFortune, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.daily[dayKey{userID, dayString(day)}]
	if !ok {
		return domain.DailyFortune{}, domain.ErrNotFound
	}
	return s.withEntry(d), nil
}

// InsertDraw вставляет вытягивание; при существующей записи ErrAlreadyDrawn.
func (s *Store) InsertDraw(_ context.Context, userID, fortuneID string, day time.Time) (domain.DailyFortune, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey{userID, dayString(day)}
	if _, exists := s.daily[key]; exists {
		return domain.DailyFortune{}, domain.ErrAlreadyDrawn
	}
	d := domain.DailyFortune{
		ID:        uuid.NewString(),
		UserID:    userID,
		FortuneID: fortuneID,
		DrawDate:  day,
		CreatedAt: s.now(),
	}
	s.daily[key] = d
	return d, nil
}

// InsertSkip отмечает пропуск; false, если запись уже есть.
func (s *Store) InsertSkip(_ context.Context, userID string, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey{userID, dayString(day)}
	if _, exists := s.daily[key]; exists {
		return false, nil
	}
	s.daily[key] = domain.DailyFortune{
		ID:        uuid.NewString(),
		UserID:    userID,
		DrawDate:  day,
		Skipped:   true,
		CreatedAt: s.now(),
	}
	return true, nil
}

// IncrementApplied атомарно увеличивает applied_count.
func (s *Store) IncrementApplied(_ context.Context, userID string, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey{userID, dayString(day)}
	d, ok := s.daily[key]
	if !ok || d.Skipped {
		return domain.ErrNotFound
	}
	d.AppliedCount++
	s.daily[key] = d
	return nil
}

// RecentFortuneIDs возвращает id предсказаний начиная с since.
func (s *Store) RecentFortuneIDs(_ context.Context, userID string, since time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := dayString(since)
	seen := map[string]struct{}{}
	var ids []string
	for key, d := range s.daily {
		if key.userID != userID || key.day < from || d.FortuneID == "" {
			continue
		}
		if _, dup := seen[d.FortuneID]; dup {
			continue
		}
		seen[d.FortuneID] = struct{}{}
		ids = append(ids, d.FortuneID)
	}
	return ids, nil
}

// ListFortuneCandidates выбирает кандидатов.
func (s *Store) ListFortuneCandidates(_ context.Context, fortuneType domain.FortuneType, exclude []string, limit int) ([]domain.FortuneEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	var out []domain.FortuneEntry
	for _, f := range s.library {
		if fortuneType != "" && f.Type != fortuneType {
			continue
		}
		if _, ok := skip[f.ID]; ok {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListFortuneHistory возвращает вытянутые предсказания по убыванию даты.
func (s *Store) ListFortuneHistory(_ context.Context, userID string, page domain.Page) ([]domain.DailyFortune, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.DailyFortune
	for key, d := range s.daily {
		if key.userID == userID && !d.Skipped {
			all = append(all, s.withEntry(d))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].DrawDate.After(all[j].DrawDate) })
	from, to := paginate(len(all), page, 30)
	return all[from:to], len(all), nil
}

// DeleteDailyFortunes удаляет записи начиная с since.
func (s *Store) DeleteDailyFortunes(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := dayString(since)
	n := 0
	for key := range s.daily {
		if key.userID == userID && key.day >= from {
			delete(s.daily, key)
			n++
		}
	}
	return n, nil
}

// PutDailyFortune кладёт готовую запись за день, заменяя существующую.
func (s *Store) PutDailyFortune(d domain.DailyFortune) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Fortune = nil
	s.daily[dayKey{d.UserID, dayString(d.DrawDate)}] = d
}
