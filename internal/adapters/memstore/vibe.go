package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"vibeailife/internal/domain"
)

// CreateVibe сохраняет отметку.
func (s *Store) CreateVibe(_ context.Context, rec domain.VibeRecord) (domain.VibeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.vibes = append(s.vibes, storedVibe{seq: s.next(), rec: rec})
	return rec, nil
}

// GetVibe возвращает отметку.
func (s *Store) GetVibe(_ context.Context, id string) (domain.VibeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.vibes {
		if v.rec.ID == id {
			return v.rec, nil
		}
	}
	return domain.VibeRecord{}, domain.ErrNotFound
}

// SetVibeAnalysis сохраняет ответ ассистента.
func (s *Store) SetVibeAnalysis(_ context.Context, id, analysis string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.vibes {
		if s.vibes[i].rec.ID == id {
			s.vibes[i].rec.AIResponse = analysis
			return nil
		}
	}
	return domain.ErrNotFound
}

// userVibes возвращает отметки пользователя, новые первыми.
func (s *Store) userVibes(userID string) []domain.VibeRecord {
	var list []storedVibe
	for _, v := range s.vibes {
		if v.rec.UserID == userID {
			list = append(list, v)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].rec.CreatedAt.Equal(list[j].rec.CreatedAt) {
			return list[i].rec.CreatedAt.After(list[j].rec.CreatedAt)
		}
		return list[i].seq > list[j].seq
	})
	out := make([]domain.VibeRecord, len(list))
	for i, v := range list {
		out[i] = v.rec
	}
	return out
}

// ListVibes возвращает страницу отметок.
func (s *Store) ListVibes(_ context.Context, userID string, page domain.Page) ([]domain.VibeRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.userVibes(userID)
	from, to := paginate(len(all), page, 30)
	return all[from:to], len(all), nil
}

// VibesSince возвращает отметки начиная с since по возрастанию.
func (s *Store) VibesSince(_ context.Context, userID string, since time.Time) ([]domain.VibeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.userVibes(userID)
	var out []domain.VibeRecord
	for i := len(all) - 1; i >= 0; i-- {
		if !all[i].CreatedAt.Before(since) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// RecentVibes возвращает последние limit отметок.
func (s *Store) RecentVibes(_ context.Context, userID string, limit int) ([]domain.VibeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.userVibes(userID)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
