package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"vibeailife/internal/domain"
)

// CreateGoal создаёт цель.
func (s *Store) CreateGoal(_ context.Context, goal domain.Goal) (domain.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	if goal.Status == "" {
		goal.Status = domain.GoalStatusActive
	}
	now := s.now()
	goal.CreatedAt = now
	goal.UpdatedAt = now
	s.goals[goal.ID] = goal
	return goal, nil
}

// GetGoal возвращает цель владельца.
func (s *Store) GetGoal(_ context.Context, userID, goalID string) (domain.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[goalID]
	if !ok || g.UserID != userID {
		return domain.Goal{}, domain.ErrNotFound
	}
	return g, nil
}

// ListGoals возвращает цели по убыванию created_at.
func (s *Store) ListGoals(_ context.Context, userID string, status domain.GoalStatus) ([]domain.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Goal
	for _, g := range s.goals {
		if g.UserID != userID || (status != "" && g.Status != status) {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateGoal сохраняет цель.
func (s *Store) UpdateGoal(_ context.Context, goal domain.Goal) (domain.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.goals[goal.ID]
	if !ok || cur.UserID != goal.UserID {
		return domain.Goal{}, domain.ErrNotFound
	}
	goal.CreatedAt = cur.CreatedAt
	goal.UpdatedAt = s.now()
	s.goals[goal.ID] = goal
	return goal, nil
}

// DeleteGoal удаляет цель.
func (s *Store) DeleteGoal(_ context.Context, userID, goalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[goalID]
	if !ok || g.UserID != userID {
		return domain.ErrNotFound
	}
	delete(s.goals, goalID)
	delete(s.checkins, goalID)
	return nil
}

// CheckinGoal повышает прогресс на step, не выше 100.
func (s *Store) CheckinGoal(_ context.Context, userID, goalID, note string, step int) (domain.GoalCheckin, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[goalID]
	if !ok || g.UserID != userID {
		return domain.GoalCheckin{}, 0, domain.ErrNotFound
	}
	g.Progress = min(g.Progress+step, 100)
	g.UpdatedAt = s.now()
	s.goals[goalID] = g
	c := domain.GoalCheckin{ID: uuid.NewString(), GoalID: goalID, Note: note, CreatedAt: s.now()}
	s.checkins[goalID] = append(s.checkins[goalID], c)
	return c, g.Progress, nil
}

// ListCheckins возвращает отметки, новые первыми.
func (s *Store) ListCheckins(_ context.Context, userID, goalID string) ([]domain.GoalCheckin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[goalID]
	if !ok || g.UserID != userID {
		return nil, domain.ErrNotFound
	}
	list := s.checkins[goalID]
	out := make([]domain.GoalCheckin, len(list))
	for i, c := range list {
		out[len(list)-1-i] = c
	}
	return out, nil
}
