package recommend

import (
	"context"
	"testing"
	"time"

	"vibeailife/internal/adapters/memstore"
	"vibeailife/internal/domain"
)

type fortuneStub bool

func (f fortuneStub) TodayFortune(context.Context, string) (domain.FortuneContext, bool, error) {
	return domain.FortuneContext{}, bool(f), nil
}

func ids(recs []Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestRecommendationsOrderAndCap(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, _ = store.CreateVibe(ctx, domain.VibeRecord{UserID: "u1", Mood: 2, Energy: 2, Tags: []string{"工作", "压力"}, CreatedAt: now.Add(-time.Duration(i) * time.Hour)})
	}
	deadline := now.Add(72 * time.Hour)
	_, _ = store.CreateGoal(ctx, domain.Goal{UserID: "u1", Title: "a", Progress: 10, Deadline: &deadline})

	svc := NewService(store, store, fortuneStub(false))
	svc.SetClock(func() time.Time { return now })
	recs, err := svc.For(ctx, "u1")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	got := ids(recs)
	want := []string{"vibe-low-mood", "vibe-low-energy", "stress-relief", "goal-deadline", "goal-stalled"}
	if len(got) != len(want) {
		t.Fatalf("ожидали %v, получили %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ожидали %v, получили %v", want, got)
		}
	}
}

func TestRecommendationsForNewUser(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, store, fortuneStub(true))
	recs, err := svc.For(context.Background(), "u1")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "vibe-tracking-reminder" || recs[0].Priority != PriorityLow {
		t.Fatalf("новому пользователю: только напоминание: %v", ids(recs))
	}

	svc = NewService(store, store, fortuneStub(false))
	recs, _ = svc.For(context.Background(), "u1")
	if got := ids(recs); len(got) != 2 || got[0] != "fortune-reminder" {
		t.Fatalf("без предсказания ожидали напоминание первым: %v", got)
	}
}
