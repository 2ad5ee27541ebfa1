package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vibeailife/internal/domain"
)

func TestInsertDrawUniquePerDay(t *testing.T) {
	ctx := context.Background()
	s := New()
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		already int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.InsertDraw(ctx, "u1", "f1", day)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, domain.ErrAlreadyDrawn):
				already++
			default:
				t.Errorf("неожиданная ошибка: %v", err)
			}
		}()
	}
	wg.Wait()
	if won != 1 || already != 19 {
		t.Fatalf("ожидали одну победу и 19 конфликтов, получили %d/%d", won, already)
	}

	inserted, err := s.InsertSkip(ctx, "u1", day)
	if err != nil || inserted {
		t.Fatalf("пропуск после вытягивания должен быть no-op: %v %v", inserted, err)
	}
	d, err := s.GetDailyFortune(ctx, "u1", day)
	if err != nil || d.Skipped || d.FortuneID != "f1" {
		t.Fatalf("запись дня изменилась: %+v %v", d, err)
	}
}

func TestRecentMessagesOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	conv, _ := s.CreateConversation(ctx, domain.Conversation{UserID: "u1", Mode: domain.ChatModeFriend})
	for i := 0; i < 5; i++ {
		_, _ = s.AppendMessage(ctx, domain.Message{ConversationID: conv.ID, Role: domain.MessageRoleUser, Content: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}
	recent, _ := s.RecentMessages(ctx, conv.ID, 2)
	if len(recent) != 2 || recent[0].Content != "e" || recent[1].Content != "d" {
		t.Fatalf("ожидали e,d, получили %+v", recent)
	}
	list, _ := s.ListMessages(ctx, conv.ID, 50)
	if len(list) != 5 || list[0].Content != "a" {
		t.Fatalf("ожидали возрастающий порядок: %+v", list)
	}
}

func TestCheckinGoalCapsProgress(t *testing.T) {
	ctx := context.Background()
	s := New()
	g, _ := s.CreateGoal(ctx, domain.Goal{UserID: "u1", Title: "run", Progress: 95})
	_, progress, err := s.CheckinGoal(ctx, "u1", g.ID, "", 10)
	if err != nil || progress != 100 {
		t.Fatalf("прогресс должен упереться в 100: %d %v", progress, err)
	}
	if _, _, err := s.CheckinGoal(ctx, "u2", g.ID, "", 10); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("чужая цель должна быть не найдена: %v", err)
	}
}

func TestCacheOnce(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	calls := 0
	fail := errors.New("boom")
	if err := c.Once(ctx, "k", time.Minute, func() error { calls++; return fail }); !errors.Is(err, fail) {
		t.Fatalf("ожидали ошибку fn: %v", err)
	}
	_ = c.Once(ctx, "k", time.Minute, func() error { calls++; return nil })
	_ = c.Once(ctx, "k", time.Minute, func() error { calls++; return nil })
	if calls != 2 {
		t.Fatalf("после ошибки ключ должен освобождаться, вызовов %d", calls)
	}

	now := time.Now()
	c.now = func() time.Time { return now }
	_ = c.Set(ctx, "v", []byte("x"), time.Second)
	now = now.Add(2 * time.Second)
	if _, err := c.Get(ctx, "v"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("просроченное значение должно исчезать: %v", err)
	}
}
