package vibe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vibeailife/internal/adapters/memstore"
	"vibeailife/internal/domain"
	"vibeailife/internal/usecase/dispatch"
	"vibeailife/internal/usecase/usage"
)

type fakeLLM struct {
	reply string
	err   error
	last  dispatch.Request
	calls int
}

func (f *fakeLLM) Chat(_ context.Context, req dispatch.Request, _ *dispatch.StreamOptions) (dispatch.Result, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return dispatch.Result{}, f.err
	}
	return dispatch.Result{Text: f.reply}, nil
}

type fakeQueue struct {
	jobs []domain.VibeAnalysisJob
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job domain.VibeAnalysisJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Receive(context.Context) (domain.VibeAnalysisJob, domain.AckFunc, error) {
	return domain.VibeAnalysisJob{}, nil, errors.New("not used")
}

var now = time.Date(2026, 6, 15, 20, 0, 0, 0, time.UTC)

func newService(llm LLM, queue domain.VibeQueue) (*Service, *memstore.Store) {
	store := memstore.New()
	store.SetClock(func() time.Time { return now })
	u := usage.NewService(store, time.UTC)
	u.SetClock(func() time.Time { return now })
	svc := NewService(store, u, llm, queue, store, time.UTC, zerolog.Nop())
	svc.SetClock(func() time.Time { return now })
	return svc, store
}

func TestRecordVibeInline(t *testing.T) {
	llm := &fakeLLM{reply: "抱抱你"}
	svc, store := newService(llm, nil)
	user := domain.User{ID: "u1", Tier: domain.TierFree}

	rec, err := svc.RecordVibe(context.Background(), user, Input{Mood: 2, Energy: 4, Tags: []string{"工作"}, Note: "加班"})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if rec.AIResponse != "抱抱你" {
		t.Fatalf("ожидали ответ модели, получили %q", rec.AIResponse)
	}
	msg := llm.last.Messages[0].Content
	for _, want := range []string{"心情：不好（2/5）", "精力：较高（4/5）", "标签：工作", "备注：加班"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("в запросе нет %q:\n%s", want, msg)
		}
	}
	if llm.last.Region != domain.RegionInternational || llm.last.Tier != domain.TierFree || !strings.Contains(llm.last.ExtraSystemPrompt, "50-80字") {
		t.Fatalf("неверные параметры анализа: %+v", llm.last)
	}
	stored, _ := store.GetVibe(context.Background(), rec.ID)
	if stored.AIResponse != "抱抱你" {
		t.Fatalf("анализ не сохранён")
	}
	if ev := store.Events(); len(ev) != 1 || ev[0].Event != domain.BusinessMetricEventVibeRecorded {
		t.Fatalf("ожидали событие vibe_recorded: %+v", ev)
	}
}

func TestRecordVibeDefaultFeedbackOnFailure(t *testing.T) {
	svc, _ := newService(&fakeLLM{err: errors.New("down")}, nil)
	rec, err := svc.RecordVibe(context.Background(), domain.User{ID: "u1"}, Input{Mood: 1, Energy: 1})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if rec.AIResponse != DefaultFeedback(1, 1) {
		t.Fatalf("ожидали заготовленный отклик, получили %q", rec.AIResponse)
	}
}

func TestRecordVibeQueued(t *testing.T) {
	llm := &fakeLLM{reply: "好的"}
	q := &fakeQueue{}
	svc, store := newService(llm, q)
	ctx := context.Background()

	rec, err := svc.RecordVibe(ctx, domain.User{ID: "u1"}, Input{Mood: 3, Energy: 3})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if rec.AIResponse != "" || llm.calls != 0 || len(q.jobs) != 1 || q.jobs[0].VibeID != rec.ID {
		t.Fatalf("анализ должен уйти в очередь: rec=%+v calls=%d jobs=%v", rec, llm.calls, q.jobs)
	}

	if err := svc.ProcessJob(ctx, q.jobs[0]); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := svc.ProcessJob(ctx, q.jobs[0]); err != nil {
		t.Fatalf("повторная обработка: %v", err)
	}
	if llm.calls != 1 {
		t.Fatalf("повторная доставка не должна вызывать модель: %d", llm.calls)
	}
	stored, _ := store.GetVibe(ctx, rec.ID)
	if stored.AIResponse != "好的" {
		t.Fatalf("анализ не сохранён воркером")
	}
	if err := svc.ProcessJob(ctx, domain.VibeAnalysisJob{VibeID: "gone"}); err != nil {
		t.Fatalf("удалённая отметка не ошибка: %v", err)
	}
}

func TestRecordVibeValidationAndQuota(t *testing.T) {
	svc, _ := newService(&fakeLLM{reply: "ok"}, nil)
	ctx := context.Background()
	if _, err := svc.RecordVibe(ctx, domain.User{ID: "u1"}, Input{Mood: 6, Energy: 3}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("ожидали ErrInvalidInput, получили %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := svc.RecordVibe(ctx, domain.User{ID: "u1"}, Input{Mood: 3, Energy: 3}); err != nil {
			t.Fatalf("отметка %d: %v", i+1, err)
		}
	}
	if _, err := svc.RecordVibe(ctx, domain.User{ID: "u1"}, Input{Mood: 3, Energy: 3}); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("шестая отметка FREE должна упереться в лимит: %v", err)
	}
}

func TestScoreAndDefaultFeedback(t *testing.T) {
	if got := Score(3, 4); got != 3.4 {
		t.Fatalf("Score(3,4): %v", got)
	}
	if got := Score(4.5, 2.5); got != 3.7 {
		t.Fatalf("Score(4.5,2.5): %v", got)
	}
	bands := map[[2]int]string{
		{1, 2}: "感觉你现在状态不太好",
		{5, 5}: "你的状态很不错",
		{4, 1}: "心情很好呢",
		{3, 2}: "看起来你需要补充一些能量",
		{3, 3}: "感谢你记录下此刻的状态",
	}
	for in, prefix := range bands {
		if got := DefaultFeedback(in[0], in[1]); !strings.HasPrefix(got, prefix) {
			t.Fatalf("DefaultFeedback(%d,%d): ожидали %q, получили %q", in[0], in[1], prefix, got)
		}
	}
}

func TestTrends(t *testing.T) {
	svc, store := newService(&fakeLLM{}, nil)
	ctx := context.Background()
	day := func(d, h int) time.Time { return time.Date(2026, 6, d, h, 0, 0, 0, time.UTC) }
	for _, r := range []domain.VibeRecord{
		{UserID: "u1", Mood: 1, Energy: 2, CreatedAt: day(10, 9)},
		{UserID: "u1", Mood: 2, Energy: 2, CreatedAt: day(10, 18)},
		{UserID: "u1", Mood: 4, Energy: 3, CreatedAt: day(13, 9)},
		{UserID: "u1", Mood: 5, Energy: 5, CreatedAt: day(14, 9)},
		{UserID: "u1", Mood: 5, Energy: 5, CreatedAt: day(1, 9)},
	} {
		if _, err := store.CreateVibe(ctx, r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tr, err := svc.Trends(ctx, "u1", 7)
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if tr.Trend != TrendImproving {
		t.Fatalf("ожидали improving, получили %s", tr.Trend)
	}
	if tr.AverageMood != 3 || tr.AverageEnergy != 3 {
		t.Fatalf("неожиданные средние: %+v", tr)
	}
	if len(tr.DailyAverages) != 3 || tr.DailyAverages[0].Date != "2026-06-10" || tr.DailyAverages[0].Mood != 1.5 {
		t.Fatalf("неожиданные дневные средние: %+v", tr.DailyAverages)
	}

	empty, _ := svc.Trends(ctx, "nobody", 7)
	if empty.Trend != TrendStable || empty.DailyAverages == nil {
		t.Fatalf("пустой период: %+v", empty)
	}
}

func TestHasToday(t *testing.T) {
	svc, store := newService(&fakeLLM{}, nil)
	ctx := context.Background()
	if ok, _ := svc.HasToday(ctx, "u1"); ok {
		t.Fatalf("отметок ещё нет")
	}
	_, _ = store.CreateVibe(ctx, domain.VibeRecord{UserID: "u1", Mood: 3, Energy: 3, CreatedAt: now.Add(-24 * time.Hour)})
	if ok, _ := svc.HasToday(ctx, "u1"); ok {
		t.Fatalf("вчерашняя отметка не считается")
	}
	_, _ = store.CreateVibe(ctx, domain.VibeRecord{UserID: "u1", Mood: 3, Energy: 3, CreatedAt: now})
	if ok, _ := svc.HasToday(ctx, "u1"); !ok {
		t.Fatalf("ожидали отметку за сегодня")
	}
}
