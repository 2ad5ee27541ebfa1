package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"vibeailife/internal/domain"
)

type fakeProvider struct {
	name   domain.ProviderName
	reply  string
	err    error
	calls  int
	last   domain.CompletionRequest
	chunks []string
}

func (f *fakeProvider) Name() domain.ProviderName { return f.name }

func (f *fakeProvider) Model(tier domain.Tier) string { return string(f.name) + "-" + string(tier) }

func (f *fakeProvider) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeProvider) Stream(_ context.Context, req domain.CompletionRequest, onDelta func(string)) (string, error) {
	f.calls++
	f.last = req
	for _, c := range f.chunks {
		onDelta(c)
	}
	if f.err != nil {
		return "", f.err
	}
	return strings.Join(f.chunks, ""), nil
}

func TestSelect(t *testing.T) {
	cases := []struct {
		region   domain.Region
		override domain.ProviderName
		want     domain.ProviderName
	}{
		{domain.RegionCN, "", domain.ProviderZhipu},
		{domain.RegionInternational, "", domain.ProviderOpenAI},
		{domain.RegionCN, domain.ProviderOpenAI, domain.ProviderOpenAI},
	}
	for _, tc := range cases {
		if got := Select(tc.region, tc.override); got != tc.want {
			t.Fatalf("Select(%s, %q): ожидали %s, получили %s", tc.region, tc.override, tc.want, got)
		}
	}
	if Fallback(domain.ProviderOpenAI) != domain.ProviderZhipu || Fallback(domain.ProviderZhipu) != domain.ProviderOpenAI {
		t.Fatalf("пары провайдеров должны быть взаимными")
	}
}

func TestChatBuildsSystemPrompt(t *testing.T) {
	oa := &fakeProvider{name: domain.ProviderOpenAI, reply: "好的"}
	d := New([]domain.ChatProvider{oa}, zerolog.Nop())

	res, err := d.Chat(context.Background(), Request{
		Messages:          []domain.ChatMessage{{Role: "user", Content: "你好"}},
		Region:            domain.RegionInternational,
		Tier:              domain.TierPro,
		Mode:              domain.ChatModeCoach,
		ExtraSystemPrompt: "EXTRA",
	}, nil)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res.Text != "好的" || res.Attempts != 1 || res.Model != "openai-PRO" {
		t.Fatalf("неожиданный результат: %+v", res)
	}
	sys := oa.last.Messages[0]
	if sys.Role != "system" || !strings.HasPrefix(sys.Content, "你是一位专业的成长教练") || !strings.HasSuffix(sys.Content, "\n\nEXTRA") {
		t.Fatalf("неверный системный промпт: %q", sys.Content)
	}
	if len(oa.last.Messages) != 2 || oa.last.Temperature != 0.7 || oa.last.MaxTokens != 1000 {
		t.Fatalf("неверный запрос: %+v", oa.last)
	}
}

func TestChatFallsBackExactlyOnce(t *testing.T) {
	boom := errors.New("boom")
	zp := &fakeProvider{name: domain.ProviderZhipu, err: boom}
	oa := &fakeProvider{name: domain.ProviderOpenAI, reply: "ok"}
	d := New([]domain.ChatProvider{zp, oa}, zerolog.Nop())

	res, err := d.Chat(context.Background(), Request{Region: domain.RegionCN, Tier: domain.TierFree}, nil)
	if err != nil || res.Provider != domain.ProviderOpenAI || res.Attempts != 2 {
		t.Fatalf("ожидали успех у запасного провайдера: %+v %v", res, err)
	}
	if zp.calls != 1 || oa.calls != 1 {
		t.Fatalf("ожидали по одному вызову, получили zhipu=%d openai=%d", zp.calls, oa.calls)
	}

	oa.err = errors.New("down too")
	zp.calls, oa.calls = 0, 0
	var gotErr error
	_, err = d.Chat(context.Background(), Request{Region: domain.RegionCN}, &StreamOptions{
		OnChunk: func(string) {},
		OnError: func(e error) { gotErr = e },
	})
	if err == nil || !errors.Is(err, oa.err) {
		t.Fatalf("ожидали ошибку последней попытки, получили %v", err)
	}
	if zp.calls+oa.calls != 2 {
		t.Fatalf("ожидали ровно две попытки, было %d", zp.calls+oa.calls)
	}
	if gotErr == nil {
		t.Fatalf("OnError не вызван")
	}
}

func TestChatMissingProviderCountsAsAttempt(t *testing.T) {
	oa := &fakeProvider{name: domain.ProviderOpenAI, reply: "ok"}
	d := New([]domain.ChatProvider{oa}, zerolog.Nop())
	res, err := d.Chat(context.Background(), Request{Region: domain.RegionCN}, nil)
	if err != nil || res.Provider != domain.ProviderOpenAI {
		t.Fatalf("ожидали переход к openai: %+v %v", res, err)
	}
}

func TestChatStreaming(t *testing.T) {
	oa := &fakeProvider{name: domain.ProviderOpenAI, chunks: []string{"你", "好"}}
	d := New([]domain.ChatProvider{oa}, zerolog.Nop())
	var (
		got      []string
		complete string
	)
	res, err := d.Chat(context.Background(), Request{}, &StreamOptions{
		OnChunk:    func(c string) { got = append(got, c) },
		OnComplete: func(full string) { complete = full },
	})
	if err != nil || res.Text != "你好" || complete != "你好" || len(got) != 2 {
		t.Fatalf("неожиданный поток: res=%+v chunks=%v complete=%q err=%v", res, got, complete, err)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := map[string]int{
		"":      0,
		"你好":    1,
		"ab":    1,
		"abcde": 2,
		"你好ab":  2,
		"流水不争先": 3,
	}
	for in, want := range cases {
		if got := EstimateTokens(in); got != want {
			t.Fatalf("EstimateTokens(%q): ожидали %d, получили %d", in, want, got)
		}
	}
}
