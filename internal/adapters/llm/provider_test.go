package llm

import (
	"context"
	"testing"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/config"
	"vibeailife/internal/infra/openai"
)

type fakeClient struct {
	got   openai.ChatCompletionRequest
	empty bool
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.got = req
	if f.empty {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Role: "assistant", Content: "ok"}}}}, nil
}

func (f *fakeClient) CreateChatCompletionStream(_ context.Context, req openai.ChatCompletionRequest, onDelta func(string)) (string, error) {
	f.got = req
	onDelta("o")
	onDelta("k")
	return "ok", nil
}

func TestModelsByTier(t *testing.T) {
	cases := map[domain.ProviderName]map[domain.Tier]string{
		domain.ProviderOpenAI: {domain.TierFree: "gpt-4o-mini", domain.TierPro: "gpt-4o", domain.TierEnterprise: "gpt-4o"},
		domain.ProviderZhipu:  {domain.TierFree: "glm-4-flash", domain.TierPro: "glm-4", domain.TierEnterprise: "glm-4-plus"},
	}
	for name, tiers := range cases {
		p, err := New(name, config.LLMConfig{})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		for tier, want := range tiers {
			if got := p.Model(tier); got != want {
				t.Fatalf("%s/%s: ожидали %s, получили %s", name, tier, want, got)
			}
		}
	}
	if _, err := New("claude", config.LLMConfig{}); err == nil {
		t.Fatalf("ожидали ошибку для неизвестного провайдера")
	}
}

func TestCompatibleMapsRequest(t *testing.T) {
	fc := &fakeClient{}
	p := NewCompatible(domain.ProviderZhipu, defaultModels[domain.ProviderZhipu], fc)
	req := domain.CompletionRequest{
		Model:       "glm-4",
		Messages:    []domain.ChatMessage{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}},
		Temperature: 0.7,
		MaxTokens:   1000,
	}
	var chunks []string
	full, err := p.Stream(context.Background(), req, func(s string) { chunks = append(chunks, s) })
	if err != nil || full != "ok" || len(chunks) != 2 {
		t.Fatalf("неожиданный поток: %q %v %v", full, chunks, err)
	}
	if fc.got.Model != "glm-4" || len(fc.got.Messages) != 2 || fc.got.MaxTokens != 1000 {
		t.Fatalf("запрос передан неверно: %+v", fc.got)
	}
	if text, err := p.Complete(context.Background(), req); err != nil || text != "ok" {
		t.Fatalf("complete: %q %v", text, err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	p := NewCompatible(domain.ProviderOpenAI, defaultModels[domain.ProviderOpenAI], &fakeClient{empty: true})
	text, err := p.Complete(context.Background(), domain.CompletionRequest{Model: "gpt-4o-mini"})
	if err == nil || text != "" {
		t.Fatalf("ожидали ошибку на пустом ответе, получили %q %v", text, err)
	}
}
