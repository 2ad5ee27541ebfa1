// Package llm реализует domain.ChatProvider поверх OpenAI-совместимого клиента.
package llm

import (
	"context"
	"fmt"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/config"
	"vibeailife/internal/infra/openai"
)

// Models: модели провайдера по тарифам.
type Models struct {
	Free       string
	Pro        string
	Enterprise string
}

// ForTier возвращает модель тарифа.
func (m Models) ForTier(tier domain.Tier) string {
	switch domain.ParseTier(string(tier)) {
	case domain.TierPro:
		return m.Pro
	case domain.TierEnterprise:
		return m.Enterprise
	default:
		return m.Free
	}
}

var defaultModels = map[domain.ProviderName]Models{
	domain.ProviderOpenAI: {Free: "gpt-4o-mini", Pro: "gpt-4o", Enterprise: "gpt-4o"},
	domain.ProviderZhipu:  {Free: "glm-4-flash", Pro: "glm-4", Enterprise: "glm-4-plus"},
}

type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest, onDelta func(string)) (string, error)
}

// Compatible: провайдер с OpenAI-совместимым API.
type Compatible struct {
	name   domain.ProviderName
	models Models
	client completionClient
}

var _ domain.ChatProvider = (*Compatible)(nil)

// NewCompatible собирает провайдера из готового клиента.
func NewCompatible(name domain.ProviderName, models Models, client completionClient) *Compatible {
	return &Compatible{name: name, models: models, client: client}
}

// New: единственная точка выбора адаптера по имени провайдера.
func New(name domain.ProviderName, cfg config.LLMConfig) (*Compatible, error) {
	models, ok := defaultModels[name]
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
	var key, baseURL string
	switch name {
	case domain.ProviderOpenAI:
		key, baseURL = cfg.OpenAIKey, cfg.OpenAIBaseURL
	case domain.ProviderZhipu:
		key, baseURL = cfg.ZhipuKey, cfg.ZhipuBaseURL
	}
	client := openai.NewClient(string(name), key, baseURL, cfg.Timeout)
	return NewCompatible(name, models, client), nil
}

// NewAll создаёт всех известных провайдеров. Провайдер без ключа падает на первом вызове,
// и диспетчер переходит к парному.
func NewAll(cfg config.LLMConfig) []domain.ChatProvider {
	out := make([]domain.ChatProvider, 0, len(defaultModels))
	for _, name := range []domain.ProviderName{domain.ProviderOpenAI, domain.ProviderZhipu} {
		p, err := New(name, cfg)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Name возвращает имя провайдера.
func (p *Compatible) Name() domain.ProviderName { return p.name }

// Model возвращает модель для тарифа.
func (p *Compatible) Model(tier domain.Tier) string { return p.models.ForTier(tier) }

// Complete выполняет обычный запрос.
func (p *Compatible) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, toWire(req))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm %s: empty completion", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream выполняет потоковый запрос.
func (p *Compatible) Stream(ctx context.Context, req domain.CompletionRequest, onDelta func(string)) (string, error) {
	return p.client.CreateChatCompletionStream(ctx, toWire(req), onDelta)
}

func toWire(req domain.CompletionRequest) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}
