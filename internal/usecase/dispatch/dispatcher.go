// Package dispatch выбирает LLM-провайдера и выполняет запрос с одной попыткой у парного провайдера.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/metrics"
	"vibeailife/internal/infra/openai"
	"vibeailife/internal/usecase/prompt"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

var fallbackPairs = map[domain.ProviderName]domain.ProviderName{
	domain.ProviderOpenAI: domain.ProviderZhipu,
	domain.ProviderZhipu:  domain.ProviderOpenAI,
}

// Fallback возвращает парного провайдера.
func Fallback(name domain.ProviderName) domain.ProviderName {
	return fallbackPairs[name]
}

// Select выбирает основного провайдера: явный выбор, иначе по региону.
func Select(region domain.Region, override domain.ProviderName) domain.ProviderName {
	if override != "" {
		return override
	}
	if region == domain.RegionCN {
		return domain.ProviderZhipu
	}
	return domain.ProviderOpenAI
}

// Request: запрос хода к LLM. Messages: история без системного сообщения.
type Request struct {
	Messages          []domain.ChatMessage
	Region            domain.Region
	Tier              domain.Tier
	Mode              domain.ChatMode
	ProviderOverride  domain.ProviderName
	ExtraSystemPrompt string
}

// StreamOptions включает потоковый режим, если задан OnChunk.
type StreamOptions struct {
	OnChunk    func(chunk string)
	OnComplete func(full string)
	OnError    func(err error)
}

// Result описывает успешный ответ.
type Result struct {
	Text     string
	Provider domain.ProviderName
	Model    string
	Attempts int
}

// ErrProviderNotConfigured: провайдер с таким именем не зарегистрирован.
var ErrProviderNotConfigured = errors.New("provider not configured")

// Dispatcher отправляет запросы провайдерам.
type Dispatcher struct {
	providers   map[domain.ProviderName]domain.ChatProvider
	temperature float64
	maxTokens   int
	log         zerolog.Logger
}

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

// WithGeneration задаёт temperature и max_tokens.
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(d *Dispatcher) {
		if temperature > 0 {
			d.temperature = temperature
		}
		if maxTokens > 0 {
			d.maxTokens = maxTokens
		}
	}
}

// New создаёт диспетчер.
func New(providers []domain.ChatProvider, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		providers:   make(map[domain.ProviderName]domain.ChatProvider, len(providers)),
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		log:         logger.With().Str("component", "dispatch").Logger(),
	}
	for _, p := range providers {
		d.providers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Chat выполняет запрос: основной провайдер, при ошибке ровно одна попытка у парного.
// stream=nil или stream.OnChunk=nil: обычный режим.
func (d *Dispatcher) Chat(ctx context.Context, req Request, stream *StreamOptions) (Result, error) {
	system := prompt.Join(prompt.Persona(req.Mode), req.ExtraSystemPrompt)
	messages := make([]domain.ChatMessage, 0, len(req.Messages)+1)
	messages = append(messages, domain.ChatMessage{Role: openai.RoleSystem, Content: system})
	messages = append(messages, req.Messages...)

	name := Select(req.Region, req.ProviderOverride)
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := d.attempt(ctx, name, req.Tier, messages, stream)
		if err == nil {
			res.Attempts = attempt
			if stream != nil && stream.OnComplete != nil {
				stream.OnComplete(res.Text)
			}
			return res, nil
		}
		lastErr = err
		if attempt == 2 {
			break
		}
		next := Fallback(name)
		d.log.Warn().Err(err).Str("provider", string(name)).Str("fallback", string(next)).Msg("provider failed, falling back")
		metrics.ObserveFallback(string(name), string(next))
		name = next
	}
	if stream != nil && stream.OnError != nil {
		stream.OnError(lastErr)
	}
	return Result{}, fmt.Errorf("llm request failed: %w", lastErr)
}

func (d *Dispatcher) attempt(ctx context.Context, name domain.ProviderName, tier domain.Tier, messages []domain.ChatMessage, stream *StreamOptions) (Result, error) {
	p, ok := d.providers[name]
	if !ok {
		return Result{}, fmt.Errorf("%s: %w", name, ErrProviderNotConfigured)
	}
	req := domain.CompletionRequest{
		Model:       p.Model(tier),
		Messages:    messages,
		Temperature: d.temperature,
		MaxTokens:   d.maxTokens,
	}
	var (
		text string
		err  error
	)
	if stream != nil && stream.OnChunk != nil {
		text, err = p.Stream(ctx, req, stream.OnChunk)
	} else {
		text, err = p.Complete(ctx, req)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text, Provider: name, Model: req.Model}, nil
}
