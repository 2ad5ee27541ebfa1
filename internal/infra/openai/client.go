package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vibeailife/internal/infra/metrics"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client выполняет Chat Completions запросы к OpenAI-совместимому API.
type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	component string
}

// NewClient создаёт клиента. component попадает в метки метрик.
func NewClient(component, apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if component == "" {
		component = "openai"
	}
	httpClient := &http.Client{Timeout: timeout + 5*time.Second}
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey, component: component}
}

// ChatCompletionRequest описывает тело запроса.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatMessage представляет сообщение в диалоге.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	// RoleSystem системная инструкция.
	RoleSystem = "system"
	// RoleUser сообщение пользователя.
	RoleUser = "user"
	// RoleAssistant ответ модели.
	RoleAssistant = "assistant"
)

// ChatCompletionResponse описывает ответ модели.
type ChatCompletionResponse struct {
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   *ChatCompletionUsage   `json:"usage,omitempty"`
}

// ChatCompletionChoice содержит сообщение модели.
type ChatCompletionChoice struct {
	Message ChatMessage `json:"message"`
}

// ChatCompletionUsage описывает статистику использования токенов.
type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *ChatCompletionUsage `json:"usage,omitempty"`
}

// CreateChatCompletion вызывает /chat/completions.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	req.Stream = false
	start := time.Now()
	resp, err := c.do(ctx, req)
	if err != nil {
		metrics.ObserveNetworkRequest(c.component, "chat_completions", req.Model, start, err)
		return ChatCompletionResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest(c.component, "chat_completions", req.Model, start, err)
		return ChatCompletionResponse{}, fmt.Errorf("%s: read response: %w", c.component, err)
	}
	var completion ChatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		metrics.ObserveNetworkRequest(c.component, "chat_completions", req.Model, start, err)
		return ChatCompletionResponse{}, fmt.Errorf("%s: decode response: %w", c.component, err)
	}
	if len(completion.Choices) == 0 {
		err := fmt.Errorf("%s: empty choices", c.component)
		metrics.ObserveNetworkRequest(c.component, "chat_completions", req.Model, start, err)
		return ChatCompletionResponse{}, err
	}
	metrics.ObserveNetworkRequest(c.component, "chat_completions", req.Model, start, nil)
	if completion.Usage != nil {
		metrics.ObserveLLMGeneration(req.Model, time.Since(start), completion.Usage.PromptTokens, completion.Usage.CompletionTokens, completion.Usage.TotalTokens)
	}
	return completion, nil
}

// CreateChatCompletionStream вызывает /chat/completions со stream=true.
// onDelta получает каждый непустой фрагмент, результат: склеенный текст.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req ChatCompletionRequest, onDelta func(string)) (string, error) {
	req.Stream = true
	start := time.Now()
	resp, err := c.do(ctx, req)
	if err != nil {
		metrics.ObserveNetworkRequest(c.component, "chat_completions_stream", req.Model, start, err)
		return "", err
	}
	defer resp.Body.Close()

	var (
		full  strings.Builder
		usage *ChatCompletionUsage
		done  bool
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			done = true
			break
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			full.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		metrics.ObserveNetworkRequest(c.component, "chat_completions_stream", req.Model, start, err)
		return full.String(), fmt.Errorf("%s: read stream: %w", c.component, err)
	}
	if !done && ctx.Err() != nil {
		metrics.ObserveNetworkRequest(c.component, "chat_completions_stream", req.Model, start, ctx.Err())
		return full.String(), ctx.Err()
	}
	metrics.ObserveNetworkRequest(c.component, "chat_completions_stream", req.Model, start, nil)
	if usage != nil {
		metrics.ObserveLLMGeneration(req.Model, time.Since(start), usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	} else {
		metrics.ObserveLLMGeneration(req.Model, time.Since(start), 0, 0, 0)
	}
	return full.String(), nil
}

func (c *Client) do(ctx context.Context, req ChatCompletionRequest) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%s: api key is empty", c.component)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", c.component, err)
	}
	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.component, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: do request: %w", c.component, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, c.apiError(resp.StatusCode, respBody)
	}
	return resp, nil
}

// APIError: ответ провайдера с кодом >= 400.
type APIError struct {
	Component  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Component, e.StatusCode)
}

// IsAPIError сообщает, что ошибка пришла от провайдера.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

func (c *Client) apiError(status int, body []byte) error {
	var apiErr apiErrorResponse
	msg := ""
	if err := json.Unmarshal(body, &apiErr); err == nil {
		msg = apiErr.Error.Message
	}
	return &APIError{Component: c.component, StatusCode: status, Message: msg}
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
