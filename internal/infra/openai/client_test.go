package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCreateChatCompletionStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Fatalf("нет авторизации: %q", r.Header.Get("Authorization"))
		}
		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("тело запроса: %v", err)
		}
		if !req.Stream || req.Model != "glm-4-flash" {
			t.Fatalf("неожиданный запрос: %+v", req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"你", "好", ""} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewClient("zhipu", "key", srv.URL+"/", time.Second)
	var deltas []string
	full, err := client.CreateChatCompletionStream(context.Background(), ChatCompletionRequest{
		Model:    "glm-4-flash",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	}, func(s string) { deltas = append(deltas, s) })
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if full != "你好" {
		t.Fatalf("ожидали склеенный текст, получили %q", full)
	}
	if strings.Join(deltas, "|") != "你|好" {
		t.Fatalf("пустые фрагменты не должны передаваться: %v", deltas)
	}
}

func TestCreateChatCompletionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	client := NewClient("openai", "key", srv.URL, time.Second)
	_, err := client.CreateChatCompletion(context.Background(), ChatCompletionRequest{Model: "gpt-4o-mini"})
	if err == nil || !IsAPIError(err) {
		t.Fatalf("ожидали APIError, получили %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("сообщение провайдера потеряно: %v", err)
	}
}

func TestCreateChatCompletionRequiresKey(t *testing.T) {
	client := NewClient("openai", "", "", time.Second)
	if _, err := client.CreateChatCompletion(context.Background(), ChatCompletionRequest{}); err == nil {
		t.Fatalf("ожидали ошибку без ключа")
	}
}

func TestCreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	client := NewClient("openai", "key", srv.URL, time.Second)
	resp, err := client.CreateChatCompletion(context.Background(), ChatCompletionRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if resp.Choices[0].Message.Content != "ok" || resp.Usage.TotalTokens != 4 {
		t.Fatalf("неожиданный ответ: %+v", resp)
	}
}
