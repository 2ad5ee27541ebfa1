package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ChatTurnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_turns_total",
		Help: "Количество ходов диалога",
	}, []string{"mode", "outcome"})

	FortuneInjectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fortune_injections_total",
		Help: "Решения классификатора о применении предсказания",
	}, []string{"reason"})

	FortuneDrawsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fortune_draws_total",
		Help: "Вытягивания и пропуски предсказаний",
	}, []string{"result"})

	LLMFallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_fallback_total",
		Help: "Переключения на резервного провайдера",
	}, []string{"from", "to"})

	LLMApologiesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "llm_apologies_total",
		Help: "Ответы-извинения после отказа всех провайдеров",
	})

	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	VibeJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vibe_jobs_total",
		Help: "Обработанные задачи анализа настроения",
	}, []string{"status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ChatTurnsTotal,
		FortuneInjectionsTotal,
		FortuneDrawsTotal,
		LLMFallbackTotal,
		LLMApologiesTotal,
		BotSendErrors,
		VibeJobsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObserveChatTurn фиксирует исход хода диалога: reply, apology или error.
func ObserveChatTurn(mode, outcome string) {
	ChatTurnsTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveFortuneInjection фиксирует решение классификатора.
func ObserveFortuneInjection(reason string) {
	FortuneInjectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveFortuneDraw фиксирует drawn, skipped или already.
func ObserveFortuneDraw(result string) {
	FortuneDrawsTotal.WithLabelValues(result).Inc()
}

// ObserveFallback фиксирует переключение провайдера.
func ObserveFallback(from, to string) {
	LLMFallbackTotal.WithLabelValues(from, to).Inc()
}

// IncApology увеличивает счётчик извинений.
func IncApology() {
	LLMApologiesTotal.Inc()
}

// ObserveVibeJob фиксирует результат задачи анализа.
func ObserveVibeJob(status string) {
	VibeJobsTotal.WithLabelValues(status).Inc()
}
