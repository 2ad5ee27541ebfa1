package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"vibeailife/internal/adapters/bot"
	"vibeailife/internal/app"
	"vibeailife/internal/infra/config"
	applog "vibeailife/internal/infra/log"
	"vibeailife/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("bot: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось инициализировать зависимости")
	}
	defer a.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать бота")
	}
	h := bot.NewHandler(botAPI, logger, a.Accounts, a.Fortune, a.Chat, a.Cache)

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	if cfg.Telegram.WebhookURL == "" {
		runPolling(ctx, botAPI, h, logger)
		return
	}

	wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: некорректный TG_WEBHOOK_URL")
	}
	if _, err := botAPI.Request(wh); err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось зарегистрировать вебхук")
	}

	r := chi.NewRouter()
	r.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("бот-гейтвей запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// runPolling получает обновления long polling, пока ctx не отменён.
func runPolling(ctx context.Context, botAPI *tgbotapi.BotAPI, h *bot.Handler, logger zerolog.Logger) {
	if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		logger.Warn().Err(err).Msg("bot: не удалось снять вебхук")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := botAPI.GetUpdatesChan(u)
	logger.Info().Msg("бот запущен в режиме long polling")
	for {
		select {
		case <-ctx.Done():
			botAPI.StopReceivingUpdates()
			logger.Info().Msg("остановка бота")
			return
		case upd := <-updates:
			h.HandleUpdate(ctx, upd)
		}
	}
}
