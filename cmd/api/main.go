package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"vibeailife/internal/adapters/bot"
	"vibeailife/internal/adapters/httpapi"
	"vibeailife/internal/app"
	"vibeailife/internal/infra/config"
	httpinfra "vibeailife/internal/infra/http"
	applog "vibeailife/internal/infra/log"
	"vibeailife/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось инициализировать зависимости")
	}
	defer a.Close()

	tokens := httpinfra.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
	var initData *httpinfra.InitDataValidator
	if cfg.Telegram.Token != "" {
		initData = httpinfra.NewInitDataValidator(cfg.Telegram.Token, 24*time.Hour)
	}
	if !tokens.Enabled() && initData == nil {
		logger.Warn().Msg("api: не заданы JWT_SECRET и TG_BOT_TOKEN, защищённые маршруты недоступны")
	}
	authn := httpinfra.NewAuthenticator(tokens, initData, a.Accounts)

	var rateLimit func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled && a.Redis != nil {
		rateLimit = httpinfra.NewTokenBucket(cfg.RateLimit, a.Redis, applog.Component(logger, "ratelimit"))
	}

	server := httpinfra.NewServer(logger)
	httpapi.NewHandler(httpapi.Deps{
		Accounts:  a.Accounts,
		Chat:      a.Chat,
		Fortune:   a.Fortune,
		Usage:     a.Usage,
		Vibe:      a.Vibe,
		Goals:     a.Goals,
		Recommend: a.Recommend,
		Billing:   a.Billing,
		Admin:     a.Admin,
		Auth:      authn.Middleware,
		RateLimit: rateLimit,
		DevRoutes: cfg.AppEnv == "dev",
		Logger:    logger,
	}).Mount(server.Router)

	if cfg.Telegram.Token != "" && cfg.Telegram.WebhookURL != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: не удалось создать бота")
		}
		h := bot.NewHandler(botAPI, logger, a.Accounts, a.Fortune, a.Chat, a.Cache)
		server.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
			var update tgbotapi.Update
			if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			h.HandleUpdate(r.Context(), update)
			w.WriteHeader(http.StatusOK)
		})
		logger.Info().Msg("api: вебхук бота подключён на /bot/webhook")
	}

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
