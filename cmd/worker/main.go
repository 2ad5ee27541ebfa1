package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"vibeailife/internal/app"
	"vibeailife/internal/domain"
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

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось инициализировать зависимости")
	}
	defer a.Close()
	if a.VibeQueue == nil {
		logger.Fatal().Msg("worker: очередь не настроена (QUEUE_BACKEND=redis|rabbitmq)")
	}

	w := &jobWorker{log: applog.Component(logger, "worker"), queue: a.VibeQueue, vibes: a.Vibe}
	logger.Info().Str("backend", cfg.Queues.Backend).Msg("worker: запуск обработки очереди")
	w.Run(ctx)
	logger.Info().Msg("worker: остановлен")
}

type vibeProcessor interface {
	ProcessJob(ctx context.Context, job domain.VibeAnalysisJob) error
}

type jobWorker struct {
	log   zerolog.Logger
	queue domain.VibeQueue
	vibes vibeProcessor
}

const jobTimeout = 90 * time.Second

// Run читает задачи, пока ctx не отменён. Ошибка обработки возвращает задачу в очередь.
func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			time.Sleep(time.Second)
			continue
		}

		jobLog := w.log.With().
			Str("job_id", job.ID).
			Str("vibe_id", job.VibeID).
			Str("user_id", job.UserID).
			Int("attempt", job.Attempt).
			Logger()

		if job.VibeID == "" {
			jobLog.Error().Msg("worker: задача без vibe_id, подтверждаем и пропускаем")
			if err := ack(true); err != nil {
				jobLog.Error().Err(err).Msg("worker: не удалось подтвердить задачу")
			}
			continue
		}

		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
		err = w.vibes.ProcessJob(jobCtx, job)
		cancel()
		if err != nil {
			jobLog.Warn().Err(err).Msg("worker: задача завершилась ошибкой, вернём в очередь")
			if ackErr := ack(false); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("worker: не удалось вернуть задачу в очередь")
			}
			continue
		}
		if err := ack(true); err != nil {
			jobLog.Error().Err(err).Msg("worker: не удалось подтвердить задачу")
			continue
		}
		jobLog.Debug().Msg("worker: анализ сохранён")
	}
}
