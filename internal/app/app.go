// Package app собирает хранилище, инфраструктуру и сервисы для бинарников из cmd/.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"vibeailife/internal/adapters/llm"
	"vibeailife/internal/adapters/memstore"
	"vibeailife/internal/adapters/repo"
	"vibeailife/internal/adapters/stripe"
	"vibeailife/internal/domain"
	"vibeailife/internal/infra/cache"
	"vibeailife/internal/infra/config"
	"vibeailife/internal/infra/db"
	"vibeailife/internal/infra/queue"
	"vibeailife/internal/usecase/account"
	"vibeailife/internal/usecase/admin"
	"vibeailife/internal/usecase/billing"
	"vibeailife/internal/usecase/chat"
	"vibeailife/internal/usecase/dispatch"
	"vibeailife/internal/usecase/fortune"
	"vibeailife/internal/usecase/goals"
	"vibeailife/internal/usecase/recommend"
	"vibeailife/internal/usecase/usage"
	"vibeailife/internal/usecase/vibe"
)

// Storage: всё, что сервисы ждут от хранилища. Реализуют repo.Postgres и memstore.Store.
type Storage interface {
	domain.UserRepo
	domain.AdminUserRepo
	domain.ConversationRepo
	domain.MessageRepo
	domain.FortuneRepo
	domain.UsageRepo
	domain.VibeRepo
	domain.GoalRepo
	domain.BillingRepo
	domain.BusinessMetricRepo
}

var (
	_ Storage = (*repo.Postgres)(nil)
	_ Storage = (*memstore.Store)(nil)
)

// App: собранные зависимости процесса.
type App struct {
	Config config.AppConfig
	Log    zerolog.Logger

	Store     Storage
	Cache     domain.Cache
	Redis     *redis.Client
	VibeQueue domain.VibeQueue

	Accounts  *account.Service
	Chat      *chat.Service
	Fortune   *fortune.Service
	Usage     *usage.Service
	Vibe      *vibe.Service
	Goals     *goals.Service
	Recommend *recommend.Service
	Billing   *billing.Service
	Admin     *admin.Service

	closers []func()
}

// New подключает хранилище, кеш и очередь и создаёт сервисы.
func New(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: logger}
	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openQueue(); err != nil {
		a.Close()
		return nil, err
	}
	a.buildServices()
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	if a.Config.PGDSN == "" {
		if a.Config.AppEnv != "dev" {
			return errors.New("PG_DSN is required outside dev")
		}
		a.Log.Warn().Msg("PG_DSN не задан, данные хранятся в памяти процесса")
		a.Store = memstore.New()
		return nil
	}
	pool, err := db.Connect(ctx, a.Config.PGDSN, 0)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	a.Store = repo.NewPostgres(pool)
	return nil
}

func (a *App) openCache(ctx context.Context) error {
	if a.Config.RedisAddr == "" {
		a.Cache = memstore.NewCache()
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.Redis = client
	a.Cache = cache.NewRedis(client, "vibeailife")
	return nil
}

func (a *App) openQueue() error {
	q := a.Config.Queues
	switch q.Backend {
	case "", "none":
		return nil
	case "redis":
		if a.Redis == nil {
			return errors.New("QUEUE_BACKEND=redis requires REDIS_ADDR")
		}
		a.VibeQueue = queue.NewRedisVibeQueue(a.Redis, q.Vibe)
		return nil
	case "rabbitmq":
		rq, err := queue.NewRabbitVibeQueue(q.AMQPURL, q.Vibe)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rq.Close() })
		a.VibeQueue = rq
		return nil
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", q.Backend)
	}
}

func (a *App) buildServices() {
	cfg, store, logger := a.Config, a.Store, a.Log
	loc := cfg.Location()

	disp := dispatch.New(llm.NewAll(cfg.LLM), logger, dispatch.WithGeneration(cfg.LLM.Temperature, cfg.LLM.MaxTokens))

	a.Usage = usage.NewService(store, loc)
	a.Accounts = account.NewService(store, store, logger)
	a.Fortune = fortune.NewService(store, store, loc, logger)
	classifier := fortune.NewClassifier(fortune.DefaultApplyProbability, nil)
	a.Chat = chat.NewService(store, store, a.Fortune, classifier, disp, a.Usage, store, logger)
	a.Vibe = vibe.NewService(store, a.Usage, disp, a.VibeQueue, store, loc, logger)
	a.Goals = goals.NewService(store, a.Usage, store, logger)
	a.Recommend = recommend.NewService(store, store, a.Fortune)
	a.Admin = admin.NewService(store, store, a.Cache, cfg.AdminCacheTTL, loc, logger)

	var gateway billing.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateway = stripe.New(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, nil)
	} else {
		logger.Info().Msg("STRIPE_SECRET_KEY не задан, оплата отключена")
	}
	a.Billing = billing.NewService(gateway, store, store, a.Cache, store, billing.Config{
		Prices: map[domain.Tier]string{
			domain.TierPro:        cfg.Stripe.PriceProMonthly,
			domain.TierEnterprise: cfg.Stripe.PriceEntMonthly,
		},
		BaseURL: cfg.BaseURL,
	}, logger)
}

// Close освобождает подключения в обратном порядке.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
