package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"Asia/Shanghai"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	BaseURL     string `envconfig:"APP_BASE_URL" default:"http://localhost:3000"`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`

	LLM LLMConfig `envconfig:""`

	Auth struct {
		JWTSecret string        `envconfig:"JWT_SECRET"`
		JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"720h"`
	} `envconfig:""`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	Stripe struct {
		SecretKey       string `envconfig:"STRIPE_SECRET_KEY"`
		WebhookSecret   string `envconfig:"STRIPE_WEBHOOK_SECRET"`
		PriceProMonthly string `envconfig:"STRIPE_PRICE_PRO_MONTHLY"`
		PriceEntMonthly string `envconfig:"STRIPE_PRICE_ENT_MONTHLY"`
	} `envconfig:""`

	Queues struct {
		Backend string `envconfig:"QUEUE_BACKEND" default:"none"`
		AMQPURL string `envconfig:"AMQP_URL"`
		Vibe    string `envconfig:"VIBE_QUEUE_KEY" default:"vibe_analysis"`
	} `envconfig:""`

	RateLimit RateLimitConfig `envconfig:""`

	AdminCacheTTL time.Duration `envconfig:"ADMIN_CACHE_TTL" default:"1m"`
}

// LLMConfig: ключи и адреса OpenAI-совместимых провайдеров.
type LLMConfig struct {
	OpenAIKey     string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	ZhipuKey      string        `envconfig:"ZHIPU_API_KEY"`
	ZhipuBaseURL  string        `envconfig:"ZHIPU_BASE_URL" default:"https://open.bigmodel.cn/api/paas/v4"`
	Timeout       time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	Temperature   float64       `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	MaxTokens     int           `envconfig:"LLM_MAX_TOKENS" default:"1000"`
}

// RateLimitConfig: параметры token bucket на API.
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Capacity       int           `envconfig:"RATE_LIMIT_CAPACITY" default:"60"`
	RefillTokens   int           `envconfig:"RATE_LIMIT_REFILL_TOKENS" default:"1"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
	TTL            time.Duration `envconfig:"RATE_LIMIT_TTL" default:"10m"`
	Prefix         string        `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	cfg.RateLimit.normalize()
	return cfg
}

// Location возвращает часовой пояс календаря сервера.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *RateLimitConfig) normalize() {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
}
