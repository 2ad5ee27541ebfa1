package repo

import (
	"context"
	"time"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/metrics"
)

// GetUsage возвращает счётчики за период.
func (p *Postgres) GetUsage(ctx context.Context, userID, period string) (domain.UsageLimit, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	u := domain.UsageLimit{UserID: userID, Period: period}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT message_count, vibe_count, goal_count, tokens_used, reset_at
FROM usage_limits WHERE user_id=$1 AND period=$2
`, userID, period).Scan(&u.MessageCount, &u.VibeCount, &u.GoalCount, &u.TokensUsed, &u.ResetAt)
	metrics.ObserveNetworkRequest("postgres", "usage_limits_get", "usage_limits", start, err)
	if err != nil {
		return domain.UsageLimit{}, notFound(err)
	}
	return u, nil
}

// AddUsage атомарно создаёт запись периода или увеличивает счётчики.
func (p *Postgres) AddUsage(ctx context.Context, userID, period string, resetAt time.Time, delta domain.UsageDelta) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO usage_limits (user_id, period, message_count, vibe_count, goal_count, tokens_used, reset_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, period) DO UPDATE SET
    message_count = usage_limits.message_count + EXCLUDED.message_count,
    vibe_count = usage_limits.vibe_count + EXCLUDED.vibe_count,
    goal_count = usage_limits.goal_count + EXCLUDED.goal_count,
    tokens_used = usage_limits.tokens_used + EXCLUDED.tokens_used
`, userID, period, delta.Messages, delta.Vibes, delta.Goals, delta.Tokens, resetAt)
	metrics.ObserveNetworkRequest("postgres", "usage_limits_add", "usage_limits", start, err)
	return err
}
