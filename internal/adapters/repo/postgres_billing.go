package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/metrics"
)

// GetSubscription возвращает подписку пользователя.
func (p *Postgres) GetSubscription(ctx context.Context, userID string) (domain.Subscription, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		sub       domain.Subscription
		plan      string
		status    string
		stripeID  sql.NullString
		periodEnd sql.NullTime
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT user_id, plan, status, stripe_subscription_id, current_period_end, updated_at
FROM subscriptions WHERE user_id=$1
`, userID).Scan(&sub.UserID, &plan, &status, &stripeID, &periodEnd, &sub.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_get", "subscriptions", start, err)
	if err != nil {
		return domain.Subscription{}, notFound(err)
	}
	sub.Plan = domain.ParseTier(plan)
	sub.Status = domain.SubscriptionStatus(status)
	sub.StripeSubscriptionID = stripeID.String
	if periodEnd.Valid {
		ts := periodEnd.Time
		sub.CurrentPeriodEnd = &ts
	}
	return sub, nil
}

// UpsertSubscription создаёт или обновляет подписку.
func (p *Postgres) UpsertSubscription(ctx context.Context, sub domain.Subscription) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO subscriptions (user_id, plan, status, stripe_subscription_id, current_period_end, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (user_id) DO UPDATE SET
    plan = EXCLUDED.plan,
    status = EXCLUDED.status,
    stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, subscriptions.stripe_subscription_id),
    current_period_end = COALESCE(EXCLUDED.current_period_end, subscriptions.current_period_end),
    updated_at = now()
`, sub.UserID, string(sub.Plan), string(sub.Status), nullString(sub.StripeSubscriptionID), nullTime(sub.CurrentPeriodEnd))
	metrics.ObserveNetworkRequest("postgres", "subscriptions_upsert", "subscriptions", start, err)
	return err
}

// SetTier меняет тариф пользователя.
func (p *Postgres) SetTier(ctx context.Context, userID string, tier domain.Tier) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE users SET tier=$2, updated_at=now() WHERE id=$1`, userID, string(tier))
	metrics.ObserveNetworkRequest("postgres", "users_set_tier", "users", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetStripeCustomerID запоминает клиента Stripe.
func (p *Postgres) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE users SET stripe_customer_id=$2, updated_at=now() WHERE id=$1`, userID, customerID)
	metrics.ObserveNetworkRequest("postgres", "users_set_customer", "users", start, err)
	return err
}

// FindUserByStripeCustomer ищет пользователя по клиенту Stripe.
func (p *Postgres) FindUserByStripeCustomer(ctx context.Context, customerID string) (domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE stripe_customer_id=$1`, customerID))
	metrics.ObserveNetworkRequest("postgres", "users_by_customer", "users", start, err)
	return u, notFound(err)
}

// RecordPayment идемпотентно сохраняет платёж по внешнему id.
func (p *Postgres) RecordPayment(ctx context.Context, payment domain.Payment) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO payments (id, user_id, external_id, plan, amount_minor, currency, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (external_id) DO NOTHING
`, payment.ID, payment.UserID, payment.ExternalID, string(payment.Plan), payment.AmountMinor, payment.Currency, string(payment.Status))
	metrics.ObserveNetworkRequest("postgres", "payments_insert", "payments", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListPayments возвращает платежи с данными пользователя, новые первыми.
func (p *Postgres) ListPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	limit, offset := pageArgs(filter.Page, 20)
	status := string(filter.Status)

	var total int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM payments WHERE $1 = '' OR status = $1`, status).Scan(&total)
	metrics.ObserveNetworkRequest("postgres", "payments_count", "payments", start, err)
	if err != nil {
		return nil, 0, err
	}

	start = time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT pm.id, pm.user_id, u.email, u.name, pm.external_id, pm.plan, pm.amount_minor, pm.currency, pm.status, pm.created_at
FROM payments pm
JOIN users u ON u.id = pm.user_id
WHERE $1 = '' OR pm.status = $1
ORDER BY pm.created_at DESC
LIMIT $2 OFFSET $3
`, status, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "payments_list", "payments", start, err)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []domain.Payment
	for rows.Next() {
		var (
			pm    domain.Payment
			email sql.NullString
			plan  string
			pstat string
		)
		if err := rows.Scan(&pm.ID, &pm.UserID, &email, &pm.UserName, &pm.ExternalID, &plan, &pm.AmountMinor, &pm.Currency, &pstat, &pm.CreatedAt); err != nil {
			return nil, 0, err
		}
		pm.UserEmail = email.String
		pm.Plan = domain.ParseTier(plan)
		pm.Status = domain.PaymentStatus(pstat)
		out = append(out, pm)
	}
	return out, total, rows.Err()
}
