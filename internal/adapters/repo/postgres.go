package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo           = (*Postgres)(nil)
	_ domain.AdminUserRepo      = (*Postgres)(nil)
	_ domain.ConversationRepo   = (*Postgres)(nil)
	_ domain.MessageRepo        = (*Postgres)(nil)
	_ domain.FortuneRepo        = (*Postgres)(nil)
	_ domain.UsageRepo          = (*Postgres)(nil)
	_ domain.VibeRepo           = (*Postgres)(nil)
	_ domain.GoalRepo           = (*Postgres)(nil)
	_ domain.BillingRepo        = (*Postgres)(nil)
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func pageArgs(page domain.Page, defaultLimit int) (int, int) {
	limit := page.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// RecordBusinessMetric сохраняет бизнесовую метрику в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var payload []byte
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, user_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4)
`, metric.Event, nullString(metric.UserID), payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}

const userColumns = `id, tg_user_id, email, name, region, tier, role, preferred_provider, has_onboarded, is_banned, stripe_customer_id, last_active_at, created_at, updated_at`

func scanUser(row pgx.Row, extra ...any) (domain.User, error) {
	var (
		u        domain.User
		tgID     sql.NullInt64
		email    sql.NullString
		provider sql.NullString
		customer sql.NullString
		lastSeen sql.NullTime
		region   string
		tier     string
		role     string
	)
	dst := []any{&u.ID, &tgID, &email, &u.Name, &region, &tier, &role, &provider, &u.HasOnboarded, &u.IsBanned, &customer, &lastSeen, &u.CreatedAt, &u.UpdatedAt}
	if err := row.Scan(append(dst, extra...)...); err != nil {
		return domain.User{}, err
	}
	u.TGUserID = tgID.Int64
	u.Email = email.String
	u.Region = domain.ParseRegion(region)
	u.Tier = domain.ParseTier(tier)
	u.Role = domain.UserRole(role)
	u.PreferredProvider = domain.ProviderName(provider.String)
	u.StripeCustomerID = customer.String
	if lastSeen.Valid {
		ts := lastSeen.Time
		u.LastActiveAt = &ts
	}
	return u, nil
}

// GetUser возвращает пользователя по id.
func (p *Postgres) GetUser(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	return u, notFound(err)
}

// UpsertByTGID создаёт пользователя Telegram или обновляет его имя.
func (p *Postgres) UpsertByTGID(ctx context.Context, profile domain.TelegramProfile) (domain.User, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	region := domain.RegionInternational
	if strings.HasPrefix(strings.ToLower(profile.Locale), "zh") {
		region = domain.RegionCN
	}

	var created bool
	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `
INSERT INTO users (id, tg_user_id, name, region)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tg_user_id) DO UPDATE SET name = COALESCE(NULLIF(users.name, ''), EXCLUDED.name), updated_at = now()
RETURNING `+userColumns+`, (xmax = 0) AS inserted
`, uuid.NewString(), profile.TGUserID, strings.TrimSpace(profile.DisplayName()), string(region)), &created)
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	if err != nil {
		return domain.User{}, false, err
	}
	return u, created, nil
}

// UpdatePreferredProvider задаёт или сбрасывает предпочитаемого провайдера.
func (p *Postgres) UpdatePreferredProvider(ctx context.Context, userID string, provider domain.ProviderName) (domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `
UPDATE users SET preferred_provider=$2, updated_at=now() WHERE id=$1
RETURNING `+userColumns, userID, nullString(string(provider))))
	metrics.ObserveNetworkRequest("postgres", "users_update_provider", "users", start, err)
	return u, notFound(err)
}

// CompleteOnboarding сохраняет имя и регион.
func (p *Postgres) CompleteOnboarding(ctx context.Context, userID, name string, region domain.Region) (domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `
UPDATE users SET name=$2, region=$3, has_onboarded=TRUE, updated_at=now() WHERE id=$1
RETURNING `+userColumns, userID, name, string(region)))
	metrics.ObserveNetworkRequest("postgres", "users_onboarding", "users", start, err)
	return u, notFound(err)
}

// TouchLastActive обновляет время последней активности.
func (p *Postgres) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE users SET last_active_at=$2 WHERE id=$1`, userID, at)
	metrics.ObserveNetworkRequest("postgres", "users_touch", "users", start, err)
	return err
}

// ListUsers возвращает страницу пользователей с поиском по email и имени.
func (p *Postgres) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	limit, offset := pageArgs(filter.Page, 20)
	pattern := ""
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern = "%" + s + "%"
	}

	start := time.Now()
	var total int
	err := p.pool.QueryRow(ctx, `
SELECT count(*) FROM users WHERE $1 = '' OR email ILIKE $1 OR name ILIKE $1
`, pattern).Scan(&total)
	metrics.ObserveNetworkRequest("postgres", "users_count", "users", start, err)
	if err != nil {
		return nil, 0, err
	}

	start = time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+userColumns+` FROM users
WHERE $1 = '' OR email ILIKE $1 OR name ILIKE $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, pattern, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "users_list", "users", start, err)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// UserStats считает агрегаты для админки.
func (p *Postgres) UserStats(ctx context.Context, activeSince time.Time) (domain.UserStats, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var stats domain.UserStats
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT count(*),
       count(*) FILTER (WHERE last_active_at >= $1),
       count(*) FILTER (WHERE tier <> 'FREE')
FROM users
`, activeSince).Scan(&stats.TotalUsers, &stats.ActiveUsers, &stats.PaidUsers)
	metrics.ObserveNetworkRequest("postgres", "users_stats", "users", start, err)
	if err != nil {
		return domain.UserStats{}, err
	}
	return stats, nil
}

// SetBanned блокирует или разблокирует пользователя.
func (p *Postgres) SetBanned(ctx context.Context, userID string, banned bool) (domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `
UPDATE users SET is_banned=$2, updated_at=now() WHERE id=$1
RETURNING `+userColumns, userID, banned))
	metrics.ObserveNetworkRequest("postgres", "users_set_banned", "users", start, err)
	return u, notFound(err)
}
