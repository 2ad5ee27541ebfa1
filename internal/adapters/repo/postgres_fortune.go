package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/metrics"
)

const dailyFortuneSelect = `
SELECT d.id, d.user_id, d.fortune_id, d.draw_date, d.skipped, d.applied_count, d.created_at,
       f.id, f.type, f.level, f.title, f.text, f.interpretation, f.applicable_scenarios, f.ai_hints, f.tone
FROM daily_fortunes d
LEFT JOIN fortune_library f ON f.id = d.fortune_id`

func scanDailyFortune(row pgx.Row) (domain.DailyFortune, error) {
	var (
		d         domain.DailyFortune
		fortuneID sql.NullString
		entryID   sql.NullString
		fType     sql.NullString
		level     sql.NullString
		title     sql.NullString
		text      sql.NullString
		interp    sql.NullString
		scenarios []string
		hints     []string
		tone      sql.NullString
	)
	if err := row.Scan(&d.ID, &d.UserID, &fortuneID, &d.DrawDate, &d.Skipped, &d.AppliedCount, &d.CreatedAt,
		&entryID, &fType, &level, &title, &text, &interp, &scenarios, &hints, &tone); err != nil {
		return domain.DailyFortune{}, err
	}
	d.FortuneID = fortuneID.String
	if entryID.Valid {
		d.Fortune = &domain.FortuneEntry{
			ID:                  entryID.String,
			Type:                domain.FortuneType(fType.String),
			Level:               domain.FortuneLevel(level.String),
			Title:               title.String,
			Text:                text.String,
			Interpretation:      interp.String,
			ApplicableScenarios: scenarios,
			AIHints:             hints,
			Tone:                domain.FortuneTone(tone.String),
		}
	}
	return d, nil
}

// GetDailyFortune возвращает запись за день вместе с предсказанием.
func (p *Postgres) GetDailyFortune(ctx context.Context, userID string, day time.Time) (domain.DailyFortune, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	d, err := scanDailyFortune(p.pool.QueryRow(ctx, dailyFortuneSelect+`
WHERE d.user_id=$1 AND d.draw_date=$2
`, userID, day))
	metrics.ObserveNetworkRequest("postgres", "daily_fortunes_get", "daily_fortunes", start, err)
	return d, notFound(err)
}

// InsertDraw вставляет запись вытягивания. Конфликт уникальности превращается в ErrAlreadyDrawn.
func (p *Postgres) InsertDraw(ctx context.Context, userID, fortuneID string, day time.Time) (domain.DailyFortune, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	d := domain.DailyFortune{ID: uuid.NewString(), UserID: userID, FortuneID: fortuneID}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO daily_fortunes (id, user_id, fortune_id, draw_date, skipped, applied_count)
VALUES ($1, $2, $3, $4, FALSE, 0)
RETURNING draw_date, created_at
`, d.ID, userID, fortuneID, day).Scan(&d.DrawDate, &d.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "daily_fortunes_draw", "daily_fortunes", start, err)
	if isUniqueViolation(err) {
		return domain.DailyFortune{}, domain.ErrAlreadyDrawn
	}
	if err != nil {
		return domain.DailyFortune{}, err
	}
	return d, nil
}

// InsertSkip отмечает пропуск дня. false означает, что запись за день уже была.
func (p *Postgres) InsertSkip(ctx context.Context, userID string, day time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO daily_fortunes (id, user_id, fortune_id, draw_date, skipped, applied_count)
VALUES ($1, $2, NULL, $3, TRUE, 0)
ON CONFLICT (user_id, draw_date) DO NOTHING
`, uuid.NewString(), userID, day)
	metrics.ObserveNetworkRequest("postgres", "daily_fortunes_skip", "daily_fortunes", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementApplied атомарно увеличивает applied_count.
func (p *Postgres) IncrementApplied(ctx context.Context, userID string, day time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE daily_fortunes SET applied_count = applied_count + 1
WHERE user_id=$1 AND draw_date=$2 AND NOT skipped
`, userID, day)
	metrics.ObserveNetworkRequest("postgres", "daily_fortunes_increment", "daily_fortunes", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecentFortuneIDs возвращает предсказания, выпавшие начиная с since.
func (p *Postgres) RecentFortuneIDs(ctx context.Context, userID string, since time.Time) ([]string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT fortune_id FROM daily_fortunes
WHERE user_id=$1 AND draw_date >= $2 AND fortune_id IS NOT NULL
`, userID, since)
	metrics.ObserveNetworkRequest("postgres", "daily_fortunes_recent", "daily_fortunes", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const fortuneEntryColumns = `id, type, level, title, text, interpretation, applicable_scenarios, ai_hints, tone`

func scanFortuneEntry(row pgx.Row) (domain.FortuneEntry, error) {
	var (
		f     domain.FortuneEntry
		fType string
		level string
		tone  string
	)
	if err := row.Scan(&f.ID, &fType, &level, &f.Title, &f.Text, &f.Interpretation, &f.ApplicableScenarios, &f.AIHints, &tone); err != nil {
		return domain.FortuneEntry{}, err
	}
	f.Type = domain.FortuneType(fType)
	f.Level = domain.FortuneLevel(level)
	f.Tone = domain.FortuneTone(tone)
	return f, nil
}

// ListFortuneCandidates выбирает кандидатов категории без исключённых id.
func (p *Postgres) ListFortuneCandidates(ctx context.Context, fortuneType domain.FortuneType, exclude []string, limit int) ([]domain.FortuneEntry, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if exclude == nil {
		exclude = []string{}
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+fortuneEntryColumns+` FROM fortune_library
WHERE ($1 = '' OR type = $1) AND NOT (id = ANY($2::text[]))
LIMIT $3
`, string(fortuneType), exclude, limit)
	metrics.ObserveNetworkRequest("postgres", "fortune_library_candidates", "fortune_library", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.FortuneEntry
	for rows.Next() {
		f, err := scanFortuneEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListFortuneHistory возвращает вытянутые (не пропущенные) предсказания по убыванию даты.
func (p *Postgres) ListFortuneHistory(ctx context.Context, userID string, page domain.Page) ([]domain.DailyFortune, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	limit, offset := pageArgs(page, 30)
	var total int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM daily_fortunes WHERE user_id=$1 AND NOT skipped`, userID).Scan(&total)
	metrics.ObserveNetworkRequest("postgres", "daily_fortunes_count", "daily_fortunes", start, err)
	if err != nil {
		return nil, 0, err
	}

	start = time.Now()
	rows, err := p.pool.Query(ctx, dailyFortuneSelect+`
WHERE d.user_id=$1 AND NOT d.skipped
ORDER BY d.draw_date DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "daily_fortunes_history", "daily_fortunes", start, err)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []domain.DailyFortune
	for rows.Next() {
		d, err := scanDailyFortune(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// DeleteDailyFortunes удаляет записи начиная с since.
func (p *Postgres) DeleteDailyFortunes(ctx context.Context, userID string, since time.Time) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM daily_fortunes WHERE user_id=$1 AND draw_date >= $2`, userID, since)
	metrics.ObserveNetworkRequest("postgres", "daily_fortunes_delete", "daily_fortunes", start, err)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// UpsertFortuneEntry добавляет или обновляет запись каталога.
func (p *Postgres) UpsertFortuneEntry(ctx context.Context, entry domain.FortuneEntry) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if entry.ApplicableScenarios == nil {
		entry.ApplicableScenarios = []string{}
	}
	if entry.AIHints == nil {
		entry.AIHints = []string{}
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO fortune_library (`+fortuneEntryColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    type = EXCLUDED.type,
    level = EXCLUDED.level,
    title = EXCLUDED.title,
    text = EXCLUDED.text,
    interpretation = EXCLUDED.interpretation,
    applicable_scenarios = EXCLUDED.applicable_scenarios,
    ai_hints = EXCLUDED.ai_hints,
    tone = EXCLUDED.tone
`, entry.ID, string(entry.Type), string(entry.Level), entry.Title, entry.Text, entry.Interpretation,
		entry.ApplicableScenarios, entry.AIHints, string(entry.Tone))
	metrics.ObserveNetworkRequest("postgres", "fortune_library_upsert", "fortune_library", start, err)
	return err
}
