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

const vibeColumns = `id, user_id, mood, energy, tags, note, ai_response, created_at`

func scanVibe(row pgx.Row) (domain.VibeRecord, error) {
	var (
		v        domain.VibeRecord
		note     sql.NullString
		response sql.NullString
	)
	if err := row.Scan(&v.ID, &v.UserID, &v.Mood, &v.Energy, &v.Tags, &note, &response, &v.CreatedAt); err != nil {
		return domain.VibeRecord{}, err
	}
	v.Note = note.String
	v.AIResponse = response.String
	return v, nil
}

func collectVibes(rows pgx.Rows) ([]domain.VibeRecord, error) {
	defer rows.Close()
	var out []domain.VibeRecord
	for rows.Next() {
		v, err := scanVibe(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CreateVibe сохраняет отметку настроения.
func (p *Postgres) CreateVibe(ctx context.Context, rec domain.VibeRecord) (domain.VibeRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	start := time.Now()
	saved, err := scanVibe(p.pool.QueryRow(ctx, `
INSERT INTO vibe_records (id, user_id, mood, energy, tags, note, ai_response)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+vibeColumns, rec.ID, rec.UserID, rec.Mood, rec.Energy, rec.Tags, nullString(rec.Note), nullString(rec.AIResponse)))
	metrics.ObserveNetworkRequest("postgres", "vibe_records_insert", "vibe_records", start, err)
	return saved, err
}

// GetVibe возвращает отметку по id.
func (p *Postgres) GetVibe(ctx context.Context, id string) (domain.VibeRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	v, err := scanVibe(p.pool.QueryRow(ctx, `SELECT `+vibeColumns+` FROM vibe_records WHERE id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "vibe_records_get", "vibe_records", start, err)
	return v, notFound(err)
}

// SetVibeAnalysis сохраняет ответ ассистента.
func (p *Postgres) SetVibeAnalysis(ctx context.Context, id, analysis string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE vibe_records SET ai_response=$2 WHERE id=$1`, id, analysis)
	metrics.ObserveNetworkRequest("postgres", "vibe_records_set_analysis", "vibe_records", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListVibes возвращает страницу отметок, новые первыми.
func (p *Postgres) ListVibes(ctx context.Context, userID string, page domain.Page) ([]domain.VibeRecord, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	limit, offset := pageArgs(page, 30)
	var total int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM vibe_records WHERE user_id=$1`, userID).Scan(&total)
	metrics.ObserveNetworkRequest("postgres", "vibe_records_count", "vibe_records", start, err)
	if err != nil {
		return nil, 0, err
	}
	start = time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+vibeColumns+` FROM vibe_records WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "vibe_records_list", "vibe_records", start, err)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectVibes(rows)
	return out, total, err
}

// VibesSince возвращает отметки начиная с since по возрастанию времени.
func (p *Postgres) VibesSince(ctx context.Context, userID string, since time.Time) ([]domain.VibeRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+vibeColumns+` FROM vibe_records WHERE user_id=$1 AND created_at >= $2
ORDER BY created_at ASC
`, userID, since)
	metrics.ObserveNetworkRequest("postgres", "vibe_records_since", "vibe_records", start, err)
	if err != nil {
		return nil, err
	}
	return collectVibes(rows)
}

// RecentVibes возвращает последние отметки.
func (p *Postgres) RecentVibes(ctx context.Context, userID string, limit int) ([]domain.VibeRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+vibeColumns+` FROM vibe_records WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "vibe_records_recent", "vibe_records", start, err)
	if err != nil {
		return nil, err
	}
	return collectVibes(rows)
}
