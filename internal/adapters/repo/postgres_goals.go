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

const goalColumns = `id, user_id, title, description, deadline, status, progress, created_at, updated_at`

func scanGoal(row pgx.Row) (domain.Goal, error) {
	var (
		g        domain.Goal
		desc     sql.NullString
		deadline sql.NullTime
		status   string
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Title, &desc, &deadline, &status, &g.Progress, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return domain.Goal{}, err
	}
	g.Description = desc.String
	g.Status = domain.GoalStatus(status)
	if deadline.Valid {
		ts := deadline.Time
		g.Deadline = &ts
	}
	return g, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// CreateGoal создаёт цель.
func (p *Postgres) CreateGoal(ctx context.Context, goal domain.Goal) (domain.Goal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	if goal.Status == "" {
		goal.Status = domain.GoalStatusActive
	}
	start := time.Now()
	saved, err := scanGoal(p.pool.QueryRow(ctx, `
INSERT INTO goals (id, user_id, title, description, deadline, status, progress)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+goalColumns, goal.ID, goal.UserID, goal.Title, nullString(goal.Description), nullTime(goal.Deadline), string(goal.Status), goal.Progress))
	metrics.ObserveNetworkRequest("postgres", "goals_insert", "goals", start, err)
	return saved, err
}

// GetGoal возвращает цель владельца.
func (p *Postgres) GetGoal(ctx context.Context, userID, goalID string) (domain.Goal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	g, err := scanGoal(p.pool.QueryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE id=$1 AND user_id=$2`, goalID, userID))
	metrics.ObserveNetworkRequest("postgres", "goals_get", "goals", start, err)
	return g, notFound(err)
}

// ListGoals возвращает цели, опционально по статусу, новые первыми.
func (p *Postgres) ListGoals(ctx context.Context, userID string, status domain.GoalStatus) ([]domain.Goal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+goalColumns+` FROM goals
WHERE user_id=$1 AND ($2 = '' OR status = $2)
ORDER BY created_at DESC
`, userID, string(status))
	metrics.ObserveNetworkRequest("postgres", "goals_list", "goals", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpdateGoal сохраняет изменяемые поля цели.
func (p *Postgres) UpdateGoal(ctx context.Context, goal domain.Goal) (domain.Goal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	saved, err := scanGoal(p.pool.QueryRow(ctx, `
UPDATE goals SET title=$3, description=$4, deadline=$5, status=$6, progress=$7, updated_at=now()
WHERE id=$1 AND user_id=$2
RETURNING `+goalColumns, goal.ID, goal.UserID, goal.Title, nullString(goal.Description), nullTime(goal.Deadline), string(goal.Status), goal.Progress))
	metrics.ObserveNetworkRequest("postgres", "goals_update", "goals", start, err)
	return saved, notFound(err)
}

// DeleteGoal удаляет цель.
func (p *Postgres) DeleteGoal(ctx context.Context, userID, goalID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM goals WHERE id=$1 AND user_id=$2`, goalID, userID)
	metrics.ObserveNetworkRequest("postgres", "goals_delete", "goals", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CheckinGoal в одной транзакции повышает прогресс и добавляет отметку.
func (p *Postgres) CheckinGoal(ctx context.Context, userID, goalID, note string, step int) (domain.GoalCheckin, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "goals", start, err)
	if err != nil {
		return domain.GoalCheckin{}, 0, err
	}
	defer tx.Rollback(ctx)

	var progress int
	start = time.Now()
	err = tx.QueryRow(ctx, `
UPDATE goals SET progress = LEAST(progress + $3, 100), updated_at = now()
WHERE id=$1 AND user_id=$2
RETURNING progress
`, goalID, userID, step).Scan(&progress)
	metrics.ObserveNetworkRequest("postgres", "goals_progress", "goals", start, err)
	if err != nil {
		return domain.GoalCheckin{}, 0, notFound(err)
	}

	checkin := domain.GoalCheckin{ID: uuid.NewString(), GoalID: goalID, Note: note}
	start = time.Now()
	err = tx.QueryRow(ctx, `
INSERT INTO goal_checkins (id, goal_id, note) VALUES ($1, $2, $3)
RETURNING created_at
`, checkin.ID, goalID, nullString(note)).Scan(&checkin.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "goal_checkins_insert", "goal_checkins", start, err)
	if err != nil {
		return domain.GoalCheckin{}, 0, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "goals", start, err)
	if err != nil {
		return domain.GoalCheckin{}, 0, err
	}
	return checkin, progress, nil
}

// ListCheckins возвращает отметки цели владельца, новые первыми.
func (p *Postgres) ListCheckins(ctx context.Context, userID, goalID string) ([]domain.GoalCheckin, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT c.id, c.goal_id, c.note, c.created_at
FROM goal_checkins c
JOIN goals g ON g.id = c.goal_id
WHERE c.goal_id=$1 AND g.user_id=$2
ORDER BY c.created_at DESC
`, goalID, userID)
	metrics.ObserveNetworkRequest("postgres", "goal_checkins_list", "goal_checkins", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.GoalCheckin
	for rows.Next() {
		var (
			c    domain.GoalCheckin
			note sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.GoalID, &note, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Note = note.String
		out = append(out, c)
	}
	return out, rows.Err()
}
