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

const conversationColumns = `id, user_id, mode, title, message_count, created_at, updated_at`

func scanConversation(row pgx.Row) (domain.Conversation, error) {
	var (
		c    domain.Conversation
		mode string
	)
	if err := row.Scan(&c.ID, &c.UserID, &mode, &c.Title, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Conversation{}, err
	}
	c.Mode = domain.ChatMode(mode)
	return c, nil
}

// CreateConversation создаёт диалог.
func (p *Postgres) CreateConversation(ctx context.Context, conv domain.Conversation) (domain.Conversation, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	start := time.Now()
	created, err := scanConversation(p.pool.QueryRow(ctx, `
INSERT INTO conversations (id, user_id, mode, title)
VALUES ($1, $2, $3, $4)
RETURNING `+conversationColumns, conv.ID, conv.UserID, string(conv.Mode), conv.Title))
	metrics.ObserveNetworkRequest("postgres", "conversations_insert", "conversations", start, err)
	return created, err
}

// GetConversation возвращает диалог владельца.
func (p *Postgres) GetConversation(ctx context.Context, userID, conversationID string) (domain.Conversation, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	c, err := scanConversation(p.pool.QueryRow(ctx, `
SELECT `+conversationColumns+` FROM conversations WHERE id=$1 AND user_id=$2
`, conversationID, userID))
	metrics.ObserveNetworkRequest("postgres", "conversations_get", "conversations", start, err)
	return c, notFound(err)
}

// ListConversations возвращает диалоги по убыванию updated_at.
func (p *Postgres) ListConversations(ctx context.Context, userID string, page domain.Page) ([]domain.Conversation, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	limit, offset := pageArgs(page, 20)
	var total int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM conversations WHERE user_id=$1`, userID).Scan(&total)
	metrics.ObserveNetworkRequest("postgres", "conversations_count", "conversations", start, err)
	if err != nil {
		return nil, 0, err
	}

	start = time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+conversationColumns+` FROM conversations
WHERE user_id=$1
ORDER BY updated_at DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "conversations_list", "conversations", start, err)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// DeleteConversation удаляет диалог вместе с сообщениями.
func (p *Postgres) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM conversations WHERE id=$1 AND user_id=$2`, conversationID, userID)
	metrics.ObserveNetworkRequest("postgres", "conversations_delete", "conversations", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateConversationTitle переименовывает диалог.
func (p *Postgres) UpdateConversationTitle(ctx context.Context, userID, conversationID, title string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE conversations SET title=$3 WHERE id=$1 AND user_id=$2`, conversationID, userID, title)
	metrics.ObserveNetworkRequest("postgres", "conversations_update_title", "conversations", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementMessageCount атомарно увеличивает счётчик сообщений.
func (p *Postgres) IncrementMessageCount(ctx context.Context, conversationID string, at time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE conversations SET message_count = message_count + 1, updated_at = $2 WHERE id=$1
`, conversationID, at)
	metrics.ObserveNetworkRequest("postgres", "conversations_increment", "conversations", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		m      domain.Message
		role   string
		tokens sql.NullInt32
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &tokens, &m.CreatedAt); err != nil {
		return domain.Message{}, err
	}
	m.Role = domain.MessageRole(role)
	if tokens.Valid {
		n := int(tokens.Int32)
		m.Tokens = &n
	}
	return m, nil
}

// AppendMessage сохраняет сообщение.
func (p *Postgres) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	var tokens sql.NullInt32
	if msg.Tokens != nil {
		tokens = sql.NullInt32{Int32: int32(*msg.Tokens), Valid: true}
	}
	start := time.Now()
	saved, err := scanMessage(p.pool.QueryRow(ctx, `
INSERT INTO messages (id, conversation_id, role, content, tokens)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, conversation_id, role, content, tokens, created_at
`, msg.ID, msg.ConversationID, string(msg.Role), msg.Content, tokens))
	metrics.ObserveNetworkRequest("postgres", "messages_insert", "messages", start, err)
	return saved, err
}

// RecentMessages возвращает последние сообщения, новые первыми.
func (p *Postgres) RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	return p.queryMessages(ctx, "messages_recent", `
SELECT id, conversation_id, role, content, tokens, created_at FROM messages
WHERE conversation_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, conversationID, limit)
}

// ListMessages возвращает сообщения по возрастанию времени.
func (p *Postgres) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	return p.queryMessages(ctx, "messages_list", `
SELECT id, conversation_id, role, content, tokens, created_at FROM messages
WHERE conversation_id=$1
ORDER BY created_at ASC, id ASC
LIMIT $2
`, conversationID, limit)
}

func (p *Postgres) queryMessages(ctx context.Context, op, query string, conversationID string, limit int) ([]domain.Message, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, conversationID, limit)
	metrics.ObserveNetworkRequest("postgres", op, "messages", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
