package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"vibeailife/internal/domain"
)

// CreateConversation создаёт диалог.
func (s *Store) CreateConversation(_ context.Context, conv domain.Conversation) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := s.now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	conv.MessageCount = 0
	conv.Messages = nil
	s.conversations[conv.ID] = conv
	return conv, nil
}

// GetConversation возвращает диалог владельца.
func (s *Store) GetConversation(_ context.Context, userID, conversationID string) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok || c.UserID != userID {
		return domain.Conversation{}, domain.ErrNotFound
	}
	return c, nil
}

// ListConversations возвращает диалоги по убыванию updated_at.
func (s *Store) ListConversations(_ context.Context, userID string, page domain.Page) ([]domain.Conversation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.Conversation
	for _, c := range s.conversations {
		if c.UserID == userID {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	from, to := paginate(len(all), page, 20)
	return all[from:to], len(all), nil
}

// DeleteConversation удаляет диалог и сообщения.
func (s *Store) DeleteConversation(_ context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok || c.UserID != userID {
		return domain.ErrNotFound
	}
	delete(s.conversations, conversationID)
	delete(s.messages, conversationID)
	return nil
}

// UpdateConversationTitle переименовывает диалог.
func (s *Store) UpdateConversationTitle(_ context.Context, userID, conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok || c.UserID != userID {
		return domain.ErrNotFound
	}
	c.Title = title
	s.conversations[conversationID] = c
	return nil
}

// IncrementMessageCount атомарно увеличивает счётчик.
func (s *Store) IncrementMessageCount(_ context.Context, conversationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return domain.ErrNotFound
	}
	c.MessageCount++
	c.UpdatedAt = at
	s.conversations[conversationID] = c
	return nil
}

// AppendMessage сохраняет сообщение.
func (s *Store) AppendMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return domain.Message{}, domain.ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], storedMessage{seq: s.next(), msg: msg})
	return msg, nil
}

func (s *Store) sortedMessages(conversationID string) []storedMessage {
	list := append([]storedMessage(nil), s.messages[conversationID]...)
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].msg.CreatedAt.Equal(list[j].msg.CreatedAt) {
			return list[i].msg.CreatedAt.Before(list[j].msg.CreatedAt)
		}
		return list[i].seq < list[j].seq
	})
	return list
}

// RecentMessages возвращает последние limit сообщений, новые первыми.
func (s *Store) RecentMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sortedMessages(conversationID)
	out := make([]domain.Message, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i].msg)
	}
	return out, nil
}

// ListMessages возвращает первые limit сообщений по возрастанию.
func (s *Store) ListMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	list := s.sortedMessages(conversationID)
	out := make([]domain.Message, 0, len(list))
	for i := 0; i < len(list) && i < limit; i++ {
		out = append(out, list[i].msg)
	}
	return out, nil
}
