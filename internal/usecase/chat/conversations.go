package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vibeailife/internal/domain"
)

const conversationMessagesLimit = 500

// CreateConversation создаёт диалог. Неизвестный режим превращается в FRIEND.
func (s *Service) CreateConversation(ctx context.Context, userID, mode, title string) (domain.Conversation, error) {
	m := domain.ParseChatMode(mode)
	title = strings.TrimSpace(title)
	if title == "" {
		title = m.DefaultTitle()
	}
	conv, err := s.convs.CreateConversation(ctx, domain.Conversation{
		ID:     uuid.NewString(),
		UserID: userID,
		Mode:   m,
		Title:  title,
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("создание диалога: %w", err)
	}
	return conv, nil
}

// ListConversations возвращает диалоги по убыванию updatedAt.
func (s *Service) ListConversations(ctx context.Context, userID string, page domain.Page) ([]domain.Conversation, int, error) {
	if page.Limit <= 0 {
		page.Limit = 20
	}
	items, total, err := s.convs.ListConversations(ctx, userID, page)
	if err != nil {
		return nil, 0, fmt.Errorf("список диалогов: %w", err)
	}
	return items, total, nil
}

// GetConversation возвращает диалог с сообщениями по возрастанию.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID string) (domain.Conversation, error) {
	conv, err := s.convs.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("диалог: %w", err)
	}
	msgs, err := s.msgs.ListMessages(ctx, conv.ID, conversationMessagesLimit)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("сообщения диалога: %w", err)
	}
	conv.Messages = msgs
	return conv, nil
}

// ListMessages возвращает сообщения диалога владельца.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string, limit int) ([]domain.Message, error) {
	if _, err := s.convs.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, fmt.Errorf("диалог: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}
	msgs, err := s.msgs.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("сообщения диалога: %w", err)
	}
	return msgs, nil
}

// DeleteConversation удаляет диалог владельца.
func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if err := s.convs.DeleteConversation(ctx, userID, conversationID); err != nil {
		return fmt.Errorf("удаление диалога: %w", err)
	}
	return nil
}

// RenameConversation меняет заголовок.
func (s *Service) RenameConversation(ctx context.Context, userID, conversationID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("пустой заголовок: %w", domain.ErrInvalidInput)
	}
	if err := s.convs.UpdateConversationTitle(ctx, userID, conversationID, title); err != nil {
		return fmt.Errorf("переименование диалога: %w", err)
	}
	return nil
}
