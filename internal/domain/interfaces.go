package domain

import (
	"context"
	"time"
)

// UserRepo управляет пользователями.
type UserRepo interface {
	GetUser(ctx context.Context, id string) (User, error)
	UpsertByTGID(ctx context.Context, profile TelegramProfile) (User, bool, error)
	UpdatePreferredProvider(ctx context.Context, userID string, provider ProviderName) (User, error)
	CompleteOnboarding(ctx context.Context, userID, name string, region Region) (User, error)
	TouchLastActive(ctx context.Context, userID string, at time.Time) error
}

// AdminUserRepo: операции админки над пользователями.
type AdminUserRepo interface {
	ListUsers(ctx context.Context, filter UserFilter) ([]User, int, error)
	UserStats(ctx context.Context, activeSince time.Time) (UserStats, error)
	SetBanned(ctx context.Context, userID string, banned bool) (User, error)
}

// ConversationRepo хранит диалоги и их сообщения.
type ConversationRepo interface {
	CreateConversation(ctx context.Context, conv Conversation) (Conversation, error)
	// GetConversation возвращает ErrNotFound, если диалог не принадлежит userID.
	GetConversation(ctx context.Context, userID, conversationID string) (Conversation, error)
	ListConversations(ctx context.Context, userID string, page Page) ([]Conversation, int, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) error
	UpdateConversationTitle(ctx context.Context, userID, conversationID, title string) error
	// IncrementMessageCount атомарно увеличивает счётчик и обновляет updated_at.
	IncrementMessageCount(ctx context.Context, conversationID string, at time.Time) error
}

// MessageRepo хранит сообщения.
type MessageRepo interface {
	AppendMessage(ctx context.Context, msg Message) (Message, error)
	// RecentMessages возвращает до limit последних сообщений, новые первыми.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// ListMessages возвращает сообщения по возрастанию created_at.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

// FortuneRepo: хранилище каталога и ежедневных записей. Уникальность (user, day) обеспечивает само хранилище.
type FortuneRepo interface {
	GetDailyFortune(ctx context.Context, userID string, day time.Time) (DailyFortune, error)
	// InsertDraw возвращает ErrAlreadyDrawn при конфликте уникальности.
	InsertDraw(ctx context.Context, userID, fortuneID string, day time.Time) (DailyFortune, error)
	// InsertSkip возвращает false без ошибки, если запись за день уже есть.
	InsertSkip(ctx context.Context, userID string, day time.Time) (bool, error)
	// IncrementApplied атомарно увеличивает applied_count; ErrNotFound, если записи нет.
	IncrementApplied(ctx context.Context, userID string, day time.Time) error
	RecentFortuneIDs(ctx context.Context, userID string, since time.Time) ([]string, error)
	ListFortuneCandidates(ctx context.Context, fortuneType FortuneType, exclude []string, limit int) ([]FortuneEntry, error)
	ListFortuneHistory(ctx context.Context, userID string, page Page) ([]DailyFortune, int, error)
	DeleteDailyFortunes(ctx context.Context, userID string, since time.Time) (int, error)
	UpsertFortuneEntry(ctx context.Context, entry FortuneEntry) error
}

// UsageRepo хранит помесячные счётчики.
type UsageRepo interface {
	// GetUsage возвращает ErrNotFound, если за период ещё нет записи.
	GetUsage(ctx context.Context, userID, period string) (UsageLimit, error)
	// AddUsage атомарно создаёт запись периода или увеличивает её счётчики.
	AddUsage(ctx context.Context, userID, period string, resetAt time.Time, delta UsageDelta) error
}

// VibeRepo хранит отметки настроения.
type VibeRepo interface {
	CreateVibe(ctx context.Context, rec VibeRecord) (VibeRecord, error)
	GetVibe(ctx context.Context, id string) (VibeRecord, error)
	SetVibeAnalysis(ctx context.Context, id, analysis string) error
	ListVibes(ctx context.Context, userID string, page Page) ([]VibeRecord, int, error)
	// VibesSince возвращает отметки по возрастанию времени.
	VibesSince(ctx context.Context, userID string, since time.Time) ([]VibeRecord, error)
	// RecentVibes возвращает последние отметки, новые первыми.
	RecentVibes(ctx context.Context, userID string, limit int) ([]VibeRecord, error)
}

// GoalRepo хранит цели и отметки прогресса.
type GoalRepo interface {
	CreateGoal(ctx context.Context, goal Goal) (Goal, error)
	GetGoal(ctx context.Context, userID, goalID string) (Goal, error)
	ListGoals(ctx context.Context, userID string, status GoalStatus) ([]Goal, error)
	UpdateGoal(ctx context.Context, goal Goal) (Goal, error)
	DeleteGoal(ctx context.Context, userID, goalID string) error
	// CheckinGoal добавляет отметку и атомарно повышает прогресс на step, не выше 100.
	CheckinGoal(ctx context.Context, userID, goalID, note string, step int) (GoalCheckin, int, error)
	ListCheckins(ctx context.Context, userID, goalID string) ([]GoalCheckin, error)
}

// BillingRepo хранит подписки и платежи.
type BillingRepo interface {
	GetSubscription(ctx context.Context, userID string) (Subscription, error)
	UpsertSubscription(ctx context.Context, sub Subscription) error
	SetTier(ctx context.Context, userID string, tier Tier) error
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error
	FindUserByStripeCustomer(ctx context.Context, customerID string) (User, error)
	// RecordPayment идемпотентен по ExternalID; false: платёж уже был записан.
	RecordPayment(ctx context.Context, payment Payment) (bool, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, int, error)
}

// ChatMessage: сообщение в формате LLM.
type ChatMessage struct {
	Role    string
	Content string
}

// CompletionRequest описывает запрос к провайдеру.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// ChatProvider: OpenAI-совместимый бэкенд с обычным и потоковым режимом.
type ChatProvider interface {
	Name() ProviderName
	Model(tier Tier) string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Stream вызывает onDelta на каждый фрагмент и возвращает полный текст.
	Stream(ctx context.Context, req CompletionRequest, onDelta func(string)) (string, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
