package domain

import "strings"

// ChatMode: персона ассистента, фиксируется при создании диалога.
type ChatMode string

const (
	ChatModeFriend   ChatMode = "FRIEND"
	ChatModeCoach    ChatMode = "COACH"
	ChatModeListener ChatMode = "LISTENER"
)

// ParseChatMode возвращает режим; неизвестные значения превращаются в FRIEND.
func ParseChatMode(raw string) ChatMode {
	switch ChatMode(strings.ToUpper(strings.TrimSpace(raw))) {
	case ChatModeCoach:
		return ChatModeCoach
	case ChatModeListener:
		return ChatModeListener
	default:
		return ChatModeFriend
	}
}

// DefaultTitle: заголовок диалога по умолчанию.
func (m ChatMode) DefaultTitle() string {
	switch m {
	case ChatModeCoach:
		return "成长教练"
	case ChatModeListener:
		return "倾诉时光"
	default:
		return "和朋友聊天"
	}
}

// MessageRole: автор сообщения.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "USER"
	MessageRoleAssistant MessageRole = "ASSISTANT"
)

// Region влияет на выбор провайдера по умолчанию.
type Region string

const (
	RegionCN            Region = "cn"
	RegionInternational Region = "international"
)

// ParseRegion нормализует регион.
func ParseRegion(raw string) Region {
	if Region(strings.ToLower(strings.TrimSpace(raw))) == RegionCN {
		return RegionCN
	}
	return RegionInternational
}

// ProviderName: идентификатор LLM-провайдера. Пустое значение означает автоматический выбор.
type ProviderName string

const (
	ProviderOpenAI ProviderName = "openai"
	ProviderZhipu  ProviderName = "zhipu"
)

// ParseProviderPreference разбирает настройку пользователя: openai|zhipu|auto.
func ParseProviderPreference(raw string) (ProviderName, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return "", nil
	case string(ProviderOpenAI):
		return ProviderOpenAI, nil
	case string(ProviderZhipu):
		return ProviderZhipu, nil
	default:
		return "", ErrInvalidInput
	}
}

// MaxMessageRunes ограничивает длину пользовательского сообщения.
const MaxMessageRunes = 2000

// ContextWindowSize: сколько последних сообщений уходит в LLM.
const ContextWindowSize = 20
