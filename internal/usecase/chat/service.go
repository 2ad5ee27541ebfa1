// Package chat ведёт диалоги и выполняет ход: сообщение пользователя, окно контекста,
// решение о предсказании, запрос к LLM и сохранение ответа.
package chat

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/metrics"
	"vibeailife/internal/usecase/dispatch"
	"vibeailife/internal/usecase/fortune"
	"vibeailife/internal/usecase/prompt"
)

var apologies = []string{
	"抱歉，我现在有点困难，请稍后再试试。",
	"嗯...我遇到了一些技术问题。能换个话题或者稍后再聊吗？",
	"抱歉，我需要休息一下。我们可以待会儿继续聊天。",
}

const titleRunes = 30

// FortuneStore: дневное предсказание пользователя.
type FortuneStore interface {
	TodayFortune(ctx context.Context, userID string) (domain.FortuneContext, bool, error)
	CountAppliedToday(ctx context.Context, userID string) (int, error)
	IncrementApplied(ctx context.Context, userID string) error
}

// Classifier решает, подмешивать ли предсказание.
type Classifier interface {
	Decide(message string, fc domain.FortuneContext, firstTurn bool) fortune.Decision
}

// LLM выполняет запрос к провайдерам.
type LLM interface {
	Chat(ctx context.Context, req dispatch.Request, stream *dispatch.StreamOptions) (dispatch.Result, error)
}

// Usage учитывает сообщения по тарифу.
type Usage interface {
	CheckMessageQuota(ctx context.Context, user domain.User) error
	AddMessage(ctx context.Context, userID string, tokens int) error
}

// Activity отмечает активность пользователя.
type Activity interface {
	TouchLastActive(ctx context.Context, userID string, at time.Time) error
}

// Service: диалоги и ходы.
type Service struct {
	convs      domain.ConversationRepo
	msgs       domain.MessageRepo
	fortunes   FortuneStore
	classifier Classifier
	llm        LLM
	usage      Usage
	activity   Activity
	now        func() time.Time
	pick       func(n int) int
	log        zerolog.Logger
}

// NewService создаёт сервис диалогов.
func NewService(convs domain.ConversationRepo, msgs domain.MessageRepo, fortunes FortuneStore, classifier Classifier, llm LLM, usage Usage, activity Activity, logger zerolog.Logger) *Service {
	return &Service{
		convs:      convs,
		msgs:       msgs,
		fortunes:   fortunes,
		classifier: classifier,
		llm:        llm,
		usage:      usage,
		activity:   activity,
		now:        time.Now,
		pick:       rand.IntN,
		log:        logger.With().Str("component", "chat").Logger(),
	}
}

// SetClock подменяет часы.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// TurnInput: входящее сообщение.
type TurnInput struct {
	User           domain.User
	ConversationID string
	Content        string
}

// StreamSink получает фрагменты ответа. OnComplete вызывается после сохранения ответа.
type StreamSink struct {
	OnChunk    func(chunk string)
	OnComplete func(res TurnResult)
}

// TurnResult: итог хода.
type TurnResult struct {
	Message        domain.Message
	Fortune        *domain.FortuneContext
	FortuneApplied bool
	Apology        bool
}

// ValidateContent проверяет текст сообщения.
func ValidateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", fmt.Errorf("пустое сообщение: %w", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > domain.MaxMessageRunes {
		return "", fmt.Errorf("сообщение длиннее %d символов: %w", domain.MaxMessageRunes, domain.ErrInvalidInput)
	}
	return content, nil
}

// SendMessage выполняет ход. sink=nil: обычный режим.
// После проверки владения ход доводится до сохранения ответа даже при отмене ctx.
func (s *Service) SendMessage(ctx context.Context, in TurnInput, sink *StreamSink) (TurnResult, error) {
	content, err := ValidateContent(in.Content)
	if err != nil {
		return TurnResult{}, err
	}
	if err := s.usage.CheckMessageQuota(ctx, in.User); err != nil {
		return TurnResult{}, err
	}
	conv, err := s.convs.GetConversation(ctx, in.User.ID, in.ConversationID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("диалог: %w", err)
	}

	work := context.WithoutCancel(ctx)
	if _, err := s.msgs.AppendMessage(work, domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           domain.MessageRoleUser,
		Content:        content,
		CreatedAt:      s.now(),
	}); err != nil {
		return TurnResult{}, fmt.Errorf("сохранение сообщения: %w", err)
	}

	window, err := s.contextWindow(work, conv.ID)
	if err != nil {
		return TurnResult{}, err
	}
	firstTurn := len(window) == 1

	fc, applied, err := s.decideFortune(work, in.User.ID, content, firstTurn)
	if err != nil {
		return TurnResult{}, err
	}
	res := TurnResult{Fortune: fc}
	extra := ""
	if applied {
		res.FortuneApplied = true
		extra = prompt.FortuneBlock(*fc)
		if err := s.fortunes.IncrementApplied(work, in.User.ID); err != nil {
			return TurnResult{}, err
		}
	}

	req := dispatch.Request{
		Messages:          window,
		Region:            in.User.Region,
		Tier:              in.User.Tier,
		Mode:              conv.Mode,
		ProviderOverride:  in.User.PreferredProvider,
		ExtraSystemPrompt: extra,
	}
	var stream *dispatch.StreamOptions
	if sink != nil && sink.OnChunk != nil {
		stream = &dispatch.StreamOptions{OnChunk: sink.OnChunk}
	}
	reply, err := s.llm.Chat(work, req, stream)
	text := reply.Text
	if err != nil {
		text = apologies[s.pick(len(apologies))]
		res.Apology = true
		metrics.IncApology()
		s.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("providers failed, replying with apology")
		if stream != nil {
			sink.OnChunk(text)
		}
	}

	tokens := dispatch.EstimateTokens(text)
	msg, err := s.msgs.AppendMessage(work, domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           domain.MessageRoleAssistant,
		Content:        text,
		Tokens:         &tokens,
		CreatedAt:      s.now(),
	})
	if err != nil {
		metrics.ObserveChatTurn(string(conv.Mode), "error")
		return TurnResult{}, fmt.Errorf("сохранение ответа: %w", err)
	}
	if err := s.convs.IncrementMessageCount(work, conv.ID, s.now()); err != nil {
		metrics.ObserveChatTurn(string(conv.Mode), "error")
		return TurnResult{}, fmt.Errorf("счётчик сообщений: %w", err)
	}
	res.Message = msg

	if firstTurn && (conv.Title == "" || conv.Title == conv.Mode.DefaultTitle()) {
		if err := s.convs.UpdateConversationTitle(work, in.User.ID, conv.ID, TitleFromMessage(content)); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("title not updated")
		}
	}
	if err := s.usage.AddMessage(work, in.User.ID, tokens); err != nil {
		s.log.Warn().Err(err).Str("user_id", in.User.ID).Msg("usage not counted")
	}
	if s.activity != nil {
		if err := s.activity.TouchLastActive(work, in.User.ID, s.now()); err != nil {
			s.log.Debug().Err(err).Str("user_id", in.User.ID).Msg("last active not touched")
		}
	}

	outcome := "ok"
	if res.Apology {
		outcome = "apology"
	}
	metrics.ObserveChatTurn(string(conv.Mode), outcome)
	if sink != nil && sink.OnComplete != nil {
		sink.OnComplete(res)
	}
	return res, nil
}

func (s *Service) contextWindow(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	recent, err := s.msgs.RecentMessages(ctx, conversationID, domain.ContextWindowSize)
	if err != nil {
		return nil, fmt.Errorf("окно контекста: %w", err)
	}
	window := make([]domain.ChatMessage, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		window = append(window, domain.ChatMessage{
			Role:    strings.ToLower(string(recent[i].Role)),
			Content: recent[i].Content,
		})
	}
	return window, nil
}

// decideFortune возвращает сегодняшнее предсказание (если есть) и решение о подмешивании.
func (s *Service) decideFortune(ctx context.Context, userID, content string, firstTurn bool) (*domain.FortuneContext, bool, error) {
	fc, ok, err := s.fortunes.TodayFortune(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		s.log.Debug().Str("user_id", userID).Msg("no fortune today")
		return nil, false, nil
	}
	applied, err := s.fortunes.CountAppliedToday(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if applied >= domain.MaxDailyFortuneApplied {
		s.log.Debug().Str("user_id", userID).Int("applied", applied).Msg("fortune cap reached")
		metrics.ObserveFortuneInjection("capped")
		return &fc, false, nil
	}
	decision := s.classifier.Decide(content, fc, firstTurn)
	s.log.Debug().
		Str("user_id", userID).
		Str("fortune_id", fc.FortuneID).
		Bool("first_turn", firstTurn).
		Bool("apply", decision.Apply).
		Str("reason", string(decision.Reason)).
		Msg("fortune decision")
	metrics.ObserveFortuneInjection(string(decision.Reason))
	return &fc, decision.Apply, nil
}

// TitleFromMessage: первые 30 символов сообщения, с многоточием при обрезке.
func TitleFromMessage(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= titleRunes {
		return content
	}
	return string([]rune(content)[:titleRunes]) + "..."
}
