package bot

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"vibeailife/internal/adapters/memstore"
	"vibeailife/internal/domain"
	"vibeailife/internal/usecase/account"
	"vibeailife/internal/usecase/chat"
	"vibeailife/internal/usecase/fortune"
)

type fakeSender struct {
	texts []string
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.texts = append(s.texts, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func (s *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (s *fakeSender) last() string {
	if len(s.texts) == 0 {
		return ""
	}
	return s.texts[len(s.texts)-1]
}

type fakeChats struct {
	created []domain.Conversation
	turns   []chat.TurnInput
	reply   string
	err     error
}

func (c *fakeChats) CreateConversation(_ context.Context, userID, mode, _ string) (domain.Conversation, error) {
	m := domain.ParseChatMode(mode)
	conv := domain.Conversation{ID: "conv-" + string(m), UserID: userID, Mode: m, Title: m.DefaultTitle()}
	c.created = append(c.created, conv)
	return conv, nil
}

func (c *fakeChats) SendMessage(_ context.Context, in chat.TurnInput, _ *chat.StreamSink) (chat.TurnResult, error) {
	c.turns = append(c.turns, in)
	if c.err != nil {
		return chat.TurnResult{}, c.err
	}
	return chat.TurnResult{Message: domain.Message{Content: c.reply}}, nil
}

type harness struct {
	handler *Handler
	sender  *fakeSender
	chats   *fakeChats
	store   *memstore.Store
}

func newHarness(t *testing.T) harness {
	t.Helper()
	store := memstore.New()
	err := store.UpsertFortuneEntry(context.Background(), domain.FortuneEntry{
		ID: "f1", Type: domain.FortuneTypeGeneral, Level: domain.FortuneLevelGood,
		Title: "上上签", Text: "流水不争先", Interpretation: "顺势而为", Tone: domain.FortuneToneCalming,
	})
	if err != nil {
		t.Fatalf("не удалось заполнить каталог: %v", err)
	}
	sender := &fakeSender{}
	chats := &fakeChats{reply: "我在呢"}
	h := NewHandler(
		sender,
		zerolog.Nop(),
		account.NewService(store, store, zerolog.Nop()),
		fortune.NewService(store, store, nil, zerolog.Nop()),
		chats,
		memstore.NewCache(),
	)
	return harness{handler: h, sender: sender, chats: chats, store: store}
}

func (hs harness) send(text string) {
	upd := tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: 100},
		From: &tgbotapi.User{ID: 7, FirstName: "Mei", LanguageCode: "zh-hans"},
	}}
	hs.handler.HandleUpdate(context.Background(), upd)
}

func TestFortuneCommands(t *testing.T) {
	hs := newHarness(t)

	hs.send("/fortune")
	if !strings.Contains(hs.sender.last(), "还没有抽签") {
		t.Fatalf("неожиданный ответ: %q", hs.sender.last())
	}
	hs.send("/draw@vibe_bot")
	if !strings.Contains(hs.sender.last(), "上上签") || !strings.Contains(hs.sender.last(), "解读：顺势而为") {
		t.Fatalf("ожидали текст предсказания: %q", hs.sender.last())
	}
	hs.send("/draw")
	if !strings.Contains(hs.sender.last(), "今天已经抽过签") {
		t.Fatalf("повторное вытягивание должно отклоняться: %q", hs.sender.last())
	}
	hs.send("/skip")
	if hs.sender.last() != "今天已经抽过签或跳过了" {
		t.Fatalf("пропуск после вытягивания: %q", hs.sender.last())
	}
	hs.send("/fortune")
	if !strings.Contains(hs.sender.last(), "引用 0 次") {
		t.Fatalf("ожидали статус с счётчиком: %q", hs.sender.last())
	}
	hs.send("/draw zodiac")
	if !strings.Contains(hs.sender.last(), "签文类型") {
		t.Fatalf("неизвестный тип должен давать подсказку: %q", hs.sender.last())
	}
}

func TestChatUsesCurrentConversation(t *testing.T) {
	hs := newHarness(t)

	hs.send("你好")
	hs.send("今天有点累")
	if len(hs.chats.created) != 1 || len(hs.chats.turns) != 2 {
		t.Fatalf("ожидали один диалог и два хода: %d/%d", len(hs.chats.created), len(hs.chats.turns))
	}
	if hs.chats.turns[1].ConversationID != "conv-FRIEND" || hs.sender.last() != "我在呢" {
		t.Fatalf("неожиданный ход: %+v %q", hs.chats.turns[1], hs.sender.last())
	}

	hs.send("/mode coach")
	if !strings.Contains(hs.sender.last(), "成长教练") {
		t.Fatalf("неожиданный ответ смены режима: %q", hs.sender.last())
	}
	hs.send("帮我定个计划")
	if got := hs.chats.turns[len(hs.chats.turns)-1].ConversationID; got != "conv-COACH" {
		t.Fatalf("ход должен идти в новый диалог, получили %s", got)
	}

	hs.chats.err = &domain.RateLimitError{Resource: "messages", Message: "今日聊天次数已达上限"}
	hs.send("还在吗")
	if hs.sender.last() != "今日聊天次数已达上限" {
		t.Fatalf("ожидали сообщение о лимите: %q", hs.sender.last())
	}
}

func TestBannedUserIgnored(t *testing.T) {
	hs := newHarness(t)
	hs.send("/start")
	if !strings.Contains(hs.sender.last(), "你好，Mei") {
		t.Fatalf("неожиданное приветствие: %q", hs.sender.last())
	}
	users, _, _ := hs.store.ListUsers(context.Background(), domain.UserFilter{})
	if _, err := hs.store.SetBanned(context.Background(), users[0].ID, true); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	hs.send("你好")
	if hs.sender.last() != "账号已被停用" || len(hs.chats.turns) != 0 {
		t.Fatalf("заблокированный пользователь не должен общаться: %q", hs.sender.last())
	}
}

func TestParseCommand(t *testing.T) {
	cmd, args, ok := parseCommand("/Draw@vibe_bot  career ")
	if !ok || cmd != "draw" || args != "career" {
		t.Fatalf("неожиданный разбор: %q %q %v", cmd, args, ok)
	}
	if _, _, ok := parseCommand("привет"); ok {
		t.Fatalf("обычный текст не команда")
	}
}
