package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"vibeailife/internal/adapters/telegram"
	"vibeailife/internal/domain"
	"vibeailife/internal/infra/metrics"
	"vibeailife/internal/usecase/chat"
	"vibeailife/internal/usecase/fortune"
)

const sessionTTL = 30 * 24 * time.Hour

// Sender: часть BotAPI, которой пользуется обработчик.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Accounts регистрирует пользователей Telegram.
type Accounts interface {
	EnsureTelegramUser(ctx context.Context, profile domain.TelegramProfile) (domain.User, error)
}

// Fortunes: ежедневные предсказания.
type Fortunes interface {
	Draw(ctx context.Context, userID string, fortuneType domain.FortuneType) (fortune.DrawResult, error)
	Skip(ctx context.Context, userID string) (fortune.SkipResult, error)
	Status(ctx context.Context, userID string) (fortune.Status, error)
}

// Chats: диалоги с ассистентом.
type Chats interface {
	CreateConversation(ctx context.Context, userID, mode, title string) (domain.Conversation, error)
	SendMessage(ctx context.Context, in chat.TurnInput, sink *chat.StreamSink) (chat.TurnResult, error)
}

// Handler обслуживает вебхук бота.
type Handler struct {
	bot      Sender
	log      zerolog.Logger
	accounts Accounts
	fortunes Fortunes
	chats    Chats
	sessions domain.Cache
}

// NewHandler создаёт обработчик. sessions хранит текущий диалог пользователя бота.
func NewHandler(bot Sender, log zerolog.Logger, accounts Accounts, fortunes Fortunes, chats Chats, sessions domain.Cache) *Handler {
	return &Handler{
		bot:      bot,
		log:      log.With().Str("component", "bot").Logger(),
		accounts: accounts,
		fortunes: fortunes,
		chats:    chats,
		sessions: sessions,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func profileOf(u *tgbotapi.User) domain.TelegramProfile {
	return domain.TelegramProfile{
		TGUserID:  u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.UserName,
		Locale:    u.LanguageCode,
	}
}

func (h *Handler) identify(ctx context.Context, chatID int64, from *tgbotapi.User) (domain.User, bool) {
	if from == nil {
		h.reply(chatID, "无法识别用户", nil)
		return domain.User{}, false
	}
	user, err := h.accounts.EnsureTelegramUser(ctx, profileOf(from))
	if err != nil {
		h.log.Error().Err(err).Int64("tg_user_id", from.ID).Msg("не удалось сохранить профиль")
		h.reply(chatID, "出错了，请稍后再试", nil)
		return domain.User{}, false
	}
	if user.IsBanned {
		h.reply(chatID, "账号已被停用", nil)
		return domain.User{}, false
	}
	return user, true
}

// parseCommand разбирает "/cmd@bot args".
func parseCommand(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(args), true
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID
	user, ok := h.identify(ctx, chatID, msg.From)
	if !ok {
		return
	}
	cmd, args, isCmd := parseCommand(text)
	if !isCmd {
		h.handleChat(ctx, chatID, msg.From.ID, user, text)
		return
	}
	switch cmd {
	case "start":
		h.reply(chatID, buildStartMessage(user), mainKeyboard())
	case "help":
		h.reply(chatID, buildHelpMessage(), mainKeyboard())
	case "draw":
		h.handleDraw(ctx, chatID, user, args)
	case "skip":
		h.handleSkip(ctx, chatID, user)
	case "fortune":
		h.handleStatus(ctx, chatID, user)
	case "mode":
		if args == "" {
			h.reply(chatID, "选择聊天模式：", modeKeyboard())
			return
		}
		h.handleMode(ctx, chatID, msg.From.ID, user, args)
	default:
		h.reply(chatID, "未知命令，发送 /help 查看帮助", nil)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		h.log.Warn().Err(err).Msg("не удалось ответить на callback")
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	user, ok := h.identify(ctx, chatID, cb.From)
	if !ok {
		return
	}
	switch data := cb.Data; {
	case data == "draw":
		h.handleDraw(ctx, chatID, user, "")
	case data == "skip":
		h.handleSkip(ctx, chatID, user)
	case data == "fortune":
		h.handleStatus(ctx, chatID, user)
	case data == "help":
		h.reply(chatID, buildHelpMessage(), nil)
	case strings.HasPrefix(data, "mode:"):
		h.handleMode(ctx, chatID, cb.From.ID, user, strings.TrimPrefix(data, "mode:"))
	}
}

func (h *Handler) handleDraw(ctx context.Context, chatID int64, user domain.User, rawType string) {
	fortuneType, err := domain.ParseFortuneType(rawType)
	if err != nil {
		h.reply(chatID, "签文类型：growth、career、relationship、general，例如 /draw career", nil)
		return
	}
	res, err := h.fortunes.Draw(ctx, user.ID, fortuneType)
	switch {
	case errors.Is(err, domain.ErrAlreadyDrawn):
		h.reply(chatID, "今天已经抽过签或跳过了，发送 /fortune 查看今日签文", nil)
	case errors.Is(err, domain.ErrNoFortuneAvailable):
		h.reply(chatID, "签筒暂时空了，请稍后再试", nil)
	case err != nil:
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("не удалось вытянуть предсказание")
		h.reply(chatID, "出错了，请稍后再试", nil)
	default:
		h.reply(chatID, formatFortune(res.Fortune), nil)
	}
}

func (h *Handler) handleSkip(ctx context.Context, chatID int64, user domain.User) {
	res, err := h.fortunes.Skip(ctx, user.ID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("не удалось пропустить день")
		h.reply(chatID, "出错了，请稍后再试", nil)
		return
	}
	if res.Message != "" {
		h.reply(chatID, res.Message, nil)
		return
	}
	h.reply(chatID, "好的，今天不抽签。明天见！", nil)
}

func (h *Handler) handleStatus(ctx context.Context, chatID int64, user domain.User) {
	st, err := h.fortunes.Status(ctx, user.ID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("не удалось получить статус дня")
		h.reply(chatID, "出错了，请稍后再试", nil)
		return
	}
	switch {
	case !st.HasDrawn:
		h.reply(chatID, "今天还没有抽签，发送 /draw 抽一支吧", fortuneKeyboard())
	case st.Skipped || st.Fortune == nil:
		h.reply(chatID, "今天已跳过抽签", nil)
	default:
		text := formatFortune(*st.Fortune) + fmt.Sprintf("\n\n今天已在对话中引用 %d 次", st.AppliedCount)
		h.reply(chatID, text, nil)
	}
}

func (h *Handler) handleMode(ctx context.Context, chatID, tgUserID int64, user domain.User, rawMode string) {
	conv, err := h.chats.CreateConversation(ctx, user.ID, rawMode, "")
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("не удалось создать диалог")
		h.reply(chatID, "出错了，请稍后再试", nil)
		return
	}
	h.rememberConversation(ctx, tgUserID, conv.ID)
	h.reply(chatID, fmt.Sprintf("已切换到「%s」模式，开始聊天吧", modeName(conv.Mode)), nil)
}

func (h *Handler) handleChat(ctx context.Context, chatID, tgUserID int64, user domain.User, text string) {
	convID, err := h.currentConversation(ctx, tgUserID, user.ID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("не удалось получить диалог")
		h.reply(chatID, "出错了，请稍后再试", nil)
		return
	}
	h.typing(chatID)
	res, err := h.chats.SendMessage(ctx, chat.TurnInput{User: user, ConversationID: convID, Content: text}, nil)
	if errors.Is(err, domain.ErrNotFound) {
		if convID, err = h.newConversation(ctx, tgUserID, user.ID); err == nil {
			res, err = h.chats.SendMessage(ctx, chat.TurnInput{User: user, ConversationID: convID, Content: text}, nil)
		}
	}
	var limitErr *domain.RateLimitError
	switch {
	case errors.As(err, &limitErr):
		h.reply(chatID, limitErr.Message, nil)
	case errors.Is(err, domain.ErrInvalidInput):
		h.reply(chatID, fmt.Sprintf("消息不能为空，且不超过 %d 字", domain.MaxMessageRunes), nil)
	case err != nil:
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("ход диалога не выполнен")
		h.reply(chatID, "出错了，请稍后再试", nil)
	default:
		h.reply(chatID, res.Message.Content, nil)
	}
}

func sessionKey(tgUserID int64) string {
	return "bot:conversation:" + strconv.FormatInt(tgUserID, 10)
}

func (h *Handler) currentConversation(ctx context.Context, tgUserID int64, userID string) (string, error) {
	raw, err := h.sessions.Get(ctx, sessionKey(tgUserID))
	if err == nil && len(raw) > 0 {
		return string(raw), nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		h.log.Warn().Err(err).Msg("не удалось прочитать сессию бота")
	}
	return h.newConversation(ctx, tgUserID, userID)
}

func (h *Handler) newConversation(ctx context.Context, tgUserID int64, userID string) (string, error) {
	conv, err := h.chats.CreateConversation(ctx, userID, string(domain.ChatModeFriend), "")
	if err != nil {
		return "", err
	}
	h.rememberConversation(ctx, tgUserID, conv.ID)
	return conv.ID, nil
}

func (h *Handler) rememberConversation(ctx context.Context, tgUserID int64, conversationID string) {
	if err := h.sessions.Set(ctx, sessionKey(tgUserID), []byte(conversationID), sessionTTL); err != nil {
		h.log.Warn().Err(err).Msg("не удалось сохранить сессию бота")
	}
}

func (h *Handler) typing(chatID int64) {
	if _, err := h.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		h.log.Debug().Err(err).Msg("chat action failed")
	}
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text, telegram.MessageLimit)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎋 抽签", "draw"),
			tgbotapi.NewInlineKeyboardButtonData("📜 今日签文", "fortune"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💬 聊天模式", "mode:"+string(domain.ChatModeFriend)),
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ 帮助", "help"),
		),
	)
	return &buttons
}

func fortuneKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎋 抽签", "draw"),
			tgbotapi.NewInlineKeyboardButtonData("今天跳过", "skip"),
		),
	)
	return &buttons
}

func modeKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(modeName(domain.ChatModeFriend), "mode:"+string(domain.ChatModeFriend)),
			tgbotapi.NewInlineKeyboardButtonData(modeName(domain.ChatModeCoach), "mode:"+string(domain.ChatModeCoach)),
			tgbotapi.NewInlineKeyboardButtonData(modeName(domain.ChatModeListener), "mode:"+string(domain.ChatModeListener)),
		),
	)
	return &buttons
}

func modeName(m domain.ChatMode) string {
	switch m {
	case domain.ChatModeCoach:
		return "成长教练"
	case domain.ChatModeListener:
		return "倾听者"
	default:
		return "朋友"
	}
}

func formatFortune(f domain.FortuneEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎋 %s\n\n%s", f.Title, f.Text)
	if f.Interpretation != "" {
		fmt.Fprintf(&b, "\n\n解读：%s", f.Interpretation)
	}
	return b.String()
}

func buildStartMessage(user domain.User) string {
	name := user.Name
	if name == "" {
		name = "朋友"
	}
	return fmt.Sprintf("你好，%s！我是你的 AI 生活伙伴。\n\n每天抽一支签，它会悄悄融入我们的对话。直接发消息就可以和我聊天。\n\n发送 /help 查看全部命令。", name)
}

func buildHelpMessage() string {
	lines := []string{
		"可用命令：",
		"/draw [growth|career|relationship|general]：抽取今日签文",
		"/skip：今天不抽签",
		"/fortune：查看今日签文",
		"/mode friend|coach|listener：开启新的对话模式",
		"",
		"直接发送文字即可继续当前对话。",
	}
	return strings.Join(lines, "\n")
}
