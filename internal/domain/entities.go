package domain

import "time"

// User описывает пользователя приложения.
type User struct {
	ID                string
	TGUserID          int64
	Email             string
	Name              string
	Region            Region
	Tier              Tier
	Role              UserRole
	PreferredProvider ProviderName
	HasOnboarded      bool
	IsBanned          bool
	StripeCustomerID  string
	LastActiveAt      *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TelegramProfile содержит данные профиля из Telegram.
type TelegramProfile struct {
	TGUserID  int64
	FirstName string
	LastName  string
	Username  string
	Locale    string
}

// DisplayName возвращает имя для приветствия.
func (p TelegramProfile) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.Username
	}
}

// Identity: аутентифицированный субъект запроса.
type Identity struct {
	UserID string
	Role   UserRole
}

// IsAdmin сообщает, есть ли у субъекта права администратора.
func (i Identity) IsAdmin() bool {
	return i.Role == UserRoleAdmin
}

// Conversation: диалог пользователя с ассистентом в одном режиме.
type Conversation struct {
	ID           string
	UserID       string
	Mode         ChatMode
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Messages     []Message
}

// Message: неизменяемое сообщение диалога.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	Tokens         *int
	CreatedAt      time.Time
}

// FortuneEntry: запись каталога предсказаний.
type FortuneEntry struct {
	ID                  string
	Type                FortuneType
	Level               FortuneLevel
	Title               string
	Text                string
	Interpretation      string
	ApplicableScenarios []string
	AIHints             []string
	Tone                FortuneTone
}

// DailyFortune: единственная запись пользователя за календарный день.
type DailyFortune struct {
	ID           string
	UserID       string
	FortuneID    string
	DrawDate     time.Time
	Skipped      bool
	AppliedCount int
	CreatedAt    time.Time
	Fortune      *FortuneEntry
}

// Context возвращает контекст предсказания для подмешивания в ответы. ok=false, если день пропущен.
func (d DailyFortune) Context() (FortuneContext, bool) {
	if d.Skipped || d.FortuneID == "" || d.Fortune == nil {
		return FortuneContext{}, false
	}
	f := d.Fortune
	return FortuneContext{
		FortuneID:           f.ID,
		Title:               f.Title,
		Text:                f.Text,
		Interpretation:      f.Interpretation,
		ApplicableScenarios: f.ApplicableScenarios,
		AIHints:             f.AIHints,
		Tone:                f.Tone,
	}, true
}

// FortuneContext: срез предсказания, который нужен классификатору и композитору промптов.
type FortuneContext struct {
	FortuneID           string
	Title               string
	Text                string
	Interpretation      string
	ApplicableScenarios []string
	AIHints             []string
	Tone                FortuneTone
}

// UsageLimit: счётчики использования за период YYYY-MM.
type UsageLimit struct {
	UserID       string
	Period       string
	MessageCount int
	VibeCount    int
	GoalCount    int
	TokensUsed   int
	ResetAt      time.Time
}

// UsageDelta описывает атомарное приращение счётчиков.
type UsageDelta struct {
	Messages int
	Vibes    int
	Goals    int
	Tokens   int
}

// VibeRecord: отметка настроения и энергии.
type VibeRecord struct {
	ID         string
	UserID     string
	Mood       int
	Energy     int
	Tags       []string
	Note       string
	AIResponse string
	CreatedAt  time.Time
}

// Goal: цель пользователя.
type Goal struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Deadline    *time.Time
	Status      GoalStatus
	Progress    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GoalCheckin: отметка о продвижении цели.
type GoalCheckin struct {
	ID        string
	GoalID    string
	Note      string
	CreatedAt time.Time
}

// Subscription: платная подписка пользователя.
type Subscription struct {
	UserID               string
	Plan                 Tier
	Status               SubscriptionStatus
	StripeSubscriptionID string
	CurrentPeriodEnd     *time.Time
	UpdatedAt            time.Time
}

// Payment: платёж, полученный от платёжного провайдера.
type Payment struct {
	ID          string
	UserID      string
	UserEmail   string
	UserName    string
	ExternalID  string
	Plan        Tier
	AmountMinor int64
	Currency    string
	Status      PaymentStatus
	CreatedAt   time.Time
}

// Page описывает пагинацию списка.
type Page struct {
	Limit  int
	Offset int
}

// UserFilter: фильтр списка пользователей в админке.
type UserFilter struct {
	Search string
	Page
}

// PaymentFilter: фильтр списка платежей.
type PaymentFilter struct {
	Status PaymentStatus
	Page
}

// UserStats: агрегаты по пользователям для админки.
type UserStats struct {
	TotalUsers     int     `json:"totalUsers"`
	ActiveUsers    int     `json:"activeUsers"`
	PaidUsers      int     `json:"paidUsers"`
	ConversionRate float64 `json:"conversionRate"`
}
