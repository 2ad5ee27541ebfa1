package httpapi

import (
	"time"

	"vibeailife/internal/domain"
)

type messageView struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func toMessageView(m domain.Message) messageView {
	return messageView{ID: m.ID, Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt}
}

func toMessageViews(list []domain.Message) []messageView {
	out := make([]messageView, 0, len(list))
	for _, m := range list {
		out = append(out, toMessageView(m))
	}
	return out
}

type conversationView struct {
	ID           string        `json:"id"`
	Mode         string        `json:"mode"`
	Title        string        `json:"title"`
	MessageCount int           `json:"messageCount"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Messages     []messageView `json:"messages,omitempty"`
}

func toConversationView(c domain.Conversation) conversationView {
	v := conversationView{
		ID:           c.ID,
		Mode:         string(c.Mode),
		Title:        c.Title,
		MessageCount: c.MessageCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.Messages != nil {
		v.Messages = toMessageViews(c.Messages)
	}
	return v
}

type fortuneView struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Level          string `json:"level"`
	Title          string `json:"title"`
	Text           string `json:"text"`
	Interpretation string `json:"interpretation"`
	Tone           string `json:"tone"`
}

func toFortuneView(f *domain.FortuneEntry) *fortuneView {
	if f == nil {
		return nil
	}
	return &fortuneView{
		ID:             f.ID,
		Type:           string(f.Type),
		Level:          string(f.Level),
		Title:          f.Title,
		Text:           f.Text,
		Interpretation: f.Interpretation,
		Tone:           string(f.Tone),
	}
}

// fortuneSnippet: предсказание в финальном SSE событии.
type fortuneSnippet struct {
	Title          string `json:"title"`
	Text           string `json:"text"`
	Interpretation string `json:"interpretation"`
}

func toFortuneSnippet(fc *domain.FortuneContext) *fortuneSnippet {
	if fc == nil {
		return nil
	}
	return &fortuneSnippet{Title: fc.Title, Text: fc.Text, Interpretation: fc.Interpretation}
}

type historyView struct {
	ID           string       `json:"id"`
	DrawDate     string       `json:"drawDate"`
	Skipped      bool         `json:"skipped"`
	AppliedCount int          `json:"appliedCount"`
	Fortune      *fortuneView `json:"fortune"`
}

const dateLayout = "2006-01-02"

type vibeView struct {
	ID         string    `json:"id"`
	Mood       int       `json:"mood"`
	Energy     int       `json:"energy"`
	Tags       []string  `json:"tags"`
	Note       string    `json:"note"`
	AIResponse string    `json:"aiResponse"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toVibeView(v domain.VibeRecord) vibeView {
	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	return vibeView{
		ID:         v.ID,
		Mood:       v.Mood,
		Energy:     v.Energy,
		Tags:       tags,
		Note:       v.Note,
		AIResponse: v.AIResponse,
		CreatedAt:  v.CreatedAt,
	}
}

type goalView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func toGoalView(g domain.Goal) goalView {
	return goalView{
		ID:          g.ID,
		Title:       g.Title,
		Description: g.Description,
		Deadline:    g.Deadline,
		Status:      string(g.Status),
		Progress:    g.Progress,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

type checkinView struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goalId"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

func toCheckinView(c domain.GoalCheckin) checkinView {
	return checkinView{ID: c.ID, GoalID: c.GoalID, Note: c.Note, CreatedAt: c.CreatedAt}
}

type userView struct {
	ID           string     `json:"id"`
	Email        string     `json:"email,omitempty"`
	Name         string     `json:"name"`
	Region       string     `json:"region"`
	Tier         string     `json:"tier"`
	Role         string     `json:"role"`
	HasOnboarded bool       `json:"hasOnboarded"`
	IsBanned     bool       `json:"isBanned"`
	LastActiveAt *time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func toUserView(u domain.User) userView {
	return userView{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Region:       string(u.Region),
		Tier:         string(u.Tier),
		Role:         string(u.Role),
		HasOnboarded: u.HasOnboarded,
		IsBanned:     u.IsBanned,
		LastActiveAt: u.LastActiveAt,
		CreatedAt:    u.CreatedAt,
	}
}

type paymentView struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	UserEmail  string    `json:"userEmail"`
	UserName   string    `json:"userName"`
	ExternalID string    `json:"externalId"`
	Plan       string    `json:"plan"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toPaymentView(p domain.Payment) paymentView {
	return paymentView{
		ID:         p.ID,
		UserID:     p.UserID,
		UserEmail:  p.UserEmail,
		UserName:   p.UserName,
		ExternalID: p.ExternalID,
		Plan:       string(p.Plan),
		Amount:     p.AmountMinor,
		Currency:   p.Currency,
		Status:     string(p.Status),
		CreatedAt:  p.CreatedAt,
	}
}
