package httpapi

import (
	"net/http"
	"time"

	"vibeailife/internal/usecase/recommend"
)

type settingsRequest struct {
	PreferredProvider string `json:"preferredProvider" validate:"required,oneof=openai zhipu auto"`
}

type onboardingRequest struct {
	Name   string `json:"name" validate:"max=50"`
	Region string `json:"region" validate:"omitempty,oneof=cn international"`
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Accounts.GetSettings(r.Context(), currentUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, s)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.Accounts.UpdateSettings(r.Context(), currentUserID(r), req.PreferredProvider)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, s)
}

func (h *Handler) onboarding(w http.ResponseWriter, r *http.Request) {
	var req onboardingRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.Accounts.CompleteOnboarding(r.Context(), currentUserID(r), req.Name, req.Region)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, toUserView(user))
}

type usageView struct {
	Period       string    `json:"period"`
	MessageCount int       `json:"messageCount"`
	VibeCount    int       `json:"vibeCount"`
	GoalCount    int       `json:"goalCount"`
	TokensUsed   int       `json:"tokensUsed"`
	MaxMessages  int       `json:"maxMessages"`
	MaxVibes     int       `json:"maxVibes"`
	ResetAt      time.Time `json:"resetAt"`
}

func (h *Handler) usageLimit(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.Usage.GetUsage(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, usageView{
		Period:       s.Period,
		MessageCount: s.MessageCount,
		VibeCount:    s.VibeCount,
		GoalCount:    s.GoalCount,
		TokensUsed:   s.TokensUsed,
		MaxMessages:  s.MaxMessages,
		MaxVibes:     s.MaxVibes,
		ResetAt:      s.ResetAt,
	})
}

func (h *Handler) recommendations(w http.ResponseWriter, r *http.Request) {
	list, err := h.Recommend.For(r.Context(), currentUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []recommend.Recommendation{}
	}
	writeData(w, list)
}
