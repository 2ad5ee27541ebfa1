// Package httpapi: REST и SSE поверхность приложения под /api/v1.
package httpapi

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	httpinfra "vibeailife/internal/infra/http"
	"vibeailife/internal/usecase/account"
	"vibeailife/internal/usecase/admin"
	"vibeailife/internal/usecase/billing"
	"vibeailife/internal/usecase/chat"
	"vibeailife/internal/usecase/fortune"
	"vibeailife/internal/usecase/goals"
	"vibeailife/internal/usecase/recommend"
	"vibeailife/internal/usecase/usage"
	"vibeailife/internal/usecase/vibe"
)

// Deps: сервисы и middleware, из которых собирается API.
type Deps struct {
	Accounts  *account.Service
	Chat      *chat.Service
	Fortune   *fortune.Service
	Usage     *usage.Service
	Vibe      *vibe.Service
	Goals     *goals.Service
	Recommend *recommend.Service
	Billing   *billing.Service
	Admin     *admin.Service

	// Auth обязателен, RateLimit может быть nil.
	Auth      func(http.Handler) http.Handler
	RateLimit func(http.Handler) http.Handler

	// DevRoutes включает POST /fortune/clear.
	DevRoutes bool
	Logger    zerolog.Logger
}

// Handler обслуживает /api/v1.
type Handler struct {
	Deps
	log zerolog.Logger
}

// NewHandler создаёт обработчик API.
func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d, log: d.Logger.With().Str("component", "httpapi").Logger()}
}

// Mount регистрирует маршруты на роутере.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/subscription/webhook", h.stripeWebhook)

		api.Group(func(p chi.Router) {
			p.Use(h.Auth)
			if h.RateLimit != nil {
				p.Use(h.RateLimit)
			}

			p.Route("/chat/conversations", func(c chi.Router) {
				c.Post("/", h.createConversation)
				c.Get("/", h.listConversations)
				c.Get("/{id}", h.getConversation)
				c.Patch("/{id}", h.renameConversation)
				c.Delete("/{id}", h.deleteConversation)
				c.Post("/{id}/messages", h.sendMessage)
				c.Get("/{id}/messages", h.listMessages)
			})

			p.Route("/fortune", func(f chi.Router) {
				f.Post("/draw", h.drawFortune)
				f.Post("/skip", h.skipFortune)
				f.Get("/today", h.fortuneToday)
				f.Get("/history", h.fortuneHistory)
				if h.DevRoutes {
					f.Post("/clear", h.clearFortune)
				}
			})

			p.Post("/vibe", h.recordVibe)
			p.Get("/vibe", h.listVibes)
			p.Get("/vibe/today", h.vibeToday)
			p.Get("/vibe/trends", h.vibeTrends)

			p.Route("/goals", func(g chi.Router) {
				g.Post("/", h.createGoal)
				g.Get("/", h.listGoals)
				g.Get("/{id}", h.getGoal)
				g.Patch("/{id}", h.updateGoal)
				g.Delete("/{id}", h.deleteGoal)
				g.Post("/{id}/checkin", h.checkinGoal)
				g.Get("/{id}/checkins", h.listCheckins)
			})

			p.Get("/recommendations", h.recommendations)

			p.Get("/user/settings", h.getSettings)
			p.Put("/user/settings", h.updateSettings)
			p.Post("/user/onboarding", h.onboarding)
			p.Get("/user/usage-limit", h.usageLimit)

			p.Post("/subscription/create-checkout", h.createCheckout)
			p.Get("/subscription/manage", h.manageSubscription)

			p.Route("/admin", func(a chi.Router) {
				a.Use(httpinfra.RequireAdmin)
				a.Get("/stats", h.adminStats)
				a.Get("/users", h.adminUsers)
				a.Patch("/users/{id}/ban", h.adminBan)
				a.Get("/payments", h.adminPayments)
			})
		})
	})
}
