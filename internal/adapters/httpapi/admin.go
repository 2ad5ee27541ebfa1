package httpapi

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"vibeailife/internal/usecase/admin"
)

type banRequest struct {
	IsBanned *bool `json:"isBanned" validate:"required"`
}

func adminPage(r *http.Request) (page, limit int) {
	return queryInt(r, "page", 1), queryInt(r, "limit", 20)
}

func (h *Handler) adminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Admin.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, stats)
}

func (h *Handler) adminUsers(w http.ResponseWriter, r *http.Request) {
	page := admin.PageFromQuery(adminPage(r))
	users, total, err := h.Admin.ListUsers(r.Context(), r.URL.Query().Get("search"), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	writeData(w, map[string]any{"users": views, "total": total})
}

func (h *Handler) adminBan(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	targetID := chi.URLParam(r, "id")
	if targetID == currentUserID(r) {
		h.fail(w, r, invalid("不能封禁自己"))
		return
	}
	user, err := h.Admin.SetBanned(r.Context(), targetID, *req.IsBanned)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, toUserView(user))
}

func (h *Handler) adminPayments(w http.ResponseWriter, r *http.Request) {
	page := admin.PageFromQuery(adminPage(r))
	payments, total, err := h.Admin.ListPayments(r.Context(), r.URL.Query().Get("status"), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]paymentView, 0, len(payments))
	for _, p := range payments {
		views = append(views, toPaymentView(p))
	}
	writeData(w, map[string]any{"payments": views, "total": total})
}
