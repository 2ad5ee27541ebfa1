package httpapi

import (
	"net/http"

	"vibeailife/internal/usecase/vibe"
)

type vibeRequest struct {
	Mood   int      `json:"mood" validate:"required,min=1,max=5"`
	Energy int      `json:"energy" validate:"required,min=1,max=5"`
	Tags   []string `json:"tags" validate:"max=10,dive,max=20"`
	Note   string   `json:"note" validate:"max=500"`
}

func (h *Handler) recordVibe(w http.ResponseWriter, r *http.Request) {
	var req vibeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rec, err := h.Vibe.RecordVibe(r.Context(), user, vibe.Input{
		Mood:   req.Mood,
		Energy: req.Energy,
		Tags:   req.Tags,
		Note:   req.Note,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, toVibeView(rec))
}

func (h *Handler) listVibes(w http.ResponseWriter, r *http.Request) {
	page := offsetPage(r, 30)
	list, total, err := h.Vibe.List(r.Context(), currentUserID(r), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records := make([]vibeView, 0, len(list))
	for _, v := range list {
		records = append(records, toVibeView(v))
	}
	writeData(w, struct {
		Records []vibeView `json:"records"`
		pageList
	}{records, pageInfo(total, page)})
}

func (h *Handler) vibeToday(w http.ResponseWriter, r *http.Request) {
	has, err := h.Vibe.HasToday(r.Context(), currentUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, has)
}

func (h *Handler) vibeTrends(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	if days < 1 || days > 90 {
		h.fail(w, r, invalid("days 取值范围 1-90"))
		return
	}
	trends, err := h.Vibe.Trends(r.Context(), currentUserID(r), days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, trends)
}
