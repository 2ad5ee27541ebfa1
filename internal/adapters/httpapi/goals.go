package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"

	"vibeailife/internal/domain"
	"vibeailife/internal/usecase/goals"
)

type createGoalRequest struct {
	Title       string     `json:"title" validate:"required,max=100"`
	Description string     `json:"description" validate:"max=1000"`
	Deadline    *time.Time `json:"deadline"`
}

// updateGoalRequest различает отсутствующий deadline и явный null.
type updateGoalRequest struct {
	Title       *string         `json:"title" validate:"omitempty,min=1,max=100"`
	Description *string         `json:"description" validate:"omitempty,max=1000"`
	Deadline    json.RawMessage `json:"deadline"`
	Status      *string         `json:"status" validate:"omitempty,oneof=ACTIVE COMPLETED ABANDONED"`
	Progress    *int            `json:"progress" validate:"omitempty,min=0,max=100"`
}

func (req updateGoalRequest) patch() (goals.Patch, error) {
	p := goals.Patch{Title: req.Title, Description: req.Description, Progress: req.Progress}
	if req.Status != nil {
		status := domain.GoalStatus(*req.Status)
		p.Status = &status
	}
	switch {
	case len(req.Deadline) == 0:
	case bytes.Equal(bytes.TrimSpace(req.Deadline), []byte("null")):
		p.ClearDeadline = true
	default:
		var deadline time.Time
		if err := json.Unmarshal(req.Deadline, &deadline); err != nil {
			return goals.Patch{}, invalid("deadline 格式错误")
		}
		p.Deadline = &deadline
	}
	return p, nil
}

type checkinRequest struct {
	Note string `json:"note" validate:"max=500"`
}

func (h *Handler) createGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	goal, err := h.Goals.Create(r.Context(), currentUserID(r), goals.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, toGoalView(goal))
}

func (h *Handler) listGoals(w http.ResponseWriter, r *http.Request) {
	status := domain.GoalStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status != "" && !status.Valid() {
		h.fail(w, r, invalid("未知的目标状态: %s", status))
		return
	}
	list, err := h.Goals.List(r.Context(), currentUserID(r), status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]goalView, 0, len(list))
	for _, g := range list {
		views = append(views, toGoalView(g))
	}
	writeData(w, views)
}

func (h *Handler) getGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := h.Goals.Get(r.Context(), currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, toGoalView(goal))
}

func (h *Handler) updateGoal(w http.ResponseWriter, r *http.Request) {
	var req updateGoalRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	goal, err := h.Goals.Update(r.Context(), currentUserID(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, toGoalView(goal))
}

func (h *Handler) deleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := h.Goals.Delete(r.Context(), currentUserID(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w)
}

func (h *Handler) checkinGoal(w http.ResponseWriter, r *http.Request) {
	var req checkinRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	c, progress, err := h.Goals.Checkin(r.Context(), currentUserID(r), chi.URLParam(r, "id"), req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, map[string]any{"checkin": toCheckinView(c), "newProgress": progress})
}

func (h *Handler) listCheckins(w http.ResponseWriter, r *http.Request) {
	list, err := h.Goals.ListCheckins(r.Context(), currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]checkinView, 0, len(list))
	for _, c := range list {
		views = append(views, toCheckinView(c))
	}
	writeData(w, views)
}
