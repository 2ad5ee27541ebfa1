package httpapi

import (
	"net/http"

	"vibeailife/internal/domain"
)

type drawRequest struct {
	Type string `json:"type"`
}

func (h *Handler) drawFortune(w http.ResponseWriter, r *http.Request) {
	var req drawRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	fortuneType, err := domain.ParseFortuneType(req.Type)
	if err != nil {
		h.fail(w, r, invalid("未知的签文类型: %s", req.Type))
		return
	}
	res, err := h.Fortune.Draw(r.Context(), currentUserID(r), fortuneType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, map[string]any{
		"fortune":  toFortuneView(&res.Fortune),
		"drawDate": res.DrawDate.Format(dateLayout),
	})
}

func (h *Handler) skipFortune(w http.ResponseWriter, r *http.Request) {
	res, err := h.Fortune.Skip(r.Context(), currentUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := map[string]any{"skipped": res.Skipped}
	if res.Message != "" {
		data["message"] = res.Message
	}
	writeData(w, data)
}

func (h *Handler) fortuneToday(w http.ResponseWriter, r *http.Request) {
	st, err := h.Fortune.Status(r.Context(), currentUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, map[string]any{
		"hasDrawn":     st.HasDrawn,
		"canDraw":      st.CanDraw,
		"fortune":      toFortuneView(st.Fortune),
		"appliedCount": st.AppliedCount,
		"skipped":      st.Skipped,
	})
}

func (h *Handler) fortuneHistory(w http.ResponseWriter, r *http.Request) {
	page := offsetPage(r, 30)
	list, total, err := h.Fortune.History(r.Context(), currentUserID(r), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	history := make([]historyView, 0, len(list))
	for _, d := range list {
		history = append(history, historyView{
			ID:           d.ID,
			DrawDate:     d.DrawDate.Format(dateLayout),
			Skipped:      d.Skipped,
			AppliedCount: d.AppliedCount,
			Fortune:      toFortuneView(d.Fortune),
		})
	}
	writeData(w, struct {
		History []historyView `json:"history"`
		pageList
	}{history, pageInfo(total, page)})
}

func (h *Handler) clearFortune(w http.ResponseWriter, r *http.Request) {
	n, err := h.Fortune.ClearToday(r.Context(), currentUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, map[string]any{"deleted": n, "message": "今日抽签记录已清除，可以重新测试"})
}
