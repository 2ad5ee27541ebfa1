package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"vibeailife/internal/domain"
	"vibeailife/internal/usecase/chat"
)

type createConversationRequest struct {
	Mode  string `json:"mode"`
	Title string `json:"title" validate:"max=100"`
}

type renameConversationRequest struct {
	Title string `json:"title" validate:"required,max=100"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

func (h *Handler) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		h.fail(w, r, err)
		return
	}
	conv, err := h.Chat.CreateConversation(r.Context(), currentUserID(r), req.Mode, req.Title)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, toConversationView(conv))
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	page := offsetPage(r, 20)
	list, total, err := h.Chat.ListConversations(r.Context(), currentUserID(r), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]conversationView, 0, len(list))
	for _, c := range list {
		views = append(views, toConversationView(c))
	}
	writeData(w, struct {
		Conversations []conversationView `json:"conversations"`
		pageList
	}{views, pageInfo(total, page)})
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.Chat.GetConversation(r.Context(), currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, toConversationView(conv))
}

func (h *Handler) renameConversation(w http.ResponseWriter, r *http.Request) {
	var req renameConversationRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Chat.RenameConversation(r.Context(), currentUserID(r), chi.URLParam(r, "id"), req.Title); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, map[string]string{"message": "Title updated"})
}

func (h *Handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.Chat.DeleteConversation(r.Context(), currentUserID(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, map[string]string{"message": "Conversation deleted"})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	list, err := h.Chat.ListMessages(r.Context(), currentUserID(r), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, map[string]any{"messages": toMessageViews(list)})
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := h.currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := chat.TurnInput{User: user, ConversationID: chi.URLParam(r, "id"), Content: req.Content}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.streamTurn(w, r, in)
		return
	}
	res, err := h.Chat.SendMessage(r.Context(), in, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, map[string]any{"message": toMessageView(res.Message)})
}

type doneEvent struct {
	Done    bool            `json:"done"`
	Full    string          `json:"full"`
	Fortune *fortuneSnippet `json:"fortune"`
}

func (h *Handler) streamTurn(w http.ResponseWriter, r *http.Request, in chat.TurnInput) {
	sse := newSSEWriter(r.Context(), w)
	sink := &chat.StreamSink{
		OnChunk: func(chunk string) {
			sse.send(map[string]string{"chunk": chunk})
		},
		OnComplete: func(res chat.TurnResult) {
			sse.send(doneEvent{Done: true, Full: res.Message.Content, Fortune: toFortuneSnippet(res.Fortune)})
		},
	}
	if _, err := h.Chat.SendMessage(r.Context(), in, sink); err != nil {
		if !sse.started {
			h.fail(w, r, err)
			return
		}
		if domain.ErrorCode(err) == domain.CodeInternal {
			h.log.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("stream turn failed")
		}
		sse.send(map[string]string{"error": clientMessage(err)})
	}
}

// sseWriter пишет события text/event-stream. После первой ошибки записи
// или отключения клиента события молча отбрасываются.
type sseWriter struct {
	ctx     context.Context
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	dead    bool
}

func newSSEWriter(ctx context.Context, w http.ResponseWriter) *sseWriter {
	flusher, _ := w.(http.Flusher)
	return &sseWriter{ctx: ctx, w: w, flusher: flusher}
}

func (s *sseWriter) send(event any) {
	if s.dead {
		return
	}
	if s.ctx.Err() != nil {
		s.dead = true
		return
	}
	if !s.started {
		header := s.w.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.dead = true
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
