package httpapi

import (
	"io"
	"net/http"

	httpinfra "vibeailife/internal/infra/http"
)

const maxWebhookBytes = 64 << 10

type checkoutRequest struct {
	Plan string `json:"plan" validate:"required,oneof=PRO ENTERPRISE"`
}

func (h *Handler) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	checkout, err := h.Billing.CreateCheckout(r.Context(), currentUserID(r), req.Plan)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, checkout)
}

func (h *Handler) manageSubscription(w http.ResponseWriter, r *http.Request) {
	url, err := h.Billing.ManageURL(r.Context(), currentUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, map[string]string{"url": url})
}

// stripeWebhook: публичный маршрут, подлинность проверяется подписью Stripe-Signature.
func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		h.fail(w, r, invalid("failed to read body"))
		return
	}
	if err := h.Billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
