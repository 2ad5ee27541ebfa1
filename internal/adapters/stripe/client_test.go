package stripe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"vibeailife/internal/usecase/billing"
)

const testSecret = "whsec_test"

func sign(payload string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestParseWebhookCheckoutCompleted(t *testing.T) {
	c := New("sk_test", testSecret, nil)
	payload := `{"id":"evt_1","object":"event","type":"checkout.session.completed","api_version":"2024-06-20",` +
		`"data":{"object":{"id":"cs_1","object":"checkout.session","customer":"cus_1","subscription":"sub_1",` +
		`"metadata":{"userId":"u1","plan":"PRO"},"amount_total":990,"currency":"usd"}}}`

	ev, err := c.ParseWebhook([]byte(payload), sign(payload))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if ev.ID != "evt_1" || ev.Type != billing.EventCheckoutCompleted {
		t.Fatalf("неожиданное событие: %+v", ev)
	}
	if ev.ObjectID != "cs_1" || ev.CustomerID != "cus_1" || ev.SubscriptionID != "sub_1" {
		t.Fatalf("неожиданные идентификаторы: %+v", ev)
	}
	if ev.Metadata["userId"] != "u1" || ev.AmountMinor != 990 || ev.Currency != "usd" {
		t.Fatalf("неожиданные данные: %+v", ev)
	}

	if _, err := c.ParseWebhook([]byte(payload), "t=1,v1=deadbeef"); err == nil {
		t.Fatalf("поддельная подпись должна отклоняться")
	}
}

func TestParseWebhookSubscriptionDeleted(t *testing.T) {
	c := New("sk_test", testSecret, nil)
	payload := `{"id":"evt_2","object":"event","type":"customer.subscription.deleted",` +
		`"data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1","current_period_end":1767225600}}}`
	ev, err := c.ParseWebhook([]byte(payload), sign(payload))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if ev.CustomerID != "cus_1" || ev.ObjectID != "sub_1" || ev.PeriodEnd == nil {
		t.Fatalf("неожиданное событие: %+v", ev)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cs_42","object":"checkout.session","url":"https://checkout.example/cs_42"}`)
	}))
	defer srv.Close()

	backend := stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
		URL:               stripeapi.String(srv.URL),
		MaxNetworkRetries: stripeapi.Int64(0),
	})
	c := New("sk_test", testSecret, &stripeapi.Backends{API: backend, Connect: backend, Uploads: backend})
	checkout, err := c.CreateCheckoutSession(context.Background(), billing.CheckoutRequest{
		CustomerID: "cus_1",
		PriceID:    "price_pro",
		SuccessURL: "https://app.example/ok",
		CancelURL:  "https://app.example/cancel",
		Metadata:   map[string]string{"userId": "u1", "plan": "PRO"},
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if checkout.SessionID != "cs_42" || checkout.URL != "https://checkout.example/cs_42" {
		t.Fatalf("неожиданная сессия: %+v", checkout)
	}
	if form.Get("mode") != "subscription" || form.Get("line_items[0][price]") != "price_pro" || form.Get("metadata[plan]") != "PRO" {
		t.Fatalf("неожиданная форма запроса: %v", form)
	}
}
