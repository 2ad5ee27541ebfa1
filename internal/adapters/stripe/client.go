// Package stripe реализует платёжный шлюз поверх stripe-go.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/metrics"
	"vibeailife/internal/usecase/billing"
)

const component = "stripe"

// Client: шлюз Stripe.
type Client struct {
	api           *client.API
	webhookSecret string
}

var _ billing.Gateway = (*Client)(nil)

// New создаёт шлюз. backends == nil означает боевые адреса Stripe.
func New(secretKey, webhookSecret string, backends *stripeapi.Backends) *Client {
	return &Client{api: client.New(secretKey, backends), webhookSecret: webhookSecret}
}

// CreateCustomer создаёт клиента с привязкой к пользователю.
func (c *Client) CreateCustomer(ctx context.Context, user domain.User) (string, error) {
	start := time.Now()
	params := &stripeapi.CustomerParams{
		Metadata: map[string]string{"userId": user.ID},
	}
	params.Context = ctx
	if user.Email != "" {
		params.Email = stripeapi.String(user.Email)
	}
	if user.Name != "" {
		params.Name = stripeapi.String(user.Name)
	}
	cust, err := c.api.Customers.New(params)
	metrics.ObserveNetworkRequest(component, "customer_create", "", start, err)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession открывает сессию оплаты подписки.
func (c *Client) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (billing.Checkout, error) {
	start := time.Now()
	params := &stripeapi.CheckoutSessionParams{
		Mode:     stripeapi.String(string(stripeapi.CheckoutSessionModeSubscription)),
		Customer: stripeapi.String(req.CustomerID),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				Price:    stripeapi.String(req.PriceID),
				Quantity: stripeapi.Int64(1),
			},
		},
		SuccessURL: stripeapi.String(req.SuccessURL),
		CancelURL:  stripeapi.String(req.CancelURL),
		Metadata:   req.Metadata,
	}
	params.Context = ctx
	sess, err := c.api.CheckoutSessions.New(params)
	metrics.ObserveNetworkRequest(component, "checkout_create", req.PriceID, start, err)
	if err != nil {
		return billing.Checkout{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return billing.Checkout{URL: sess.URL, SessionID: sess.ID}, nil
}

// CreatePortalSession возвращает ссылку на портал клиента.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	start := time.Now()
	params := &stripeapi.BillingPortalSessionParams{
		Customer:  stripeapi.String(customerID),
		ReturnURL: stripeapi.String(returnURL),
	}
	params.Context = ctx
	sess, err := c.api.BillingPortalSessions.New(params)
	metrics.ObserveNetworkRequest(component, "portal_create", "", start, err)
	if err != nil {
		return "", fmt.Errorf("stripe: create portal session: %w", err)
	}
	return sess.URL, nil
}

// ParseWebhook проверяет подпись и сводит объект события к billing.WebhookEvent.
func (c *Client) ParseWebhook(payload []byte, signature string) (billing.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return billing.WebhookEvent{}, fmt.Errorf("stripe: verify webhook: %w", err)
	}
	out := billing.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case billing.EventCheckoutCompleted:
		var sess stripeapi.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return billing.WebhookEvent{}, fmt.Errorf("stripe: decode checkout session: %w", err)
		}
		out.ObjectID = sess.ID
		out.Metadata = sess.Metadata
		out.AmountMinor = sess.AmountTotal
		out.Currency = string(sess.Currency)
		if sess.Customer != nil {
			out.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			out.SubscriptionID = sess.Subscription.ID
			out.PeriodEnd = unixPtr(sess.Subscription.CurrentPeriodEnd)
		}
	case billing.EventSubscriptionDeleted:
		var sub stripeapi.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return billing.WebhookEvent{}, fmt.Errorf("stripe: decode subscription: %w", err)
		}
		out.ObjectID = sub.ID
		out.SubscriptionID = sub.ID
		out.Metadata = sub.Metadata
		out.PeriodEnd = unixPtr(sub.CurrentPeriodEnd)
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
	case billing.EventInvoiceFailed:
		var inv stripeapi.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return billing.WebhookEvent{}, fmt.Errorf("stripe: decode invoice: %w", err)
		}
		out.ObjectID = inv.ID
		out.Metadata = inv.Metadata
		out.AmountMinor = inv.AmountDue
		out.Currency = string(inv.Currency)
		if inv.Customer != nil {
			out.CustomerID = inv.Customer.ID
		}
		if inv.Subscription != nil {
			out.SubscriptionID = inv.Subscription.ID
		}
	}
	return out, nil
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
