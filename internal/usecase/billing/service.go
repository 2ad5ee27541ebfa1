// Package billing: платные тарифы: оформление, управление подпиской и вебхуки платёжного провайдера.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vibeailife/internal/domain"
)

// Типы событий вебхука, которые меняют состояние.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoiceFailed       = "invoice.payment_failed"
)

const webhookDedupTTL = 72 * time.Hour

// CheckoutRequest: параметры сессии оплаты.
type CheckoutRequest struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Checkout: созданная сессия оплаты.
type Checkout struct {
	URL       string `json:"checkoutUrl"`
	SessionID string `json:"sessionId"`
}

// WebhookEvent: событие провайдера после проверки подписи.
type WebhookEvent struct {
	ID             string
	Type           string
	ObjectID       string
	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string
	AmountMinor    int64
	Currency       string
	PeriodEnd      *time.Time
}

// Gateway: платёжный провайдер.
type Gateway interface {
	CreateCustomer(ctx context.Context, user domain.User) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Checkout, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	// ParseWebhook проверяет подпись и разбирает событие.
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// Config: цены тарифов и адрес фронтенда для редиректов.
type Config struct {
	Prices  map[domain.Tier]string
	BaseURL string
}

// Service оформляет подписки.
type Service struct {
	gateway Gateway
	users   domain.UserRepo
	repo    domain.BillingRepo
	cache   domain.Cache
	events  domain.BusinessMetricRepo
	cfg     Config
	now     func() time.Time
	log     zerolog.Logger
}

// NewService создаёт сервис. gateway == nil означает, что оплата не настроена.
func NewService(gateway Gateway, users domain.UserRepo, repo domain.BillingRepo, cache domain.Cache, events domain.BusinessMetricRepo, cfg Config, logger zerolog.Logger) *Service {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{
		gateway: gateway,
		users:   users,
		repo:    repo,
		cache:   cache,
		events:  events,
		cfg:     cfg,
		now:     time.Now,
		log:     logger.With().Str("component", "billing").Logger(),
	}
}

// CreateCheckout создаёт сессию оплаты тарифа PRO или ENTERPRISE.
func (s *Service) CreateCheckout(ctx context.Context, userID, plan string) (Checkout, error) {
	if s.gateway == nil {
		return Checkout{}, domain.ErrPaymentNotConfigured
	}
	tier := domain.Tier(strings.ToUpper(strings.TrimSpace(plan)))
	if !tier.IsPaid() {
		return Checkout{}, fmt.Errorf("тариф %q: %w", plan, domain.ErrInvalidInput)
	}
	price := s.cfg.Prices[tier]
	if price == "" {
		return Checkout{}, fmt.Errorf("цена тарифа %s: %w", tier, domain.ErrPriceNotFound)
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return Checkout{}, fmt.Errorf("пользователь: %w", err)
	}
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return Checkout{}, err
	}
	checkout, err := s.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		CustomerID: customerID,
		PriceID:    price,
		SuccessURL: s.cfg.BaseURL + "/subscription/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.cfg.BaseURL + "/subscription/cancel",
		Metadata:   map[string]string{"userId": user.ID, "plan": string(tier)},
	})
	if err != nil {
		return Checkout{}, fmt.Errorf("сессия оплаты: %w", err)
	}
	s.log.Info().Str("user_id", user.ID).Str("plan", string(tier)).Str("session_id", checkout.SessionID).Msg("checkout created")
	return checkout, nil
}

func (s *Service) ensureCustomer(ctx context.Context, user domain.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}
	customerID, err := s.gateway.CreateCustomer(ctx, user)
	if err != nil {
		return "", fmt.Errorf("создание клиента: %w", err)
	}
	if err := s.repo.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", fmt.Errorf("сохранение клиента: %w", err)
	}
	return customerID, nil
}

// ManageURL возвращает ссылку на портал управления подпиской.
func (s *Service) ManageURL(ctx context.Context, userID string) (string, error) {
	if s.gateway == nil {
		return "", domain.ErrPaymentNotConfigured
	}
	sub, err := s.repo.GetSubscription(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "", domain.ErrNoSubscription
	case err != nil:
		return "", fmt.Errorf("подписка: %w", err)
	case sub.StripeSubscriptionID == "":
		return "", domain.ErrNoSubscription
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("пользователь: %w", err)
	}
	if user.StripeCustomerID == "" {
		return "", domain.ErrNoSubscription
	}
	url, err := s.gateway.CreatePortalSession(ctx, user.StripeCustomerID, s.cfg.BaseURL+"/settings")
	if err != nil {
		return "", fmt.Errorf("портал подписки: %w", err)
	}
	return url, nil
}

// HandleWebhook проверяет подпись и применяет событие ровно один раз.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.gateway == nil {
		return domain.ErrPaymentNotConfigured
	}
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return fmt.Errorf("подпись вебхука: %w", domain.ErrInvalidInput)
	}
	return s.cache.Once(ctx, "stripe:event:"+event.ID, webhookDedupTTL, func() error {
		return s.apply(ctx, event)
	})
}

func (s *Service) apply(ctx context.Context, event WebhookEvent) error {
	switch event.Type {
	case EventCheckoutCompleted:
		return s.checkoutCompleted(ctx, event)
	case EventSubscriptionDeleted:
		return s.subscriptionDeleted(ctx, event)
	case EventInvoiceFailed:
		return s.invoiceFailed(ctx, event)
	default:
		s.log.Debug().Str("event_type", event.Type).Msg("webhook ignored")
		return nil
	}
}

func (s *Service) userForEvent(ctx context.Context, event WebhookEvent) (domain.User, error) {
	if id := event.Metadata["userId"]; id != "" {
		return s.users.GetUser(ctx, id)
	}
	if event.CustomerID == "" {
		return domain.User{}, fmt.Errorf("событие %s без клиента: %w", event.ID, domain.ErrInvalidInput)
	}
	return s.repo.FindUserByStripeCustomer(ctx, event.CustomerID)
}

func (s *Service) checkoutCompleted(ctx context.Context, event WebhookEvent) error {
	user, err := s.userForEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("оплата %s: %w", event.ObjectID, err)
	}
	tier := domain.ParseTier(event.Metadata["plan"])
	if !tier.IsPaid() {
		s.log.Warn().Str("session_id", event.ObjectID).Str("plan", event.Metadata["plan"]).Msg("checkout without paid plan")
		return nil
	}
	if event.CustomerID != "" && user.StripeCustomerID != event.CustomerID {
		if err := s.repo.SetStripeCustomerID(ctx, user.ID, event.CustomerID); err != nil {
			return fmt.Errorf("сохранение клиента: %w", err)
		}
	}
	if err := s.repo.SetTier(ctx, user.ID, tier); err != nil {
		return fmt.Errorf("смена тарифа: %w", err)
	}
	sub := domain.Subscription{
		UserID:               user.ID,
		Plan:                 tier,
		Status:               domain.SubscriptionActive,
		StripeSubscriptionID: event.SubscriptionID,
		CurrentPeriodEnd:     event.PeriodEnd,
	}
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("сохранение подписки: %w", err)
	}
	inserted, err := s.repo.RecordPayment(ctx, domain.Payment{
		UserID:      user.ID,
		ExternalID:  event.ObjectID,
		Plan:        tier,
		AmountMinor: event.AmountMinor,
		Currency:    event.Currency,
		Status:      domain.PaymentSucceeded,
	})
	if err != nil {
		return fmt.Errorf("запись платежа: %w", err)
	}
	if inserted {
		s.recordEvent(ctx, domain.BusinessMetricEventSubscriptionStarted, user.ID, map[string]any{"plan": string(tier)})
	}
	s.log.Info().Str("user_id", user.ID).Str("plan", string(tier)).Msg("subscription activated")
	return nil
}

func (s *Service) subscriptionDeleted(ctx context.Context, event WebhookEvent) error {
	user, err := s.repo.FindUserByStripeCustomer(ctx, event.CustomerID)
	if err != nil {
		return fmt.Errorf("отмена подписки %s: %w", event.ObjectID, err)
	}
	plan := user.Tier
	if cur, err := s.repo.GetSubscription(ctx, user.ID); err == nil {
		plan = cur.Plan
	}
	if err := s.repo.SetTier(ctx, user.ID, domain.TierFree); err != nil {
		return fmt.Errorf("смена тарифа: %w", err)
	}
	sub := domain.Subscription{UserID: user.ID, Plan: plan, Status: domain.SubscriptionCanceled, StripeSubscriptionID: event.ObjectID}
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("сохранение подписки: %w", err)
	}
	s.recordEvent(ctx, domain.BusinessMetricEventSubscriptionCanceled, user.ID, map[string]any{"plan": string(plan)})
	s.log.Info().Str("user_id", user.ID).Msg("subscription canceled")
	return nil
}

func (s *Service) invoiceFailed(ctx context.Context, event WebhookEvent) error {
	user, err := s.repo.FindUserByStripeCustomer(ctx, event.CustomerID)
	if err != nil {
		return fmt.Errorf("неуспешный счёт %s: %w", event.ObjectID, err)
	}
	if _, err := s.repo.RecordPayment(ctx, domain.Payment{
		UserID:      user.ID,
		ExternalID:  event.ObjectID,
		Plan:        user.Tier,
		AmountMinor: event.AmountMinor,
		Currency:    event.Currency,
		Status:      domain.PaymentFailed,
	}); err != nil {
		return fmt.Errorf("запись платежа: %w", err)
	}
	if cur, err := s.repo.GetSubscription(ctx, user.ID); err == nil && cur.Status == domain.SubscriptionActive {
		cur.Status = domain.SubscriptionPastDue
		if err := s.repo.UpsertSubscription(ctx, cur); err != nil {
			return fmt.Errorf("сохранение подписки: %w", err)
		}
	}
	s.log.Warn().Str("user_id", user.ID).Str("invoice_id", event.ObjectID).Msg("invoice payment failed")
	return nil
}

func (s *Service) recordEvent(ctx context.Context, event, userID string, meta map[string]any) {
	metric := domain.BusinessMetric{Event: event, UserID: userID, Metadata: meta, OccurredAt: s.now()}
	if err := s.events.RecordBusinessMetric(ctx, metric); err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("business metric not recorded")
	}
}
