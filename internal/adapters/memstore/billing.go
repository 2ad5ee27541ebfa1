package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"vibeailife/internal/domain"
)

// GetSubscription возвращает подписку.
func (s *Store) GetSubscription(_ context.Context, userID string) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return sub, nil
}

// UpsertSubscription сохраняет подписку.
func (s *Store) UpsertSubscription(_ context.Context, sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.subs[sub.UserID]; ok {
		if sub.StripeSubscriptionID == "" {
			sub.StripeSubscriptionID = cur.StripeSubscriptionID
		}
		if sub.CurrentPeriodEnd == nil {
			sub.CurrentPeriodEnd = cur.CurrentPeriodEnd
		}
	}
	sub.UpdatedAt = s.now()
	s.subs[sub.UserID] = sub
	return nil
}

// SetTier меняет тариф.
func (s *Store) SetTier(_ context.Context, userID string, tier domain.Tier) error {
	_, err := s.updateUser(userID, func(u *domain.User) { u.Tier = tier })
	return err
}

// SetStripeCustomerID запоминает клиента Stripe.
func (s *Store) SetStripeCustomerID(_ context.Context, userID, customerID string) error {
	_, err := s.updateUser(userID, func(u *domain.User) { u.StripeCustomerID = customerID })
	return err
}

// FindUserByStripeCustomer ищет пользователя по клиенту Stripe.
func (s *Store) FindUserByStripeCustomer(_ context.Context, customerID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if customerID != "" && u.StripeCustomerID == customerID {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

// RecordPayment идемпотентно сохраняет платёж.
func (s *Store) RecordPayment(_ context.Context, payment domain.Payment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ExternalID == payment.ExternalID {
			return false, nil
		}
	}
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = s.now()
	s.payments = append(s.payments, payment)
	return true, nil
}

// ListPayments возвращает платежи с данными пользователя.
func (s *Store) ListPayments(_ context.Context, filter domain.PaymentFilter) ([]domain.Payment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.Payment
	for _, p := range s.payments {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if u, ok := s.users[p.UserID]; ok {
			p.UserEmail = u.Email
			p.UserName = u.Name
		}
		all = append(all, p)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	from, to := paginate(len(all), filter.Page, 20)
	return all[from:to], len(all), nil
}
