package domain

import "strings"

// FortuneType: категория предсказания.
type FortuneType string

const (
	FortuneTypeGrowth       FortuneType = "GROWTH"
	FortuneTypeCareer       FortuneType = "CAREER"
	FortuneTypeRelationship FortuneType = "RELATIONSHIP"
	FortuneTypeGeneral      FortuneType = "GENERAL"
)

// ParseFortuneType разбирает необязательную категорию. Пустая строка допустима.
func ParseFortuneType(raw string) (FortuneType, error) {
	t := FortuneType(strings.ToUpper(strings.TrimSpace(raw)))
	switch t {
	case "", FortuneTypeGrowth, FortuneTypeCareer, FortuneTypeRelationship, FortuneTypeGeneral:
		return t, nil
	default:
		return "", ErrInvalidInput
	}
}

// FortuneLevel: уровень предсказания.
type FortuneLevel string

const (
	FortuneLevelExcellent   FortuneLevel = "EXCELLENT"
	FortuneLevelGood        FortuneLevel = "GOOD"
	FortuneLevelMedium      FortuneLevel = "MEDIUM"
	FortuneLevelChallenging FortuneLevel = "CHALLENGING"
)

// FortuneTone задаёт интонацию подмешивания.
type FortuneTone string

const (
	FortuneToneEncouraging FortuneTone = "ENCOURAGING"
	FortuneToneReflective  FortuneTone = "REFLECTIVE"
	FortuneToneCalming     FortuneTone = "CALMING"
	FortuneToneInspiring   FortuneTone = "INSPIRING"
	FortuneToneWarm        FortuneTone = "WARM"
)

const (
	// MaxDailyFortuneApplied: сколько раз за день предсказание может попасть в ответы.
	MaxDailyFortuneApplied = 5
	// FortuneLookbackDays: окно исключения недавно выпавших предсказаний.
	FortuneLookbackDays = 7
	// FortuneCandidateLimit ограничивает выборку кандидатов.
	FortuneCandidateLimit = 50
)

// GoalStatus: состояние цели.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "ACTIVE"
	GoalStatusCompleted GoalStatus = "COMPLETED"
	GoalStatusAbandoned GoalStatus = "ABANDONED"
)

// Valid проверяет значение статуса.
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalStatusActive, GoalStatusCompleted, GoalStatusAbandoned:
		return true
	}
	return false
}

// SubscriptionStatus: состояние подписки.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
	SubscriptionPastDue  SubscriptionStatus = "PAST_DUE"
)

// PaymentStatus: состояние платежа.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)
