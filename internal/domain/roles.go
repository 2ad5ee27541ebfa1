package domain

import "strings"

// Tier описывает тариф пользователя.
type Tier string

const (
	TierFree       Tier = "FREE"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
)

// ParseTier нормализует тариф. Неизвестные значения считаются FREE.
func ParseTier(raw string) Tier {
	switch Tier(strings.ToUpper(strings.TrimSpace(raw))) {
	case TierPro:
		return TierPro
	case TierEnterprise:
		return TierEnterprise
	default:
		return TierFree
	}
}

// IsPaid сообщает, платный ли тариф.
func (t Tier) IsPaid() bool {
	return t == TierPro || t == TierEnterprise
}

// UserRole: роль для авторизации.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// UserPlan описывает ограничения тарифа на период. Значение <= 0 означает отсутствие лимита.
type UserPlan struct {
	Tier         Tier
	Name         string
	MessageLimit int
	VibeLimit    int
}

var plans = map[Tier]UserPlan{
	TierFree: {
		Tier:         TierFree,
		Name:         "Free",
		MessageLimit: 1000,
		VibeLimit:    5,
	},
	TierPro: {
		Tier: TierPro,
		Name: "Pro",
	},
	TierEnterprise: {
		Tier: TierEnterprise,
		Name: "Enterprise",
	},
}

// PlanForTier возвращает тариф.
func PlanForTier(tier Tier) UserPlan {
	if plan, ok := plans[ParseTier(string(tier))]; ok {
		return plan
	}
	return plans[TierFree]
}

// Plan возвращает тариф пользователя.
func (u User) Plan() UserPlan {
	return PlanForTier(u.Tier)
}

// MessagesUnlimited сообщает, что лимит сообщений отсутствует.
func (p UserPlan) MessagesUnlimited() bool {
	return p.MessageLimit <= 0
}

// VibesUnlimited сообщает, что лимит отметок настроения отсутствует.
func (p UserPlan) VibesUnlimited() bool {
	return p.VibeLimit <= 0
}

// LimitOrUnlimited переводит лимит в формат API: -1 означает отсутствие лимита.
func LimitOrUnlimited(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
