package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventUserRegistered фиксирует регистрацию нового пользователя.
	BusinessMetricEventUserRegistered = "user_registered"
	// BusinessMetricEventFortuneDrawn фиксирует вытягивание предсказания.
	BusinessMetricEventFortuneDrawn = "fortune_drawn"
	// BusinessMetricEventFortuneSkipped фиксирует пропуск дня.
	BusinessMetricEventFortuneSkipped = "fortune_skipped"
	// BusinessMetricEventVibeRecorded фиксирует отметку настроения.
	BusinessMetricEventVibeRecorded = "vibe_recorded"
	// BusinessMetricEventGoalCreated фиксирует создание цели.
	BusinessMetricEventGoalCreated = "goal_created"
	// BusinessMetricEventSubscriptionStarted фиксирует оплату подписки.
	BusinessMetricEventSubscriptionStarted = "subscription_started"
	// BusinessMetricEventSubscriptionCanceled фиксирует отмену подписки.
	BusinessMetricEventSubscriptionCanceled = "subscription_canceled"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
