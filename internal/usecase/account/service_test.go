package account

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"vibeailife/internal/adapters/memstore"
	"vibeailife/internal/domain"
)

func TestEnsureTelegramUserRegistersOnce(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, store, zerolog.Nop())
	ctx := context.Background()
	profile := domain.TelegramProfile{TGUserID: 42, FirstName: "小", LastName: "明", Locale: "zh-hans"}

	first, err := svc.EnsureTelegramUser(ctx, profile)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if first.Region != domain.RegionCN || first.Name != "小 明" {
		t.Fatalf("неожиданный профиль: %+v", first)
	}
	second, err := svc.EnsureTelegramUser(ctx, profile)
	if err != nil || second.ID != first.ID {
		t.Fatalf("повторный вход должен вернуть того же пользователя: %v", err)
	}
	registered := 0
	for _, e := range store.Events() {
		if e.Event == domain.BusinessMetricEventUserRegistered {
			registered++
		}
	}
	if registered != 1 {
		t.Fatalf("ожидали одно событие регистрации, получили %d", registered)
	}
	if _, err := svc.EnsureTelegramUser(ctx, domain.TelegramProfile{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("пустой id должен отклоняться: %v", err)
	}
}

func TestSettingsAndOnboarding(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, store, zerolog.Nop())
	ctx := context.Background()
	user := store.PutUser(domain.User{Name: "Lin"})

	got, err := svc.GetSettings(ctx, user.ID)
	if err != nil || got.PreferredProvider != "auto" || got.Tier != "FREE" {
		t.Fatalf("неожиданные настройки: %+v %v", got, err)
	}
	got, err = svc.UpdateSettings(ctx, user.ID, "zhipu")
	if err != nil || got.PreferredProvider != "zhipu" {
		t.Fatalf("провайдер не сохранился: %+v %v", got, err)
	}
	got, _ = svc.UpdateSettings(ctx, user.ID, "auto")
	if got.PreferredProvider != "auto" {
		t.Fatalf("auto должен сбрасывать провайдера: %+v", got)
	}
	if _, err := svc.UpdateSettings(ctx, user.ID, "claude"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("неизвестный провайдер должен отклоняться: %v", err)
	}

	onboarded, err := svc.CompleteOnboarding(ctx, user.ID, "  ", "")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !onboarded.HasOnboarded || onboarded.Name != "Lin" || onboarded.Region != domain.RegionInternational {
		t.Fatalf("неожиданный результат онбординга: %+v", onboarded)
	}
	if _, err := svc.GetSettings(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали NotFound: %v", err)
	}
}
