package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPlanForTier(t *testing.T) {
	tests := []struct {
		name         string
		tier         Tier
		wantMessages int
		wantVibes    int
	}{
		{name: "free", tier: TierFree, wantMessages: 1000, wantVibes: 5},
		{name: "pro unlimited", tier: TierPro, wantMessages: 0, wantVibes: 0},
		{name: "enterprise lowercase", tier: Tier("enterprise"), wantMessages: 0, wantVibes: 0},
		{name: "unknown falls back to free", tier: Tier("gold"), wantMessages: 1000, wantVibes: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanForTier(tt.tier)
			if plan.MessageLimit != tt.wantMessages || plan.VibeLimit != tt.wantVibes {
				t.Fatalf("PlanForTier(%q) = %+v", tt.tier, plan)
			}
		})
	}
	if !PlanForTier(TierPro).MessagesUnlimited() {
		t.Fatalf("ожидали безлимит для Pro")
	}
	if LimitOrUnlimited(0) != -1 || LimitOrUnlimited(5) != 5 {
		t.Fatalf("неверное преобразование лимита")
	}
}

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("вытягивание: %w", ErrAlreadyDrawn)
	if got := ErrorCode(wrapped); got != CodeAlreadyDrawn {
		t.Fatalf("ожидали ALREADY_DRAWN, получили %s", got)
	}
	rl := &RateLimitError{Resource: "messages", Message: "limit"}
	if !errors.Is(rl, ErrRateLimited) {
		t.Fatalf("RateLimitError должен разворачиваться в ErrRateLimited")
	}
	if got := ErrorCode(fmt.Errorf("x: %w", rl)); got != CodeRateLimitExceeded {
		t.Fatalf("ожидали RATE_LIMIT_EXCEEDED, получили %s", got)
	}
	if got := ErrorCode(errors.New("boom")); got != CodeInternal {
		t.Fatalf("ожидали INTERNAL_ERROR, получили %s", got)
	}
}

func TestDayStartAndPeriod(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	moment := time.Date(2025, 1, 31, 17, 30, 0, 0, time.UTC) // 01:30 1 февраля по CST
	day := DayStart(moment, loc)
	if day.Day() != 1 || day.Month() != time.February || day.Hour() != 0 {
		t.Fatalf("неожиданный день: %v", day)
	}
	if got := UsagePeriod(moment, loc); got != "2025-02" {
		t.Fatalf("ожидали 2025-02, получили %s", got)
	}
	next := NextPeriodStart(time.Date(2025, 12, 10, 0, 0, 0, 0, loc), loc)
	if next.Year() != 2026 || next.Month() != time.January || next.Day() != 1 {
		t.Fatalf("ожидали 1 января 2026, получили %v", next)
	}
}

func TestDailyFortuneContext(t *testing.T) {
	entry := &FortuneEntry{ID: "f1", Title: "流水不争先", Text: "争的是滔滔不绝", Tone: FortuneToneCalming}
	if _, ok := (DailyFortune{Skipped: true}).Context(); ok {
		t.Fatalf("пропущенный день не должен давать контекст")
	}
	if _, ok := (DailyFortune{FortuneID: "", Fortune: entry}).Context(); ok {
		t.Fatalf("пустой fortuneId не должен давать контекст")
	}
	ctx, ok := (DailyFortune{FortuneID: "f1", Fortune: entry}).Context()
	if !ok || ctx.Title != "流水不争先" || ctx.Tone != FortuneToneCalming {
		t.Fatalf("неожиданный контекст: %+v", ctx)
	}
}

func TestParsers(t *testing.T) {
	if ParseChatMode("coach") != ChatModeCoach || ParseChatMode("???") != ChatModeFriend {
		t.Fatalf("ParseChatMode работает неверно")
	}
	if p, err := ParseProviderPreference("auto"); err != nil || p != "" {
		t.Fatalf("auto должен сбрасывать провайдера")
	}
	if _, err := ParseProviderPreference("claude"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ожидали ErrInvalidInput")
	}
	if _, err := ParseFortuneType("lucky"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ожидали ErrInvalidInput для неизвестного типа")
	}
	if ParseRegion("CN") != RegionCN || ParseRegion("") != RegionInternational {
		t.Fatalf("ParseRegion работает неверно")
	}
}
