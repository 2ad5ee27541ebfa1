package prompt

import (
	"strings"
	"testing"

	"vibeailife/internal/domain"
)

func TestComposeSystemPromptWithoutFortune(t *testing.T) {
	got := ComposeSystemPrompt(domain.ChatModeCoach, nil)
	if got != personas[domain.ChatModeCoach] {
		t.Fatalf("без предсказания ожидали только персону, получили %q", got)
	}
	if Persona("UNKNOWN") != personas[domain.ChatModeFriend] {
		t.Fatalf("неизвестный режим должен давать FRIEND")
	}
}

func TestComposeSystemPromptWithFortune(t *testing.T) {
	fc := &domain.FortuneContext{
		Title:          "流水不争先",
		Text:           "流水不争先，争的是滔滔不绝",
		Interpretation: "慢慢来，比较快",
		AIHints:        []string{"耐心", "长期主义"},
		Tone:           domain.FortuneToneCalming,
	}
	got := ComposeSystemPrompt(domain.ChatModeListener, fc)

	for _, want := range []string{
		personas[domain.ChatModeListener] + "\n\n今日签文是",
		"\"流水不争先\"：\"流水不争先，争的是滔滔不绝\"",
		"解读：慢慢来，比较快",
		"5. 保持对话的自然流畅",
		toneInstructions[domain.FortuneToneCalming],
		"**今日签文提示**：耐心、长期主义",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("в промпте нет %q:\n%s", want, got)
		}
	}
}

func TestJoinSkipsEmpty(t *testing.T) {
	if got := Join("a", "", "  ", "b"); got != "a\n\nb" {
		t.Fatalf("неожиданная склейка: %q", got)
	}
}
