// Package recommend строит персональные рекомендации по отметкам, целям и предсказанию дня.
package recommend

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"vibeailife/internal/domain"
)

// Priority: важность рекомендации.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var priorityOrder = map[Priority]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

// Recommendation: карточка рекомендации.
type Recommendation struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
}

const (
	maxRecommendations = 5
	recentVibeWindow   = 7
	stalledProgress    = 30
	deadlineHorizon    = 7
)

var stressTags = []string{"工作", "压力", "焦虑", "忙"}

// FortuneToday сообщает, есть ли вытянутое предсказание на сегодня.
type FortuneToday interface {
	TodayFortune(ctx context.Context, userID string) (domain.FortuneContext, bool, error)
}

// Service строит рекомендации.
type Service struct {
	vibes    domain.VibeRepo
	goals    domain.GoalRepo
	fortunes FortuneToday
	now      func() time.Time
}

// NewService создаёт сервис рекомендаций.
func NewService(vibes domain.VibeRepo, goals domain.GoalRepo, fortunes FortuneToday) *Service {
	return &Service{vibes: vibes, goals: goals, fortunes: fortunes, now: time.Now}
}

// SetClock подменяет часы.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// For возвращает до пяти рекомендаций, важные первыми.
func (s *Service) For(ctx context.Context, userID string) ([]Recommendation, error) {
	vibes, err := s.vibes.RecentVibes(ctx, userID, recentVibeWindow)
	if err != nil {
		return nil, fmt.Errorf("последние отметки: %w", err)
	}
	active, err := s.goals.ListGoals(ctx, userID, domain.GoalStatusActive)
	if err != nil {
		return nil, fmt.Errorf("активные цели: %w", err)
	}
	_, drawn, err := s.fortunes.TodayFortune(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("предсказание дня: %w", err)
	}

	out := make([]Recommendation, 0, 7)
	out = append(out, fromVibes(vibes)...)
	out = append(out, fromGoals(active, s.now())...)
	if len(vibes) < 3 {
		out = append(out, Recommendation{
			ID:          "vibe-tracking-reminder",
			Type:        "vibe_tip",
			Title:       "记录 Vibe 的重要性",
			Description: "持续记录 Vibe 可以帮助你更好地了解自己的情绪模式。建议每天至少记录一次。",
			Priority:    PriorityLow,
		})
	}
	if !drawn {
		out = append(out, Recommendation{
			ID:          "fortune-reminder",
			Type:        "wellness_activity",
			Title:       "今日签文等待抽取",
			Description: "今天的签文可能给你带来启发。抽一支签，为今天注入新的能量吧！",
			Priority:    PriorityMedium,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return priorityOrder[out[i].Priority] < priorityOrder[out[j].Priority]
	})
	if len(out) > maxRecommendations {
		out = out[:maxRecommendations]
	}
	return out, nil
}

func fromVibes(vibes []domain.VibeRecord) []Recommendation {
	if len(vibes) == 0 {
		return nil
	}
	var mood, energy float64
	stress := 0
	for _, v := range vibes {
		mood += float64(v.Mood)
		energy += float64(v.Energy)
		for _, tag := range v.Tags {
			if slices.Contains(stressTags, tag) {
				stress++
			}
		}
	}
	n := float64(len(vibes))

	var out []Recommendation
	if mood/n < 3 {
		out = append(out, Recommendation{
			ID:          "vibe-low-mood",
			Type:        "wellness_activity",
			Title:       "心情低落时的活动建议",
			Description: "试试这些活动：听喜欢的音乐、散步10分钟、和朋友聊天、或者写日记。记住，不好也没关系。",
			Priority:    PriorityHigh,
		})
	}
	if energy/n < 3 {
		out = append(out, Recommendation{
			ID:          "vibe-low-energy",
			Type:        "mindfulness_practice",
			Title:       "恢复精力的冥想练习",
			Description: "尝试5分钟的深呼吸冥想，或者短暂的小睡。恢复精力是提升效率的关键。",
			Priority:    PriorityHigh,
		})
	}
	if stress > 2 {
		out = append(out, Recommendation{
			ID:          "stress-relief",
			Type:        "mindfulness_practice",
			Title:       "压力缓解建议",
			Description: "你最近似乎压力较大。建议：设置工作边界、每天安排30分钟\"me time\"、试试正念冥想。",
			Priority:    PriorityHigh,
		})
	}
	return out
}

func fromGoals(active []domain.Goal, now time.Time) []Recommendation {
	if len(active) == 0 {
		return nil
	}
	var stalled, dueSoon int
	for _, g := range active {
		if g.Progress < stalledProgress {
			stalled++
		}
		if g.Deadline != nil {
			days := math.Ceil(g.Deadline.Sub(now).Hours() / 24)
			if days > 0 && days <= deadlineHorizon {
				dueSoon++
			}
		}
	}

	var out []Recommendation
	if stalled > 0 {
		out = append(out, Recommendation{
			ID:          "goal-stalled",
			Type:        "goal_suggestion",
			Title:       "目标推进建议",
			Description: fmt.Sprintf("你有 %d 个目标进度较慢。建议：将大目标拆解成小步骤、设置提醒、找一个伙伴互相监督。", stalled),
			Priority:    PriorityMedium,
		})
	}
	if dueSoon > 0 {
		out = append(out, Recommendation{
			ID:          "goal-deadline",
			Type:        "goal_suggestion",
			Title:       "目标即将到期",
			Description: fmt.Sprintf("你有 %d 个目标即将到期。现在开始行动，还来得及完成！", dueSoon),
			Priority:    PriorityHigh,
		})
	}
	return out
}
