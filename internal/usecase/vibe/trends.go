package vibe

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Trend: направление изменения настроения.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

const trendThreshold = 0.5

// Score: взвешенная оценка: настроение 60%, энергия 40%, шаг 0.05.
func Score(mood, energy float64) float64 {
	return math.Round((mood*0.6+energy*0.4)*20) / 20
}

// DailyAverage: средние за календарный день.
type DailyAverage struct {
	Date   string  `json:"date"`
	Mood   float64 `json:"mood"`
	Energy float64 `json:"energy"`
	Score  float64 `json:"score"`
}

// Trends: сводка за период.
type Trends struct {
	AverageMood   float64        `json:"averageMood"`
	AverageEnergy float64        `json:"averageEnergy"`
	AverageScore  float64        `json:"averageScore"`
	Trend         Trend          `json:"trend"`
	DailyAverages []DailyAverage `json:"dailyAverages"`
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Trends считает средние и тренд за последние days дней.
func (s *Service) Trends(ctx context.Context, userID string, days int) (Trends, error) {
	if days <= 0 {
		days = 7
	}
	since := s.now().AddDate(0, 0, -days)
	records, err := s.repo.VibesSince(ctx, userID, since)
	if err != nil {
		return Trends{}, fmt.Errorf("отметки за период: %w", err)
	}
	out := Trends{Trend: TrendStable, DailyAverages: []DailyAverage{}}
	if len(records) == 0 {
		return out, nil
	}

	var totalMood, totalEnergy, totalScore float64
	type acc struct{ mood, energy, count float64 }
	var order []string
	byDay := map[string]*acc{}
	for _, r := range records {
		totalMood += float64(r.Mood)
		totalEnergy += float64(r.Energy)
		totalScore += Score(float64(r.Mood), float64(r.Energy))

		key := r.CreatedAt.In(s.loc).Format(time.DateOnly)
		a, ok := byDay[key]
		if !ok {
			a = &acc{}
			byDay[key] = a
			order = append(order, key)
		}
		a.mood += float64(r.Mood)
		a.energy += float64(r.Energy)
		a.count++
	}
	n := float64(len(records))
	out.AverageMood = round1(totalMood / n)
	out.AverageEnergy = round1(totalEnergy / n)
	out.AverageScore = round1(totalScore / n)

	mid := len(records) / 2
	if mid > 0 {
		var older, recent float64
		for _, r := range records[:mid] {
			older += float64(r.Mood)
		}
		for _, r := range records[mid:] {
			recent += float64(r.Mood)
		}
		diff := recent/float64(len(records)-mid) - older/float64(mid)
		switch {
		case diff > trendThreshold:
			out.Trend = TrendImproving
		case diff < -trendThreshold:
			out.Trend = TrendDeclining
		}
	}

	for _, key := range order {
		a := byDay[key]
		mood, energy := a.mood/a.count, a.energy/a.count
		out.DailyAverages = append(out.DailyAverages, DailyAverage{
			Date:   key,
			Mood:   round1(mood),
			Energy: round1(energy),
			Score:  round1(Score(mood, energy)),
		})
	}
	return out, nil
}
