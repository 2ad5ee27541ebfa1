// Package vibe: отметки настроения и энергии, их AI-анализ и тренды.
package vibe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/metrics"
	"vibeailife/internal/usecase/dispatch"
)

const analysisPrompt = `你是一个温暖、有同理心的心理健康助手。用户刚刚记录了他们当前的状态，你的任务是：
1. 给予理解和共情
2. 提供简短的积极反馈或建议
3. 保持温暖、支持的语气
4. 回复要简洁（50-80字）`

var (
	moodLabels   = [...]string{"", "很差", "不好", "一般", "不错", "很好"}
	energyLabels = [...]string{"", "很低", "较低", "一般", "较高", "很高"}
)

// LLM выполняет запрос к провайдерам.
type LLM interface {
	Chat(ctx context.Context, req dispatch.Request, stream *dispatch.StreamOptions) (dispatch.Result, error)
}

// Usage проверяет и учитывает лимит отметок.
type Usage interface {
	CheckVibeQuota(ctx context.Context, user domain.User) error
	AddVibe(ctx context.Context, userID string) error
}

// Service: отметки настроения.
type Service struct {
	repo   domain.VibeRepo
	usage  Usage
	llm    LLM
	queue  domain.VibeQueue
	events domain.BusinessMetricRepo
	loc    *time.Location
	now    func() time.Time
	log    zerolog.Logger
}

// NewService создаёт сервис. queue=nil: анализ выполняется сразу.
func NewService(repo domain.VibeRepo, usage Usage, llm LLM, queue domain.VibeQueue, events domain.BusinessMetricRepo, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		repo:   repo,
		usage:  usage,
		llm:    llm,
		queue:  queue,
		events: events,
		loc:    loc,
		now:    time.Now,
		log:    logger.With().Str("component", "vibe").Logger(),
	}
}

// SetClock подменяет часы.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Input: новая отметка.
type Input struct {
	Mood   int
	Energy int
	Tags   []string
	Note   string
}

// Validate проверяет диапазоны.
func (in Input) Validate() error {
	if in.Mood < 1 || in.Mood > 5 || in.Energy < 1 || in.Energy > 5 {
		return fmt.Errorf("mood и energy должны быть от 1 до 5: %w", domain.ErrInvalidInput)
	}
	return nil
}

// RecordVibe сохраняет отметку и запускает анализ.
func (s *Service) RecordVibe(ctx context.Context, user domain.User, in Input) (domain.VibeRecord, error) {
	if err := in.Validate(); err != nil {
		return domain.VibeRecord{}, err
	}
	if err := s.usage.CheckVibeQuota(ctx, user); err != nil {
		return domain.VibeRecord{}, err
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	rec, err := s.repo.CreateVibe(ctx, domain.VibeRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Mood:      in.Mood,
		Energy:    in.Energy,
		Tags:      tags,
		Note:      strings.TrimSpace(in.Note),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.VibeRecord{}, fmt.Errorf("сохранение отметки: %w", err)
	}
	if err := s.usage.AddVibe(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("vibe usage not counted")
	}
	s.record(ctx, user.ID, rec)

	if s.queue != nil {
		job := domain.VibeAnalysisJob{ID: uuid.NewString(), VibeID: rec.ID, UserID: user.ID, RequestedAt: s.now()}
		err := s.queue.Enqueue(ctx, job)
		if err == nil {
			metrics.ObserveVibeJob("enqueued")
			return rec, nil
		}
		s.log.Warn().Err(err).Str("vibe_id", rec.ID).Msg("enqueue failed, analysing inline")
	}

	rec.AIResponse = s.Analyze(ctx, rec)
	if err := s.repo.SetVibeAnalysis(ctx, rec.ID, rec.AIResponse); err != nil {
		return domain.VibeRecord{}, fmt.Errorf("сохранение анализа: %w", err)
	}
	return rec, nil
}

// Analyze возвращает отклик на отметку. При сбое провайдеров: заготовленный текст по диапазонам.
func (s *Service) Analyze(ctx context.Context, rec domain.VibeRecord) string {
	res, err := s.llm.Chat(ctx, dispatch.Request{
		Messages:          []domain.ChatMessage{{Role: "user", Content: userMessage(rec)}},
		Region:            domain.RegionInternational,
		Tier:              domain.TierFree,
		Mode:              domain.ChatModeFriend,
		ExtraSystemPrompt: analysisPrompt,
	}, nil)
	if err != nil || strings.TrimSpace(res.Text) == "" {
		s.log.Warn().Err(err).Str("vibe_id", rec.ID).Msg("vibe analysis failed, using default feedback")
		return DefaultFeedback(rec.Mood, rec.Energy)
	}
	return res.Text
}

// ProcessJob выполняет отложенный анализ. Уже проанализированные отметки пропускаются.
func (s *Service) ProcessJob(ctx context.Context, job domain.VibeAnalysisJob) error {
	rec, err := s.repo.GetVibe(ctx, job.VibeID)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.ObserveVibeJob("skipped")
		s.log.Info().Str("vibe_id", job.VibeID).Msg("vibe record gone, job dropped")
		return nil
	}
	if err != nil {
		metrics.ObserveVibeJob("failed")
		return fmt.Errorf("загрузка отметки: %w", err)
	}
	if rec.AIResponse != "" {
		metrics.ObserveVibeJob("skipped")
		return nil
	}
	analysis := s.Analyze(ctx, rec)
	if err := s.repo.SetVibeAnalysis(ctx, rec.ID, analysis); err != nil {
		metrics.ObserveVibeJob("failed")
		return fmt.Errorf("сохранение анализа: %w", err)
	}
	metrics.ObserveVibeJob("done")
	return nil
}

// List возвращает отметки, новые первыми.
func (s *Service) List(ctx context.Context, userID string, page domain.Page) ([]domain.VibeRecord, int, error) {
	if page.Limit <= 0 {
		page.Limit = 30
	}
	items, total, err := s.repo.ListVibes(ctx, userID, page)
	if err != nil {
		return nil, 0, fmt.Errorf("список отметок: %w", err)
	}
	return items, total, nil
}

// HasToday сообщает, есть ли отметка за сегодня.
func (s *Service) HasToday(ctx context.Context, userID string) (bool, error) {
	recent, err := s.repo.RecentVibes(ctx, userID, 1)
	if err != nil {
		return false, fmt.Errorf("последняя отметка: %w", err)
	}
	if len(recent) == 0 {
		return false, nil
	}
	return !recent[0].CreatedAt.Before(domain.DayStart(s.now(), s.loc)), nil
}

func (s *Service) record(ctx context.Context, userID string, rec domain.VibeRecord) {
	if s.events == nil {
		return
	}
	err := s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event:      domain.BusinessMetricEventVibeRecorded,
		UserID:     userID,
		Metadata:   map[string]any{"mood": rec.Mood, "energy": rec.Energy},
		OccurredAt: s.now(),
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("business metric not recorded")
	}
}

func userMessage(rec domain.VibeRecord) string {
	var b strings.Builder
	b.WriteString("我现在的状态是：\n")
	fmt.Fprintf(&b, "- 心情：%s（%d/5）\n", moodLabels[rec.Mood], rec.Mood)
	fmt.Fprintf(&b, "- 精力：%s（%d/5）", energyLabels[rec.Energy], rec.Energy)
	if len(rec.Tags) > 0 {
		fmt.Fprintf(&b, "\n- 标签：%s", strings.Join(rec.Tags, "、"))
	}
	if rec.Note != "" {
		fmt.Fprintf(&b, "\n- 备注：%s", rec.Note)
	}
	b.WriteString("\n\n请给我一些反馈和建议。")
	return b.String()
}

// DefaultFeedback: отклик без LLM.
func DefaultFeedback(mood, energy int) string {
	switch {
	case mood <= 2 && energy <= 2:
		return "感觉你现在状态不太好，记得好好照顾自己。休息一下，或者做些让自己舒服的小事，你值得被温柔对待。💙"
	case mood >= 4 && energy >= 4:
		return "你的状态很不错！保持这种积极的能量，继续做让你开心的事情吧。记得记录下这些美好的时刻。✨"
	case mood >= 4:
		return "心情很好呢！不过精力看起来需要补充一下。在保持好心情的同时，也别忘了照顾好自己的身体。😊"
	case energy <= 2:
		return "看起来你需要补充一些能量。不管是身体上的休息，还是精神上的放松，都请给自己一点时间。慢慢来，不着急。💪"
	default:
		return "感谢你记录下此刻的状态。关注自己的感受是一件很棒的事情，继续保持这种自我觉察吧。🌟"
	}
}
