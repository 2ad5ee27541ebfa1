package domain

import (
	"context"
	"time"
)

// VibeAnalysisJob: задача на AI-анализ отметки настроения.
type VibeAnalysisJob struct {
	ID          string    `json:"job_id"`
	VibeID      string    `json:"vibe_id"`
	UserID      string    `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
	Attempt     int       `json:"attempt,omitempty"`
}

// VibeQueue описывает очередь задач анализа.
type VibeQueue interface {
	Enqueue(ctx context.Context, job VibeAnalysisJob) error
	Receive(ctx context.Context) (VibeAnalysisJob, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повторную доставку задачи.
type AckFunc func(success bool) error
