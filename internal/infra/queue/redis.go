package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/metrics"
)

// MaxAttempts: сколько раз задача доставляется до отказа.
const MaxAttempts = 3

// RedisVibeQueue реализует очередь задач на базе Redis lists.
type RedisVibeQueue struct {
	client *redis.Client
	key    string
}

// NewRedisVibeQueue создаёт очередь по указанному ключу.
func NewRedisVibeQueue(client *redis.Client, key string) *RedisVibeQueue {
	return &RedisVibeQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisVibeQueue) Enqueue(ctx context.Context, job domain.VibeAnalysisJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis_queue", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. Неуспешная задача возвращается в очередь, пока не исчерпаны попытки.
func (q *RedisVibeQueue) Receive(ctx context.Context) (domain.VibeAnalysisJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.VibeAnalysisJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.VibeAnalysisJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.VibeAnalysisJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.VibeAnalysisJob{}, nil, errors.New("redis queue: unexpected response")
		}
		var job domain.VibeAnalysisJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.VibeAnalysisJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		return job, q.ackFunc(job), nil
	}
}

func (q *RedisVibeQueue) ackFunc(job domain.VibeAnalysisJob) domain.AckFunc {
	return func(success bool) error {
		if success {
			return nil
		}
		job.Attempt++
		if job.Attempt >= MaxAttempts {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return q.Enqueue(ctx, job)
	}
}
