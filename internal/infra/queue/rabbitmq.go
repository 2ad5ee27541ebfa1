package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"vibeailife/internal/domain"
	"vibeailife/internal/infra/metrics"
)

// RabbitVibeQueue реализует очередь задач через AMQP.
type RabbitVibeQueue struct {
	conn  *amqp.Connection
	queue string

	mu         sync.Mutex
	pubCh      *amqp.Channel
	consumeCh  *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// NewRabbitVibeQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitVibeQueue(amqpURL, queue string) (*RabbitVibeQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitVibeQueue{conn: conn, queue: queue, pubCh: ch}, nil
}

// Enqueue публикует задачу как persistent-сообщение.
func (q *RabbitVibeQueue) Enqueue(ctx context.Context, job domain.VibeAnalysisJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	start := time.Now()
	err = q.pubCh.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.RequestedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive читает следующую задачу. Ack(true) подтверждает, Ack(false) возвращает сообщение брокеру.
func (q *RabbitVibeQueue) Receive(ctx context.Context) (domain.VibeAnalysisJob, domain.AckFunc, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.VibeAnalysisJob{}, nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return domain.VibeAnalysisJob{}, nil, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return domain.VibeAnalysisJob{}, nil, errors.New("rabbitmq: delivery channel closed")
			}
			var job domain.VibeAnalysisJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				_ = d.Nack(false, false)
				continue
			}
			redelivered := d.Redelivered
			ack := func(success bool) error {
				if success {
					return d.Ack(false)
				}
				// повторная доставка только один раз
				return d.Nack(false, !redelivered)
			}
			return job, ack, nil
		}
	}
}

func (q *RabbitVibeQueue) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.consumeCh = ch
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает каналы и соединение.
func (q *RabbitVibeQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.consumeCh != nil {
		_ = q.consumeCh.Close()
	}
	if q.pubCh != nil {
		_ = q.pubCh.Close()
	}
	return q.conn.Close()
}
