package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-digest-bot/internal/domain"
)

// AMQPIngestQueue реализует очередь входящих сообщений через RabbitMQ.
type AMQPIngestQueue struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	queue     string
	deliverCh <-chan amqp.Delivery
}

var _ domain.IngestQueue = (*AMQPIngestQueue)(nil)

// NewAMQPIngestQueue подключается к RabbitMQ и объявляет очередь.
func NewAMQPIngestQueue(amqpURL, queue string) (*AMQPIngestQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPIngestQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *AMQPIngestQueue) Enqueue(ctx context.Context, job domain.IngestJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.JobID,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *AMQPIngestQueue) Pop(ctx context.Context) (domain.IngestJob, error) {
	if q.deliverCh == nil {
		deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.IngestJob{}, fmt.Errorf("consume: %w", err)
		}
		q.deliverCh = deliveries
	}
	for {
		select {
		case <-ctx.Done():
			return domain.IngestJob{}, ctx.Err()
		case delivery, ok := <-q.deliverCh:
			if !ok {
				return domain.IngestJob{}, errors.New("amqp queue: канал доставки закрыт")
			}
			var job domain.IngestJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				_ = delivery.Nack(false, false)
				return domain.IngestJob{}, fmt.Errorf("decode job: %w", err)
			}
			if err := delivery.Ack(false); err != nil {
				return domain.IngestJob{}, fmt.Errorf("ack job: %w", err)
			}
			return job, nil
		}
	}
}

// Close освобождает соединение с брокером.
func (q *AMQPIngestQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
