package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-digest-bot/internal/domain"
)

// RedisIngestQueue реализует очередь входящих сообщений на базе Redis lists.
type RedisIngestQueue struct {
	client *redis.Client
	key    string
}

var _ domain.IngestQueue = (*RedisIngestQueue)(nil)

// NewRedisIngestQueue создаёт очередь по указанному ключу.
func NewRedisIngestQueue(client *redis.Client, key string) *RedisIngestQueue {
	return &RedisIngestQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisIngestQueue) Enqueue(ctx context.Context, job domain.IngestJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RedisIngestQueue) Pop(ctx context.Context) (domain.IngestJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.IngestJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.IngestJob{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.IngestJob{}, err
		}
		if len(res) != 2 {
			return domain.IngestJob{}, errors.New("redis queue: unexpected response")
		}
		var job domain.IngestJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.IngestJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}
