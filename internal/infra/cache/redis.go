package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-digest-bot/internal/domain"
)

// ErrMiss возвращается при отсутствии или истечении ключа.
var ErrMiss = errors.New("ключ не найден")

// RedisCache реализует domain.Cache через Redis.
type RedisCache struct {
	client *redis.Client
}

var _ domain.Cache = (*RedisCache)(nil)

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get возвращает значение. Истекший ключ Redis удаляет сам, поэтому
// просроченная запись неотличима от отсутствующей.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return value, err
}

// Set задаёт значение с TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}
