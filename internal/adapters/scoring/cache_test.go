package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chat-digest-bot/internal/infra/cache"
)

type memoryCache struct {
	values  map[string][]byte
	expires map[string]time.Time
	now     time.Time
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string][]byte), expires: make(map[string]time.Time), now: time.Now()}
}

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok := m.values[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	if deadline, hasTTL := m.expires[key]; hasTTL && !m.now.Before(deadline) {
		return nil, cache.ErrMiss
	}
	return value, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.values[key] = value
	if ttl > 0 {
		m.expires[key] = m.now.Add(ttl)
	}
	return nil
}

type countingScorer struct {
	importance      float64
	topics          []string
	importanceCalls int
	topicsCalls     int
}

func (c *countingScorer) ScoreImportance(ctx context.Context, text string, scoreCtx map[string]any) float64 {
	c.importanceCalls++
	return c.importance
}

func (c *countingScorer) ExtractTopics(ctx context.Context, text string) []string {
	c.topicsCalls++
	return c.topics
}

func TestCachedScorerHitSkipsInner(t *testing.T) {
	inner := &countingScorer{importance: 0.5}
	cached := NewCachedScorer(inner, newMemoryCache(), time.Hour, zerolog.Nop())

	first := cached.ScoreImportance(context.Background(), "hello world", nil)
	second := cached.ScoreImportance(context.Background(), "hello world", nil)

	if first != second {
		t.Fatalf("повторный вызов должен вернуть то же значение: %f != %f", first, second)
	}
	if inner.importanceCalls != 1 {
		t.Fatalf("ожидали один вызов внутреннего скорера, получили %d", inner.importanceCalls)
	}
}

func TestCachedScorerKeyedByNormalizedText(t *testing.T) {
	inner := &countingScorer{importance: 0.5}
	cached := NewCachedScorer(inner, newMemoryCache(), time.Hour, zerolog.Nop())

	cached.ScoreImportance(context.Background(), "hello world", nil)
	cached.ScoreImportance(context.Background(), "  hello world  ", nil)

	if inner.importanceCalls != 1 {
		t.Fatalf("нормализованный текст должен давать тот же ключ, вызовов: %d", inner.importanceCalls)
	}
}

func TestCachedScorerKindsDoNotCollide(t *testing.T) {
	inner := &countingScorer{importance: 0.5, topics: []string{"python"}}
	cached := NewCachedScorer(inner, newMemoryCache(), time.Hour, zerolog.Nop())

	cached.ScoreImportance(context.Background(), "hello world", nil)
	topics := cached.ExtractTopics(context.Background(), "hello world")

	if inner.topicsCalls != 1 {
		t.Fatalf("темы должны считаться отдельно от важности")
	}
	if len(topics) != 1 || topics[0] != "python" {
		t.Fatalf("ожидали [python], получили %v", topics)
	}
}

func TestCachedScorerExpiredEntryIsMiss(t *testing.T) {
	inner := &countingScorer{importance: 0.5}
	mem := newMemoryCache()
	cached := NewCachedScorer(inner, mem, time.Minute, zerolog.Nop())

	cached.ScoreImportance(context.Background(), "hello world", nil)
	mem.now = mem.now.Add(2 * time.Minute)
	cached.ScoreImportance(context.Background(), "hello world", nil)

	if inner.importanceCalls != 2 {
		t.Fatalf("истекшая запись должна считаться отсутствующей, вызовов: %d", inner.importanceCalls)
	}
}

func TestCachedScorerEmptyTextBypassesCache(t *testing.T) {
	inner := &countingScorer{}
	cached := NewCachedScorer(inner, newMemoryCache(), time.Hour, zerolog.Nop())

	if got := cached.ScoreImportance(context.Background(), "   ", nil); got != 0 {
		t.Fatalf("пустой текст должен давать 0, получили %f", got)
	}
	if inner.importanceCalls != 0 {
		t.Fatalf("пустой текст не должен доходить до внутреннего скорера")
	}
}
