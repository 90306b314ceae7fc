package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/infra/metrics"
)

// Виды скоринга, участвующие в ключе кэша.
const (
	KindImportance = "importance"
	KindTopics     = "topics"
)

// CachedScorer кэширует результаты скоринга по хэшу нормализованного текста.
// Попадание в кэш исключает и сетевой вызов, и эвристику.
type CachedScorer struct {
	next  domain.Scorer
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

var _ domain.Scorer = (*CachedScorer)(nil)

// NewCachedScorer оборачивает скорер кэшем с фиксированным TTL.
func NewCachedScorer(next domain.Scorer, cache domain.Cache, ttl time.Duration, log zerolog.Logger) *CachedScorer {
	return &CachedScorer{next: next, cache: cache, ttl: ttl, log: log}
}

// ScoreImportance возвращает кэшированную оценку важности или считает новую.
func (c *CachedScorer) ScoreImportance(ctx context.Context, text string, scoreCtx map[string]any) float64 {
	normalized := Normalize(text)
	if normalized == "" {
		return 0
	}

	key := cacheKey(normalized, KindImportance)
	if raw, err := c.cache.Get(ctx, key); err == nil {
		if score, parseErr := strconv.ParseFloat(string(raw), 64); parseErr == nil {
			metrics.ScoringCacheHitsTotal.WithLabelValues(KindImportance).Inc()
			return domain.ClampScore(score)
		}
	}

	score := c.next.ScoreImportance(ctx, normalized, scoreCtx)
	value := strconv.FormatFloat(score, 'f', -1, 64)
	if err := c.cache.Set(ctx, key, []byte(value), c.ttl); err != nil {
		c.log.Warn().Err(err).Msg("scoring: не удалось записать оценку в кэш")
	}
	return score
}

// ExtractTopics возвращает кэшированные темы или извлекает новые.
func (c *CachedScorer) ExtractTopics(ctx context.Context, text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	key := cacheKey(normalized, KindTopics)
	if raw, err := c.cache.Get(ctx, key); err == nil {
		var topics []string
		if unmarshalErr := json.Unmarshal(raw, &topics); unmarshalErr == nil {
			metrics.ScoringCacheHitsTotal.WithLabelValues(KindTopics).Inc()
			return topics
		}
	}

	topics := c.next.ExtractTopics(ctx, normalized)
	if payload, err := json.Marshal(topics); err == nil {
		if err := c.cache.Set(ctx, key, payload, c.ttl); err != nil {
			c.log.Warn().Err(err).Msg("scoring: не удалось записать темы в кэш")
		}
	}
	return topics
}

func cacheKey(normalized, kind string) string {
	sum := sha256.Sum256([]byte(normalized))
	return "scoring:" + kind + ":" + hex.EncodeToString(sum[:])
}
