package scoring

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/infra/metrics"
)

// remoteScorer описывает удалённый сервис скоринга.
type remoteScorer interface {
	Importance(ctx context.Context, text string, scoreCtx map[string]any) (float64, error)
	Topics(ctx context.Context, text string) ([]string, error)
}

// Gateway реализует domain.Scorer поверх удалённого сервиса с локальной
// эвристикой на случай его недоступности. Ошибки удалённого сервиса наружу
// не выходят.
type Gateway struct {
	remote remoteScorer
	log    zerolog.Logger
}

var _ domain.Scorer = (*Gateway)(nil)

// NewGateway создаёт шлюз скоринга.
func NewGateway(remote remoteScorer, log zerolog.Logger) *Gateway {
	return &Gateway{remote: remote, log: log}
}

// ScoreImportance возвращает оценку важности текста в [0,1]. Пустой текст
// оценивается в 0 без сетевого вызова.
func (g *Gateway) ScoreImportance(ctx context.Context, text string, scoreCtx map[string]any) float64 {
	normalized := Normalize(text)
	if normalized == "" {
		return 0
	}

	score, err := g.remote.Importance(ctx, normalized, scoreCtx)
	if err != nil {
		g.log.Warn().Err(err).Msg("scoring: сервис важности недоступен, используем эвристику")
		metrics.ScoringFallbacksTotal.WithLabelValues(KindImportance).Inc()
		score = HeuristicImportance(normalized)
	}
	return domain.ClampScore(score)
}

// ExtractTopics возвращает темы текста. Пустой текст даёт пустой список без
// сетевого вызова.
func (g *Gateway) ExtractTopics(ctx context.Context, text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	topics, err := g.remote.Topics(ctx, normalized)
	if err != nil {
		g.log.Warn().Err(err).Msg("scoring: сервис тем недоступен, используем эвристику")
		metrics.ScoringFallbacksTotal.WithLabelValues(KindTopics).Inc()
		return HeuristicTopics(normalized)
	}
	return SanitizeTopics(topics)
}

// Normalize приводит текст к каноническому виду перед скорингом: обрезает
// пробелы, применяет каноническую композицию Unicode и убирает управляющие
// и форматирующие символы.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = norm.NFC.String(text)
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
