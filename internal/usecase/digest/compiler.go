package digest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/infra/metrics"
)

// ImportanceThreshold задаёт минимальную оценку важности, с которой
// сообщение попадает в дайджест.
const ImportanceThreshold = 0.5

// Window задаёт глубину окна выборки сообщений.
const Window = 24 * time.Hour

// Digest хранит скомпилированный, но ещё не отправленный дайджест.
type Digest struct {
	Content string
	Items   []domain.DeliveryItem
}

// IsEmpty сообщает, что отправлять нечего.
func (d Digest) IsEmpty() bool {
	return len(d.Items) == 0
}

// Compiler собирает дайджест из важных сообщений пользователя.
type Compiler struct {
	messages domain.MessageRepo
	log      zerolog.Logger
	now      func() time.Time
}

// NewCompiler создаёт компилятор дайджестов.
func NewCompiler(messages domain.MessageRepo, log zerolog.Logger) *Compiler {
	return &Compiler{messages: messages, log: log, now: time.Now}
}

// Compile строит дайджест за последние 24 часа с учётом настроек пользователя:
// порога важности, подписок на темы и уровня детализации.
func (c *Compiler) Compile(ctx context.Context, user domain.User) (Digest, error) {
	start := time.Now()

	query := domain.MessageQuery{
		UserID:        user.ID,
		Since:         c.now().Add(-Window),
		MinImportance: ImportanceThreshold,
	}
	// Без подписок фильтр по темам не применяется: берём все важные сообщения.
	if len(user.Settings.Topics) > 0 {
		query.Topics = user.Settings.Topics
	}

	msgs, err := c.messages.ListImportant(ctx, query)
	if err != nil {
		return Digest{}, fmt.Errorf("выборка важных сообщений: %w", err)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].ImportanceScore != msgs[j].ImportanceScore {
			return msgs[i].ImportanceScore > msgs[j].ImportanceScore
		}
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})

	maxItems := user.Settings.MaxItems()
	if len(msgs) > maxItems {
		msgs = msgs[:maxItems]
	}

	items := make([]domain.DeliveryItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, domain.DeliveryItem{
			MessageID:  m.ID,
			ChatID:     m.ChatID,
			Text:       m.Text,
			Importance: m.ImportanceScore,
			Topics:     m.Topics,
			CreatedAt:  m.CreatedAt,
		})
	}

	metrics.DigestBuildSeconds.Observe(time.Since(start).Seconds())
	c.log.Debug().Int64("user_id", user.ID).Int("items", len(items)).Msg("дайджест скомпилирован")

	return Digest{Content: FormatItems(items), Items: items}, nil
}
