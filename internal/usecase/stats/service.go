package stats

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"chat-digest-bot/internal/domain"
)

const (
	digestsLimit = 1000
	topTopics    = 10
)

// Summary агрегирует статистику рассылки пользователя.
type Summary struct {
	DigestsSent     int
	AverageFeedback *float64
	TopTopics       []TopicCount
}

// TopicCount хранит тему и число её появлений в доставленных дайджестах.
type TopicCount struct {
	Topic string
	Count int
}

// Service считает статистику по отправленным дайджестам.
type Service struct {
	users      domain.UserRepo
	deliveries domain.DeliveryRepo
}

// NewService создаёт сервис статистики.
func NewService(users domain.UserRepo, deliveries domain.DeliveryRepo) *Service {
	return &Service{users: users, deliveries: deliveries}
}

// Build собирает статистику: число доставок, средняя оценка и топ тем
// по позициям доставленных дайджестов.
func (s *Service) Build(ctx context.Context, tgUserID int64) (Summary, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return Summary{}, fmt.Errorf("получение пользователя: %w", err)
	}

	deliveries, err := s.deliveries.ListByUser(ctx, user.ID, digestsLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("выборка доставок: %w", err)
	}

	summary := Summary{DigestsSent: len(deliveries)}

	var feedbackSum float64
	feedbackCount := 0
	topicCounts := map[string]int{}
	for _, d := range deliveries {
		if d.FeedbackScore != nil {
			feedbackSum += *d.FeedbackScore
			feedbackCount++
		}
		for _, item := range d.Items {
			for _, topic := range item.Topics {
				if normalized := normalizeTopic(topic); normalized != "" {
					topicCounts[normalized]++
				}
			}
		}
	}

	if feedbackCount > 0 {
		avg := feedbackSum / float64(feedbackCount)
		summary.AverageFeedback = &avg
	}

	counts := make([]TopicCount, 0, len(topicCounts))
	for topic, count := range topicCounts {
		counts = append(counts, TopicCount{Topic: topic, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Topic < counts[j].Topic
	})
	if len(counts) > topTopics {
		counts = counts[:topTopics]
	}
	summary.TopTopics = counts

	return summary, nil
}

// Format формирует текстовое представление статистики для отправки в чат.
func Format(s Summary) string {
	lines := []string{"Статистика", fmt.Sprintf("Дайджестов отправлено: %d", s.DigestsSent)}

	if s.AverageFeedback == nil {
		lines = append(lines, "Средняя оценка: нет оценок")
	} else {
		lines = append(lines, fmt.Sprintf("Средняя оценка: %.2f", *s.AverageFeedback))
	}

	if len(s.TopTopics) == 0 {
		lines = append(lines, "Темы: нет данных")
	} else {
		lines = append(lines, "Темы (топ 10):")
		for _, tc := range s.TopTopics {
			lines = append(lines, fmt.Sprintf("• %s: %d", tc.Topic, tc.Count))
		}
	}

	return strings.Join(lines, "\n")
}

func normalizeTopic(topic string) string {
	return strings.Join(strings.Fields(strings.ToLower(topic)), " ")
}
