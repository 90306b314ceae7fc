package domain

import (
	"strings"
	"time"
)

// User описывает пользователя Telegram в системе.
type User struct {
	ID        int64
	TGUserID  int64
	Username  string
	FirstName string
	LastName  string
	Settings  Settings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanReceiveDigest сообщает, включена ли у пользователя рассылка.
func (u User) CanReceiveDigest() bool {
	return u.Settings.DigestEnabled
}

// Message представляет сохранённое сообщение чата с аннотациями скоринга.
type Message struct {
	ID              int64
	TGMsgID         int64
	ChatID          int64
	UserID          int64
	Text            string
	ImportanceScore float64
	Topics          []string
	RawMetaJSON     []byte
	CreatedAt       time.Time
}

// SetImportance записывает оценку важности, зажимая её в [0,1].
func (m *Message) SetImportance(score float64) {
	m.ImportanceScore = ClampScore(score)
}

// AddTopic добавляет тему без дублей, сохраняя порядок вставки.
func (m *Message) AddTopic(topic string) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	for _, existing := range m.Topics {
		if strings.EqualFold(existing, topic) {
			return
		}
	}
	m.Topics = append(m.Topics, topic)
}

// IsImportant проверяет, проходит ли сообщение порог важности.
func (m Message) IsImportant(threshold float64) bool {
	return m.ImportanceScore >= threshold
}

// DeliveryItem описывает одну позицию отправленного дайджеста.
type DeliveryItem struct {
	MessageID  int64
	ChatID     int64
	Text       string
	Importance float64
	Topics     []string
	CreatedAt  time.Time
}

// DigestDelivery хранит один скомпилированный и отправленный дайджест.
type DigestDelivery struct {
	ID            int64
	UserID        int64
	Content       string
	Items         []DeliveryItem
	Summary       string
	FeedbackScore *float64
	SentAt        time.Time
}

const summaryMaxLen = 500

// ShortSummary возвращает краткую сводку, при необходимости строя её из Content.
func (d *DigestDelivery) ShortSummary() string {
	if d.Summary != "" {
		return d.Summary
	}
	text := strings.TrimSpace(d.Content)
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= summaryMaxLen {
		d.Summary = text
		return d.Summary
	}
	d.Summary = strings.TrimRight(string(runes[:summaryMaxLen-1]), " \n") + "…"
	return d.Summary
}

// SetFeedback записывает оценку пользователя. Последняя оценка побеждает,
// сброс в nil не допускается.
func (d *DigestDelivery) SetFeedback(score float64) {
	value := ClampScore(score)
	d.FeedbackScore = &value
}

// ClampScore зажимает оценку в диапазон [0,1].
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
