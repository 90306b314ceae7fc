package domain

import (
	"context"
	"time"
)

// TelegramProfile содержит данные профиля из апдейта Telegram.
type TelegramProfile struct {
	TGUserID  int64
	Username  string
	FirstName string
	LastName  string
}

// UserRepo управляет пользователями.
type UserRepo interface {
	UpsertByTGID(ctx context.Context, profile TelegramProfile) (User, error)
	GetByTGID(ctx context.Context, tgUserID int64) (User, error)
	ListActive(ctx context.Context) ([]User, error)
	UpdateSettings(ctx context.Context, userID int64, settings Settings) error
}

// MessageQuery описывает выборку сообщений для дайджеста.
type MessageQuery struct {
	UserID        int64
	Since         time.Time
	MinImportance float64
	Topics        []string
	Limit         int
}

// MessageRepo управляет сообщениями и их аннотациями.
type MessageRepo interface {
	Save(ctx context.Context, msg Message) (Message, error)
	ListImportant(ctx context.Context, q MessageQuery) ([]Message, error)
}

// DeliveryRepo сохраняет и обновляет записи об отправленных дайджестах.
type DeliveryRepo interface {
	Insert(ctx context.Context, delivery DigestDelivery) (DigestDelivery, error)
	UpdateFeedback(ctx context.Context, deliveryID int64, score float64) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]DigestDelivery, error)
}

// Scorer оценивает важность текста и извлекает темы.
type Scorer interface {
	ScoreImportance(ctx context.Context, text string, scoreCtx map[string]any) float64
	ExtractTopics(ctx context.Context, text string) []string
}

// Notifier отправляет сообщения пользователю через транспорт.
// SendDigest возвращает идентификатор последнего транспортного сообщения,
// к которому затем прикрепляется контрол оценки с токеном доставки.
type Notifier interface {
	SendText(ctx context.Context, recipientID int64, text string) error
	SendDigest(ctx context.Context, recipientID int64, content string) (lastMessageID int, err error)
	AttachFeedback(ctx context.Context, recipientID int64, messageID int, deliveryID int64) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// IngestJob описывает входящее сообщение, ожидающее скоринга.
type IngestJob struct {
	JobID     string         `json:"job_id"`
	TGMsgID   int64          `json:"tg_msg_id"`
	ChatID    int64          `json:"chat_id"`
	TGUserID  int64          `json:"tg_user_id"`
	Username  string         `json:"username,omitempty"`
	FirstName string         `json:"first_name,omitempty"`
	LastName  string         `json:"last_name,omitempty"`
	Text      string         `json:"text"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// IngestQueue передаёт входящие сообщения воркеру скоринга.
type IngestQueue interface {
	Enqueue(ctx context.Context, job IngestJob) error
	Pop(ctx context.Context) (IngestJob, error)
}

// FeedbackSink принимает события фидбека для дообучения.
type FeedbackSink interface {
	Submit(ctx context.Context, tgUserID, deliveryID int64, score float64) error
}
