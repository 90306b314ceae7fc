package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/infra/metrics"
)

// ErrUserNotFound возвращается, если пользователь не зарегистрирован.
var ErrUserNotFound = errors.New("пользователь не найден")

// ErrDeliveryNotFound возвращается, если запись о дайджесте отсутствует.
var ErrDeliveryNotFound = errors.New("дайджест не найден")

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.UserRepo = (*Postgres)(nil)
var _ domain.MessageRepo = (*Postgres)(nil)
var _ domain.DeliveryRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// UpsertByTGID реализует domain.UserRepo. Новый пользователь получает
// настройки по умолчанию, существующий сохраняет свои.
func (p *Postgres) UpsertByTGID(ctx context.Context, profile domain.TelegramProfile) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	defaults := domain.DefaultSettings()
	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO users (tg_user_id, username, first_name, last_name, digest_time, detail_level, tz, topics, digest_enabled)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), $5, $6, $7, '{}', $8)
ON CONFLICT (tg_user_id) DO UPDATE SET
    username   = COALESCE(EXCLUDED.username, users.username),
    first_name = COALESCE(EXCLUDED.first_name, users.first_name),
    last_name  = COALESCE(EXCLUDED.last_name, users.last_name),
    updated_at = now()
RETURNING id, tg_user_id, username, first_name, last_name, digest_time, detail_level, tz, topics, digest_enabled, created_at, updated_at
`, profile.TGUserID, profile.Username, profile.FirstName, profile.LastName,
		defaults.DigestTime, defaults.DetailLevel, defaults.Timezone, defaults.DigestEnabled)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	if err != nil {
		return domain.User{}, fmt.Errorf("апсерт пользователя: %w", err)
	}
	return user, nil
}

// GetByTGID реализует domain.UserRepo.
func (p *Postgres) GetByTGID(ctx context.Context, tgUserID int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, tg_user_id, username, first_name, last_name, digest_time, detail_level, tz, topics, digest_enabled, created_at, updated_at
FROM users WHERE tg_user_id = $1
`, tgUserID)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("получение пользователя: %w", err)
	}
	return user, nil
}

// ListActive возвращает всех пользователей с включённой рассылкой.
func (p *Postgres) ListActive(ctx context.Context) ([]domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, tg_user_id, username, first_name, last_name, digest_time, detail_level, tz, topics, digest_enabled, created_at, updated_at
FROM users WHERE digest_enabled ORDER BY id
`)
	metrics.ObserveNetworkRequest("postgres", "users_list_active", "users", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка пользователей: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение пользователя: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateSettings сохраняет настройки пользователя. Настройки валидируются
// на записи.
func (p *Postgres) UpdateSettings(ctx context.Context, userID int64, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	topics := settings.Topics
	if topics == nil {
		topics = []string{}
	}
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE users SET digest_time = $2, detail_level = $3, tz = $4, topics = $5, digest_enabled = $6, updated_at = now()
WHERE id = $1
`, userID, settings.DigestTime, settings.DetailLevel, settings.Timezone, topics, settings.DigestEnabled)
	metrics.ObserveNetworkRequest("postgres", "users_update_settings", "users", start, err)
	if err != nil {
		return fmt.Errorf("обновление настроек: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Save реализует domain.MessageRepo.
func (p *Postgres) Save(ctx context.Context, msg domain.Message) (domain.Message, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	topics := msg.Topics
	if topics == nil {
		topics = []string{}
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO messages (tg_msg_id, chat_id, user_id, text, importance_score, topics, raw_meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`, msg.TGMsgID, msg.ChatID, msg.UserID, msg.Text, domain.ClampScore(msg.ImportanceScore), topics, msg.RawMetaJSON, createdAt).Scan(&msg.ID)
	metrics.ObserveNetworkRequest("postgres", "messages_insert", "messages", start, err)
	if err != nil {
		return domain.Message{}, fmt.Errorf("сохранение сообщения: %w", err)
	}
	msg.CreatedAt = createdAt
	return msg, nil
}

// ListImportant возвращает сообщения пользователя по окну, порогу важности и
// подпискам. Порядок: важность по убыванию, при равенстве — свежесть.
func (p *Postgres) ListImportant(ctx context.Context, q domain.MessageQuery) ([]domain.Message, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query := `
SELECT id, tg_msg_id, chat_id, user_id, text, importance_score, topics, raw_meta, created_at
FROM messages
WHERE user_id = $1 AND created_at >= $2 AND importance_score >= $3`
	args := []any{q.UserID, q.Since, q.MinImportance}
	if len(q.Topics) > 0 {
		query += ` AND topics && $4::text[]`
		args = append(args, q.Topics)
	}
	query += ` ORDER BY importance_score DESC, created_at DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "messages_list_important", "messages", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка сообщений: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.TGMsgID, &msg.ChatID, &msg.UserID, &msg.Text, &msg.ImportanceScore, &msg.Topics, &msg.RawMetaJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("чтение сообщения: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Insert реализует domain.DeliveryRepo.
func (p *Postgres) Insert(ctx context.Context, delivery domain.DigestDelivery) (domain.DigestDelivery, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	items, err := json.Marshal(delivery.Items)
	if err != nil {
		return domain.DigestDelivery{}, fmt.Errorf("сериализация пунктов дайджеста: %w", err)
	}
	sentAt := delivery.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	start := time.Now()
	err = p.pool.QueryRow(ctx, `
INSERT INTO digest_deliveries (user_id, content, items, summary, sent_at)
VALUES ($1, $2, $3, NULLIF($4,''), $5)
RETURNING id
`, delivery.UserID, delivery.Content, items, delivery.Summary, sentAt).Scan(&delivery.ID)
	metrics.ObserveNetworkRequest("postgres", "deliveries_insert", "digest_deliveries", start, err)
	if err != nil {
		return domain.DigestDelivery{}, fmt.Errorf("сохранение дайджеста: %w", err)
	}
	delivery.SentAt = sentAt
	return delivery, nil
}

// UpdateFeedback записывает оценку дайджеста. Последняя оценка побеждает,
// сброс в NULL невозможен.
func (p *Postgres) UpdateFeedback(ctx context.Context, deliveryID int64, score float64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE digest_deliveries SET feedback_score = $2 WHERE id = $1
`, deliveryID, domain.ClampScore(score))
	metrics.ObserveNetworkRequest("postgres", "deliveries_update_feedback", "digest_deliveries", start, err)
	if err != nil {
		return fmt.Errorf("обновление фидбека: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// ListByUser возвращает последние дайджесты пользователя.
func (p *Postgres) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.DigestDelivery, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, content, items, COALESCE(summary, ''), feedback_score, sent_at
FROM digest_deliveries WHERE user_id = $1 ORDER BY sent_at DESC LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "deliveries_list", "digest_deliveries", start, err)
	if err != nil {
		return nil, fmt.Errorf("выборка дайджестов: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.DigestDelivery
	for rows.Next() {
		var (
			delivery domain.DigestDelivery
			items    []byte
			feedback sql.NullFloat64
		)
		if err := rows.Scan(&delivery.ID, &delivery.UserID, &delivery.Content, &items, &delivery.Summary, &feedback, &delivery.SentAt); err != nil {
			return nil, fmt.Errorf("чтение дайджеста: %w", err)
		}
		if len(items) > 0 {
			if err := json.Unmarshal(items, &delivery.Items); err != nil {
				return nil, fmt.Errorf("разбор пунктов дайджеста: %w", err)
			}
		}
		if feedback.Valid {
			delivery.FeedbackScore = &feedback.Float64
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		user      domain.User
		username  sql.NullString
		firstName sql.NullString
		lastName  sql.NullString
	)
	err := row.Scan(&user.ID, &user.TGUserID, &username, &firstName, &lastName,
		&user.Settings.DigestTime, &user.Settings.DetailLevel, &user.Settings.Timezone,
		&user.Settings.Topics, &user.Settings.DigestEnabled, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return domain.User{}, err
	}
	user.Username = username.String
	user.FirstName = firstName.String
	user.LastName = lastName.String
	return user, nil
}
