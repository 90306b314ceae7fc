package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/infra/metrics"
	"chat-digest-bot/internal/usecase/digest"
)

// Compiler собирает дайджест для пользователя.
type Compiler interface {
	Compile(ctx context.Context, user domain.User) (digest.Digest, error)
}

// Service доставляет дайджест одному пользователю: компиляция, отправка,
// запись о доставке и прикрепление кнопок оценки.
type Service struct {
	users      domain.UserRepo
	compiler   Compiler
	deliveries domain.DeliveryRepo
	notifier   domain.Notifier
	log        zerolog.Logger
	now        func() time.Time
}

// NewService создаёт сервис доставки.
func NewService(users domain.UserRepo, compiler Compiler, deliveries domain.DeliveryRepo, notifier domain.Notifier, log zerolog.Logger) *Service {
	return &Service{users: users, compiler: compiler, deliveries: deliveries, notifier: notifier, log: log, now: time.Now}
}

// Execute отправляет дайджест пользователю по его Telegram id.
// Возвращает false без побочных эффектов, если пользователь не найден или
// рассылка у него выключена. Пустой дайджест считается успешным no-op:
// ничего не отправляется и запись не создаётся. Запись о доставке появляется
// только после успешной отправки.
func (s *Service) Execute(ctx context.Context, tgUserID int64) bool {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		s.log.Warn().Err(err).Int64("tg_user_id", tgUserID).Msg("пользователь для доставки не найден")
		metrics.DigestDeliveriesTotal.WithLabelValues("no_user").Inc()
		return false
	}
	if !user.CanReceiveDigest() {
		s.log.Debug().Int64("user_id", user.ID).Msg("рассылка выключена, доставка пропущена")
		metrics.DigestDeliveriesTotal.WithLabelValues("disabled").Inc()
		return false
	}

	d, err := s.compiler.Compile(ctx, user)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("компиляция дайджеста не удалась")
		metrics.DigestDeliveriesTotal.WithLabelValues("compile_error").Inc()
		return false
	}
	if d.IsEmpty() {
		s.log.Info().Int64("user_id", user.ID).Msg("важных сообщений нет, отправлять нечего")
		metrics.DigestDeliveriesTotal.WithLabelValues("empty").Inc()
		return true
	}

	lastMessageID, err := s.notifier.SendDigest(ctx, user.TGUserID, d.Content)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("отправка дайджеста не удалась")
		metrics.DigestDeliveriesTotal.WithLabelValues("send_error").Inc()
		return false
	}

	record := domain.DigestDelivery{
		UserID:  user.ID,
		Content: d.Content,
		Items:   d.Items,
		SentAt:  s.now().UTC(),
	}
	record.ShortSummary()

	saved, err := s.deliveries.Insert(ctx, record)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", user.ID).Msg("сохранение записи о доставке не удалось")
		metrics.DigestDeliveriesTotal.WithLabelValues("store_error").Inc()
		return false
	}

	// Кнопки оценки прикрепляются после сохранения записи: токен в кнопках
	// несёт id доставки. Ошибка здесь не отменяет уже состоявшуюся доставку.
	if err := s.notifier.AttachFeedback(ctx, user.TGUserID, lastMessageID, saved.ID); err != nil {
		s.log.Warn().Err(err).Int64("delivery_id", saved.ID).Msg("не удалось прикрепить кнопки оценки")
	}

	s.log.Info().Int64("user_id", user.ID).Int64("delivery_id", saved.ID).Int("items", len(d.Items)).Msg("дайджест доставлен")
	metrics.DigestDeliveriesTotal.WithLabelValues("sent").Inc()
	return true
}
