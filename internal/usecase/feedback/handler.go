package feedback

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/infra/metrics"
)

const tokenPrefix = "feedback"

// Reaction описывает нажатие кнопки оценки под дайджестом.
type Reaction struct {
	CallbackID string
	TGUserID   int64
	ChatID     int64
	Data       string
}

// Handler записывает оценку дайджеста по корреляционному токену кнопки.
type Handler struct {
	deliveries domain.DeliveryRepo
	sink       domain.FeedbackSink
	notifier   domain.Notifier
	log        zerolog.Logger
}

// NewHandler создаёт обработчик фидбека. sink может быть nil.
func NewHandler(deliveries domain.DeliveryRepo, sink domain.FeedbackSink, notifier domain.Notifier, log zerolog.Logger) *Handler {
	return &Handler{deliveries: deliveries, sink: sink, notifier: notifier, log: log}
}

// Handle разбирает токен вида "feedback:<delivery_id>:<score>" и сохраняет
// оценку. Нечитаемый токен логируется и не меняет состояние. Callback
// подтверждается ровно один раз на любом пути, чтобы кнопка не зависала.
func (h *Handler) Handle(ctx context.Context, reaction Reaction) {
	defer func() {
		if err := h.notifier.AnswerCallback(ctx, reaction.CallbackID); err != nil {
			h.log.Warn().Err(err).Str("callback_id", reaction.CallbackID).Msg("подтверждение callback не удалось")
		}
	}()

	deliveryID, score, err := ParseToken(reaction.Data)
	if err != nil {
		h.log.Warn().Err(err).Str("data", reaction.Data).Msg("нечитаемый токен оценки")
		metrics.FeedbackTotal.WithLabelValues("invalid").Inc()
		return
	}

	if err := h.deliveries.UpdateFeedback(ctx, deliveryID, score); err != nil {
		h.log.Error().Err(err).Int64("delivery_id", deliveryID).Msg("сохранение оценки не удалось")
		metrics.FeedbackTotal.WithLabelValues("store_error").Inc()
		return
	}

	// Передача в ML для дообучения не должна блокировать подтверждение.
	if h.sink != nil {
		if err := h.sink.Submit(ctx, reaction.TGUserID, deliveryID, score); err != nil {
			h.log.Warn().Err(err).Int64("delivery_id", deliveryID).Msg("передача оценки в сервис скоринга не удалась")
		}
	}

	h.log.Info().Int64("delivery_id", deliveryID).Float64("score", score).Int64("tg_user_id", reaction.TGUserID).Msg("оценка дайджеста записана")
	metrics.FeedbackTotal.WithLabelValues("recorded").Inc()
}

// ParseToken разбирает корреляционный токен кнопки оценки.
func ParseToken(data string) (deliveryID int64, score float64, err error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != tokenPrefix {
		return 0, 0, fmt.Errorf("неверный формат токена %q", data)
	}
	deliveryID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("нечисловой id доставки %q: %w", parts[1], err)
	}
	score, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("нечисловая оценка %q: %w", parts[2], err)
	}
	return deliveryID, score, nil
}
