package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"chat-digest-bot/internal/adapters/telegram"
	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/infra/metrics"
)

const digestHeader = "📃 Дайджест за 24 часа"

// telegramAPI покрывает используемую часть tgbotapi.BotAPI.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Notifier отправляет сообщения и дайджесты через Telegram Bot API.
type Notifier struct {
	api telegramAPI
	log zerolog.Logger
}

var _ domain.Notifier = (*Notifier)(nil)

// NewNotifier создаёт нотификатор.
func NewNotifier(api telegramAPI, log zerolog.Logger) *Notifier {
	return &Notifier{api: api, log: log}
}

// SendText отправляет обычное текстовое сообщение.
func (n *Notifier) SendText(ctx context.Context, recipientID int64, text string) error {
	_, err := n.api.Send(tgbotapi.NewMessage(recipientID, text))
	if err != nil {
		metrics.BotSendErrors.Inc()
		return fmt.Errorf("отправка сообщения: %w", err)
	}
	return nil
}

// SendDigest отправляет дайджест, разбивая его на части в пределах лимита
// Telegram. Порядок частей сохраняется, контент не обрезается. Возвращает
// id последнего отправленного сообщения — к нему после сохранения записи
// прикрепляются кнопки оценки.
func (n *Notifier) SendDigest(ctx context.Context, recipientID int64, content string) (int, error) {
	parts := telegram.SplitMessage(digestHeader+"\n\n"+content, telegram.MessageLimit)
	lastMessageID := 0
	for i, part := range parts {
		sent, err := n.api.Send(tgbotapi.NewMessage(recipientID, part))
		if err != nil {
			metrics.BotSendErrors.Inc()
			return 0, fmt.Errorf("отправка части %d/%d дайджеста: %w", i+1, len(parts), err)
		}
		lastMessageID = sent.MessageID
	}
	return lastMessageID, nil
}

// AttachFeedback прикрепляет кнопки 👍/👎 с токеном доставки к уже
// отправленному сообщению.
func (n *Notifier) AttachFeedback(ctx context.Context, recipientID int64, messageID int, deliveryID int64) error {
	markup := FeedbackKeyboard(deliveryID)
	edit := tgbotapi.NewEditMessageReplyMarkup(recipientID, messageID, markup)
	if _, err := n.api.Request(edit); err != nil {
		return fmt.Errorf("прикрепление кнопок оценки: %w", err)
	}
	return nil
}

// AnswerCallback подтверждает нажатие кнопки, чтобы она не зависала в UI.
func (n *Notifier) AnswerCallback(ctx context.Context, callbackID string) error {
	if _, err := n.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("ответ на callback: %w", err)
	}
	return nil
}

// FeedbackKeyboard строит клавиатуру оценки дайджеста.
func FeedbackKeyboard(deliveryID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👍", fmt.Sprintf("feedback:%d:1", deliveryID)),
			tgbotapi.NewInlineKeyboardButtonData("👎", fmt.Sprintf("feedback:%d:0", deliveryID)),
		),
	)
}
