package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/usecase/feedback"
	"chat-digest-bot/internal/usecase/settings"
	"chat-digest-bot/internal/usecase/stats"
)

// Delivery отправляет дайджест пользователю по запросу.
type Delivery interface {
	Execute(ctx context.Context, tgUserID int64) bool
}

// Feedback обрабатывает нажатия кнопок оценки.
type Feedback interface {
	Handle(ctx context.Context, reaction feedback.Reaction)
}

// Handler обслуживает апдейты бота: команды, обычные сообщения чатов
// и callback-кнопки оценки дайджестов.
type Handler struct {
	notifier   domain.Notifier
	log        zerolog.Logger
	users      domain.UserRepo
	jobs       domain.IngestQueue
	settingsUC *settings.Service
	statsUC    *stats.Service
	deliveryUC Delivery
	feedbackUC Feedback
}

// NewHandler создаёт обработчик.
func NewHandler(notifier domain.Notifier, log zerolog.Logger, users domain.UserRepo, jobs domain.IngestQueue, settingsUC *settings.Service, statsUC *stats.Service, deliveryUC Delivery, feedbackUC Feedback) *Handler {
	return &Handler{
		notifier:   notifier,
		log:        log,
		users:      users,
		jobs:       jobs,
		settingsUC: settingsUC,
		statsUC:    statsUC,
		deliveryUC: deliveryUC,
		feedbackUC: feedbackUC,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)

	if !strings.HasPrefix(text, "/") {
		h.handleChatMessage(ctx, msg, text)
		return
	}

	switch {
	case strings.HasPrefix(text, "/start"):
		h.handleStart(ctx, msg)
	case strings.HasPrefix(text, "/help"):
		h.reply(ctx, msg.Chat.ID, helpMessage)
	case strings.HasPrefix(text, "/settings"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/settings"))
		h.handleSettings(ctx, msg.Chat.ID, msg.From.ID, payload)
	case strings.HasPrefix(text, "/subscribe"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/subscribe"))
		h.handleSubscribe(ctx, msg.Chat.ID, msg.From.ID, payload)
	case strings.HasPrefix(text, "/stats"):
		h.handleStats(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/digest"):
		h.handleDigest(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/pause"):
		h.handleToggle(ctx, msg.Chat.ID, msg.From.ID, false)
	case strings.HasPrefix(text, "/resume"):
		h.handleToggle(ctx, msg.Chat.ID, msg.From.ID, true)
	default:
		h.reply(ctx, msg.Chat.ID, "Неизвестная команда. Используйте /help")
	}
}

// handleChatMessage ставит обычное сообщение чата в очередь на скоринг.
func (h *Handler) handleChatMessage(ctx context.Context, msg *tgbotapi.Message, text string) {
	if text == "" {
		return
	}
	job := domain.IngestJob{
		JobID:     uuid.NewString(),
		TGMsgID:   int64(msg.MessageID),
		ChatID:    msg.Chat.ID,
		TGUserID:  msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
		Text:      text,
		Meta:      messageMeta(msg),
		CreatedAt: time.Unix(int64(msg.Date), 0).UTC(),
	}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("постановка сообщения в очередь")
	}
}

func messageMeta(msg *tgbotapi.Message) map[string]any {
	meta := map[string]any{}
	if msg.Chat.Title != "" {
		meta["chat_title"] = msg.Chat.Title
	}
	if msg.From.UserName != "" {
		meta["username"] = msg.From.UserName
	}
	if msg.ReplyToMessage != nil {
		meta["reply_to"] = msg.ReplyToMessage.MessageID
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	profile := domain.TelegramProfile{
		TGUserID:  msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}
	user, err := h.users.UpsertByTGID(ctx, profile)
	if err != nil {
		h.log.Error().Err(err).Int64("tg_user_id", msg.From.ID).Msg("регистрация пользователя")
		h.reply(ctx, msg.Chat.ID, "Не получилось сохранить профиль. Попробуйте позже.")
		return
	}
	h.reply(ctx, msg.Chat.ID, startMessage(user))
}

func (h *Handler) handleSettings(ctx context.Context, chatID, tgUserID int64, payload string) {
	if payload == "" {
		current, err := h.settingsUC.Get(ctx, tgUserID)
		if err != nil {
			h.reply(ctx, chatID, "Нажми /start, чтобы я тебя зарегистрировал.")
			return
		}
		h.reply(ctx, chatID, settingsMessage(current))
		return
	}

	parts := strings.Fields(payload)
	if len(parts) != 2 {
		h.reply(ctx, chatID, settingsUsage)
		return
	}

	var err error
	var confirmation string
	switch strings.ToLower(parts[0]) {
	case "time":
		err = h.settingsUC.SetDigestTime(ctx, tgUserID, parts[1])
		confirmation = "Новое время дайджеста: " + parts[1]
	case "detail":
		err = h.settingsUC.SetDetailLevel(ctx, tgUserID, parts[1])
		confirmation = "Новая детализация: " + strings.ToLower(parts[1])
	case "tz":
		err = h.settingsUC.SetTimezone(ctx, tgUserID, parts[1])
		confirmation = "Новый часовой пояс: " + parts[1]
	default:
		h.reply(ctx, chatID, settingsUsage)
		return
	}

	switch {
	case err == nil:
		h.reply(ctx, chatID, confirmation)
	case errors.Is(err, domain.ErrInvalidDigestTime):
		h.reply(ctx, chatID, "Неверный формат. Пример: /settings time 20:00")
	case errors.Is(err, domain.ErrInvalidDetailLevel):
		h.reply(ctx, chatID, "Неверный формат. Варианты: brief или full")
	case errors.Is(err, domain.ErrInvalidTimezone):
		h.reply(ctx, chatID, "Неизвестный часовой пояс. Пример: /settings tz Europe/Moscow")
	default:
		h.log.Error().Err(err).Int64("tg_user_id", tgUserID).Msg("обновление настроек")
		h.reply(ctx, chatID, "Не получилось обновить настройки. Попробуйте позже.")
	}
}

func (h *Handler) handleSubscribe(ctx context.Context, chatID, tgUserID int64, payload string) {
	if payload == "" {
		current, err := h.settingsUC.Get(ctx, tgUserID)
		if err != nil {
			h.reply(ctx, chatID, "Нажми /start, чтобы я тебя зарегистрировал.")
			return
		}
		if len(current.Topics) == 0 {
			h.reply(ctx, chatID, "У тебя пока нет подписок.\n\nИспользование:\n/subscribe add <тема>\n/subscribe remove <тема>")
			return
		}
		h.reply(ctx, chatID, "Твои подписки:\n"+strings.Join(current.Topics, ", "))
		return
	}

	parts := strings.Fields(payload)
	if len(parts) < 2 {
		h.reply(ctx, chatID, "Использование: /subscribe add <тема> или /subscribe remove <тема>")
		return
	}
	action := strings.ToLower(parts[0])
	topic := strings.TrimSpace(strings.Join(parts[1:], " "))
	if topic == "" {
		h.reply(ctx, chatID, "Тема не может быть пустой")
		return
	}

	switch action {
	case "add":
		err := h.settingsUC.Subscribe(ctx, tgUserID, topic)
		switch {
		case err == nil:
			h.reply(ctx, chatID, "Готово! Ты подписался на тему: "+topic)
		case errors.Is(err, settings.ErrAlreadySubscribed):
			h.reply(ctx, chatID, "Ты уже подписан на тему: "+topic)
		default:
			h.log.Error().Err(err).Int64("tg_user_id", tgUserID).Msg("добавление подписки")
			h.reply(ctx, chatID, "Не получилось сохранить подписку. Попробуйте позже.")
		}
	case "remove":
		err := h.settingsUC.Unsubscribe(ctx, tgUserID, topic)
		switch {
		case err == nil:
			h.reply(ctx, chatID, fmt.Sprintf("Готово! Подписка на тему '%s' удалена.", topic))
		case errors.Is(err, settings.ErrNotSubscribed):
			h.reply(ctx, chatID, fmt.Sprintf("Тема '%s' не найдена в твоих подписках.", topic))
		default:
			h.log.Error().Err(err).Int64("tg_user_id", tgUserID).Msg("удаление подписки")
			h.reply(ctx, chatID, "Не получилось удалить подписку. Попробуйте позже.")
		}
	default:
		h.reply(ctx, chatID, "Неизвестное действие. Используй add или remove.")
	}
}

func (h *Handler) handleStats(ctx context.Context, chatID, tgUserID int64) {
	summary, err := h.statsUC.Build(ctx, tgUserID)
	if err != nil {
		h.log.Error().Err(err).Int64("tg_user_id", tgUserID).Msg("сбор статистики")
		h.reply(ctx, chatID, "Не получилось получить статистику. Попробуй позже.")
		return
	}
	h.reply(ctx, chatID, stats.Format(summary))
}

func (h *Handler) handleDigest(ctx context.Context, chatID, tgUserID int64) {
	if h.deliveryUC.Execute(ctx, tgUserID) {
		h.reply(ctx, chatID, "Дайджест отправлен.")
		return
	}
	h.reply(ctx, chatID, "Не получилось отправить дайджест.")
}

func (h *Handler) handleToggle(ctx context.Context, chatID, tgUserID int64, enabled bool) {
	if err := h.settingsUC.SetEnabled(ctx, tgUserID, enabled); err != nil {
		h.log.Error().Err(err).Int64("tg_user_id", tgUserID).Msg("переключение рассылки")
		h.reply(ctx, chatID, "Не получилось обновить настройки. Попробуйте позже.")
		return
	}
	if enabled {
		h.reply(ctx, chatID, "Рассылка включена.")
	} else {
		h.reply(ctx, chatID, "Рассылка выключена. Вернуть: /resume")
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	reaction := feedback.Reaction{
		CallbackID: cb.ID,
		Data:       cb.Data,
	}
	if cb.From != nil {
		reaction.TGUserID = cb.From.ID
	}
	if cb.Message != nil {
		reaction.ChatID = cb.Message.Chat.ID
	}
	h.feedbackUC.Handle(ctx, reaction)
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.notifier.SendText(ctx, chatID, text); err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("отправка ответа")
	}
}

func startMessage(user domain.User) string {
	name := user.FirstName
	if name == "" {
		name = "снова"
	}
	return fmt.Sprintf(
		"Привет, %s! Я собираю важные сообщения твоих чатов в ежедневный дайджест.\n\n"+
			"Время доставки: %s (%s)\n"+
			"Детализация: %s\n\n"+
			"Настройки: /settings, подписки на темы: /subscribe, дайджест прямо сейчас: /digest",
		name, user.Settings.DigestTime, user.Settings.Timezone, user.Settings.DetailLevel,
	)
}

func settingsMessage(s domain.Settings) string {
	enabled := "включена"
	if !s.DigestEnabled {
		enabled = "выключена"
	}
	return fmt.Sprintf(
		"Твои настройки:\n"+
			"• Время дайджеста: %s\n"+
			"• Детализация: %s\n"+
			"• Часовой пояс: %s\n"+
			"• Рассылка: %s\n\n"+
			"Команды:\n/settings time HH:MM\n/settings detail brief/full\n/settings tz Area/City",
		s.DigestTime, s.DetailLevel, s.Timezone, enabled,
	)
}

const settingsUsage = "Неверный формат команды.\n\n" +
	"Доступные команды:\n" +
	"/settings - показать настройки\n" +
	"/settings time HH:MM\n" +
	"/settings detail brief|full\n" +
	"/settings tz Area/City"

const helpMessage = "Я собираю сообщения чатов, оцениваю их важность и раз в день присылаю дайджест.\n\n" +
	"/digest - дайджест за последние 24 часа\n" +
	"/settings - время, детализация и часовой пояс\n" +
	"/subscribe - подписки на темы\n" +
	"/stats - статистика\n" +
	"/pause и /resume - выключить и включить рассылку"
