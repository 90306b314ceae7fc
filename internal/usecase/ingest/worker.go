package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/infra/metrics"
)

// popErrBackoff задаёт паузу перед повторным чтением после ошибки очереди.
const popErrBackoff = time.Second

// Worker вычитывает входящие сообщения из очереди, прогоняет их через
// скоринг и сохраняет с аннотациями важности и тем.
type Worker struct {
	queue    domain.IngestQueue
	users    domain.UserRepo
	messages domain.MessageRepo
	scorer   domain.Scorer
	log      zerolog.Logger
}

// NewWorker создаёт воркер скоринга.
func NewWorker(queue domain.IngestQueue, users domain.UserRepo, messages domain.MessageRepo, scorer domain.Scorer, log zerolog.Logger) *Worker {
	return &Worker{queue: queue, users: users, messages: messages, scorer: scorer, log: log}
}

// Run обрабатывает задания до отмены контекста. Ошибка одного задания
// логируется и не останавливает воркер.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Msg("воркер скоринга запущен")
	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.log.Info().Msg("воркер скоринга остановлен")
				return ctx.Err()
			}
			w.log.Error().Err(err).Msg("чтение задания из очереди")
			select {
			case <-ctx.Done():
				w.log.Info().Msg("воркер скоринга остановлен")
				return ctx.Err()
			case <-time.After(popErrBackoff):
			}
			continue
		}
		if err := w.Process(ctx, job); err != nil {
			w.log.Error().Err(err).Str("job_id", job.JobID).Msg("обработка задания не удалась")
		}
	}
}

// Process скорит одно сообщение и сохраняет его.
func (w *Worker) Process(ctx context.Context, job domain.IngestJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника при обработке задания %s: %v", job.JobID, r)
		}
	}()

	user, err := w.users.UpsertByTGID(ctx, domain.TelegramProfile{
		TGUserID:  job.TGUserID,
		Username:  job.Username,
		FirstName: job.FirstName,
		LastName:  job.LastName,
	})
	if err != nil {
		return fmt.Errorf("регистрация автора сообщения: %w", err)
	}

	msg := domain.Message{
		TGMsgID:   job.TGMsgID,
		ChatID:    job.ChatID,
		UserID:    user.ID,
		Text:      job.Text,
		CreatedAt: job.CreatedAt,
	}
	if len(job.Meta) > 0 {
		raw, err := json.Marshal(job.Meta)
		if err != nil {
			return fmt.Errorf("сериализация метаданных: %w", err)
		}
		msg.RawMetaJSON = raw
	}

	msg.SetImportance(w.scorer.ScoreImportance(ctx, job.Text, job.Meta))
	for _, topic := range w.scorer.ExtractTopics(ctx, job.Text) {
		msg.AddTopic(topic)
	}

	saved, err := w.messages.Save(ctx, msg)
	if err != nil {
		return fmt.Errorf("сохранение сообщения: %w", err)
	}

	metrics.IngestedMessagesTotal.Inc()
	w.log.Debug().
		Int64("message_id", saved.ID).
		Int64("chat_id", saved.ChatID).
		Float64("importance", saved.ImportanceScore).
		Msg("сообщение обработано")
	return nil
}
