package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"chat-digest-bot/internal/adapters/bot"
	"chat-digest-bot/internal/adapters/repo"
	"chat-digest-bot/internal/adapters/scoring"
	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/infra/config"
	"chat-digest-bot/internal/infra/db"
	infrahttp "chat-digest-bot/internal/infra/http"
	"chat-digest-bot/internal/infra/log"
	"chat-digest-bot/internal/infra/metrics"
	"chat-digest-bot/internal/infra/queue"
	"chat-digest-bot/internal/usecase/delivery"
	"chat-digest-bot/internal/usecase/digest"
	"chat-digest-bot/internal/usecase/feedback"
	"chat-digest-bot/internal/usecase/settings"
	"chat-digest-bot/internal/usecase/stats"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "bot-gateway")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	repoAdapter := repo.NewPostgres(pool)

	jobs, err := newIngestQueue(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать очередь сообщений")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	notifier := bot.NewNotifier(botAPI, logger)

	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL + "/bot/webhook")
		if err != nil {
			logger.Fatal().Err(err).Msg("некорректный адрес вебхука")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Fatal().Err(err).Msg("не удалось зарегистрировать вебхук")
		}
	}

	scoringClient := scoring.NewRemoteClient(cfg.Scoring.ServiceURL, cfg.Scoring.Timeout, cfg.Scoring.MaxRetries)

	compiler := digest.NewCompiler(repoAdapter, logger)
	deliveryUC := delivery.NewService(repoAdapter, compiler, repoAdapter, notifier, logger)
	settingsUC := settings.NewService(repoAdapter)
	statsUC := stats.NewService(repoAdapter, repoAdapter)
	feedbackUC := feedback.NewHandler(repoAdapter, scoringClient, notifier, logger)

	h := bot.NewHandler(notifier, logger, repoAdapter, jobs, settingsUC, statsUC, deliveryUC, feedbackUC)

	srv := infrahttp.NewServer(logger)
	srv.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := srv.Start(cfg.Addr()); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка бот-гейтвея")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func newIngestQueue(cfg config.AppConfig, redisClient *redis.Client) (domain.IngestQueue, error) {
	if cfg.Queue.Backend == "amqp" {
		return queue.NewAMQPIngestQueue(cfg.Queue.AMQPURL, cfg.Queue.Key)
	}
	return queue.NewRedisIngestQueue(redisClient, cfg.Queue.Key), nil
}

var _ domain.UserRepo = (*repo.Postgres)(nil)
var _ domain.MessageRepo = (*repo.Postgres)(nil)
var _ domain.DeliveryRepo = (*repo.Postgres)(nil)
