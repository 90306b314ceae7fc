package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"chat-digest-bot/internal/adapters/bot"
	"chat-digest-bot/internal/adapters/repo"
	"chat-digest-bot/internal/infra/config"
	"chat-digest-bot/internal/infra/db"
	"chat-digest-bot/internal/infra/log"
	"chat-digest-bot/internal/infra/metrics"
	"chat-digest-bot/internal/scheduler"
	"chat-digest-bot/internal/usecase/delivery"
	"chat-digest-bot/internal/usecase/digest"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "scheduler")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	notifier := bot.NewNotifier(botAPI, logger)

	repoAdapter := repo.NewPostgres(pool)
	compiler := digest.NewCompiler(repoAdapter, logger)
	deliveryUC := delivery.NewService(repoAdapter, compiler, repoAdapter, notifier, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	sched := scheduler.New(repoAdapter, deliveryUC, cfg.Scheduler.CheckInterval, logger)
	sched.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка планировщика")
	sched.Stop()
}
