package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"chat-digest-bot/internal/adapters/repo"
	"chat-digest-bot/internal/adapters/scoring"
	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/infra/cache"
	"chat-digest-bot/internal/infra/config"
	"chat-digest-bot/internal/infra/db"
	"chat-digest-bot/internal/infra/log"
	"chat-digest-bot/internal/infra/metrics"
	"chat-digest-bot/internal/infra/queue"
	"chat-digest-bot/internal/usecase/ingest"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "scoring-worker")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	jobs, err := newIngestQueue(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать очередь сообщений")
	}

	remote := scoring.NewRemoteClient(cfg.Scoring.ServiceURL, cfg.Scoring.Timeout, cfg.Scoring.MaxRetries)
	gateway := scoring.NewGateway(remote, logger)
	scorer := scoring.NewCachedScorer(gateway, cache.NewRedis(redisClient), cfg.Scoring.CacheTTL, logger)

	repoAdapter := repo.NewPostgres(pool)
	worker := ingest.NewWorker(jobs, repoAdapter, repoAdapter, scorer, logger)

	ctx, cancel := context.WithCancel(context.Background())
	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
		<-stop
		logger.Info().Msg("остановка воркера скоринга")
		cancel()
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("воркер скоринга завершился с ошибкой")
	}
}

func newIngestQueue(cfg config.AppConfig, redisClient *redis.Client) (domain.IngestQueue, error) {
	if cfg.Queue.Backend == "amqp" {
		return queue.NewAMQPIngestQueue(cfg.Queue.AMQPURL, cfg.Queue.Key)
	}
	return queue.NewRedisIngestQueue(redisClient, cfg.Queue.Key), nil
}
