package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Scoring struct {
		ServiceURL string        `envconfig:"SCORING_SERVICE_URL" default:"http://localhost:8000"`
		Timeout    time.Duration `envconfig:"SCORING_TIMEOUT" default:"30s"`
		MaxRetries int           `envconfig:"SCORING_MAX_RETRIES" default:"3"`
		CacheTTL   time.Duration `envconfig:"SCORING_CACHE_TTL" default:"1h"`
	} `envconfig:""`

	Scheduler struct {
		CheckInterval time.Duration `envconfig:"SCHEDULER_CHECK_INTERVAL" default:"60s"`
	} `envconfig:""`

	Queue struct {
		Backend string `envconfig:"INGEST_QUEUE_BACKEND" default:"redis"`
		Key     string `envconfig:"INGEST_QUEUE_KEY" default:"ingest_jobs"`
		AMQPURL string `envconfig:"INGEST_AMQP_URL"`
	} `envconfig:""`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Addr возвращает адрес HTTP сервера.
func (c AppConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load загружает конфиг из окружения, подхватывая локальный .env если он есть.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
