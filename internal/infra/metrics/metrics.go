package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	DigestBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "digest_build_seconds",
		Help:    "Время построения дайджеста",
		Buckets: prometheus.DefBuckets,
	})
	DigestDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_deliveries_total",
		Help: "Исходы доставки дайджестов",
	}, []string{"outcome"})
	SchedulerTickSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_tick_seconds",
		Help:    "Длительность одного тика планировщика",
		Buckets: prometheus.DefBuckets,
	})
	SchedulerUserErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_user_errors_total",
		Help: "Ошибки обработки отдельных пользователей в тике",
	})
	ScoringFallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scoring_fallbacks_total",
		Help: "Срабатывания локальной эвристики при недоступном ML сервисе",
	}, []string{"kind"})
	ScoringCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scoring_cache_hits_total",
		Help: "Попадания в кэш скоринга",
	}, []string{"kind"})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
	FeedbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedback_total",
		Help: "Принятые события фидбека",
	}, []string{"result"})
	IngestedMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingested_messages_total",
		Help: "Сообщения, прошедшие скоринг и сохранённые в БД",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		DigestBuildSeconds,
		DigestDeliveriesTotal,
		SchedulerTickSeconds,
		SchedulerUserErrors,
		ScoringFallbacksTotal,
		ScoringCacheHitsTotal,
		BotSendErrors,
		FeedbackTotal,
		IngestedMessagesTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
