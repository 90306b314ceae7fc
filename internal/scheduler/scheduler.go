package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/infra/metrics"
)

// triggerWindowSeconds ограничивает окно срабатывания первой половиной
// минуты, чтобы соседние тики не отправляли дайджест дважды.
const triggerWindowSeconds = 30

// Delivery отправляет дайджест одному пользователю.
type Delivery interface {
	Execute(ctx context.Context, tgUserID int64) bool
}

// Scheduler раз в интервал проверяет, у кого из пользователей наступило
// время дайджеста в его часовом поясе, и запускает доставку.
type Scheduler struct {
	users    domain.UserRepo
	delivery Delivery
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New создаёт планировщик.
func New(users domain.UserRepo, delivery Delivery, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{users: users, delivery: delivery, interval: interval, log: log, now: time.Now}
}

// Start запускает цикл планировщика. Повторный запуск ничего не делает.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Warn().Msg("планировщик уже запущен")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.loop(ctx, s.done)
	s.log.Info().Dur("interval", s.interval).Msg("планировщик запущен")
}

// Stop останавливает планировщик: отменяет ожидание между тиками и ждёт
// завершения цикла. После возврата из Stop новые тики не выполняются.
// Повторная остановка ничего не делает.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("планировщик уже остановлен")
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info().Msg("планировщик остановлен")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		s.safeTick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

// safeTick не даёт панике внутри тика завершить цикл: планировщик
// останавливается только явным Stop.
func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("паника в тике планировщика")
		}
	}()
	s.Tick(ctx)
}

// Tick выполняет одну проверку всех активных пользователей.
func (s *Scheduler) Tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.SchedulerTickSeconds.Observe(time.Since(start).Seconds())
	}()

	users, err := s.users.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("выборка пользователей для рассылки")
		return
	}
	s.log.Debug().Int("users", len(users)).Msg("проверка времени рассылки")

	for _, user := range users {
		s.processUser(ctx, user)
	}
}

// processUser изолирует сбой одного пользователя от остальных в том же тике.
func (s *Scheduler) processUser(ctx context.Context, user domain.User) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SchedulerUserErrors.Inc()
			s.log.Error().Interface("panic", r).Int64("tg_user_id", user.TGUserID).Msg("паника при обработке пользователя")
		}
	}()

	if !user.CanReceiveDigest() {
		return
	}

	hour, minute, err := domain.ParseDigestTime(user.Settings.DigestTime)
	if err != nil {
		s.log.Warn().Err(err).Int64("tg_user_id", user.TGUserID).Str("digest_time", user.Settings.DigestTime).Msg("нечитаемое время дайджеста")
		return
	}

	localNow := s.now().In(user.Settings.Location())
	if !isDigestTime(hour, minute, localNow) {
		return
	}

	s.log.Info().Int64("tg_user_id", user.TGUserID).Str("digest_time", user.Settings.DigestTime).Str("timezone", user.Settings.Timezone).Msg("время дайджеста наступило")
	if !s.delivery.Execute(ctx, user.TGUserID) {
		metrics.SchedulerUserErrors.Inc()
		s.log.Warn().Int64("tg_user_id", user.TGUserID).Msg("доставка дайджеста не удалась")
	}
}

func isDigestTime(hour, minute int, now time.Time) bool {
	return now.Hour() == hour && now.Minute() == minute && now.Second() < triggerWindowSeconds
}
