package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-digest-bot/internal/domain"
)

// ErrAlreadySubscribed возвращается при повторной подписке на тему.
var ErrAlreadySubscribed = errors.New("подписка на тему уже есть")

// ErrNotSubscribed возвращается при отписке от темы, которой нет.
var ErrNotSubscribed = errors.New("темы нет в подписках")

// Service управляет настройками рассылки пользователя. Каждое изменение
// проходит валидацию перед записью.
type Service struct {
	users domain.UserRepo
}

// NewService создаёт сервис настроек.
func NewService(users domain.UserRepo) *Service {
	return &Service{users: users}
}

// Get возвращает текущие настройки пользователя.
func (s *Service) Get(ctx context.Context, tgUserID int64) (domain.Settings, error) {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("получение пользователя: %w", err)
	}
	return user.Settings, nil
}

// SetDigestTime устанавливает новое время доставки в формате HH:MM.
func (s *Service) SetDigestTime(ctx context.Context, tgUserID int64, value string) error {
	return s.update(ctx, tgUserID, func(settings *domain.Settings) error {
		if _, _, err := domain.ParseDigestTime(value); err != nil {
			return err
		}
		settings.DigestTime = strings.TrimSpace(value)
		return nil
	})
}

// SetDetailLevel устанавливает уровень детализации brief или full.
func (s *Service) SetDetailLevel(ctx context.Context, tgUserID int64, level string) error {
	return s.update(ctx, tgUserID, func(settings *domain.Settings) error {
		level = strings.ToLower(strings.TrimSpace(level))
		if level != domain.DetailBrief && level != domain.DetailFull {
			return domain.ErrInvalidDetailLevel
		}
		settings.DetailLevel = level
		return nil
	})
}

// SetTimezone сохраняет часовой пояс пользователя. Написание приводится к
// каноническому виду базы зон, например "europe/moscow" -> "Europe/Moscow".
func (s *Service) SetTimezone(ctx context.Context, tgUserID int64, timezone string) error {
	normalized, err := normalizeTimezone(timezone)
	if err != nil {
		return err
	}
	return s.update(ctx, tgUserID, func(settings *domain.Settings) error {
		settings.Timezone = normalized
		return nil
	})
}

// SetEnabled включает или выключает рассылку.
func (s *Service) SetEnabled(ctx context.Context, tgUserID int64, enabled bool) error {
	return s.update(ctx, tgUserID, func(settings *domain.Settings) error {
		settings.DigestEnabled = enabled
		return nil
	})
}

// Subscribe добавляет подписку на тему.
func (s *Service) Subscribe(ctx context.Context, tgUserID int64, topic string) error {
	return s.update(ctx, tgUserID, func(settings *domain.Settings) error {
		if !settings.Subscribe(topic) {
			return ErrAlreadySubscribed
		}
		return nil
	})
}

// Unsubscribe удаляет подписку на тему.
func (s *Service) Unsubscribe(ctx context.Context, tgUserID int64, topic string) error {
	return s.update(ctx, tgUserID, func(settings *domain.Settings) error {
		if !settings.Unsubscribe(topic) {
			return ErrNotSubscribed
		}
		return nil
	})
}

func (s *Service) update(ctx context.Context, tgUserID int64, mutate func(*domain.Settings) error) error {
	user, err := s.users.GetByTGID(ctx, tgUserID)
	if err != nil {
		return fmt.Errorf("получение пользователя: %w", err)
	}
	settings := user.Settings
	if err := mutate(&settings); err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.users.UpdateSettings(ctx, user.ID, settings); err != nil {
		return fmt.Errorf("сохранение настроек: %w", err)
	}
	return nil
}

func normalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", domain.ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	lower := strings.ToLower(candidate)
	parts := strings.Split(lower, "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", domain.ErrInvalidTimezone
}
