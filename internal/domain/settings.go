package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Уровни детализации дайджеста.
const (
	DetailBrief = "brief"
	DetailFull  = "full"
)

// Значения настроек по умолчанию.
const (
	DefaultDigestTime = "20:00"
	DefaultTimezone   = "Europe/Moscow"
)

// ErrInvalidDigestTime возвращается при неверном формате времени.
var ErrInvalidDigestTime = errors.New("время дайджеста должно быть в формате HH:MM")

// ErrInvalidDetailLevel возвращается при неизвестном уровне детализации.
var ErrInvalidDetailLevel = errors.New("детализация должна быть brief или full")

// ErrInvalidTimezone возвращается при неизвестном часовом поясе.
var ErrInvalidTimezone = errors.New("неизвестный часовой пояс")

// Settings хранит настройки рассылки пользователя.
type Settings struct {
	DigestTime    string
	DetailLevel   string
	Timezone      string
	Topics        []string
	DigestEnabled bool
}

// DefaultSettings возвращает настройки нового пользователя.
func DefaultSettings() Settings {
	return Settings{
		DigestTime:    DefaultDigestTime,
		DetailLevel:   DetailBrief,
		Timezone:      DefaultTimezone,
		DigestEnabled: true,
	}
}

// Validate проверяет корректность всех полей.
func (s Settings) Validate() error {
	if _, _, err := ParseDigestTime(s.DigestTime); err != nil {
		return err
	}
	if s.DetailLevel != DetailBrief && s.DetailLevel != DetailFull {
		return ErrInvalidDetailLevel
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return ErrInvalidTimezone
	}
	return nil
}

// MaxItems возвращает лимит пунктов дайджеста для уровня детализации.
func (s Settings) MaxItems() int {
	if s.DetailLevel == DetailFull {
		return 15
	}
	return 5
}

// Location возвращает часовой пояс пользователя, при неизвестном поясе —
// пояс по умолчанию.
func (s Settings) Location() *time.Location {
	if loc, err := time.LoadLocation(s.Timezone); err == nil {
		return loc
	}
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Subscribe добавляет тему подписки без дублей, сохраняя порядок.
// Возвращает false, если подписка уже есть.
func (s *Settings) Subscribe(topic string) bool {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return false
	}
	for _, existing := range s.Topics {
		if strings.EqualFold(existing, topic) {
			return false
		}
	}
	s.Topics = append(s.Topics, topic)
	return true
}

// Unsubscribe убирает тему подписки. Возвращает false, если темы не было.
func (s *Settings) Unsubscribe(topic string) bool {
	topic = strings.TrimSpace(topic)
	for i, existing := range s.Topics {
		if strings.EqualFold(existing, topic) {
			s.Topics = append(s.Topics[:i], s.Topics[i+1:]...)
			return true
		}
	}
	return false
}

// ParseDigestTime разбирает строку "HH:MM" в часы и минуты.
func ParseDigestTime(value string) (hour, minute int, err error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidDigestTime
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, ErrInvalidDigestTime
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, ErrInvalidDigestTime
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidDigestTime, value)
	}
	return hour, minute, nil
}
