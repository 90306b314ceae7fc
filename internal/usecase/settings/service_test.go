package settings

import (
	"context"
	"errors"
	"testing"

	"chat-digest-bot/internal/domain"
)

type fakeUsers struct {
	user    domain.User
	updated *domain.Settings
	getErr  error
}

func (f *fakeUsers) UpsertByTGID(ctx context.Context, profile domain.TelegramProfile) (domain.User, error) {
	return f.user, nil
}

func (f *fakeUsers) GetByTGID(ctx context.Context, tgUserID int64) (domain.User, error) {
	if f.getErr != nil {
		return domain.User{}, f.getErr
	}
	return f.user, nil
}

func (f *fakeUsers) ListActive(ctx context.Context) ([]domain.User, error) { return nil, nil }

func (f *fakeUsers) UpdateSettings(ctx context.Context, userID int64, settings domain.Settings) error {
	f.updated = &settings
	return nil
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{user: domain.User{ID: 1, TGUserID: 100, Settings: domain.DefaultSettings()}}
}

func TestSetDigestTime(t *testing.T) {
	users := newFakeUsers()
	s := NewService(users)

	if err := s.SetDigestTime(context.Background(), 100, "09:30"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if users.updated == nil || users.updated.DigestTime != "09:30" {
		t.Fatalf("время не сохранено: %+v", users.updated)
	}
}

func TestSetDigestTimeInvalid(t *testing.T) {
	users := newFakeUsers()
	s := NewService(users)

	for _, value := range []string{"25:00", "9:70", "nine", ""} {
		if err := s.SetDigestTime(context.Background(), 100, value); !errors.Is(err, domain.ErrInvalidDigestTime) {
			t.Fatalf("для %q ожидалась ошибка формата, получено %v", value, err)
		}
	}
	if users.updated != nil {
		t.Fatal("неверное время не должно сохраняться")
	}
}

func TestSetDetailLevelNormalizesCase(t *testing.T) {
	users := newFakeUsers()
	s := NewService(users)

	if err := s.SetDetailLevel(context.Background(), 100, " FULL "); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if users.updated.DetailLevel != domain.DetailFull {
		t.Fatalf("уровень не сохранён: %+v", users.updated)
	}

	if err := s.SetDetailLevel(context.Background(), 100, "medium"); !errors.Is(err, domain.ErrInvalidDetailLevel) {
		t.Fatalf("ожидалась ошибка уровня детализации, получено %v", err)
	}
}

func TestSetTimezoneNormalizesSpelling(t *testing.T) {
	users := newFakeUsers()
	s := NewService(users)

	if err := s.SetTimezone(context.Background(), 100, "europe/moscow"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if users.updated.Timezone != "Europe/Moscow" {
		t.Fatalf("пояс не нормализован: %q", users.updated.Timezone)
	}

	if err := s.SetTimezone(context.Background(), 100, "Atlantis/Central"); !errors.Is(err, domain.ErrInvalidTimezone) {
		t.Fatalf("ожидалась ошибка часового пояса, получено %v", err)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	users := newFakeUsers()
	s := NewService(users)

	if err := s.Subscribe(context.Background(), 100, "golang"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(users.updated.Topics) != 1 || users.updated.Topics[0] != "golang" {
		t.Fatalf("подписка не сохранена: %v", users.updated.Topics)
	}

	users.user.Settings = *users.updated
	if err := s.Subscribe(context.Background(), 100, "GOLANG"); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("повтор с другим регистром должен отклоняться, получено %v", err)
	}

	if err := s.Unsubscribe(context.Background(), 100, "Golang"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(users.updated.Topics) != 0 {
		t.Fatalf("отписка не сработала: %v", users.updated.Topics)
	}

	users.user.Settings = *users.updated
	if err := s.Unsubscribe(context.Background(), 100, "rust"); !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("отписка от несуществующей темы должна отклоняться, получено %v", err)
	}
}

func TestSetEnabled(t *testing.T) {
	users := newFakeUsers()
	s := NewService(users)

	if err := s.SetEnabled(context.Background(), 100, false); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if users.updated.DigestEnabled {
		t.Fatal("рассылка должна быть выключена")
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := NewService(&fakeUsers{getErr: errors.New("не найден")})

	if _, err := s.Get(context.Background(), 100); err == nil {
		t.Fatal("ожидалась ошибка")
	}
}
