package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chat-digest-bot/internal/domain"
	"chat-digest-bot/internal/usecase/digest"
)

type fakeUsers struct {
	user domain.User
	err  error
}

func (f *fakeUsers) UpsertByTGID(ctx context.Context, profile domain.TelegramProfile) (domain.User, error) {
	return f.user, f.err
}

func (f *fakeUsers) GetByTGID(ctx context.Context, tgUserID int64) (domain.User, error) {
	if f.err != nil {
		return domain.User{}, f.err
	}
	return f.user, nil
}

func (f *fakeUsers) ListActive(ctx context.Context) ([]domain.User, error) {
	return []domain.User{f.user}, nil
}

func (f *fakeUsers) UpdateSettings(ctx context.Context, userID int64, settings domain.Settings) error {
	return nil
}

type fakeCompiler struct {
	digest digest.Digest
	err    error
}

func (f *fakeCompiler) Compile(ctx context.Context, user domain.User) (digest.Digest, error) {
	return f.digest, f.err
}

type fakeDeliveries struct {
	inserted []domain.DigestDelivery
	insertID int64
	err      error
}

func (f *fakeDeliveries) Insert(ctx context.Context, d domain.DigestDelivery) (domain.DigestDelivery, error) {
	if f.err != nil {
		return domain.DigestDelivery{}, f.err
	}
	d.ID = f.insertID
	f.inserted = append(f.inserted, d)
	return d, nil
}

func (f *fakeDeliveries) UpdateFeedback(ctx context.Context, deliveryID int64, score float64) error {
	return nil
}

func (f *fakeDeliveries) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.DigestDelivery, error) {
	return f.inserted, nil
}

type fakeNotifier struct {
	sentTexts     []string
	sentDigests   []string
	attached      [][3]int64
	lastMessageID int
	sendErr       error
	attachErr     error
}

func (f *fakeNotifier) SendText(ctx context.Context, recipientID int64, text string) error {
	f.sentTexts = append(f.sentTexts, text)
	return nil
}

func (f *fakeNotifier) SendDigest(ctx context.Context, recipientID int64, content string) (int, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.sentDigests = append(f.sentDigests, content)
	return f.lastMessageID, nil
}

func (f *fakeNotifier) AttachFeedback(ctx context.Context, recipientID int64, messageID int, deliveryID int64) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, [3]int64{recipientID, int64(messageID), deliveryID})
	return nil
}

func (f *fakeNotifier) AnswerCallback(ctx context.Context, callbackID string) error {
	return nil
}

func activeUser() domain.User {
	settings := domain.DefaultSettings()
	return domain.User{ID: 1, TGUserID: 100, Settings: settings}
}

func nonEmptyDigest() digest.Digest {
	items := []domain.DeliveryItem{{MessageID: 5, Text: "важное", Importance: 0.9, CreatedAt: time.Now()}}
	return digest.Digest{Content: "• важное", Items: items}
}

func TestExecuteHappyPath(t *testing.T) {
	deliveries := &fakeDeliveries{insertID: 77}
	notifier := &fakeNotifier{lastMessageID: 42}
	s := NewService(&fakeUsers{user: activeUser()}, &fakeCompiler{digest: nonEmptyDigest()}, deliveries, notifier, zerolog.Nop())

	if !s.Execute(context.Background(), 100) {
		t.Fatal("ожидался успех доставки")
	}
	if len(notifier.sentDigests) != 1 {
		t.Fatalf("ожидалась одна отправка, выполнено %d", len(notifier.sentDigests))
	}
	if len(deliveries.inserted) != 1 {
		t.Fatalf("ожидалась одна запись о доставке, сохранено %d", len(deliveries.inserted))
	}
	if got := deliveries.inserted[0].Summary; got == "" {
		t.Fatal("краткая сводка должна заполняться перед сохранением")
	}
	if len(notifier.attached) != 1 {
		t.Fatal("кнопки оценки должны прикрепляться после сохранения записи")
	}
	if notifier.attached[0] != [3]int64{100, 42, 77} {
		t.Fatalf("кнопки прикреплены не туда: %v", notifier.attached[0])
	}
}

func TestExecuteUserNotFound(t *testing.T) {
	notifier := &fakeNotifier{}
	s := NewService(&fakeUsers{err: errors.New("не найден")}, &fakeCompiler{}, &fakeDeliveries{}, notifier, zerolog.Nop())

	if s.Execute(context.Background(), 100) {
		t.Fatal("ожидался отказ для неизвестного пользователя")
	}
	if len(notifier.sentDigests) != 0 {
		t.Fatal("отправки быть не должно")
	}
}

func TestExecuteDigestDisabled(t *testing.T) {
	user := activeUser()
	user.Settings.DigestEnabled = false
	notifier := &fakeNotifier{}
	s := NewService(&fakeUsers{user: user}, &fakeCompiler{digest: nonEmptyDigest()}, &fakeDeliveries{}, notifier, zerolog.Nop())

	if s.Execute(context.Background(), 100) {
		t.Fatal("ожидался отказ при выключенной рассылке")
	}
	if len(notifier.sentDigests) != 0 {
		t.Fatal("отправки быть не должно")
	}
}

func TestExecuteEmptyDigestIsSuccessfulNoop(t *testing.T) {
	deliveries := &fakeDeliveries{}
	notifier := &fakeNotifier{}
	s := NewService(&fakeUsers{user: activeUser()}, &fakeCompiler{digest: digest.Digest{}}, deliveries, notifier, zerolog.Nop())

	if !s.Execute(context.Background(), 100) {
		t.Fatal("пустой дайджест считается успехом")
	}
	if len(notifier.sentDigests) != 0 || len(deliveries.inserted) != 0 {
		t.Fatal("при пустом дайджесте не должно быть ни отправки, ни записи")
	}
}

func TestExecuteSendFailureLeavesNoRecord(t *testing.T) {
	deliveries := &fakeDeliveries{}
	notifier := &fakeNotifier{sendErr: errors.New("telegram недоступен")}
	s := NewService(&fakeUsers{user: activeUser()}, &fakeCompiler{digest: nonEmptyDigest()}, deliveries, notifier, zerolog.Nop())

	if s.Execute(context.Background(), 100) {
		t.Fatal("ожидался отказ при ошибке отправки")
	}
	if len(deliveries.inserted) != 0 {
		t.Fatal("при ошибке отправки запись не создаётся")
	}
}

func TestExecuteCompileFailure(t *testing.T) {
	notifier := &fakeNotifier{}
	s := NewService(&fakeUsers{user: activeUser()}, &fakeCompiler{err: errors.New("БД недоступна")}, &fakeDeliveries{}, notifier, zerolog.Nop())

	if s.Execute(context.Background(), 100) {
		t.Fatal("ожидался отказ при ошибке компиляции")
	}
	if len(notifier.sentDigests) != 0 {
		t.Fatal("отправки быть не должно")
	}
}

func TestExecuteAttachFailureDoesNotFailDelivery(t *testing.T) {
	deliveries := &fakeDeliveries{insertID: 5}
	notifier := &fakeNotifier{lastMessageID: 9, attachErr: errors.New("сообщение удалено")}
	s := NewService(&fakeUsers{user: activeUser()}, &fakeCompiler{digest: nonEmptyDigest()}, deliveries, notifier, zerolog.Nop())

	if !s.Execute(context.Background(), 100) {
		t.Fatal("ошибка прикрепления кнопок не должна отменять доставку")
	}
	if len(deliveries.inserted) != 1 {
		t.Fatal("запись о доставке должна сохраниться")
	}
}
