package feedback

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"chat-digest-bot/internal/domain"
)

type fakeDeliveries struct {
	updates map[int64]float64
	err     error
}

func (f *fakeDeliveries) Insert(ctx context.Context, d domain.DigestDelivery) (domain.DigestDelivery, error) {
	return d, nil
}

func (f *fakeDeliveries) UpdateFeedback(ctx context.Context, deliveryID int64, score float64) error {
	if f.err != nil {
		return f.err
	}
	if f.updates == nil {
		f.updates = map[int64]float64{}
	}
	f.updates[deliveryID] = score
	return nil
}

func (f *fakeDeliveries) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.DigestDelivery, error) {
	return nil, nil
}

type fakeSink struct {
	submitted int
	err       error
}

func (f *fakeSink) Submit(ctx context.Context, tgUserID, deliveryID int64, score float64) error {
	f.submitted++
	return f.err
}

type ackNotifier struct {
	acks []string
}

func (a *ackNotifier) SendText(ctx context.Context, recipientID int64, text string) error { return nil }

func (a *ackNotifier) SendDigest(ctx context.Context, recipientID int64, content string) (int, error) {
	return 0, nil
}

func (a *ackNotifier) AttachFeedback(ctx context.Context, recipientID int64, messageID int, deliveryID int64) error {
	return nil
}

func (a *ackNotifier) AnswerCallback(ctx context.Context, callbackID string) error {
	a.acks = append(a.acks, callbackID)
	return nil
}

func TestHandleRecordsFeedback(t *testing.T) {
	deliveries := &fakeDeliveries{}
	sink := &fakeSink{}
	notifier := &ackNotifier{}
	h := NewHandler(deliveries, sink, notifier, zerolog.Nop())

	h.Handle(context.Background(), Reaction{CallbackID: "cb-1", TGUserID: 7, Data: "feedback:42:1"})

	if got := deliveries.updates[42]; got != 1 {
		t.Fatalf("ожидалась оценка 1 для доставки 42, получено %v", got)
	}
	if sink.submitted != 1 {
		t.Fatal("оценка должна передаваться в сервис скоринга")
	}
	if len(notifier.acks) != 1 || notifier.acks[0] != "cb-1" {
		t.Fatalf("callback должен подтверждаться ровно один раз: %v", notifier.acks)
	}
}

func TestHandleInvalidTokenStillAcks(t *testing.T) {
	deliveries := &fakeDeliveries{}
	notifier := &ackNotifier{}
	h := NewHandler(deliveries, nil, notifier, zerolog.Nop())

	h.Handle(context.Background(), Reaction{CallbackID: "cb-2", Data: "feedback:bogus:x"})

	if len(deliveries.updates) != 0 {
		t.Fatal("нечитаемый токен не должен менять состояние")
	}
	if len(notifier.acks) != 1 {
		t.Fatalf("callback должен подтверждаться и при ошибке разбора: %v", notifier.acks)
	}
}

func TestHandleStoreErrorSkipsSink(t *testing.T) {
	sink := &fakeSink{}
	notifier := &ackNotifier{}
	h := NewHandler(&fakeDeliveries{err: errors.New("доставка не найдена")}, sink, notifier, zerolog.Nop())

	h.Handle(context.Background(), Reaction{CallbackID: "cb-3", Data: "feedback:99:0"})

	if sink.submitted != 0 {
		t.Fatal("при ошибке сохранения оценка не передаётся в ML")
	}
	if len(notifier.acks) != 1 {
		t.Fatal("callback должен подтверждаться и при ошибке сохранения")
	}
}

func TestHandleSinkErrorDoesNotBlockAck(t *testing.T) {
	deliveries := &fakeDeliveries{}
	notifier := &ackNotifier{}
	h := NewHandler(deliveries, &fakeSink{err: errors.New("ML недоступен")}, notifier, zerolog.Nop())

	h.Handle(context.Background(), Reaction{CallbackID: "cb-4", Data: "feedback:5:0"})

	if _, ok := deliveries.updates[5]; !ok {
		t.Fatalf("оценка должна сохраняться несмотря на ошибку ML: %v", deliveries.updates)
	}
	if len(notifier.acks) != 1 {
		t.Fatal("ошибка ML не должна блокировать подтверждение")
	}
}

func TestParseToken(t *testing.T) {
	cases := []struct {
		name     string
		data     string
		wantID   int64
		wantScr  float64
		wantFail bool
	}{
		{name: "like", data: "feedback:42:1", wantID: 42, wantScr: 1},
		{name: "dislike", data: "feedback:7:0", wantID: 7, wantScr: 0},
		{name: "wrong prefix", data: "vote:42:1", wantFail: true},
		{name: "missing field", data: "feedback:42", wantFail: true},
		{name: "extra field", data: "feedback:42:1:extra", wantFail: true},
		{name: "non numeric id", data: "feedback:abc:1", wantFail: true},
		{name: "non numeric score", data: "feedback:42:up", wantFail: true},
		{name: "empty", data: "", wantFail: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, score, err := ParseToken(tc.data)
			if tc.wantFail {
				if err == nil {
					t.Fatalf("ожидалась ошибка разбора для %q", tc.data)
				}
				return
			}
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if id != tc.wantID || score != tc.wantScr {
				t.Fatalf("разбор %q: получено id=%d score=%v", tc.data, id, score)
			}
		})
	}
}
