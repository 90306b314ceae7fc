package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakeRemote struct {
	importance      float64
	topics          []string
	err             error
	importanceCalls int
	topicsCalls     int
}

func (f *fakeRemote) Importance(ctx context.Context, text string, scoreCtx map[string]any) (float64, error) {
	f.importanceCalls++
	return f.importance, f.err
}

func (f *fakeRemote) Topics(ctx context.Context, text string) ([]string, error) {
	f.topicsCalls++
	return f.topics, f.err
}

func TestGatewayEmptyTextShortCircuits(t *testing.T) {
	remote := &fakeRemote{importance: 0.9}
	g := NewGateway(remote, zerolog.Nop())

	if got := g.ScoreImportance(context.Background(), "   ", nil); got != 0 {
		t.Fatalf("пробельный текст должен давать 0, получили %f", got)
	}
	if topics := g.ExtractTopics(context.Background(), ""); len(topics) != 0 {
		t.Fatalf("пустой текст должен давать пустой список, получили %v", topics)
	}
	if remote.importanceCalls != 0 || remote.topicsCalls != 0 {
		t.Fatalf("удалённый сервис не должен вызываться для пустого текста")
	}
}

func TestGatewayClampsRemoteScore(t *testing.T) {
	tests := []struct {
		name   string
		remote float64
		want   float64
	}{
		{name: "above one", remote: 4.2, want: 1.0},
		{name: "below zero", remote: -0.5, want: 0.0},
		{name: "in range", remote: 0.7, want: 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(&fakeRemote{importance: tt.remote}, zerolog.Nop())
			if got := g.ScoreImportance(context.Background(), "текст сообщения", nil); got != tt.want {
				t.Fatalf("ожидали %f, получили %f", tt.want, got)
			}
		})
	}
}

func TestGatewayFallsBackOnRemoteError(t *testing.T) {
	remote := &fakeRemote{err: errors.New("connection refused")}
	g := NewGateway(remote, zerolog.Nop())

	text := "Срочно! ВАЖНОЕ Обновление Сервиса"
	got := g.ScoreImportance(context.Background(), text, nil)
	if got != HeuristicImportance(text) {
		t.Fatalf("при ошибке сервиса ожидали эвристику %f, получили %f", HeuristicImportance(text), got)
	}

	topics := g.ExtractTopics(context.Background(), "Обновление сервиса скоринга")
	if len(topics) == 0 {
		t.Fatalf("эвристика должна извлечь темы")
	}
	for i, topic := range HeuristicTopics("Обновление сервиса скоринга") {
		if topics[i] != topic {
			t.Fatalf("ожидали темы эвристики, получили %v", topics)
		}
	}
}

func TestGatewaySanitizesRemoteTopics(t *testing.T) {
	remote := &fakeRemote{topics: []string{"Python", "PYTHON", "го", "News!"}}
	g := NewGateway(remote, zerolog.Nop())

	topics := g.ExtractTopics(context.Background(), "любой текст сообщения")
	if len(topics) != 1 || topics[0] != "python" {
		t.Fatalf("ожидали [python] после очистки, получили %v", topics)
	}
}
