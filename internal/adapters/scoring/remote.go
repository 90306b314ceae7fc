package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chat-digest-bot/internal/infra/metrics"
)

// RemoteClient выполняет запросы к внешнему сервису скоринга.
type RemoteClient struct {
	http       *http.Client
	baseURL    string
	maxRetries int
}

// NewRemoteClient создаёт клиента сервиса скоринга.
func NewRemoteClient(baseURL string, timeout time.Duration, maxRetries int) *RemoteClient {
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RemoteClient{
		http:       &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		maxRetries: maxRetries,
	}
}

type importanceRequest struct {
	Text    string         `json:"text"`
	Context map[string]any `json:"context,omitempty"`
}

type importanceResponse struct {
	Importance float64 `json:"importance"`
}

type topicsRequest struct {
	Text string `json:"text"`
}

type topicsResponse struct {
	Topics []string `json:"topics"`
}

// Importance запрашивает оценку важности текста.
func (c *RemoteClient) Importance(ctx context.Context, text string, scoreCtx map[string]any) (float64, error) {
	var resp importanceResponse
	err := c.post(ctx, "/importance", importanceRequest{Text: text, Context: scoreCtx}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Importance, nil
}

// Topics запрашивает извлечение тем из текста.
func (c *RemoteClient) Topics(ctx context.Context, text string) ([]string, error) {
	var resp topicsResponse
	err := c.post(ctx, "/topics", topicsRequest{Text: text}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Topics, nil
}

// Health проверяет доступность сервиса.
func (c *RemoteClient) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("scoring", "health", c.baseURL, start, err)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

type feedbackRequest struct {
	UserID   int64   `json:"user_id"`
	DigestID int64   `json:"digest_id"`
	Score    float64 `json:"score"`
}

// Submit передаёт событие фидбека сервису скоринга для дообучения.
func (c *RemoteClient) Submit(ctx context.Context, tgUserID, deliveryID int64, score float64) error {
	return c.post(ctx, "/feedback", feedbackRequest{UserID: tgUserID, DigestID: deliveryID, Score: score}, nil)
}

// post выполняет POST с повторами. Повторяет только сетевые ошибки и 5xx.
func (c *RemoteClient) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	operation := strings.TrimPrefix(path, "/")
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = c.doPost(ctx, path, operation, body, v)
		if lastErr == nil {
			return nil
		}
		var status *statusError
		if errors.As(lastErr, &status) && status.code < 500 {
			return lastErr
		}
	}
	return lastErr
}

func (c *RemoteClient) doPost(ctx context.Context, path, operation string, body []byte, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("scoring", operation, c.baseURL, start, err)
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err = &statusError{code: resp.StatusCode}
		metrics.ObserveNetworkRequest("scoring", operation, c.baseURL, start, err)
		return err
	}
	if v == nil {
		metrics.ObserveNetworkRequest("scoring", operation, c.baseURL, start, nil)
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		metrics.ObserveNetworkRequest("scoring", operation, c.baseURL, start, err)
		return fmt.Errorf("decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("scoring", operation, c.baseURL, start, nil)
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("scoring: unexpected status %d", e.code)
}
