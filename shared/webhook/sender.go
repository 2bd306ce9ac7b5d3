package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Sender отправляет подписанные вебхуки партнерам.
type Sender interface {
	Send(ctx context.Context, url, secret string, payload any) error
}

// HTTPSender - POST JSON с заголовком X-KCS-Signature. Любой ответ вне 2xx - ошибка.
type HTTPSender struct {
	client *http.Client
	logger *zap.Logger
}

var _ Sender = (*HTTPSender)(nil)

func NewHTTPSender(timeout time.Duration, logger *zap.Logger) *HTTPSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSender{
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("WebhookSender"),
	}
}

func (s *HTTPSender) Send(ctx context.Context, url, secret string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	return s.SendRaw(ctx, url, secret, body)
}

// SendRaw отправляет уже сериализованное тело (outbox хранит его как есть).
func (s *HTTPSender) SendRaw(ctx context.Context, url, secret string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(secret, body))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s responded with status %d", url, resp.StatusCode)
	}
	s.logger.Debug("Webhook delivered", zap.String("url", url), zap.Int("status", resp.StatusCode))
	return nil
}
