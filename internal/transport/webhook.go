package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-notify/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookSender HTTP webhook 通道
type WebhookSender struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// webhookPayload webhook 请求体
type webhookPayload struct {
	Severity  string  `json:"severity"`
	Body      string  `json:"body"`
	EventID   *string `json:"event_id,omitempty"`
	UserEmail string  `json:"user_email,omitempty"`
	Username  string  `json:"username"`
	Timestamp int64   `json:"timestamp"`
}

// NewWebhookSender 创建 webhook 通道
func NewWebhookSender(logger *zap.Logger) *WebhookSender {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookSender{
		httpClient: client,
		logger:     logger,
	}
}

// Send 发送 webhook 通知
func (s *WebhookSender) Send(ctx context.Context, notification *models.Notification, user *models.User, transport *models.NotificationTransport) error {
	var cfg models.WebhookConfig
	if err := json.Unmarshal(transport.Config, &cfg); err != nil {
		return fmt.Errorf("invalid webhook config: %w", err)
	}
	if cfg.URL == "" {
		return fmt.Errorf("webhook url is not configured")
	}

	payload := webhookPayload{
		Severity:  notification.Severity,
		Body:      notification.Body,
		EventID:   notification.EventID,
		UserEmail: user.Email,
		Username:  user.Username,
		Timestamp: time.Now().Unix(),
	}

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(cfg.URL)

	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	s.logger.Debug("Webhook notification delivered",
		zap.String("notification_id", notification.NotificationID),
		zap.String("url", cfg.URL),
	)

	return nil
}
