package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-notify/internal/config"
	"wisefido-notify/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTSender MQTT 发布通道
type MQTTSender struct {
	client mqtt.Client
	logger *zap.Logger
}

// mqttPayload MQTT 消息体
type mqttPayload struct {
	Severity  string  `json:"severity"`
	Body      string  `json:"body"`
	EventID   *string `json:"event_id,omitempty"`
	UserID    string  `json:"user_id"`
	Timestamp int64   `json:"timestamp"`
}

// NewMQTTSender 创建 MQTT 通道并建立连接
func NewMQTTSender(cfg *config.Config, logger *zap.Logger) (*MQTTSender, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)

	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
	}
	if cfg.MQTT.Password != "" {
		opts.SetPassword(cfg.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTSender{
		client: client,
		logger: logger,
	}, nil
}

// Send 发布通知消息
func (s *MQTTSender) Send(ctx context.Context, notification *models.Notification, user *models.User, transport *models.NotificationTransport) error {
	var cfg models.MQTTConfig
	if err := json.Unmarshal(transport.Config, &cfg); err != nil {
		return fmt.Errorf("invalid mqtt config: %w", err)
	}
	if cfg.Topic == "" {
		return fmt.Errorf("mqtt topic is not configured")
	}

	payload, err := json.Marshal(mqttPayload{
		Severity:  notification.Severity,
		Body:      notification.Body,
		EventID:   notification.EventID,
		UserID:    user.UserID,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mqtt payload: %w", err)
	}

	if token := s.client.Publish(cfg.Topic, cfg.QoS, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", cfg.Topic, token.Error())
	}

	s.logger.Debug("MQTT notification delivered",
		zap.String("notification_id", notification.NotificationID),
		zap.String("topic", cfg.Topic),
	)

	return nil
}

// Close 断开 MQTT 连接
func (s *MQTTSender) Close() {
	s.client.Disconnect(250)
}
