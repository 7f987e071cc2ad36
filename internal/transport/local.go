package transport

import (
	"context"

	"wisefido-notify/internal/models"

	"go.uber.org/zap"
)

// LocalSender 站内通道
// 站内通知即投递任务写入的通知记录本身，发送阶段无额外动作
type LocalSender struct {
	logger *zap.Logger
}

// NewLocalSender 创建站内通道
func NewLocalSender(logger *zap.Logger) *LocalSender {
	return &LocalSender{logger: logger}
}

// Send 站内投递
func (s *LocalSender) Send(ctx context.Context, notification *models.Notification, user *models.User, transport *models.NotificationTransport) error {
	s.logger.Debug("Local notification delivered",
		zap.String("notification_id", notification.NotificationID),
		zap.String("user_id", user.UserID),
	)
	return nil
}
