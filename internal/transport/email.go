package transport

import (
	"context"
	"fmt"

	"wisefido-notify/internal/config"
	"wisefido-notify/internal/models"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// EmailSender SMTP 邮件通道
type EmailSender struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewEmailSender 创建邮件通道
func NewEmailSender(cfg *config.Config, logger *zap.Logger) *EmailSender {
	return &EmailSender{
		cfg:    cfg,
		logger: logger,
	}
}

// Send 发送通知邮件
func (s *EmailSender) Send(ctx context.Context, notification *models.Notification, user *models.User, transport *models.NotificationTransport) error {
	if user.Email == "" {
		s.logger.Warn("User has no email address, skipping email notification",
			zap.String("user_id", user.UserID),
		)
		return nil
	}

	subject := fmt.Sprintf("[%s] Notification", notification.Severity)
	return s.SendMail([]string{user.Email}, subject, notification.Body)
}

// SendMail 发送任意邮件（紧急按钮分支复用）
func (s *EmailSender) SendMail(to []string, subject, body string) error {
	if s.cfg.SMTP.Host == "" || s.cfg.SMTP.FromEmail == "" {
		return fmt.Errorf("smtp is not configured")
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", s.cfg.SMTP.FromName, s.cfg.SMTP.FromEmail))
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(
		s.cfg.SMTP.Host,
		s.cfg.SMTP.Port,
		s.cfg.SMTP.Username,
		s.cfg.SMTP.Password,
	)

	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	return nil
}

// Configured SMTP 是否已配置
func (s *EmailSender) Configured() bool {
	return s.cfg.SMTP.Host != "" && s.cfg.SMTP.FromEmail != ""
}
