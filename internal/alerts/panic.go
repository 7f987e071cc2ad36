package alerts

import (
	"context"
	"errors"
	"fmt"

	"wisefido-notify/internal/repository"

	"go.uber.org/zap"
)

// Mailer 紧急按钮邮件发送接口（email 通道实现）
type Mailer interface {
	SendMail(to []string, subject, body string) error
	Configured() bool
}

// PanicAlerter 紧急按钮多通道告警
// 三个分支（本人、管理员、安全团队）各由独立的租户开关控制，互不影响；
// 共享条件（租户配置、邮件通道）缺失则整体中止
type PanicAlerter struct {
	usersRepo   *repository.UsersRepository
	tenantsRepo *repository.TenantsRepository
	mailer      Mailer
	logger      *zap.Logger
}

// NewPanicAlerter 创建紧急按钮告警
func NewPanicAlerter(
	usersRepo *repository.UsersRepository,
	tenantsRepo *repository.TenantsRepository,
	mailer Mailer,
	logger *zap.Logger,
) *PanicAlerter {
	return &PanicAlerter{
		usersRepo:   usersRepo,
		tenantsRepo: tenantsRepo,
		mailer:      mailer,
		logger:      logger,
	}
}

// Trigger 发送紧急按钮告警
func (a *PanicAlerter) Trigger(ctx context.Context, affectedUserID, triggeredByID, reason string) error {
	if affectedUserID == "" || triggeredByID == "" {
		return fmt.Errorf("affected_user_id and triggered_by_id are required")
	}

	affected, err := a.usersRepo.GetUser(ctx, affectedUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.logger.Warn("Panic button notification: users not found",
				zap.String("affected_user_id", affectedUserID),
			)
			return nil
		}
		return err
	}

	triggeredBy, err := a.usersRepo.GetUser(ctx, triggeredByID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.logger.Warn("Panic button notification: users not found",
				zap.String("triggered_by_id", triggeredByID),
			)
			return nil
		}
		return err
	}

	// 租户配置每次调用重新读取，不依赖进程内全局状态
	settings, err := a.tenantsRepo.GetTenantSettings(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			a.logger.Warn("Panic button notification: tenant not found")
			return nil
		}
		return err
	}

	if !a.mailer.Configured() {
		a.logger.Warn("Panic button notification: no email channel configured")
		return nil
	}

	body := fmt.Sprintf(
		"Panic button triggered for account %s (%s).\nTriggered by: %s (%s).\nReason: %s",
		affected.Name, affected.Username,
		triggeredBy.Name, triggeredBy.Username,
		reason,
	)

	// 单个分支的发送失败只记录，不影响其余分支
	if settings.PanicButtonNotifyUser && affected.Email != "" {
		if err := a.mailer.SendMail(
			[]string{affected.Email},
			"Security Alert: Your Account Has Been Locked",
			body,
		); err != nil {
			a.logger.Warn("Failed to notify affected user",
				zap.String("affected_user", affected.Username),
				zap.Error(err),
			)
		} else {
			a.logger.Info("Panic button notification sent to user",
				zap.String("affected_user", affected.Username),
			)
		}
	}

	if settings.PanicButtonNotifyAdmins {
		recipients, err := a.adminRecipients(ctx, affected.UserID)
		if err != nil {
			return err
		}
		// 没有可通知的管理员只跳过本分支
		if len(recipients) > 0 {
			if err := a.mailer.SendMail(
				recipients,
				"Security Alert: Panic Button Triggered",
				body,
			); err != nil {
				a.logger.Warn("Failed to notify admins",
					zap.String("affected_user", affected.Username),
					zap.Error(err),
				)
			} else {
				a.logger.Info("Panic button notification sent to admins",
					zap.String("affected_user", affected.Username),
					zap.Int("admin_count", len(recipients)),
				)
			}
		}
	}

	if settings.PanicButtonNotifySecurity && settings.PanicButtonSecurityEmail != "" {
		if err := a.mailer.SendMail(
			[]string{settings.PanicButtonSecurityEmail},
			"SECURITY ALERT: Panic Button Triggered",
			body,
		); err != nil {
			a.logger.Warn("Failed to notify security team",
				zap.String("affected_user", affected.Username),
				zap.Error(err),
			)
		} else {
			a.logger.Info("Panic button notification sent to security",
				zap.String("affected_user", affected.Username),
			)
		}
	}

	return nil
}

// adminRecipients 管理员收件人：有邮箱且不是被锁定用户本人
func (a *PanicAlerter) adminRecipients(ctx context.Context, affectedUserID string) ([]string, error) {
	admins, err := a.usersRepo.ListAdminUsers(ctx)
	if err != nil {
		return nil, err
	}

	var recipients []string
	for _, admin := range admins {
		if admin.Email != "" && admin.UserID != affectedUserID {
			recipients = append(recipients, admin.Email)
		}
	}

	return recipients, nil
}
