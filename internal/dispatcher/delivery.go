package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"wisefido-notify/internal/models"
	"wisefido-notify/internal/repository"
	"wisefido-notify/internal/transport"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeliveryJob 投递任务
// 四个实体全部重新加载，任一缺失即静默终止：
// 调度到执行之间的删除是预期状态而非错误
type DeliveryJob struct {
	eventsRepo        *repository.EventsRepository
	usersRepo         *repository.UsersRepository
	rulesRepo         *repository.RulesRepository
	transportsRepo    *repository.TransportsRepository
	notificationsRepo *repository.NotificationsRepository
	registry          *transport.Registry
	logger            *zap.Logger
}

// NewDeliveryJob 创建投递任务
func NewDeliveryJob(
	eventsRepo *repository.EventsRepository,
	usersRepo *repository.UsersRepository,
	rulesRepo *repository.RulesRepository,
	transportsRepo *repository.TransportsRepository,
	notificationsRepo *repository.NotificationsRepository,
	registry *transport.Registry,
	logger *zap.Logger,
) *DeliveryJob {
	return &DeliveryJob{
		eventsRepo:        eventsRepo,
		usersRepo:         usersRepo,
		rulesRepo:         rulesRepo,
		transportsRepo:    transportsRepo,
		notificationsRepo: notificationsRepo,
		registry:          registry,
		logger:            logger,
	}
}

// Deliver 构造通知并交给传输通道发送
// 通知记录的存在表示做过投递尝试，不表示通道层投递成功
func (j *DeliveryJob) Deliver(ctx context.Context, transportID, eventID, userID, ruleID string) error {
	if transportID == "" || eventID == "" || userID == "" || ruleID == "" {
		return fmt.Errorf("transport_id, event_id, user_id and rule_id are required")
	}

	event, err := j.eventsRepo.GetEvent(ctx, eventID)
	if err != nil {
		return j.ignoreMissing(err)
	}

	user, err := j.usersRepo.GetUser(ctx, userID)
	if err != nil {
		return j.ignoreMissing(err)
	}

	rule, err := j.rulesRepo.GetRule(ctx, ruleID)
	if err != nil {
		return j.ignoreMissing(err)
	}

	transportModel, err := j.transportsRepo.GetTransport(ctx, transportID)
	if err != nil {
		return j.ignoreMissing(err)
	}

	notification := &models.Notification{
		NotificationID: uuid.New().String(),
		Severity:       rule.Severity,
		Body:           event.Summary,
		EventID:        &event.EventID,
		UserID:         user.UserID,
	}

	sender, err := j.registry.Resolve(transportModel.Kind)
	if err != nil {
		// 未知通道类型是配置问题，重试无意义
		j.logger.Warn("Cannot resolve transport sender",
			zap.String("transport_id", transportModel.TransportID),
			zap.String("kind", transportModel.Kind),
			zap.Error(err),
		)
		return nil
	}

	// 通道层失败由通道自行负责，这里只记录，不重试也不回滚
	if err := sender.Send(ctx, notification, user, transportModel); err != nil {
		j.logger.Warn("Transport send failed",
			zap.String("notification_id", notification.NotificationID),
			zap.String("transport_id", transportModel.TransportID),
			zap.String("kind", transportModel.Kind),
			zap.Error(err),
		)
	}

	if err := j.notificationsRepo.InsertNotification(ctx, notification); err != nil {
		return err
	}

	return nil
}

// ignoreMissing 实体缺失时静默终止，基础设施错误原样返回
func (j *DeliveryJob) ignoreMissing(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}
