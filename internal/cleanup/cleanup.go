package cleanup

import (
	"context"
	"fmt"

	"wisefido-notify/internal/repository"

	"go.uber.org/zap"
)

// Cleaner 维护任务
// 两个任务都是幂等的：没有新数据时重复执行删除数为零
type Cleaner struct {
	eventsRepo        *repository.EventsRepository
	notificationsRepo *repository.NotificationsRepository
	erasureBatchSize  int
	logger            *zap.Logger
}

// NewCleaner 创建维护任务
func NewCleaner(
	eventsRepo *repository.EventsRepository,
	notificationsRepo *repository.NotificationsRepository,
	erasureBatchSize int,
	logger *zap.Logger,
) *Cleaner {
	return &Cleaner{
		eventsRepo:        eventsRepo,
		notificationsRepo: notificationsRepo,
		erasureBatchSize:  erasureBatchSize,
		logger:            logger,
	}
}

// CleanupNotifications 清理已读通知和事件引用悬空的通知
func (c *Cleaner) CleanupNotifications(ctx context.Context) (int64, error) {
	deleted, err := c.notificationsRepo.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup notifications: %w", err)
	}

	c.logger.Info("Expired notifications",
		zap.Int64("amount", deleted),
	)

	return deleted, nil
}

// EraseUserEvents 删除指定用户作为操作者的全部事件（数据主体删除）
// 分批执行，避免单事务删除量不受控
func (c *Cleaner) EraseUserEvents(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("user_id is required")
	}

	count, err := c.eventsRepo.CountUserEvents(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count user events: %w", err)
	}

	c.logger.Debug("GDPR cleanup, removing events from user",
		zap.String("user_id", userID),
		zap.Int("events", count),
	)

	var total int64
	for {
		deleted, err := c.eventsRepo.DeleteUserEventsBatch(ctx, userID, c.erasureBatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to erase user events: %w", err)
		}
		total += deleted
		if deleted == 0 {
			break
		}
	}

	return total, nil
}
