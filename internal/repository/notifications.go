package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-notify/internal/models"

	"go.uber.org/zap"
)

// NotificationsRepository 通知记录仓库
type NotificationsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationsRepository 创建通知记录仓库
func NewNotificationsRepository(db *sql.DB, logger *zap.Logger) *NotificationsRepository {
	return &NotificationsRepository{
		db:     db,
		logger: logger,
	}
}

// InsertNotification 插入通知记录
func (r *NotificationsRepository) InsertNotification(ctx context.Context, notification *models.Notification) error {
	if notification.NotificationID == "" {
		return fmt.Errorf("notification_id is required")
	}
	if notification.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	query := `
		INSERT INTO notifications (
			notification_id,
			severity,
			body,
			event_id,
			user_id,
			seen,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	var eventID sql.NullString
	if notification.EventID != nil {
		eventID = sql.NullString{String: *notification.EventID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		notification.NotificationID,
		notification.Severity,
		notification.Body,
		eventID,
		notification.UserID,
		notification.Seen,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// DeleteExpired 删除已读通知以及事件引用悬空的通知，返回删除数量
// 事件删除时 event_id 被置 NULL（外键 ON DELETE SET NULL），本查询一并回收
func (r *NotificationsRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM notifications
		WHERE event_id IS NULL
		   OR seen = TRUE
	`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return deleted, nil
}
