package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-notify/internal/models"

	"go.uber.org/zap"
)

// EventsRepository 事件仓库
type EventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventsRepository 创建事件仓库
func NewEventsRepository(db *sql.DB, logger *zap.Logger) *EventsRepository {
	return &EventsRepository{
		db:     db,
		logger: logger,
	}
}

// GetEvent 根据 event_id 获取事件
func (r *EventsRepository) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}

	query := `
		SELECT
			event_id,
			action,
			actor_id,
			context,
			summary,
			created_at
		FROM events
		WHERE event_id = $1
	`

	var event models.Event
	var actorID sql.NullString
	var rawContext []byte

	err := r.db.QueryRowContext(ctx, query, eventID).Scan(
		&event.EventID,
		&event.Action,
		&actorID,
		&rawContext,
		&event.Summary,
		&event.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	if actorID.Valid {
		event.ActorID = &actorID.String
	}
	event.Context = rawContext

	return &event, nil
}

// CountUserEvents 统计指定用户作为操作者的事件数量
func (r *EventsRepository) CountUserEvents(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("user_id is required")
	}

	var count int
	query := `SELECT COUNT(*) FROM events WHERE actor_id = $1`
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user events: %w", err)
	}

	return count, nil
}

// DeleteUserEventsBatch 删除指定用户作为操作者的一批事件，返回删除数量
// 单批最多删除 batchSize 条，调用方循环直到返回 0
func (r *EventsRepository) DeleteUserEventsBatch(ctx context.Context, userID string, batchSize int) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("user_id is required")
	}
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive")
	}

	query := `
		DELETE FROM events
		WHERE event_id IN (
			SELECT event_id FROM events
			WHERE actor_id = $1
			LIMIT $2
		)
	`

	result, err := r.db.ExecContext(ctx, query, userID, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return deleted, nil
}
