package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-notify/internal/models"

	"go.uber.org/zap"
)

// TransportsRepository 传输通道仓库
type TransportsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTransportsRepository 创建传输通道仓库
func NewTransportsRepository(db *sql.DB, logger *zap.Logger) *TransportsRepository {
	return &TransportsRepository{
		db:     db,
		logger: logger,
	}
}

// GetTransport 根据 transport_id 获取传输通道
func (r *TransportsRepository) GetTransport(ctx context.Context, transportID string) (*models.NotificationTransport, error) {
	if transportID == "" {
		return nil, fmt.Errorf("transport_id is required")
	}

	query := `
		SELECT
			transport_id,
			name,
			kind,
			config,
			send_once
		FROM notification_transports
		WHERE transport_id = $1
	`

	var transport models.NotificationTransport
	var config []byte

	err := r.db.QueryRowContext(ctx, query, transportID).Scan(
		&transport.TransportID,
		&transport.Name,
		&transport.Kind,
		&config,
		&transport.SendOnce,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("transport %s: %w", transportID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transport: %w", err)
	}

	transport.Config = config

	return &transport, nil
}
