package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-notify/internal/models"

	"go.uber.org/zap"
)

// TenantsRepository 租户配置仓库
type TenantsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTenantsRepository 创建租户配置仓库
func NewTenantsRepository(db *sql.DB, logger *zap.Logger) *TenantsRepository {
	return &TenantsRepository{
		db:     db,
		logger: logger,
	}
}

// GetTenantSettings 获取租户配置（单租户部署，取第一条）
func (r *TenantsRepository) GetTenantSettings(ctx context.Context) (*models.TenantSettings, error) {
	query := `
		SELECT
			tenant_id,
			panic_button_notify_user,
			panic_button_notify_admins,
			panic_button_notify_security,
			panic_button_security_email
		FROM tenants
		ORDER BY tenant_id
		LIMIT 1
	`

	var settings models.TenantSettings
	var securityEmail sql.NullString

	err := r.db.QueryRowContext(ctx, query).Scan(
		&settings.TenantID,
		&settings.PanicButtonNotifyUser,
		&settings.PanicButtonNotifyAdmins,
		&settings.PanicButtonNotifySecurity,
		&securityEmail,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tenant settings: %w", err)
	}

	if securityEmail.Valid {
		settings.PanicButtonSecurityEmail = securityEmail.String
	}

	return &settings, nil
}
