package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wisefido-notify/internal/models"

	"go.uber.org/zap"
)

// UsersRepository 用户仓库
type UsersRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUsersRepository 创建用户仓库
func NewUsersRepository(db *sql.DB, logger *zap.Logger) *UsersRepository {
	return &UsersRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `
	user_id,
	username,
	name,
	email,
	is_admin,
	created_at
`

func scanUser(scanner interface{ Scan(...any) error }) (*models.User, error) {
	var user models.User
	err := scanner.Scan(
		&user.UserID,
		&user.Username,
		&user.Name,
		&user.Email,
		&user.IsAdmin,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUser 根据 user_id 获取用户
func (r *UsersRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetUserByUsername 根据用户名获取用户
func (r *UsersRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	return user, nil
}

// ListGroupMembers 获取用户组全部成员
func (r *UsersRepository) ListGroupMembers(ctx context.Context, groupID string) ([]*models.User, error) {
	if groupID == "" {
		return nil, fmt.Errorf("group_id is required")
	}

	query := `
		SELECT ` + userColumns + `
		FROM users u
		JOIN group_members gm ON gm.user_id = u.user_id
		WHERE gm.group_id = $1
		ORDER BY u.username
	`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}

	return users, nil
}

// ListAdminUsers 获取全部管理员用户
func (r *UsersRepository) ListAdminUsers(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_admin = TRUE ORDER BY username`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate admin users: %w", err)
	}

	return users, nil
}

// ResolveDestinations 解析规则的目标用户
// event_user 模式取事件操作者；group 模式取目标组全部成员
func (r *UsersRepository) ResolveDestinations(ctx context.Context, rule *models.NotificationRule, event *models.Event) ([]*models.User, error) {
	switch rule.DestinationMode {
	case models.DestinationGroup:
		if rule.DestinationGroupID == nil {
			return nil, nil
		}
		return r.ListGroupMembers(ctx, *rule.DestinationGroupID)
	default:
		// event_user 模式：无操作者则无目标用户
		if event.ActorID == nil {
			return nil, nil
		}
		user, err := r.GetUser(ctx, *event.ActorID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []*models.User{user}, nil
	}
}
