package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-notify/internal/models"

	"go.uber.org/zap"
)

// RulesRepository 通知规则仓库
type RulesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRulesRepository 创建通知规则仓库
func NewRulesRepository(db *sql.DB, logger *zap.Logger) *RulesRepository {
	return &RulesRepository{
		db:     db,
		logger: logger,
	}
}

const ruleColumns = `
	rule_id,
	name,
	severity,
	policy_mode,
	destination_mode,
	destination_group_id,
	created_at,
	updated_at
`

func scanRule(scanner interface{ Scan(...any) error }) (*models.NotificationRule, error) {
	var rule models.NotificationRule
	var groupID sql.NullString

	err := scanner.Scan(
		&rule.RuleID,
		&rule.Name,
		&rule.Severity,
		&rule.PolicyMode,
		&rule.DestinationMode,
		&groupID,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if groupID.Valid {
		rule.DestinationGroupID = &groupID.String
	}

	return &rule, nil
}

// ListRuleNames 获取全部规则名称
// 触发调度只传名称，完整规则由评估任务重新加载
func (r *RulesRepository) ListRuleNames(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM notification_rules ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan rule name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule names: %w", err)
	}

	return names, nil
}

// GetRuleByName 根据名称获取规则
func (r *RulesRepository) GetRuleByName(ctx context.Context, name string) (*models.NotificationRule, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	query := `SELECT ` + ruleColumns + ` FROM notification_rules WHERE name = $1`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("rule %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule by name: %w", err)
	}

	return rule, nil
}

// GetRule 根据 rule_id 获取规则
func (r *RulesRepository) GetRule(ctx context.Context, ruleID string) (*models.NotificationRule, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("rule_id is required")
	}

	query := `SELECT ` + ruleColumns + ` FROM notification_rules WHERE rule_id = $1`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, ruleID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

// ListRulePolicyIDs 获取规则绑定的策略ID（按 sort_order 排序）
func (r *RulesRepository) ListRulePolicyIDs(ctx context.Context, ruleID string) ([]string, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("rule_id is required")
	}

	query := `
		SELECT policy_id
		FROM rule_policies
		WHERE rule_id = $1
		ORDER BY sort_order
	`

	rows, err := r.db.QueryContext(ctx, query, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule policies: %w", err)
	}
	defer rows.Close()

	var policyIDs []string
	for rows.Next() {
		var policyID string
		if err := rows.Scan(&policyID); err != nil {
			return nil, fmt.Errorf("failed to scan policy id: %w", err)
		}
		policyIDs = append(policyIDs, policyID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule policies: %w", err)
	}

	return policyIDs, nil
}

// ListRuleTransports 获取规则绑定的传输通道
func (r *RulesRepository) ListRuleTransports(ctx context.Context, ruleID string) ([]*models.NotificationTransport, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("rule_id is required")
	}

	query := `
		SELECT
			t.transport_id,
			t.name,
			t.kind,
			t.config,
			t.send_once
		FROM notification_transports t
		JOIN rule_transports rt ON rt.transport_id = t.transport_id
		WHERE rt.rule_id = $1
		ORDER BY t.name
	`

	rows, err := r.db.QueryContext(ctx, query, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule transports: %w", err)
	}
	defer rows.Close()

	var transports []*models.NotificationTransport
	for rows.Next() {
		var transport models.NotificationTransport
		var config []byte
		if err := rows.Scan(
			&transport.TransportID,
			&transport.Name,
			&transport.Kind,
			&config,
			&transport.SendOnce,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transport: %w", err)
		}
		transport.Config = config
		transports = append(transports, &transport)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule transports: %w", err)
	}

	return transports, nil
}

// IsPolicyBoundToAnyRule 判断策略是否绑定在任一规则上
// 循环防护的唯一数据依赖：产生事件的策略若挂在任何规则上，评估即中止
func (r *RulesRepository) IsPolicyBoundToAnyRule(ctx context.Context, policyID string) (bool, error) {
	if policyID == "" {
		return false, fmt.Errorf("policy_id is required")
	}

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM rule_policies WHERE policy_id = $1)`
	if err := r.db.QueryRowContext(ctx, query, policyID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check policy binding: %w", err)
	}

	return exists, nil
}
