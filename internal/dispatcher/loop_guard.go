package dispatcher

import (
	"context"
	"fmt"

	"wisefido-notify/internal/models"
	"wisefido-notify/internal/repository"

	"go.uber.org/zap"
)

// LoopGuard 循环防护
// 通知规则的副作用（策略评估产生的新事件）不得再次触发规则匹配。
// 判定条件：事件上下文记录的 policy_uuid 若绑定在任一规则上，
// 则对该事件的全部规则评估一律中止，宁可漏报也不进入循环
type LoopGuard struct {
	rulesRepo *repository.RulesRepository
	logger    *zap.Logger
}

// NewLoopGuard 创建循环防护
func NewLoopGuard(rulesRepo *repository.RulesRepository, logger *zap.Logger) *LoopGuard {
	return &LoopGuard{
		rulesRepo: rulesRepo,
		logger:    logger,
	}
}

// Check 判断事件是否存在循环风险
// 无副作用的纯判定：只读 rule_policies，不修改任何状态
func (g *LoopGuard) Check(ctx context.Context, event *models.Event) (bool, error) {
	eventContext, err := event.ParseContext()
	if err != nil {
		return false, fmt.Errorf("failed to parse event context: %w", err)
	}

	if eventContext.PolicyUUID == "" {
		return false, nil
	}

	bound, err := g.rulesRepo.IsPolicyBoundToAnyRule(ctx, eventContext.PolicyUUID)
	if err != nil {
		return false, err
	}

	if bound {
		g.logger.Debug("Attempting to prevent infinite loop",
			zap.String("event_id", event.EventID),
			zap.String("policy_uuid", eventContext.PolicyUUID),
		)
	}

	return bound, nil
}
