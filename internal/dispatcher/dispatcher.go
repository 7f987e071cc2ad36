package dispatcher

import (
	"context"
	"fmt"

	"wisefido-notify/internal/queue"
	"wisefido-notify/internal/repository"

	"go.uber.org/zap"
)

// TriggerDispatcher 触发调度器
// 对每条事件枚举全部规则，为每条规则调度一个独立的评估任务。
// 只传事件ID和规则名称，完整对象由评估任务重新加载，容忍队列延迟
type TriggerDispatcher struct {
	rulesRepo *repository.RulesRepository
	scheduler queue.Scheduler
	logger    *zap.Logger
}

// NewTriggerDispatcher 创建触发调度器
func NewTriggerDispatcher(
	rulesRepo *repository.RulesRepository,
	scheduler queue.Scheduler,
	logger *zap.Logger,
) *TriggerDispatcher {
	return &TriggerDispatcher{
		rulesRepo: rulesRepo,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Dispatch 为事件调度规则评估任务
// 无规则时为空操作；各评估任务相互独立，无顺序保证
func (d *TriggerDispatcher) Dispatch(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	ruleNames, err := d.rulesRepo.ListRuleNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	for _, ruleName := range ruleNames {
		payload := queue.TriggerHandlerPayload{
			EventID:  eventID,
			RuleName: ruleName,
		}
		if err := d.scheduler.Schedule(ctx, queue.TaskTriggerHandler, payload, ruleName); err != nil {
			return fmt.Errorf("failed to schedule trigger handler for rule %s: %w", ruleName, err)
		}
	}

	d.logger.Debug("Dispatched trigger handlers",
		zap.String("event_id", eventID),
		zap.Int("rule_count", len(ruleNames)),
	)

	return nil
}
