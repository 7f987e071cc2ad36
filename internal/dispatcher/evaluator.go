package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"wisefido-notify/internal/models"
	"wisefido-notify/internal/policy"
	"wisefido-notify/internal/queue"
	"wisefido-notify/internal/repository"

	"go.uber.org/zap"
)

// RuleEvaluator 规则评估器
// 每次评估重新加载事件和规则，容忍调度到执行之间的删除。
// 引用实体缺失一律视为正常终止，不向队列报错
type RuleEvaluator struct {
	eventsRepo *repository.EventsRepository
	rulesRepo  *repository.RulesRepository
	usersRepo  *repository.UsersRepository
	loopGuard  *LoopGuard
	engine     policy.Engine
	scheduler  queue.Scheduler
	logger     *zap.Logger
}

// NewRuleEvaluator 创建规则评估器
func NewRuleEvaluator(
	eventsRepo *repository.EventsRepository,
	rulesRepo *repository.RulesRepository,
	usersRepo *repository.UsersRepository,
	loopGuard *LoopGuard,
	engine policy.Engine,
	scheduler queue.Scheduler,
	logger *zap.Logger,
) *RuleEvaluator {
	return &RuleEvaluator{
		eventsRepo: eventsRepo,
		rulesRepo:  rulesRepo,
		usersRepo:  usersRepo,
		loopGuard:  loopGuard,
		engine:     engine,
		scheduler:  scheduler,
		logger:     logger,
	}
}

// Evaluate 评估单条规则是否匹配事件，匹配则展开投递任务
func (e *RuleEvaluator) Evaluate(ctx context.Context, eventID, ruleName string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if ruleName == "" {
		return fmt.Errorf("rule_name is required")
	}

	// 1. 加载事件：不存在（尚未提交或已删除）是正常终止
	event, err := e.eventsRepo.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			e.logger.Warn("Event doesn't exist yet or anymore",
				zap.String("event_id", eventID),
			)
			return nil
		}
		return err
	}

	// 2. 加载规则：调度后被删除则静默终止
	rule, err := e.rulesRepo.GetRuleByName(ctx, ruleName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	// 3. 循环防护：命中即中止，不进入策略评估
	loopRisk, err := e.loopGuard.Check(ctx, event)
	if err != nil {
		return err
	}
	if loopRisk {
		return nil
	}

	e.logger.Debug("Checking if trigger applies",
		zap.String("rule_name", rule.Name),
		zap.String("event_id", event.EventID),
	)

	// 4. 解析主体用户：操作者缺失回退到匿名用户，匿名用户也缺失则中止
	subject, err := e.resolveSubject(ctx, event)
	if err != nil {
		return err
	}
	if subject == nil {
		e.logger.Warn("Failed to resolve subject user",
			zap.String("rule_name", rule.Name),
			zap.String("event_id", event.EventID),
		)
		return nil
	}

	// 5. 策略评估：any 模式，禁用缓存，空策略集默认不通过
	policyIDs, err := e.rulesRepo.ListRulePolicyIDs(ctx, rule.RuleID)
	if err != nil {
		return err
	}

	result, err := e.engine.Evaluate(ctx, &policy.Request{
		RuleName:    rule.Name,
		PolicyIDs:   policyIDs,
		Mode:        models.PolicyModeAny,
		UserID:      subject.UserID,
		EventID:     event.EventID,
		Context:     event.Context,
		UseCache:    false,
		EmptyResult: false,
	})
	if err != nil {
		return err
	}
	if !result.Passing {
		return nil
	}

	e.logger.Debug("Event trigger matched",
		zap.String("rule_name", rule.Name),
		zap.String("event_id", event.EventID),
	)

	// 6. 展开投递任务：每个（通道, 目标用户）一个任务，send_once 通道只取第一个用户
	count, err := e.fanOut(ctx, rule, event)
	if err != nil {
		return err
	}

	e.logger.Info("Created notification tasks",
		zap.String("rule_name", rule.Name),
		zap.String("event_id", event.EventID),
		zap.Int("count", count),
	)

	return nil
}

// resolveSubject 解析策略评估的主体用户
// 返回 (nil, nil) 表示无法解析（含匿名用户缺失）
func (e *RuleEvaluator) resolveSubject(ctx context.Context, event *models.Event) (*models.User, error) {
	if event.ActorID != nil {
		user, err := e.usersRepo.GetUser(ctx, *event.ActorID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	anonymous, err := e.usersRepo.GetUserByUsername(ctx, models.AnonymousUsername)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return anonymous, nil
}

// fanOut 按通道和目标用户调度投递任务
func (e *RuleEvaluator) fanOut(ctx context.Context, rule *models.NotificationRule, event *models.Event) (int, error) {
	destinations, err := e.usersRepo.ResolveDestinations(ctx, rule, event)
	if err != nil {
		return 0, err
	}

	transports, err := e.rulesRepo.ListRuleTransports(ctx, rule.RuleID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, transport := range transports {
		for _, user := range destinations {
			payload := queue.TransportSendPayload{
				TransportID: transport.TransportID,
				EventID:     event.EventID,
				UserID:      user.UserID,
				RuleID:      rule.RuleID,
			}
			if err := e.scheduler.Schedule(ctx, queue.TaskTransportSend, payload, transport.TransportID); err != nil {
				return count, fmt.Errorf("failed to schedule transport send: %w", err)
			}
			count++
			if transport.SendOnce {
				break
			}
		}
	}

	return count, nil
}
