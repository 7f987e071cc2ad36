package service

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-notify/internal/alerts"
	"wisefido-notify/internal/cleanup"
	"wisefido-notify/internal/config"
	"wisefido-notify/internal/dispatcher"
	"wisefido-notify/internal/models"
	"wisefido-notify/internal/policy"
	"wisefido-notify/internal/queue"
	"wisefido-notify/internal/repository"
	"wisefido-notify/internal/transport"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// NotifyService 通知服务（整合各层）
// 平台其余部分通过四个入口调度任务，实际执行在 Worker 消费循环中
type NotifyService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	// 各层组件
	taskQueue         *queue.RedisQueue
	worker            *queue.Worker
	eventsRepo        *repository.EventsRepository
	rulesRepo         *repository.RulesRepository
	usersRepo         *repository.UsersRepository
	transportsRepo    *repository.TransportsRepository
	notificationsRepo *repository.NotificationsRepository
	tenantsRepo       *repository.TenantsRepository
	trigger           *dispatcher.TriggerDispatcher
	evaluator         *dispatcher.RuleEvaluator
	delivery          *dispatcher.DeliveryJob
	cleaner           *cleanup.Cleaner
	panicAlerter      *alerts.PanicAlerter
	mqttSender        *transport.MQTTSender
}

// NewNotifyService 创建通知服务
func NewNotifyService(cfg *config.Config, logger *zap.Logger) (*NotifyService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 创建 Repository 层
	eventsRepo := repository.NewEventsRepository(db, logger)
	rulesRepo := repository.NewRulesRepository(db, logger)
	usersRepo := repository.NewUsersRepository(db, logger)
	transportsRepo := repository.NewTransportsRepository(db, logger)
	notificationsRepo := repository.NewNotificationsRepository(db, logger)
	tenantsRepo := repository.NewTenantsRepository(db, logger)

	// 4. 创建任务队列和 Worker
	taskQueue := queue.NewRedisQueue(redisClient, cfg.Queue.Stream, logger)
	worker := queue.NewWorker(taskQueue, cfg.Queue.Group, cfg.Queue.ConsumerName, cfg.Queue.BatchSize, logger)

	// 5. 创建传输通道注册表
	emailSender := transport.NewEmailSender(cfg, logger)
	registry := transport.NewRegistry()
	registry.Register(models.TransportKindLocal, transport.NewLocalSender(logger))
	registry.Register(models.TransportKindEmail, emailSender)
	registry.Register(models.TransportKindWebhook, transport.NewWebhookSender(logger))

	var mqttSender *transport.MQTTSender
	if cfg.MQTT.Broker != "" {
		mqttSender, err = transport.NewMQTTSender(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create mqtt sender: %w", err)
		}
		registry.Register(models.TransportKindMQTT, mqttSender)
	}

	// 6. 创建调度、评估、投递、清理、告警组件
	engine := policy.NewHTTPEngine(cfg.Policy.BaseURL, logger)
	loopGuard := dispatcher.NewLoopGuard(rulesRepo, logger)
	trigger := dispatcher.NewTriggerDispatcher(rulesRepo, taskQueue, logger)
	evaluator := dispatcher.NewRuleEvaluator(eventsRepo, rulesRepo, usersRepo, loopGuard, engine, taskQueue, logger)
	delivery := dispatcher.NewDeliveryJob(eventsRepo, usersRepo, rulesRepo, transportsRepo, notificationsRepo, registry, logger)
	cleaner := cleanup.NewCleaner(eventsRepo, notificationsRepo, cfg.Cleanup.ErasureBatchSize, logger)
	panicAlerter := alerts.NewPanicAlerter(usersRepo, tenantsRepo, emailSender, logger)

	s := &NotifyService{
		config:            cfg,
		db:                db,
		redisClient:       redisClient,
		logger:            logger,
		taskQueue:         taskQueue,
		worker:            worker,
		eventsRepo:        eventsRepo,
		rulesRepo:         rulesRepo,
		usersRepo:         usersRepo,
		transportsRepo:    transportsRepo,
		notificationsRepo: notificationsRepo,
		tenantsRepo:       tenantsRepo,
		trigger:           trigger,
		evaluator:         evaluator,
		delivery:          delivery,
		cleaner:           cleaner,
		panicAlerter:      panicAlerter,
		mqttSender:        mqttSender,
	}

	s.registerHandlers()

	return s, nil
}

// registerHandlers 注册任务处理函数
func (s *NotifyService) registerHandlers() {
	s.worker.Register(queue.TaskTriggerDispatch, func(ctx context.Context, task *queue.Task) error {
		var payload queue.TriggerDispatchPayload
		if err := task.DecodePayload(&payload); err != nil {
			return err
		}
		return s.trigger.Dispatch(ctx, payload.EventID)
	})

	s.worker.Register(queue.TaskTriggerHandler, func(ctx context.Context, task *queue.Task) error {
		var payload queue.TriggerHandlerPayload
		if err := task.DecodePayload(&payload); err != nil {
			return err
		}
		return s.evaluator.Evaluate(ctx, payload.EventID, payload.RuleName)
	})

	s.worker.Register(queue.TaskTransportSend, func(ctx context.Context, task *queue.Task) error {
		var payload queue.TransportSendPayload
		if err := task.DecodePayload(&payload); err != nil {
			return err
		}
		return s.delivery.Deliver(ctx, payload.TransportID, payload.EventID, payload.UserID, payload.RuleID)
	})

	s.worker.Register(queue.TaskNotificationCleanup, func(ctx context.Context, task *queue.Task) error {
		_, err := s.cleaner.CleanupNotifications(ctx)
		return err
	})

	s.worker.Register(queue.TaskGDPRCleanup, func(ctx context.Context, task *queue.Task) error {
		var payload queue.GDPRCleanupPayload
		if err := task.DecodePayload(&payload); err != nil {
			return err
		}
		_, err := s.cleaner.EraseUserEvents(ctx, payload.UserID)
		return err
	})

	s.worker.Register(queue.TaskPanicButton, func(ctx context.Context, task *queue.Task) error {
		var payload queue.PanicButtonPayload
		if err := task.DecodePayload(&payload); err != nil {
			return err
		}
		return s.panicAlerter.Trigger(ctx, payload.AffectedUserID, payload.TriggeredByID, payload.Reason)
	})
}

// Start 启动服务（阻塞在 Worker 消费循环上）
func (s *NotifyService) Start(ctx context.Context) error {
	s.logger.Info("Starting notify service",
		zap.String("stream", s.config.Queue.Stream),
		zap.String("consumer_group", s.config.Queue.Group),
	)

	if err := s.worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task worker: %w", err)
	}

	return nil
}

// Stop 停止服务
func (s *NotifyService) Stop() error {
	s.logger.Info("Stopping notify service")

	if s.mqttSender != nil {
		s.mqttSender.Close()
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}

// ============================================
// 对平台其余部分暴露的入口
// ============================================

// DispatchNotificationsForEvent 为新事件调度通知评估
func (s *NotifyService) DispatchNotificationsForEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}
	return s.taskQueue.Schedule(ctx, queue.TaskTriggerDispatch, queue.TriggerDispatchPayload{EventID: eventID}, "")
}

// RunNotificationCleanup 调度通知清理任务
func (s *NotifyService) RunNotificationCleanup(ctx context.Context) error {
	return s.taskQueue.Schedule(ctx, queue.TaskNotificationCleanup, struct{}{}, "")
}

// EraseUserEvents 调度用户事件删除任务（数据主体删除）
func (s *NotifyService) EraseUserEvents(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}
	return s.taskQueue.Schedule(ctx, queue.TaskGDPRCleanup, queue.GDPRCleanupPayload{UserID: userID}, userID)
}

// TriggerPanicButtonAlert 调度紧急按钮告警任务
func (s *NotifyService) TriggerPanicButtonAlert(ctx context.Context, affectedUserID, triggeredByID, reason string) error {
	if affectedUserID == "" || triggeredByID == "" {
		return fmt.Errorf("affected_user_id and triggered_by_id are required")
	}
	payload := queue.PanicButtonPayload{
		AffectedUserID: affectedUserID,
		TriggeredByID:  triggeredByID,
		Reason:         reason,
	}
	return s.taskQueue.Schedule(ctx, queue.TaskPanicButton, payload, affectedUserID)
}
