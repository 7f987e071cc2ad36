package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Worker 任务执行器
// 从消费者组读取任务并分发给注册的处理函数，处理失败的消息不确认，
// 每轮消费先重读本消费者的待处理队列，按至少一次语义重试
type Worker struct {
	queue     *RedisQueue
	group     string
	consumer  string
	batchSize int64
	handlers  map[string]Handler
	logger    *zap.Logger
}

// NewWorker 创建任务执行器
func NewWorker(queue *RedisQueue, group, consumer string, batchSize int64, logger *zap.Logger) *Worker {
	return &Worker{
		queue:     queue,
		group:     group,
		consumer:  consumer,
		batchSize: batchSize,
		handlers:  make(map[string]Handler),
		logger:    logger,
	}
}

// Register 注册任务处理函数
func (w *Worker) Register(task string, handler Handler) {
	w.handlers[task] = handler
}

// Start 启动消费循环（带指数退避）
func (w *Worker) Start(ctx context.Context) error {
	if err := w.queue.CreateConsumerGroup(ctx, w.group); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	w.logger.Info("Task worker started",
		zap.String("stream", w.queue.stream),
		zap.String("consumer_group", w.group),
		zap.String("consumer_name", w.consumer),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := w.consumeOnce(ctx); err != nil {
				w.logger.Error("Failed to consume tasks",
					zap.Error(err),
					zap.Duration("backoff", backoffDuration),
				)

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoffDuration):
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
			} else {
				backoffDuration = time.Second
			}
		}
	}
}

// consumeOnce 读取并处理一批任务
// 先处理上一轮失败遗留的待处理消息，再读取新消息
func (w *Worker) consumeOnce(ctx context.Context) error {
	pending, err := w.queue.ReadPendingTasks(ctx, w.group, w.consumer, w.batchSize)
	if err != nil {
		return err
	}
	w.handleMessages(ctx, pending)

	messages, err := w.queue.ReadTasks(ctx, w.group, w.consumer, w.batchSize)
	if err != nil {
		return err
	}
	w.handleMessages(ctx, messages)

	return nil
}

// handleMessages 分发消息给注册的处理函数
func (w *Worker) handleMessages(ctx context.Context, messages []TaskMessage) {
	for _, msg := range messages {
		handler, ok := w.handlers[msg.Task.Name]
		if !ok {
			// 未注册的任务确认丢弃
			w.logger.Warn("No handler registered for task",
				zap.String("task", msg.Task.Name),
				zap.String("message_id", msg.ID),
			)
			if err := w.queue.Ack(ctx, w.group, msg.ID); err != nil {
				w.logger.Error("Failed to ack message", zap.Error(err))
			}
			continue
		}

		if err := handler(ctx, msg.Task); err != nil {
			// 不确认，等待重新投递
			w.logger.Error("Task handler failed",
				zap.String("task", msg.Task.Name),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}

		if err := w.queue.Ack(ctx, w.group, msg.ID); err != nil {
			w.logger.Error("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}
}
