package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisQueue 基于 Redis Streams 的任务队列
// 发布走 XADD，消费走 XREADGROUP 消费者组，至少一次投递
type RedisQueue struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewRedisQueue 创建 Redis 任务队列
func NewRedisQueue(client *redis.Client, stream string, logger *zap.Logger) *RedisQueue {
	return &RedisQueue{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// Schedule 发布任务到任务流
func (q *RedisQueue) Schedule(ctx context.Context, task string, payload any, routingKey string) error {
	if task == "" {
		return fmt.Errorf("task name is required")
	}

	envelope, err := NewTask(task, payload, routingKey)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	values := map[string]interface{}{
		"task":        envelope.Name,
		"payload":     string(envelope.Payload),
		"enqueued_at": envelope.EnqueuedAt,
	}
	if envelope.RoutingKey != "" {
		values["routing_key"] = envelope.RoutingKey
	}

	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}

	q.logger.Debug("Task scheduled",
		zap.String("task", task),
		zap.String("stream", q.stream),
		zap.String("message_id", id),
	)

	return nil
}

// CreateConsumerGroup 创建消费者组（已存在则忽略）
func (q *RedisQueue) CreateConsumerGroup(ctx context.Context, group string) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// ReadTasks 从消费者组读取一批新任务
// 返回任务及其消息ID，处理完成后需调用 Ack
func (q *RedisQueue) ReadTasks(ctx context.Context, group, consumer string, count int64) ([]TaskMessage, error) {
	return q.readTasks(ctx, group, consumer, count, ">", 5*time.Second)
}

// ReadPendingTasks 重新读取本消费者已投递未确认的任务
// 处理失败的消息留在待处理队列中，由下一轮消费循环重试
func (q *RedisQueue) ReadPendingTasks(ctx context.Context, group, consumer string, count int64) ([]TaskMessage, error) {
	return q.readTasks(ctx, group, consumer, count, "0", -1)
}

func (q *RedisQueue) readTasks(ctx context.Context, group, consumer string, count int64, startID string, block time.Duration) ([]TaskMessage, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{q.stream, startID},
		Count:    count,
		Block:    block,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}

	var messages []TaskMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			task, err := decodeTask(msg.Values)
			if err != nil {
				// 无法解析的消息直接确认丢弃，避免反复投递
				q.logger.Warn("Discarding malformed task message",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
				q.client.XAck(ctx, q.stream, group, msg.ID)
				continue
			}
			messages = append(messages, TaskMessage{
				ID:   msg.ID,
				Task: task,
			})
		}
	}

	return messages, nil
}

// Ack 确认消息处理完成
func (q *RedisQueue) Ack(ctx context.Context, group, messageID string) error {
	return q.client.XAck(ctx, q.stream, group, messageID).Err()
}

// TaskMessage 流中的任务消息
type TaskMessage struct {
	ID   string
	Task *Task
}

func decodeTask(values map[string]interface{}) (*Task, error) {
	name, ok := values["task"].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("missing task name")
	}

	payload, ok := values["payload"].(string)
	if !ok {
		return nil, fmt.Errorf("missing task payload")
	}
	if !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("invalid task payload")
	}

	task := &Task{
		Name:    name,
		Payload: json.RawMessage(payload),
	}
	if routingKey, ok := values["routing_key"].(string); ok {
		task.RoutingKey = routingKey
	}
	if enqueuedAt, ok := values["enqueued_at"].(string); ok {
		ts, err := strconv.ParseInt(enqueuedAt, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid enqueued_at: %s", enqueuedAt)
		}
		task.EnqueuedAt = ts
	}

	return task, nil
}
