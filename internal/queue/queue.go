package queue

import (
	"context"
	"encoding/json"
	"time"
)

// 任务名称（与 Redis Streams 消息中的 task 字段对应）
const (
	TaskTriggerDispatch     = "trigger_dispatch"
	TaskTriggerHandler      = "trigger_handler"
	TaskTransportSend       = "transport_send"
	TaskNotificationCleanup = "notification_cleanup"
	TaskGDPRCleanup         = "gdpr_cleanup"
	TaskPanicButton         = "panic_button"
)

// Task 任务信封
// RoutingKey 仅作为路由提示透传，本服务不解释其内容
type Task struct {
	Name       string          `json:"task"`
	Payload    json.RawMessage `json:"payload"`
	RoutingKey string          `json:"routing_key,omitempty"`
	EnqueuedAt int64           `json:"enqueued_at"`
}

// DecodePayload 解析任务负载
func (t *Task) DecodePayload(v any) error {
	return json.Unmarshal(t.Payload, v)
}

// Scheduler 任务调度接口
// 调度与执行解耦：任务可能由其他实例的 Worker 执行
type Scheduler interface {
	Schedule(ctx context.Context, task string, payload any, routingKey string) error
}

// Handler 任务处理函数
// 返回 nil 表示任务完成（含正常空操作）；返回错误表示需要重试
type Handler func(ctx context.Context, task *Task) error

// NewTask 构造任务信封
func NewTask(name string, payload any, routingKey string) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Task{
		Name:       name,
		Payload:    raw,
		RoutingKey: routingKey,
		EnqueuedAt: time.Now().Unix(),
	}, nil
}

// 任务负载结构

// TriggerDispatchPayload trigger_dispatch 任务负载
type TriggerDispatchPayload struct {
	EventID string `json:"event_id"`
}

// TriggerHandlerPayload trigger_handler 任务负载
type TriggerHandlerPayload struct {
	EventID  string `json:"event_id"`
	RuleName string `json:"rule_name"`
}

// TransportSendPayload transport_send 任务负载
type TransportSendPayload struct {
	TransportID string `json:"transport_id"`
	EventID     string `json:"event_id"`
	UserID      string `json:"user_id"`
	RuleID      string `json:"rule_id"`
}

// GDPRCleanupPayload gdpr_cleanup 任务负载
type GDPRCleanupPayload struct {
	UserID string `json:"user_id"`
}

// PanicButtonPayload panic_button 任务负载
type PanicButtonPayload struct {
	AffectedUserID string `json:"affected_user_id"`
	TriggeredByID  string `json:"triggered_by_id"`
	Reason         string `json:"reason"`
}
