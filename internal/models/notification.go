package models

import (
	"encoding/json"
	"time"
)

// 通知严重级别
const (
	SeverityNotice  = "notice"
	SeverityWarning = "warning"
	SeverityAlert   = "alert"
)

// 策略组合模式
const (
	PolicyModeAny = "any" // 任一策略通过即通过
	PolicyModeAll = "all" // 全部策略通过才通过
)

// 目标用户解析模式
const (
	DestinationEventUser = "event_user" // 事件的操作者
	DestinationGroup     = "group"      // 指定用户组的全部成员
)

// 传输通道类型（封闭集合）
const (
	TransportKindLocal   = "local"   // 仅站内通知记录
	TransportKindEmail   = "email"   // SMTP 邮件
	TransportKindWebhook = "webhook" // HTTP POST
	TransportKindMQTT    = "mqtt"    // MQTT 发布
)

// NotificationRule 通知规则（对应 notification_rules 表）
// 由管理员配置，绑定策略、传输通道和目标用户解析方式
type NotificationRule struct {
	RuleID             string    `json:"rule_id" db:"rule_id"`
	Name               string    `json:"name" db:"name"` // 唯一
	Severity           string    `json:"severity" db:"severity"`
	PolicyMode         string    `json:"policy_mode" db:"policy_mode"`
	DestinationMode    string    `json:"destination_mode" db:"destination_mode"`
	DestinationGroupID *string   `json:"destination_group_id,omitempty" db:"destination_group_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// NotificationTransport 传输通道配置（对应 notification_transports 表）
type NotificationTransport struct {
	TransportID string          `json:"transport_id" db:"transport_id"`
	Name        string          `json:"name" db:"name"`
	Kind        string          `json:"kind" db:"kind"`
	Config      json.RawMessage `json:"config" db:"config"` // JSONB，按 Kind 解释
	SendOnce    bool            `json:"send_once" db:"send_once"`
}

// WebhookConfig webhook 通道配置（Config JSONB 结构）
type WebhookConfig struct {
	URL string `json:"url"`
}

// MQTTConfig mqtt 通道配置（Config JSONB 结构）
type MQTTConfig struct {
	Topic string `json:"topic"`
	QoS   byte   `json:"qos"`
}

// Notification 通知记录（对应 notifications 表）
// EventID 为弱引用：事件删除后置 NULL，由清理任务回收
type Notification struct {
	NotificationID string    `json:"notification_id" db:"notification_id"`
	Severity       string    `json:"severity" db:"severity"`
	Body           string    `json:"body" db:"body"`
	EventID        *string   `json:"event_id,omitempty" db:"event_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	Seen           bool      `json:"seen" db:"seen"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// PolicyBinding 策略绑定（对应 rule_policies 表）
// 循环防护只用它回答"该策略是否绑定在任一规则上"
type PolicyBinding struct {
	RuleID    string `json:"rule_id" db:"rule_id"`
	PolicyID  string `json:"policy_id" db:"policy_id"`
	SortOrder int    `json:"sort_order" db:"sort_order"`
}
