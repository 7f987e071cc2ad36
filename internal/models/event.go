package models

import (
	"encoding/json"
	"time"
)

// Event 平台事件（对应 events 表）
// 事件一旦创建不可变更，只会被清理任务删除
type Event struct {
	EventID   string          `json:"event_id" db:"event_id"`
	Action    string          `json:"action" db:"action"` // login, policy_violation, admin_action, etc.
	ActorID   *string         `json:"actor_id,omitempty" db:"actor_id"`
	Context   json.RawMessage `json:"context" db:"context"` // JSONB
	Summary   string          `json:"summary" db:"summary"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// EventContext 事件上下文（JSONB 结构，只解析本服务关心的字段）
type EventContext struct {
	PolicyUUID string `json:"policy_uuid,omitempty"`
}

// ParseContext 解析事件上下文
// 上下文为自由格式，未知字段全部忽略
func (e *Event) ParseContext() (*EventContext, error) {
	ctx := &EventContext{}
	if len(e.Context) == 0 {
		return ctx, nil
	}
	if err := json.Unmarshal(e.Context, ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}
