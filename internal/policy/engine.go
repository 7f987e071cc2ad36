package policy

import (
	"context"
	"encoding/json"
)

// Request 策略评估请求
// 评估逻辑由平台的策略决策服务实现，本服务只消费 pass/fail 结果
type Request struct {
	RuleName    string          `json:"rule_name"`
	PolicyIDs   []string        `json:"policy_ids"` // 按绑定顺序
	Mode        string          `json:"mode"`       // any / all
	UserID      string          `json:"user_id"`
	EventID     string          `json:"event_id"`
	Context     json.RawMessage `json:"context,omitempty"`
	UseCache    bool            `json:"use_cache"`
	EmptyResult bool            `json:"empty_result"` // 无策略时的默认结果
}

// Result 策略评估结果
type Result struct {
	Passing bool `json:"passing"`
}

// Engine 策略网关
// 基础设施错误（网关不可达等）原样返回，交给队列的重试机制
type Engine interface {
	Evaluate(ctx context.Context, req *Request) (*Result, error)
}
