package transport

import (
	"context"
	"fmt"

	"wisefido-notify/internal/models"
)

// Sender 传输通道发送接口
// 发送失败是通道自身的事：调用方记录日志即可，不据此回滚通知记录
type Sender interface {
	Send(ctx context.Context, notification *models.Notification, user *models.User, transport *models.NotificationTransport) error
}

// Registry 传输通道注册表（按 Kind 的封闭集合）
type Registry struct {
	senders map[string]Sender
}

// NewRegistry 创建传输通道注册表
func NewRegistry() *Registry {
	return &Registry{
		senders: make(map[string]Sender),
	}
}

// Register 注册通道类型
func (r *Registry) Register(kind string, sender Sender) {
	r.senders[kind] = sender
}

// Resolve 根据通道类型获取发送器
func (r *Registry) Resolve(kind string) (Sender, error) {
	sender, ok := r.senders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown transport kind: %s", kind)
	}
	return sender, nil
}
