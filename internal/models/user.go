package models

import "time"

// AnonymousUsername 保留用户名：事件操作者无法解析时的回退用户
const AnonymousUsername = "anonymous"

// User 平台用户（对应 users 表）
type User struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Username  string    `json:"username" db:"username"` // 唯一
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	IsAdmin   bool      `json:"is_admin" db:"is_admin"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TenantSettings 租户级通知配置（对应 tenants 表）
// 紧急按钮的三个分支各由独立开关控制
type TenantSettings struct {
	TenantID                  string `json:"tenant_id" db:"tenant_id"`
	PanicButtonNotifyUser     bool   `json:"panic_button_notify_user" db:"panic_button_notify_user"`
	PanicButtonNotifyAdmins   bool   `json:"panic_button_notify_admins" db:"panic_button_notify_admins"`
	PanicButtonNotifySecurity bool   `json:"panic_button_notify_security" db:"panic_button_notify_security"`
	PanicButtonSecurityEmail  string `json:"panic_button_security_email" db:"panic_button_security_email"`
}
