package models

import (
	"time"

	"gorm.io/gorm"
)

// ProviderSession 出入金提供方会话
type ProviderSession struct {
	ID          uint           `gorm:"primarykey" json:"id"`                   // 主键
	SessionID   string         `gorm:"uniqueIndex;not null" json:"session_id"` // 会话ID
	PaymentID   uint           `gorm:"index;not null" json:"payment_id"`       // 结算记录ID
	ProviderID  string         `gorm:"index;not null" json:"provider_id"`      // 提供方标识
	Direction   string         `gorm:"not null" json:"direction"`              // 方向（onramp/offramp）
	Quote       JSON           `gorm:"type:json" json:"quote"`                 // 报价快照
	LockID      string         `gorm:"index" json:"lock_id"`                   // 汇率锁ID
	Status      string         `gorm:"index;not null" json:"status"`           // 会话状态
	ProviderRef string         `gorm:"index" json:"provider_ref"`              // 提供方流水号
	WidgetURL   string         `gorm:"type:text" json:"widget_url"`            // 提供方收银台地址
	ExpiresAt   *time.Time     `gorm:"index" json:"expires_at"`                // 过期时间
	CompletedAt *time.Time     `gorm:"index" json:"completed_at"`              // 完成时间
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                         // 软删除时间
}

// TableName 指定表名
func (ProviderSession) TableName() string {
	return "provider_sessions"
}
