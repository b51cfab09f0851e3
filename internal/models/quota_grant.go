package models

import (
	"time"

	"gorm.io/gorm"
)

// QuotaGrant 自动扣款授权
type QuotaGrant struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                    // 主键
	UserID      uint           `gorm:"index;not null" json:"user_id"`                           // 用户ID
	SingleLimit Money          `gorm:"type:decimal(20,2);not null" json:"single_limit"`         // 单笔限额
	DailyLimit  Money          `gorm:"type:decimal(20,2);not null" json:"daily_limit"`          // 每日限额
	UsedToday   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"used_today"` // 当日已用
	TotalUsed   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_used"` // 累计已用
	IsActive    bool           `gorm:"index;not null;default:true" json:"is_active"`            // 是否生效
	ExpiresAt   time.Time      `gorm:"index;not null" json:"expires_at"`                        // 过期时间
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                                 // 创建时间（当日用量重置以此日期为基准）
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                                 // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                          // 软删除时间
}

// TableName 指定表名
func (QuotaGrant) TableName() string {
	return "quota_grants"
}
