package models

import (
	"time"

	"gorm.io/gorm"
)

// CommissionRecord 平台佣金记录（结算完成后的尽力而为补录）
type CommissionRecord struct {
	ID        uint           `gorm:"primarykey" json:"id"`                      // 主键
	PaymentID uint           `gorm:"index;not null" json:"payment_id"`          // 结算记录ID
	Kind      string         `gorm:"index;not null" json:"kind"`                // 类型（platform/referral）
	Amount    Money          `gorm:"type:decimal(20,2);not null" json:"amount"` // 佣金金额
	Currency  string         `gorm:"not null" json:"currency"`                  // 币种
	Rate      string         `gorm:"not null;default:0" json:"rate"`            // 费率快照
	RefUserID uint           `gorm:"index" json:"ref_user_id"`                  // 推荐人ID（referral 专用）
	CreatedAt time.Time      `gorm:"index" json:"created_at"`                   // 创建时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                            // 软删除时间
}

// TableName 指定表名
func (CommissionRecord) TableName() string {
	return "commission_records"
}
