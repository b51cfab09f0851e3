package models

import (
	"time"

	"gorm.io/gorm"
)

// EscrowAccount 托管账户
type EscrowAccount struct {
	ID         uint           `gorm:"primarykey" json:"id"`                      // 主键
	EscrowRef  string         `gorm:"uniqueIndex;not null" json:"escrow_ref"`    // 托管引用
	PaymentID  uint           `gorm:"index;not null" json:"payment_id"`          // 结算记录ID
	Amount     Money          `gorm:"type:decimal(20,2);not null" json:"amount"` // 托管金额
	Currency   string         `gorm:"not null" json:"currency"`                  // 币种
	OrderType  string         `gorm:"not null" json:"order_type"`                // 订单类型
	Status     string         `gorm:"index;not null" json:"status"`              // 托管状态（held/released/refunded）
	HeldAt     *time.Time     `gorm:"index" json:"held_at"`                      // 入托时间
	ReleasedAt *time.Time     `gorm:"index" json:"released_at"`                  // 释放时间
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`                   // 创建时间
	UpdatedAt  time.Time      `gorm:"index" json:"updated_at"`                   // 更新时间
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`                            // 软删除时间
}

// TableName 指定表名
func (EscrowAccount) TableName() string {
	return "escrow_accounts"
}
