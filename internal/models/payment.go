package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment 结算记录
type Payment struct {
	ID              uint           `gorm:"primarykey" json:"id"`                       // 主键
	UserID          uint           `gorm:"index;not null" json:"user_id"`              // 用户ID
	SessionID       string         `gorm:"uniqueIndex;not null" json:"session_id"`     // 会话ID（提供方回调定位）
	Amount          Money          `gorm:"type:decimal(20,2);not null" json:"amount"`  // 结算金额
	Currency        string         `gorm:"not null" json:"currency"`                   // 币种
	Method          string         `gorm:"index;not null" json:"method"`               // 结算渠道（card/wallet/x402/multisig/ramp）
	Status          string         `gorm:"index;not null" json:"status"`               // 结算状态
	TransactionHash string         `gorm:"index" json:"transaction_hash"`              // 链上交易哈希
	EscrowStatus    string         `gorm:"not null;default:none" json:"escrow_status"` // 托管状态（none/held/released/refunded）
	EscrowRef       string         `gorm:"index" json:"escrow_ref"`                    // 托管引用
	Metadata        JSON           `gorm:"type:json" json:"metadata"`                  // 路由/汇率/风控快照
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                    // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                    // 更新时间
	CompletedAt     *time.Time     `gorm:"index" json:"completed_at"`                  // 完成时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                             // 软删除时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}

// IsTerminal 判断是否处于终态
func (p *Payment) IsTerminal() bool {
	return p.Status == "COMPLETED" || p.Status == "FAILED"
}
