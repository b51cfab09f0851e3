package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentChannel 结算渠道配置（管理端启停状态的持久化载体）
type PaymentChannel struct {
	ID                  uint           `gorm:"primarykey" json:"id"`                          // 主键
	Method              string         `gorm:"uniqueIndex;not null" json:"method"`            // 渠道标识（card/wallet/x402/multisig）
	Name                string         `gorm:"not null" json:"name"`                          // 渠道名称
	Priority            int            `gorm:"not null;default:0" json:"priority"`            // 基础优先级
	MinAmount           Money          `gorm:"type:decimal(20,2);not null" json:"min_amount"` // 最小金额
	MaxAmount           Money          `gorm:"type:decimal(20,2);not null" json:"max_amount"` // 最大金额
	Cost                string         `gorm:"not null;default:0" json:"cost"`                // 费率
	Speed               int            `gorm:"not null;default:5" json:"speed"`               // 到账速度（1-10）
	Available           bool           `gorm:"not null;default:true" json:"available"`        // 是否可用
	KYCRequired         bool           `gorm:"not null;default:false" json:"kyc_required"`    // 是否需要 KYC
	CrossBorder         bool           `gorm:"not null;default:false" json:"cross_border"`    // 是否支持跨境
	SupportedCurrencies StringArray    `gorm:"type:json" json:"supported_currencies"`         // 支持币种
	CreatedAt           time.Time      `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt           time.Time      `gorm:"index" json:"updated_at"`                       // 更新时间
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`                                // 软删除时间
}

// TableName 指定表名
func (PaymentChannel) TableName() string {
	return "payment_channels"
}
