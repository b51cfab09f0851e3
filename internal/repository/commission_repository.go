package repository

import (
	"github.com/paymind-next/internal/models"

	"gorm.io/gorm"
)

// CommissionRepository 佣金记录数据访问接口
type CommissionRepository interface {
	Create(record *models.CommissionRecord) error
	ListByPaymentID(paymentID uint) ([]models.CommissionRecord, error)
}

// GormCommissionRepository GORM 实现
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金仓库
func NewCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// Create 创建佣金记录
func (r *GormCommissionRepository) Create(record *models.CommissionRecord) error {
	return r.db.Create(record).Error
}

// ListByPaymentID 获取结算记录下的佣金记录
func (r *GormCommissionRepository) ListByPaymentID(paymentID uint) ([]models.CommissionRecord, error) {
	if paymentID == 0 {
		return []models.CommissionRecord{}, nil
	}
	var records []models.CommissionRecord
	if err := r.db.Where("payment_id = ?", paymentID).Order("id asc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
