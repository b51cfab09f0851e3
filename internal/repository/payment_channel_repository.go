package repository

import (
	"errors"
	"strings"

	"github.com/paymind-next/internal/models"

	"gorm.io/gorm"
)

// PaymentChannelRepository 结算渠道数据访问接口
type PaymentChannelRepository interface {
	Create(channel *models.PaymentChannel) error
	Update(channel *models.PaymentChannel) error
	GetByMethod(method string) (*models.PaymentChannel, error)
	List() ([]models.PaymentChannel, error)
	SetAvailability(method string, available bool) (bool, error)
}

// GormPaymentChannelRepository GORM 实现
type GormPaymentChannelRepository struct {
	db *gorm.DB
}

// NewPaymentChannelRepository 创建结算渠道仓库
func NewPaymentChannelRepository(db *gorm.DB) *GormPaymentChannelRepository {
	return &GormPaymentChannelRepository{db: db}
}

// Create 创建结算渠道
func (r *GormPaymentChannelRepository) Create(channel *models.PaymentChannel) error {
	return r.db.Create(channel).Error
}

// Update 更新结算渠道
func (r *GormPaymentChannelRepository) Update(channel *models.PaymentChannel) error {
	return r.db.Save(channel).Error
}

// GetByMethod 根据渠道标识获取结算渠道
func (r *GormPaymentChannelRepository) GetByMethod(method string) (*models.PaymentChannel, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, nil
	}
	var channel models.PaymentChannel
	if err := r.db.Where("method = ?", method).First(&channel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// List 结算渠道列表（按注册顺序返回）
func (r *GormPaymentChannelRepository) List() ([]models.PaymentChannel, error) {
	var channels []models.PaymentChannel
	if err := r.db.Order("id ASC").Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

// SetAvailability 切换渠道可用状态，返回是否命中记录
func (r *GormPaymentChannelRepository) SetAvailability(method string, available bool) (bool, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return false, nil
	}
	result := r.db.Model(&models.PaymentChannel{}).Where("method = ?", method).Update("available", available)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
