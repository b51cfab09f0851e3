package repository

import (
	"errors"

	"github.com/paymind-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuotaGrantRepository 自动扣款授权数据访问接口
type QuotaGrantRepository interface {
	Create(grant *models.QuotaGrant) error
	Update(grant *models.QuotaGrant) error
	GetByID(id uint) (*models.QuotaGrant, error)
	GetLatestActiveByUser(userID uint) (*models.QuotaGrant, error)
	Deactivate(id uint) error
	RecordUsage(id uint, apply func(grant *models.QuotaGrant) error) (*models.QuotaGrant, error)
	WithTx(tx *gorm.DB) *GormQuotaGrantRepository
}

// GormQuotaGrantRepository GORM 实现
type GormQuotaGrantRepository struct {
	db *gorm.DB
}

// NewQuotaGrantRepository 创建授权仓库
func NewQuotaGrantRepository(db *gorm.DB) *GormQuotaGrantRepository {
	return &GormQuotaGrantRepository{db: db}
}

// WithTx 绑定事务
func (r *GormQuotaGrantRepository) WithTx(tx *gorm.DB) *GormQuotaGrantRepository {
	if tx == nil {
		return r
	}
	return &GormQuotaGrantRepository{db: tx}
}

// Create 创建授权
func (r *GormQuotaGrantRepository) Create(grant *models.QuotaGrant) error {
	return r.db.Create(grant).Error
}

// Update 更新授权
func (r *GormQuotaGrantRepository) Update(grant *models.QuotaGrant) error {
	return r.db.Save(grant).Error
}

// GetByID 根据 ID 获取授权
func (r *GormQuotaGrantRepository) GetByID(id uint) (*models.QuotaGrant, error) {
	var grant models.QuotaGrant
	if err := r.db.First(&grant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// GetLatestActiveByUser 获取用户最新生效授权
func (r *GormQuotaGrantRepository) GetLatestActiveByUser(userID uint) (*models.QuotaGrant, error) {
	if userID == 0 {
		return nil, nil
	}
	var grant models.QuotaGrant
	result := r.db.Where("user_id = ? AND is_active = ?", userID, true).Order("id desc").Limit(1).Find(&grant)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &grant, nil
}

// Deactivate 停用授权
func (r *GormQuotaGrantRepository) Deactivate(id uint) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.QuotaGrant{}).Where("id = ?", id).Update("is_active", false).Error
}

// RecordUsage 行锁内应用用量变更，避免并发丢更新
func (r *GormQuotaGrantRepository) RecordUsage(id uint, apply func(grant *models.QuotaGrant) error) (*models.QuotaGrant, error) {
	var updated *models.QuotaGrant
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var grant models.QuotaGrant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&grant, id).Error; err != nil {
			return err
		}
		if err := apply(&grant); err != nil {
			return err
		}
		if err := tx.Save(&grant).Error; err != nil {
			return err
		}
		updated = &grant
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
