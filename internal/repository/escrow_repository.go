package repository

import (
	"errors"
	"strings"

	"github.com/paymind-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EscrowRepository 托管账户数据访问接口
type EscrowRepository interface {
	Create(account *models.EscrowAccount) error
	Update(account *models.EscrowAccount) error
	GetByRef(escrowRef string) (*models.EscrowAccount, error)
	GetByPaymentID(paymentID uint) (*models.EscrowAccount, error)
	UpdateStatusLocked(escrowRef string, apply func(account *models.EscrowAccount) error) (*models.EscrowAccount, error)
	List(filter EscrowListFilter) ([]models.EscrowAccount, int64, error)
	WithTx(tx *gorm.DB) *GormEscrowRepository
}

// GormEscrowRepository GORM 实现
type GormEscrowRepository struct {
	db *gorm.DB
}

// NewEscrowRepository 创建托管仓库
func NewEscrowRepository(db *gorm.DB) *GormEscrowRepository {
	return &GormEscrowRepository{db: db}
}

// WithTx 绑定事务
func (r *GormEscrowRepository) WithTx(tx *gorm.DB) *GormEscrowRepository {
	if tx == nil {
		return r
	}
	return &GormEscrowRepository{db: tx}
}

// Create 创建托管账户
func (r *GormEscrowRepository) Create(account *models.EscrowAccount) error {
	return r.db.Create(account).Error
}

// Update 更新托管账户
func (r *GormEscrowRepository) Update(account *models.EscrowAccount) error {
	return r.db.Save(account).Error
}

// GetByRef 根据托管引用获取账户
func (r *GormEscrowRepository) GetByRef(escrowRef string) (*models.EscrowAccount, error) {
	escrowRef = strings.TrimSpace(escrowRef)
	if escrowRef == "" {
		return nil, nil
	}
	var account models.EscrowAccount
	result := r.db.Where("escrow_ref = ?", escrowRef).Limit(1).Find(&account)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &account, nil
}

// GetByPaymentID 根据结算记录获取托管账户
func (r *GormEscrowRepository) GetByPaymentID(paymentID uint) (*models.EscrowAccount, error) {
	if paymentID == 0 {
		return nil, nil
	}
	var account models.EscrowAccount
	result := r.db.Where("payment_id = ?", paymentID).Order("id desc").Limit(1).Find(&account)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &account, nil
}

// UpdateStatusLocked 行锁内更新托管状态
func (r *GormEscrowRepository) UpdateStatusLocked(escrowRef string, apply func(account *models.EscrowAccount) error) (*models.EscrowAccount, error) {
	escrowRef = strings.TrimSpace(escrowRef)
	if escrowRef == "" {
		return nil, errors.New("escrow ref is empty")
	}
	var updated *models.EscrowAccount
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var account models.EscrowAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("escrow_ref = ?", escrowRef).First(&account).Error; err != nil {
			return err
		}
		if err := apply(&account); err != nil {
			return err
		}
		if err := tx.Save(&account).Error; err != nil {
			return err
		}
		updated = &account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// List 托管账户列表
func (r *GormEscrowRepository) List(filter EscrowListFilter) ([]models.EscrowAccount, int64, error) {
	query := r.db.Model(&models.EscrowAccount{})

	if filter.PaymentID != 0 {
		query = query.Where("payment_id = ?", filter.PaymentID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OrderType != "" {
		query = query.Where("order_type = ?", filter.OrderType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var accounts []models.EscrowAccount
	if err := query.Order("id desc").Find(&accounts).Error; err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}
