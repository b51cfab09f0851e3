package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paymind-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentRepository 结算数据访问接口
type PaymentRepository interface {
	Create(payment *models.Payment) error
	Update(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetBySessionID(sessionID string) (*models.Payment, error)
	GetLatestByTransactionHash(txHash string) (*models.Payment, error)
	MergeMetadata(id uint, patch models.JSON) error
	ListByUserID(userID uint, page, pageSize int) ([]models.Payment, int64, error)
	ListAdmin(filter PaymentListFilter) ([]models.Payment, int64, error)
	WithTx(tx *gorm.DB) *GormPaymentRepository
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建结算仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Create 创建结算记录
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// Update 更新结算记录
func (r *GormPaymentRepository) Update(payment *models.Payment) error {
	return r.db.Save(payment).Error
}

// GetByID 根据 ID 获取结算记录
func (r *GormPaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetBySessionID 根据会话 ID 获取结算记录
func (r *GormPaymentRepository) GetBySessionID(sessionID string) (*models.Payment, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil
	}
	var payment models.Payment
	result := r.db.Where("session_id = ?", sessionID).Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetLatestByTransactionHash 根据链上交易哈希获取最新结算记录
func (r *GormPaymentRepository) GetLatestByTransactionHash(txHash string) (*models.Payment, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, nil
	}
	var payment models.Payment
	result := r.db.Where("transaction_hash = ?", txHash).Order("id desc").Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// MergeMetadata 字段级合并结算元数据（整体覆盖会丢并发写入的字段）
func (r *GormPaymentRepository) MergeMetadata(id uint, patch models.JSON) error {
	if id == 0 || len(patch) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, id).Error; err != nil {
			return err
		}
		merged := make(models.JSON, len(payment.Metadata)+len(patch))
		for k, v := range payment.Metadata {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		return tx.Model(&payment).Update("metadata", merged).Error
	})
}

// ListByUserID 获取用户结算记录
func (r *GormPaymentRepository) ListByUserID(userID uint, page, pageSize int) ([]models.Payment, int64, error) {
	return r.ListAdmin(PaymentListFilter{Page: page, PageSize: pageSize, UserID: userID})
}

// ListAdmin 管理端结算列表
func (r *GormPaymentRepository) ListAdmin(filter PaymentListFilter) ([]models.Payment, int64, error) {
	query := r.db.Model(&models.Payment{})

	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Method != "" {
		query = query.Where("method = ?", filter.Method)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Currency != "" {
		query = query.Where("currency = ?", filter.Currency)
	}
	if filter.ProviderRef != "" {
		// 提供方流水号存储在元数据 JSON 中，按方言提取后精确匹配
		query = query.Where(fmt.Sprintf("%s = ?", jsonTextExpr(r.db, "metadata", "provider_ref")), filter.ProviderRef)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var payments []models.Payment
	if err := query.Order("id desc").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}
