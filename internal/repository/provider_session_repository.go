package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/paymind-next/internal/models"

	"gorm.io/gorm"
)

// ProviderSessionRepository 提供方会话数据访问接口
type ProviderSessionRepository interface {
	Create(session *models.ProviderSession) error
	Update(session *models.ProviderSession) error
	GetBySessionID(sessionID string) (*models.ProviderSession, error)
	GetByID(id uint) (*models.ProviderSession, error)
	ListExpired(now time.Time, limit int) ([]models.ProviderSession, error)
	List(filter ProviderSessionListFilter) ([]models.ProviderSession, int64, error)
	WithTx(tx *gorm.DB) *GormProviderSessionRepository
}

// GormProviderSessionRepository GORM 实现
type GormProviderSessionRepository struct {
	db *gorm.DB
}

// NewProviderSessionRepository 创建提供方会话仓库
func NewProviderSessionRepository(db *gorm.DB) *GormProviderSessionRepository {
	return &GormProviderSessionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProviderSessionRepository) WithTx(tx *gorm.DB) *GormProviderSessionRepository {
	if tx == nil {
		return r
	}
	return &GormProviderSessionRepository{db: tx}
}

// Create 创建会话
func (r *GormProviderSessionRepository) Create(session *models.ProviderSession) error {
	return r.db.Create(session).Error
}

// Update 更新会话
func (r *GormProviderSessionRepository) Update(session *models.ProviderSession) error {
	return r.db.Save(session).Error
}

// GetBySessionID 根据会话 ID 获取会话
func (r *GormProviderSessionRepository) GetBySessionID(sessionID string) (*models.ProviderSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil
	}
	var session models.ProviderSession
	result := r.db.Where("session_id = ?", sessionID).Limit(1).Find(&session)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &session, nil
}

// GetByID 根据 ID 获取会话
func (r *GormProviderSessionRepository) GetByID(id uint) (*models.ProviderSession, error) {
	var session models.ProviderSession
	if err := r.db.First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// ListExpired 获取已超时且仍在 pending 的会话
func (r *GormProviderSessionRepository) ListExpired(now time.Time, limit int) ([]models.ProviderSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var sessions []models.ProviderSession
	err := r.db.
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", "pending", now).
		Order("id asc").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// List 会话列表
func (r *GormProviderSessionRepository) List(filter ProviderSessionListFilter) ([]models.ProviderSession, int64, error) {
	query := r.db.Model(&models.ProviderSession{})

	if filter.PaymentID != 0 {
		query = query.Where("payment_id = ?", filter.PaymentID)
	}
	if filter.ProviderID != "" {
		query = query.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var sessions []models.ProviderSession
	if err := query.Order("id desc").Find(&sessions).Error; err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}
