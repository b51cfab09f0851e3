package service

import (
	"fmt"
	"time"

	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/repository"
)

// QuotaService 自动扣款授权台账。
// 台账本身只记账，限额校验由调用方在记账前完成。
type QuotaService struct {
	grantRepo repository.QuotaGrantRepository
	now       func() time.Time
}

// NewQuotaService 创建授权台账服务
func NewQuotaService(grantRepo repository.QuotaGrantRepository) *QuotaService {
	return &QuotaService{
		grantRepo: grantRepo,
		now:       time.Now,
	}
}

// CreateAuthorizationInput 创建授权输入
type CreateAuthorizationInput struct {
	UserID       uint
	SingleLimit  models.Money
	DailyLimit   models.Money
	DurationDays int
}

// CreateAuthorization 创建授权，同一用户旧授权同时停用
func (s *QuotaService) CreateAuthorization(input CreateAuthorizationInput) (*models.QuotaGrant, error) {
	if input.UserID == 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrAmountInvalid)
	}
	if !input.SingleLimit.IsPositive() || !input.DailyLimit.IsPositive() {
		return nil, fmt.Errorf("%w: limits must be positive", ErrAmountInvalid)
	}
	if input.SingleLimit.GreaterThan(input.DailyLimit.Decimal) {
		return nil, fmt.Errorf("%w: single limit exceeds daily limit", ErrAmountInvalid)
	}
	durationDays := input.DurationDays
	if durationDays <= 0 {
		durationDays = 30
	}

	if existing, err := s.grantRepo.GetLatestActiveByUser(input.UserID); err != nil {
		return nil, err
	} else if existing != nil {
		if err := s.grantRepo.Deactivate(existing.ID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	grant := &models.QuotaGrant{
		UserID:      input.UserID,
		SingleLimit: input.SingleLimit,
		DailyLimit:  input.DailyLimit,
		IsActive:    true,
		ExpiresAt:   now.AddDate(0, 0, durationDays),
	}
	if err := s.grantRepo.Create(grant); err != nil {
		return nil, err
	}

	logger.Infow("quota_grant_created",
		"grant_id", grant.ID,
		"user_id", grant.UserID,
		"single_limit", grant.SingleLimit.String(),
		"daily_limit", grant.DailyLimit.String(),
		"expires_at", grant.ExpiresAt,
	)
	return grant, nil
}

// CheckAuthorization 查询用户当前生效授权。
// 过期授权读时停用（惰性过期，无后台清扫）。
func (s *QuotaService) CheckAuthorization(userID uint) (*models.QuotaGrant, error) {
	grant, err := s.grantRepo.GetLatestActiveByUser(userID)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, nil
	}
	if s.now().After(grant.ExpiresAt) {
		if err := s.grantRepo.Deactivate(grant.ID); err != nil {
			return nil, err
		}
		logger.Debugw("quota_grant_lazy_expired", "grant_id", grant.ID, "user_id", userID)
		return nil, nil
	}
	return grant, nil
}

// Authorize 校验金额是否在授权限额内，返回可用授权。
// 校验通过不代表占用额度，需另行 RecordUsage。
func (s *QuotaService) Authorize(userID uint, amount models.Money) (*models.QuotaGrant, error) {
	grant, err := s.CheckAuthorization(userID)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, ErrQuotaNotFound
	}
	if amount.GreaterThan(grant.SingleLimit.Decimal) {
		return nil, fmt.Errorf("%w: single limit %s", ErrQuotaExceeded, grant.SingleLimit.String())
	}
	usedToday := grant.UsedToday
	if !sameCalendarDay(s.now(), grant.CreatedAt) {
		// 当日用量以创建日期为基准判断是否过期
		usedToday = models.Money{}
	}
	if usedToday.Add(amount.Decimal).GreaterThan(grant.DailyLimit.Decimal) {
		return nil, fmt.Errorf("%w: daily limit %s, used %s", ErrQuotaExceeded, grant.DailyLimit.String(), usedToday.String())
	}
	return grant, nil
}

// RecordUsage 记录用量。行锁内先按创建日期判定是否重置当日用量，
// 再累加当日与累计用量，避免并发丢更新。
func (s *QuotaService) RecordUsage(grantID uint, amount models.Money) (*models.QuotaGrant, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: usage amount must be positive", ErrAmountInvalid)
	}
	now := s.now()
	return s.grantRepo.RecordUsage(grantID, func(grant *models.QuotaGrant) error {
		if !sameCalendarDay(now, grant.CreatedAt) {
			grant.UsedToday = models.Money{}
		}
		grant.UsedToday = models.NewMoneyFromDecimal(grant.UsedToday.Add(amount.Decimal))
		grant.TotalUsed = models.NewMoneyFromDecimal(grant.TotalUsed.Add(amount.Decimal))
		return nil
	})
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
