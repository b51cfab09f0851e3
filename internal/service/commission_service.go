package service

import (
	"strings"

	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/repository"

	"github.com/shopspring/decimal"
)

// 佣金记录类型
const (
	CommissionKindPlatform = "platform"
	CommissionKindReferral = "referral"
)

// 推广分成固定费率
var referralRate = decimal.NewFromFloat(0.01)

// CommissionService 平台佣金与推广分成补录。
// 只在结算成功后的尽力而为阶段调用，失败由调用方记日志吞掉。
type CommissionService struct {
	commissionRepo repository.CommissionRepository
}

// NewCommissionService 创建佣金服务
func NewCommissionService(commissionRepo repository.CommissionRepository) *CommissionService {
	return &CommissionService{commissionRepo: commissionRepo}
}

// PlatformRate 按订单类型取平台费率。
// 实体商品 0.5%，服务类 1.0%，NFT 0.5%，默认按虚拟资产 0.5%。
func (s *CommissionService) PlatformRate(orderType string) decimal.Decimal {
	switch strings.ToLower(strings.TrimSpace(orderType)) {
	case "service":
		return decimal.NewFromFloat(0.01)
	default:
		return decimal.NewFromFloat(0.005)
	}
}

// RecordPlatformCommission 记录平台佣金
func (s *CommissionService) RecordPlatformCommission(payment *models.Payment, orderType string) (*models.CommissionRecord, error) {
	rate := s.PlatformRate(orderType)
	record := &models.CommissionRecord{
		PaymentID: payment.ID,
		Kind:      CommissionKindPlatform,
		Amount:    models.NewMoneyFromDecimal(payment.Amount.Mul(rate)),
		Currency:  payment.Currency,
		Rate:      rate.String(),
	}
	if err := s.commissionRepo.Create(record); err != nil {
		return nil, err
	}
	logger.Infow("commission_recorded",
		"payment_id", payment.ID,
		"kind", record.Kind,
		"amount", record.Amount.String(),
		"rate", record.Rate,
	)
	return record, nil
}

// RecordReferralCommission 记录推广分成，无推荐人时直接跳过
func (s *CommissionService) RecordReferralCommission(payment *models.Payment, refUserID uint) (*models.CommissionRecord, error) {
	if refUserID == 0 {
		return nil, nil
	}
	record := &models.CommissionRecord{
		PaymentID: payment.ID,
		Kind:      CommissionKindReferral,
		Amount:    models.NewMoneyFromDecimal(payment.Amount.Mul(referralRate)),
		Currency:  payment.Currency,
		Rate:      referralRate.String(),
		RefUserID: refUserID,
	}
	if err := s.commissionRepo.Create(record); err != nil {
		return nil, err
	}
	logger.Infow("commission_recorded",
		"payment_id", payment.ID,
		"kind", record.Kind,
		"amount", record.Amount.String(),
		"ref_user_id", refUserID,
	)
	return record, nil
}

// ListByPaymentID 获取结算记录下的佣金记录
func (s *CommissionService) ListByPaymentID(paymentID uint) ([]models.CommissionRecord, error) {
	return s.commissionRepo.ListByPaymentID(paymentID)
}
