package service

import (
	"fmt"
	"strings"

	"github.com/paymind-next/internal/config"
	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/models"

	"github.com/shopspring/decimal"
)

// PolicyService 交易策略闸门。
// 在任何资源创建之前执行，拦截直接返回用户可读原因。
type PolicyService struct {
	maxSingleAmount  decimal.Decimal
	blockedCountries map[string]struct{}
}

// NewPolicyService 创建策略服务
func NewPolicyService(cfg config.RiskConfig) *PolicyService {
	maxSingle, err := decimal.NewFromString(strings.TrimSpace(cfg.MaxSingleAmount))
	if err != nil || !maxSingle.IsPositive() {
		maxSingle = decimal.NewFromInt(100000)
	}
	blocked := make(map[string]struct{}, len(cfg.BlockedCountries))
	for _, country := range cfg.BlockedCountries {
		country = strings.ToUpper(strings.TrimSpace(country))
		if country != "" {
			blocked[country] = struct{}{}
		}
	}
	return &PolicyService{
		maxSingleAmount:  maxSingle,
		blockedCountries: blocked,
	}
}

// ValidateTransactionInput 策略校验输入
type ValidateTransactionInput struct {
	UserID      uint
	Amount      models.Money
	Currency    string
	UserCountry string
}

// ValidateTransaction 校验交易是否允许发起
func (s *PolicyService) ValidateTransaction(input ValidateTransactionInput) error {
	if !input.Amount.IsPositive() {
		return fmt.Errorf("%w: 金额必须大于 0", ErrPolicyViolation)
	}
	if strings.TrimSpace(input.Currency) == "" {
		return fmt.Errorf("%w: 缺少币种", ErrPolicyViolation)
	}
	if input.Amount.GreaterThan(s.maxSingleAmount) {
		logger.Warnw("policy_amount_exceeded",
			"user_id", input.UserID,
			"amount", input.Amount.String(),
			"max_single_amount", s.maxSingleAmount.String(),
		)
		return fmt.Errorf("%w: 单笔金额超出上限 %s", ErrPolicyViolation, s.maxSingleAmount.String())
	}
	if country := strings.ToUpper(strings.TrimSpace(input.UserCountry)); country != "" {
		if _, blocked := s.blockedCountries[country]; blocked {
			logger.Warnw("policy_country_blocked", "user_id", input.UserID, "country", country)
			return fmt.Errorf("%w: 暂不支持该地区交易", ErrPolicyViolation)
		}
	}
	return nil
}
