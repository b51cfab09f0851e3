package service

import (
	"strings"

	"github.com/paymind-next/internal/config"
	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/models"

	"github.com/shopspring/decimal"
)

// RiskService 风控评估。
// 评分模型是外部协作方的职责，这里只做金额阈值与上下文标记的
// 确定性打分，reject 硬拦截，review 记录不阻断。
type RiskService struct {
	enabled         bool
	reviewThreshold decimal.Decimal
	rejectThreshold decimal.Decimal
}

// NewRiskService 创建风控服务
func NewRiskService(cfg config.RiskConfig) *RiskService {
	review, err := decimal.NewFromString(strings.TrimSpace(cfg.ReviewThreshold))
	if err != nil || !review.IsPositive() {
		review = decimal.NewFromInt(5000)
	}
	reject, err := decimal.NewFromString(strings.TrimSpace(cfg.RejectThreshold))
	if err != nil || !reject.IsPositive() {
		reject = decimal.NewFromInt(50000)
	}
	return &RiskService{
		enabled:         cfg.Enabled,
		reviewThreshold: review,
		rejectThreshold: reject,
	}
}

// RiskInput 风控评估输入
type RiskInput struct {
	UserID        uint
	Amount        models.Money
	Currency      string
	Method        string
	IsCrossBorder bool
	UserKYCLevel  string
}

// RiskAssessment 风控评估结果
type RiskAssessment struct {
	Score    int      `json:"score"`
	Decision string   `json:"decision"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Assess 评估交易风险
func (s *RiskService) Assess(input RiskInput) *RiskAssessment {
	assessment := &RiskAssessment{Decision: constants.RiskDecisionApprove}
	if !s.enabled {
		return assessment
	}

	if input.Amount.GreaterThanOrEqual(s.rejectThreshold) {
		assessment.Score += 70
		assessment.Reasons = append(assessment.Reasons, "amount_over_reject_threshold")
	} else if input.Amount.GreaterThanOrEqual(s.reviewThreshold) {
		assessment.Score += 40
		assessment.Reasons = append(assessment.Reasons, "amount_over_review_threshold")
	}
	if input.UserID == 0 {
		assessment.Score += 20
		assessment.Reasons = append(assessment.Reasons, "anonymous_user")
	}
	if input.IsCrossBorder {
		assessment.Score += 10
		assessment.Reasons = append(assessment.Reasons, "cross_border")
	}
	if input.UserKYCLevel == constants.KYCLevelNone && input.Amount.GreaterThanOrEqual(s.reviewThreshold) {
		assessment.Score += 10
		assessment.Reasons = append(assessment.Reasons, "large_amount_without_kyc")
	}

	switch {
	case assessment.Score >= 70:
		assessment.Decision = constants.RiskDecisionReject
	case assessment.Score >= 40:
		assessment.Decision = constants.RiskDecisionReview
	}

	if assessment.Decision != constants.RiskDecisionApprove {
		logger.Warnw("risk_assessment_flagged",
			"user_id", input.UserID,
			"amount", input.Amount.String(),
			"method", input.Method,
			"score", assessment.Score,
			"decision", assessment.Decision,
			"reasons", assessment.Reasons,
		)
	}
	return assessment
}
