package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paymind-next/internal/cardproc"
	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/fx"
	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/ramp"
	"github.com/paymind-next/internal/relayer"
	"github.com/paymind-next/internal/repository"
	"github.com/paymind-next/internal/routing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 渠道费率估算表（仅展示，不参与路由评分）
var channelFeeRates = map[string]float64{
	constants.MethodCard:     0.032, // 2.9% + 固定费用摊销
	constants.MethodWallet:   0.0006,
	constants.MethodX402:     0.0006,
	constants.MethodMultisig: 0.001,
	constants.MethodRamp:     0.015,
}

// PaymentService 结算编排。
// 状态机：PENDING → PROCESSING → COMPLETED/FAILED，终态不可逆。
// 闸门失败在落库前返回；执行失败落 FAILED 记录后透出；
// 佣金、推广、托管注资为尽力而为，不影响已确定的结算结果。
type PaymentService struct {
	paymentRepo repository.PaymentRepository
	sessionRepo repository.ProviderSessionRepository
	registry    *routing.Registry
	fxManager   *fx.Manager
	policy      *PolicyService
	risk        *RiskService
	quota       *QuotaService
	escrow      *EscrowService
	commission  *CommissionService
	rampManager *ramp.Manager
	cardClient  *cardproc.Client
	relayer     *relayer.Client

	sessionExpire time.Duration
	now           func() time.Time
}

// PaymentServiceDeps 结算编排依赖
type PaymentServiceDeps struct {
	PaymentRepo   repository.PaymentRepository
	SessionRepo   repository.ProviderSessionRepository
	Registry      *routing.Registry
	FXManager     *fx.Manager
	Policy        *PolicyService
	Risk          *RiskService
	Quota         *QuotaService
	Escrow        *EscrowService
	Commission    *CommissionService
	RampManager   *ramp.Manager
	CardClient    *cardproc.Client
	Relayer       *relayer.Client
	SessionExpire time.Duration
}

// NewPaymentService 创建结算编排服务
func NewPaymentService(deps PaymentServiceDeps) *PaymentService {
	sessionExpire := deps.SessionExpire
	if sessionExpire <= 0 {
		sessionExpire = 30 * time.Minute
	}
	return &PaymentService{
		paymentRepo:   deps.PaymentRepo,
		sessionRepo:   deps.SessionRepo,
		registry:      deps.Registry,
		fxManager:     deps.FXManager,
		policy:        deps.Policy,
		risk:          deps.Risk,
		quota:         deps.Quota,
		escrow:        deps.Escrow,
		commission:    deps.Commission,
		rampManager:   deps.RampManager,
		cardClient:    deps.CardClient,
		relayer:       deps.Relayer,
		sessionExpire: sessionExpire,
		now:           time.Now,
	}
}

// ProcessPaymentInput 结算请求
type ProcessPaymentInput struct {
	UserID      uint
	Amount      models.Money
	Currency    string
	Method      string
	Description string

	// 路由上下文
	IsOnChain             bool
	UserKYCLevel          string
	IsCrossBorder         bool
	UserCountry           string
	MerchantCountry       string
	UserCurrency          string
	MerchantCurrency      string
	MerchantPaymentConfig string
	WalletConnected       *bool
	QuickPayEligible      bool
	Scenario              string

	// 执行参数
	LockID        string
	TxHash        string
	WalletAddress string
	ToAddress     string
	Signature     string

	// 托管与分成
	OrderType             string
	Category              string
	MerchantEscrowEnabled bool
	EscrowOverride        *bool
	RefUserID             uint

	Metadata models.JSON
}

// ProcessPayment 结算主流程：
// 策略闸门 → 渠道解析 → 托管开立 → 风控闸门 → 落库 → 执行 → 尽力而为补录。
func (s *PaymentService) ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*models.Payment, error) {
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	input.Currency = currency

	// 1. 策略闸门：任何资源创建之前
	if err := s.policy.ValidateTransaction(ValidateTransactionInput{
		UserID:      input.UserID,
		Amount:      input.Amount,
		Currency:    currency,
		UserCountry: input.UserCountry,
	}); err != nil {
		return nil, err
	}

	// 2. 锁价校验：锁定的经济条款必须仍然有效
	var rateLock *fx.RateLock
	if input.LockID != "" {
		valid, lock := s.fxManager.ValidateRateLock(input.LockID)
		if lock == nil {
			return nil, fmt.Errorf("%w: %s", ErrRateLockNotFound, input.LockID)
		}
		if !valid {
			return nil, fmt.Errorf("%w: %s", ErrRateLockExpired, input.LockID)
		}
		rateLock = lock
	}

	// 3. 渠道解析
	method, decision, grant, err := s.resolveMethod(input)
	if err != nil {
		return nil, err
	}

	// 4. 托管判定：需要时先开立，落库后回填关联
	escrowRef := ""
	escrowStatus := constants.EscrowStatusNone
	if s.escrow.ShouldUseEscrow(EscrowPolicyInput{
		OrderType:             input.OrderType,
		Category:              input.Category,
		MerchantEscrowEnabled: input.MerchantEscrowEnabled,
		Amount:                input.Amount,
		Override:              input.EscrowOverride,
	}) {
		account, err := s.escrow.OpenHold(OpenHoldInput{
			Amount:    input.Amount,
			Currency:  currency,
			OrderType: input.OrderType,
		})
		if err != nil {
			return nil, err
		}
		escrowRef = account.EscrowRef
		escrowStatus = constants.EscrowStatusHeld
	}

	// 5. 风控闸门：reject 中止，review 只记录
	assessment := s.risk.Assess(RiskInput{
		UserID:        input.UserID,
		Amount:        input.Amount,
		Currency:      currency,
		Method:        method,
		IsCrossBorder: input.IsCrossBorder,
		UserKYCLevel:  input.UserKYCLevel,
	})
	if assessment.Decision == constants.RiskDecisionReject {
		return nil, fmt.Errorf("%w: score=%d reasons=%s", ErrRiskRejected, assessment.Score, strings.Join(assessment.Reasons, ","))
	}

	// 6. 落库：元数据快照路由决策、锁价与风控结果的副本
	payment := &models.Payment{
		UserID:       input.UserID,
		SessionID:    uuid.NewString(),
		Amount:       input.Amount,
		Currency:     currency,
		Method:       method,
		Status:       constants.PaymentStatusProcessing,
		EscrowStatus: escrowStatus,
		EscrowRef:    escrowRef,
		Metadata:     s.buildMetadataSnapshot(input, decision, rateLock, assessment, grant),
	}
	if err := s.paymentRepo.Create(payment); err != nil {
		return nil, err
	}
	if escrowRef != "" {
		if err := s.escrow.AttachPayment(escrowRef, payment.ID); err != nil {
			logger.Warnw("escrow_attach_payment_failed", "escrow_ref", escrowRef, "payment_id", payment.ID, "error", err)
		}
	}

	// 7. 执行
	execErr := s.execute(ctx, payment, input, grant)
	if err := s.paymentRepo.Update(payment); err != nil {
		logger.Errorw("payment_update_failed", "payment_id", payment.ID, "error", err)
	}
	if execErr != nil {
		return payment, execErr
	}

	// 8. 尽力而为补录
	s.postProcess(payment, input.OrderType, input.RefUserID)

	logger.Infow("payment_processed",
		"payment_id", payment.ID,
		"session_id", payment.SessionID,
		"user_id", payment.UserID,
		"method", payment.Method,
		"status", payment.Status,
		"amount", payment.Amount.String(),
		"currency", payment.Currency,
	)
	return payment, nil
}

// resolveMethod 渠道解析：显式渠道直接使用；链上请求优先尝试授权扣款；
// 否则走路由，路由失败按币种分流兜底。
func (s *PaymentService) resolveMethod(input ProcessPaymentInput) (string, *routing.Decision, *models.QuotaGrant, error) {
	if input.Method != "" {
		if input.Method == constants.MethodX402 {
			grant, err := s.quota.Authorize(input.UserID, input.Amount)
			if err != nil {
				return "", nil, nil, err
			}
			return constants.MethodX402, nil, grant, nil
		}
		return input.Method, nil, nil, nil
	}

	// 授权扣款快速通道：链上请求直接尝试；
	// 普通请求在 x402 渠道可结算该币种时同样先做额度匹配
	if s.quotaFastPathEligible(input) {
		grant, err := s.quota.Authorize(input.UserID, input.Amount)
		if err == nil {
			return constants.MethodX402, nil, grant, nil
		}
		logger.Debugw("quota_fast_path_unavailable", "user_id", input.UserID, "reason", err.Error())
	}

	decision, err := s.registry.SelectBestChannel(input.Amount.Decimal, input.Currency, input.IsOnChain, &routing.Context{
		Amount:                input.Amount.Decimal,
		Currency:              input.Currency,
		IsOnChain:             input.IsOnChain,
		UserKYCLevel:          input.UserKYCLevel,
		IsCrossBorder:         input.IsCrossBorder,
		UserCountry:           input.UserCountry,
		MerchantCountry:       input.MerchantCountry,
		UserCurrency:          strings.ToUpper(strings.TrimSpace(input.UserCurrency)),
		MerchantCurrency:      strings.ToUpper(strings.TrimSpace(input.MerchantCurrency)),
		MerchantPaymentConfig: input.MerchantPaymentConfig,
		WalletConnected:       input.WalletConnected,
		QuickPayEligible:      input.QuickPayEligible,
		Scenario:              input.Scenario,
	})
	if err != nil {
		// 路由兜底：法币走出入金通道，数字货币走钱包
		fallback := constants.MethodWallet
		if constants.IsFiatCurrency(input.Currency) {
			fallback = constants.MethodRamp
		}
		logger.Warnw("routing_failed_using_fallback",
			"user_id", input.UserID,
			"currency", input.Currency,
			"fallback", fallback,
			"error", err,
		)
		return fallback, nil, nil, nil
	}
	return decision.RecommendedMethod, decision, nil, nil
}

// quotaFastPathEligible 判定是否先尝试已授权额度。
// 非链上请求要求 x402 渠道可用且支持该币种，避免把法币请求推上链。
func (s *PaymentService) quotaFastPathEligible(input ProcessPaymentInput) bool {
	if input.IsOnChain {
		return true
	}
	channel, ok := s.registry.Get(constants.MethodX402)
	if !ok {
		return false
	}
	return channel.Available && channel.SupportsCurrency(input.Currency)
}

func (s *PaymentService) buildMetadataSnapshot(input ProcessPaymentInput, decision *routing.Decision, rateLock *fx.RateLock, assessment *RiskAssessment, grant *models.QuotaGrant) models.JSON {
	metadata := make(models.JSON, len(input.Metadata)+8)
	for k, v := range input.Metadata {
		metadata[k] = v
	}
	if input.OrderType != "" {
		metadata["order_type"] = input.OrderType
	}
	if input.RefUserID != 0 {
		metadata["ref_user_id"] = input.RefUserID
	}
	if decision != nil {
		metadata["routing"] = models.JSON{
			"recommended_method": decision.RecommendedMethod,
			"reason":             decision.Reason,
			"scenario_type":      decision.ScenarioType,
			"flow_type":          decision.FlowType,
			"requires_kyc":       decision.RequiresKYC,
		}
	}
	if rateLock != nil {
		metadata["rate_lock"] = models.JSON{
			"lock_id":          rateLock.LockID,
			"from":             rateLock.From,
			"to":               rateLock.To,
			"rate":             rateLock.Rate,
			"converted_amount": rateLock.ConvertedAmount.String(),
			"expires_at":       rateLock.ExpiresAt,
		}
	}
	if assessment != nil {
		metadata["risk"] = models.JSON{
			"score":    assessment.Score,
			"decision": assessment.Decision,
			"reasons":  assessment.Reasons,
		}
	}
	if grant != nil {
		metadata["quota_grant_id"] = grant.ID
	}
	return metadata
}

// execute 按渠道分发执行，各路径独立决定终态
func (s *PaymentService) execute(ctx context.Context, payment *models.Payment, input ProcessPaymentInput, grant *models.QuotaGrant) error {
	switch payment.Method {
	case constants.MethodCard:
		return s.executeCard(ctx, payment, input)
	case constants.MethodWallet:
		return s.executeWallet(payment, input)
	case constants.MethodX402:
		return s.executeX402(ctx, payment, input, grant)
	case constants.MethodMultisig:
		// 多签提案由链上钱包侧推进，等待确认
		payment.Status = constants.PaymentStatusPending
		payment.Metadata["multisig_proposal_id"] = fmt.Sprintf("msig_%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
		return nil
	case constants.MethodRamp:
		return s.executeRamp(ctx, payment, input)
	default:
		payment.Status = constants.PaymentStatusFailed
		return fmt.Errorf("%w: unknown method %s", ErrProviderExecutionFailed, payment.Method)
	}
}

func (s *PaymentService) executeCard(ctx context.Context, payment *models.Payment, input ProcessPaymentInput) error {
	checkout, err := s.cardClient.CreateCheckout(ctx, cardproc.CheckoutInput{
		SessionRef:  payment.SessionID,
		PaymentID:   uint64(payment.ID),
		Amount:      payment.Amount.Decimal,
		Currency:    payment.Currency,
		Description: input.Description,
	})
	if err != nil {
		payment.Status = constants.PaymentStatusFailed
		payment.Metadata["card_error"] = err.Error()
		return fmt.Errorf("%w: %v", ErrProviderExecutionFailed, err)
	}
	payment.Status = constants.PaymentStatusProcessing
	payment.Metadata["checkout_url"] = checkout.URL
	payment.Metadata["provider_session_id"] = checkout.ProviderSessionID
	return nil
}

// executeWallet 钱包转账由客户端在链上完成。
// 带可信哈希直接完成，否则等待客户端转账后回报。
func (s *PaymentService) executeWallet(payment *models.Payment, input ProcessPaymentInput) error {
	if input.TxHash != "" {
		s.markCompleted(payment, input.TxHash)
		return nil
	}
	payment.Status = constants.PaymentStatusPending
	payment.Metadata["awaiting_transfer"] = true
	return nil
}

func (s *PaymentService) executeX402(ctx context.Context, payment *models.Payment, input ProcessPaymentInput, grant *models.QuotaGrant) error {
	if grant != nil {
		if _, err := s.quota.RecordUsage(grant.ID, payment.Amount); err != nil {
			logger.Warnw("quota_usage_record_failed", "grant_id", grant.ID, "payment_id", payment.ID, "error", err)
		}
	}

	// 无签名时留在队列等待批量执行
	if input.Signature == "" {
		payment.Status = constants.PaymentStatusProcessing
		payment.Metadata["awaiting_signature"] = true
		return nil
	}

	authRef := ""
	if grant != nil {
		authRef = fmt.Sprintf("%d", grant.ID)
	}
	result, err := s.relayer.SubmitTransfer(ctx, relayer.TransferRequest{
		SessionID:   payment.SessionID,
		From:        input.WalletAddress,
		To:          input.ToAddress,
		Amount:      payment.Amount.Decimal,
		Currency:    payment.Currency,
		Signature:   input.Signature,
		AuthRef:     authRef,
		Description: input.Description,
	})
	if err != nil {
		payment.Status = constants.PaymentStatusFailed
		payment.Metadata["relayer_error"] = err.Error()
		return fmt.Errorf("%w: %v", ErrProviderExecutionFailed, err)
	}
	s.markCompleted(payment, result.TxHash)
	return nil
}

func (s *PaymentService) executeRamp(ctx context.Context, payment *models.Payment, input ProcessPaymentInput) error {
	toCurrency := "USDC"
	quote, err := s.rampManager.GetBestQuote(ctx, payment.Amount.InexactFloat64(), payment.Currency, toCurrency)
	if err != nil {
		payment.Status = constants.PaymentStatusFailed
		payment.Metadata["ramp_error"] = err.Error()
		return fmt.Errorf("%w: %v", ErrProviderExecutionFailed, err)
	}

	result, providerID, err := s.rampManager.ExecuteOnRampWithFailover(ctx, ramp.OnRampParams{
		UserID:        uint64(input.UserID),
		Amount:        payment.Amount.InexactFloat64(),
		FromCurrency:  payment.Currency,
		ToCurrency:    toCurrency,
		WalletAddress: input.WalletAddress,
		OrderID:       payment.SessionID,
	})
	if err != nil {
		payment.Status = constants.PaymentStatusFailed
		payment.Metadata["ramp_error"] = err.Error()
		return fmt.Errorf("%w: %v", ErrProviderExecutionFailed, err)
	}

	expiresAt := s.now().Add(s.sessionExpire)
	session := &models.ProviderSession{
		SessionID:  payment.SessionID,
		PaymentID:  payment.ID,
		ProviderID: providerID,
		Direction:  constants.RampDirectionOnRamp,
		Quote: models.JSON{
			"quoted_provider":  quote.ProviderID,
			"rate":             quote.Rate,
			"fee":              quote.Fee,
			"estimated_amount": quote.EstimatedAmount,
			"expires_at":       quote.ExpiresAt,
		},
		LockID:      input.LockID,
		Status:      constants.SessionStatusPending,
		ProviderRef: result.TransactionID,
		WidgetURL:   result.WidgetURL,
		ExpiresAt:   &expiresAt,
	}
	if result.Status == constants.SessionStatusCompleted {
		now := s.now()
		session.Status = constants.SessionStatusCompleted
		session.CompletedAt = &now
	}
	if err := s.sessionRepo.Create(session); err != nil {
		payment.Status = constants.PaymentStatusFailed
		return err
	}

	payment.Metadata["ramp_provider"] = providerID
	payment.Metadata["widget_url"] = result.WidgetURL
	if session.Status == constants.SessionStatusCompleted {
		s.markCompleted(payment, result.TransactionID)
	} else {
		payment.Status = constants.PaymentStatusProcessing
	}
	return nil
}

func (s *PaymentService) markCompleted(payment *models.Payment, txHash string) {
	now := s.now()
	payment.Status = constants.PaymentStatusCompleted
	payment.TransactionHash = txHash
	payment.CompletedAt = &now
}

// postProcess 尽力而为补录：佣金、推广分成、托管注资。
// 任何失败只记日志，不改变已确定的结算结果。
func (s *PaymentService) postProcess(payment *models.Payment, orderType string, refUserID uint) {
	if payment.Status != constants.PaymentStatusCompleted && payment.Status != constants.PaymentStatusProcessing {
		return
	}

	if _, err := s.commission.RecordPlatformCommission(payment, orderType); err != nil {
		logger.Warnw("commission_record_failed", "payment_id", payment.ID, "error", err)
	}

	if payment.Status == constants.PaymentStatusCompleted {
		if _, err := s.commission.RecordReferralCommission(payment, refUserID); err != nil {
			logger.Warnw("referral_record_failed", "payment_id", payment.ID, "ref_user_id", refUserID, "error", err)
		}
	}

	if payment.EscrowRef != "" && payment.Status == constants.PaymentStatusCompleted {
		account, err := s.escrow.Fund(payment.EscrowRef)
		if err != nil {
			logger.Errorw("escrow_fund_failed", "escrow_ref", payment.EscrowRef, "payment_id", payment.ID, "error", err)
			return
		}
		if account.Status != payment.EscrowStatus {
			payment.EscrowStatus = account.Status
			if err := s.paymentRepo.Update(payment); err != nil {
				logger.Warnw("payment_escrow_status_update_failed", "payment_id", payment.ID, "error", err)
			}
		}
	}
}

// RoutingPreview 路由预览结果
type RoutingPreview struct {
	Decision     *routing.Decision          `json:"decision"`
	FeeEstimates map[string]decimal.Decimal `json:"fee_estimates"`
}

// GetPaymentRouting 路由预览：返回决策与各可行渠道的费用估算
func (s *PaymentService) GetPaymentRouting(input ProcessPaymentInput) (*RoutingPreview, error) {
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	decision, err := s.registry.SelectBestChannel(input.Amount.Decimal, currency, input.IsOnChain, &routing.Context{
		Amount:                input.Amount.Decimal,
		Currency:              currency,
		IsOnChain:             input.IsOnChain,
		UserKYCLevel:          input.UserKYCLevel,
		IsCrossBorder:         input.IsCrossBorder,
		UserCountry:           input.UserCountry,
		MerchantCountry:       input.MerchantCountry,
		UserCurrency:          strings.ToUpper(strings.TrimSpace(input.UserCurrency)),
		MerchantCurrency:      strings.ToUpper(strings.TrimSpace(input.MerchantCurrency)),
		MerchantPaymentConfig: input.MerchantPaymentConfig,
		WalletConnected:       input.WalletConnected,
		QuickPayEligible:      input.QuickPayEligible,
		Scenario:              input.Scenario,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoChannelAvailable, err)
	}

	estimates := make(map[string]decimal.Decimal, len(decision.Channels))
	for _, channel := range decision.Channels {
		estimates[channel.Method] = EstimateChannelFee(channel.Method, input.Amount.Decimal)
	}
	return &RoutingPreview{Decision: decision, FeeEstimates: estimates}, nil
}

// EstimateChannelFee 按渠道估算通道费用
func EstimateChannelFee(method string, amount decimal.Decimal) decimal.Decimal {
	rate, ok := channelFeeRates[method]
	if !ok {
		rate = 0.03
	}
	return amount.Mul(decimal.NewFromFloat(rate)).Round(2)
}

// GetPayment 根据 ID 获取结算记录
func (s *PaymentService) GetPayment(id uint) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// GetPaymentBySessionID 根据会话 ID 获取结算记录
func (s *PaymentService) GetPaymentBySessionID(sessionID string) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// ListUserPayments 获取用户结算记录
func (s *PaymentService) ListUserPayments(userID uint, page, pageSize int) ([]models.Payment, int64, error) {
	return s.paymentRepo.ListByUserID(userID, page, pageSize)
}

// ListPayments 管理端结算列表
func (s *PaymentService) ListPayments(filter repository.PaymentListFilter) ([]models.Payment, int64, error) {
	return s.paymentRepo.ListAdmin(filter)
}
