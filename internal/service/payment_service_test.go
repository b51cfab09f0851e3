package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/paymind-next/internal/cardproc"
	"github.com/paymind-next/internal/config"
	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/fx"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/ramp"
	"github.com/paymind-next/internal/ramp/mockpay"
	"github.com/paymind-next/internal/relayer"
	"github.com/paymind-next/internal/repository"
	"github.com/paymind-next/internal/routing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupPaymentServiceTest(t *testing.T) (*PaymentService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Payment{},
		&models.ProviderSession{},
		&models.EscrowAccount{},
		&models.QuotaGrant{},
		&models.CommissionRecord{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	svc := NewPaymentService(PaymentServiceDeps{
		PaymentRepo: repository.NewPaymentRepository(db),
		SessionRepo: repository.NewProviderSessionRepository(db),
		Registry:    routing.NewRegistry(routing.DefaultChannels()...),
		FXManager:   fx.NewManager(fx.ManagerOptions{}),
		Policy:      NewPolicyService(config.RiskConfig{MaxSingleAmount: "100000"}),
		Risk: NewRiskService(config.RiskConfig{
			Enabled:         true,
			ReviewThreshold: "5000",
			RejectThreshold: "50000",
		}),
		Quota: NewQuotaService(repository.NewQuotaGrantRepository(db)),
		Escrow: NewEscrowService(repository.NewEscrowRepository(db), nil, config.EscrowConfig{
			AutoReleaseHours:     72,
			LargeAmountThreshold: "1000000",
		}),
		Commission:    NewCommissionService(repository.NewCommissionRepository(db)),
		RampManager:   ramp.NewManager(mockpay.NewProvider()),
		CardClient:    cardproc.NewClient(cardproc.Config{}),
		Relayer:       relayer.NewClient(relayer.Config{}),
		SessionExpire: 30 * time.Minute,
	})
	return svc, db
}

func countPayments(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.Payment{}).Count(&count).Error; err != nil {
		t.Fatalf("count payments failed: %v", err)
	}
	return count
}

func TestProcessPaymentWalletWithTxHash(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)

	payment, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:    1,
		Amount:    money(200),
		Currency:  "usdc",
		Method:    constants.MethodWallet,
		TxHash:    "0xabc123",
		OrderType: "service",
		RefUserID: 9,
	})
	if err != nil {
		t.Fatalf("process payment failed: %v", err)
	}
	if payment.Status != constants.PaymentStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", payment.Status)
	}
	if payment.TransactionHash != "0xabc123" || payment.CompletedAt == nil {
		t.Fatalf("expected tx hash and completed_at set, got %+v", payment)
	}
	if payment.Currency != "USDC" {
		t.Fatalf("expected normalized currency, got %s", payment.Currency)
	}

	var records []models.CommissionRecord
	if err := db.Where("payment_id = ?", payment.ID).Find(&records).Error; err != nil {
		t.Fatalf("load commission records failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected platform + referral commission, got %d records", len(records))
	}
}

func TestProcessPaymentWalletWithoutTxHashStaysPending(t *testing.T) {
	svc, _ := setupPaymentServiceTest(t)

	payment, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:    1,
		Amount:    money(30),
		Currency:  "USDC",
		Method:    constants.MethodWallet,
		OrderType: "service",
	})
	if err != nil {
		t.Fatalf("process payment failed: %v", err)
	}
	if payment.Status != constants.PaymentStatusPending {
		t.Fatalf("expected PENDING awaiting transfer, got %s", payment.Status)
	}
	if payment.Metadata["awaiting_transfer"] != true {
		t.Fatalf("expected awaiting_transfer flag, got %+v", payment.Metadata)
	}
}

func TestProcessPaymentPolicyGateBeforePersist(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)

	_, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:   1,
		Amount:   money(0),
		Currency: "USD",
		Method:   constants.MethodWallet,
	})
	if !errors.Is(err, ErrPolicyViolation) {
		t.Fatalf("expected ErrPolicyViolation, got %v", err)
	}
	if countPayments(t, db) != 0 {
		t.Fatalf("expected no payment persisted on policy failure")
	}
}

func TestProcessPaymentRiskRejectBeforePersist(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)

	_, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:    1,
		Amount:    money(60000),
		Currency:  "USDC",
		Method:    constants.MethodWallet,
		TxHash:    "0xbig",
		OrderType: "service",
	})
	if !errors.Is(err, ErrRiskRejected) {
		t.Fatalf("expected ErrRiskRejected, got %v", err)
	}
	if countPayments(t, db) != 0 {
		t.Fatalf("expected no payment persisted on risk rejection")
	}
}

func TestProcessPaymentRateLock(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)

	_, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:   1,
		Amount:   money(100),
		Currency: "USDC",
		Method:   constants.MethodWallet,
		LockID:   "missing",
	})
	if !errors.Is(err, ErrRateLockNotFound) {
		t.Fatalf("expected ErrRateLockNotFound, got %v", err)
	}
	if countPayments(t, db) != 0 {
		t.Fatalf("expected no payment persisted on unknown lock")
	}

	lock, err := svc.fxManager.LockExchangeRate(context.Background(), "USD", "USDC", decimal.NewFromInt(100), 10*time.Minute)
	if err != nil {
		t.Fatalf("lock rate failed: %v", err)
	}
	payment, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:    1,
		Amount:    money(100),
		Currency:  "USDC",
		Method:    constants.MethodWallet,
		TxHash:    "0xlocked",
		LockID:    lock.LockID,
		OrderType: "service",
	})
	if err != nil {
		t.Fatalf("process payment with lock failed: %v", err)
	}
	if _, ok := payment.Metadata["rate_lock"]; !ok {
		t.Fatalf("expected rate_lock snapshot in metadata, got %+v", payment.Metadata)
	}
}

func TestProcessPaymentExplicitX402RequiresGrant(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)

	_, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:   7,
		Amount:   money(10),
		Currency: "USDC",
		Method:   constants.MethodX402,
	})
	if !errors.Is(err, ErrQuotaNotFound) {
		t.Fatalf("expected ErrQuotaNotFound, got %v", err)
	}
	if countPayments(t, db) != 0 {
		t.Fatalf("expected no payment persisted without grant")
	}
}

func TestProcessPaymentX402FastPath(t *testing.T) {
	svc, _ := setupPaymentServiceTest(t)

	grant, err := svc.quota.CreateAuthorization(CreateAuthorizationInput{
		UserID:      7,
		SingleLimit: money(1000),
		DailyLimit:  money(5000),
	})
	if err != nil {
		t.Fatalf("create grant failed: %v", err)
	}

	payment, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:    7,
		Amount:    money(50),
		Currency:  "USDC",
		IsOnChain: true,
		OrderType: "service",
	})
	if err != nil {
		t.Fatalf("process payment failed: %v", err)
	}
	if payment.Method != constants.MethodX402 {
		t.Fatalf("expected x402 fast path, got %s", payment.Method)
	}
	if payment.Status != constants.PaymentStatusProcessing || payment.Metadata["awaiting_signature"] != true {
		t.Fatalf("expected PROCESSING awaiting signature, got %+v", payment)
	}

	updated, err := svc.quota.CheckAuthorization(7)
	if err != nil {
		t.Fatalf("check authorization failed: %v", err)
	}
	if updated == nil || updated.ID != grant.ID {
		t.Fatalf("expected grant still active, got %+v", updated)
	}
	if !updated.UsedToday.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected used_today 50, got %s", updated.UsedToday.String())
	}
}

func TestProcessPaymentRoutingFallbackToRamp(t *testing.T) {
	svc, _ := setupPaymentServiceTest(t)

	// 金额低于银行卡下限且其余渠道不支持 USD，路由失败走入金兜底
	payment, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:    3,
		Amount:    models.NewMoneyFromDecimal(decimal.NewFromFloat(0.5)),
		Currency:  "USD",
		OrderType: "service",
	})
	if err != nil {
		t.Fatalf("process payment failed: %v", err)
	}
	if payment.Method != constants.MethodRamp {
		t.Fatalf("expected ramp fallback, got %s", payment.Method)
	}
	if payment.Status != constants.PaymentStatusCompleted {
		t.Fatalf("expected mockpay to settle immediately, got %s", payment.Status)
	}
	if payment.Metadata["ramp_provider"] != constants.ProviderMockpay {
		t.Fatalf("expected mockpay provider recorded, got %+v", payment.Metadata)
	}

	session, err := svc.GetProviderSession(payment.SessionID)
	if err != nil {
		t.Fatalf("get provider session failed: %v", err)
	}
	if session.Status != constants.SessionStatusCompleted || session.PaymentID != payment.ID {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestProcessPaymentCardFailurePersistsFailedRecord(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)

	// 收单通道未配置密钥，执行失败但记录须已落库
	payment, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:    5,
		Amount:    money(80),
		Currency:  "USD",
		Method:    constants.MethodCard,
		OrderType: "service",
	})
	if !errors.Is(err, ErrProviderExecutionFailed) {
		t.Fatalf("expected ErrProviderExecutionFailed, got %v", err)
	}
	if payment == nil || payment.Status != constants.PaymentStatusFailed {
		t.Fatalf("expected FAILED payment returned, got %+v", payment)
	}

	var stored models.Payment
	if err := db.First(&stored, payment.ID).Error; err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if stored.Status != constants.PaymentStatusFailed {
		t.Fatalf("expected FAILED persisted, got %s", stored.Status)
	}
}

func TestProcessPaymentEscrowFlow(t *testing.T) {
	svc, _ := setupPaymentServiceTest(t)

	payment, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:    2,
		Amount:    money(150),
		Currency:  "USDC",
		Method:    constants.MethodWallet,
		TxHash:    "0xescrow",
		OrderType: "physical",
	})
	if err != nil {
		t.Fatalf("process payment failed: %v", err)
	}
	if payment.EscrowRef == "" || payment.EscrowStatus != constants.EscrowStatusHeld {
		t.Fatalf("expected held escrow, got %+v", payment)
	}

	account, err := svc.escrow.GetByPaymentID(payment.ID)
	if err != nil {
		t.Fatalf("get escrow failed: %v", err)
	}
	if account.PaymentID != payment.ID || account.HeldAt == nil {
		t.Fatalf("expected funded escrow linked to payment, got %+v", account)
	}
}

func TestHandleProviderWebhook(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)

	payment := &models.Payment{
		UserID:    4,
		SessionID: "sess_onramp_1",
		Amount:    money(100),
		Currency:  "USD",
		Method:    constants.MethodRamp,
		Status:    constants.PaymentStatusProcessing,
		Metadata:  models.JSON{"order_type": "service"},
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	session := &models.ProviderSession{
		SessionID:  "sess_onramp_1",
		PaymentID:  payment.ID,
		ProviderID: constants.ProviderMockpay,
		Direction:  constants.RampDirectionOnRamp,
		Status:     constants.SessionStatusPending,
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	updated, err := svc.HandleProviderWebhook(ProviderWebhookInput{
		SessionID: "sess_onramp_1",
		Status:    constants.SessionStatusCompleted,
		TxHash:    "0xdead",
	})
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusCompleted || updated.TransactionHash != "0xdead" {
		t.Fatalf("expected completed payment, got %+v", updated)
	}

	// 重复回调幂等
	again, err := svc.HandleProviderWebhook(ProviderWebhookInput{
		SessionID: "sess_onramp_1",
		Status:    constants.SessionStatusCompleted,
		TxHash:    "0xother",
	})
	if err != nil {
		t.Fatalf("repeat webhook failed: %v", err)
	}
	if again.TransactionHash != "0xdead" {
		t.Fatalf("expected idempotent replay, got %+v", again)
	}

	if _, err := svc.HandleProviderWebhook(ProviderWebhookInput{SessionID: "sess_unknown", Status: constants.SessionStatusCompleted}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestHandleProviderWebhookFailure(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)

	payment := &models.Payment{
		UserID:    4,
		SessionID: "sess_onramp_2",
		Amount:    money(40),
		Currency:  "USD",
		Method:    constants.MethodRamp,
		Status:    constants.PaymentStatusProcessing,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	session := &models.ProviderSession{
		SessionID:  "sess_onramp_2",
		PaymentID:  payment.ID,
		ProviderID: constants.ProviderMockpay,
		Direction:  constants.RampDirectionOnRamp,
		Status:     constants.SessionStatusPending,
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	updated, err := svc.HandleProviderWebhook(ProviderWebhookInput{
		SessionID: "sess_onramp_2",
		Status:    constants.SessionStatusFailed,
	})
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusFailed {
		t.Fatalf("expected FAILED payment, got %s", updated.Status)
	}
}

func TestHandleCardWebhook(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)

	payment := &models.Payment{
		UserID:    6,
		SessionID: "sess_card_1",
		Amount:    money(120),
		Currency:  "USD",
		Method:    constants.MethodCard,
		Status:    constants.PaymentStatusProcessing,
		Metadata:  models.JSON{"order_type": "service", "ref_user_id": 9},
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	updated, err := svc.HandleCardWebhook(&cardproc.WebhookEvent{
		EventID:     "evt_1",
		SessionRef:  "sess_card_1",
		ProviderRef: "cs_123",
		Status:      cardproc.StatusSuccess,
	})
	if err != nil {
		t.Fatalf("handle card webhook failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusCompleted || updated.TransactionHash != "cs_123" {
		t.Fatalf("expected completed payment, got %+v", updated)
	}
	if updated.Metadata["card_event_id"] != "evt_1" {
		t.Fatalf("expected card_event_id recorded, got %+v", updated.Metadata)
	}

	var records []models.CommissionRecord
	if err := db.Where("payment_id = ?", payment.ID).Find(&records).Error; err != nil {
		t.Fatalf("load commission records failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected platform + referral commission, got %d", len(records))
	}

	// 终态后的重复回调是幂等空操作
	again, err := svc.HandleCardWebhook(&cardproc.WebhookEvent{
		EventID:    "evt_2",
		SessionRef: "sess_card_1",
		Status:     cardproc.StatusFailed,
	})
	if err != nil {
		t.Fatalf("repeat card webhook failed: %v", err)
	}
	if again.Status != constants.PaymentStatusCompleted {
		t.Fatalf("expected terminal status preserved, got %s", again.Status)
	}

	if _, err := svc.HandleCardWebhook(&cardproc.WebhookEvent{EventID: "evt_3", SessionRef: "sess_missing"}); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}

func TestSweepExpiredSessions(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)

	payment := &models.Payment{
		UserID:    8,
		SessionID: "sess_expired_1",
		Amount:    money(20),
		Currency:  "USD",
		Method:    constants.MethodRamp,
		Status:    constants.PaymentStatusProcessing,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	expiresAt := time.Now().Add(-time.Hour)
	session := &models.ProviderSession{
		SessionID:  "sess_expired_1",
		PaymentID:  payment.ID,
		ProviderID: constants.ProviderMockpay,
		Direction:  constants.RampDirectionOnRamp,
		Status:     constants.SessionStatusPending,
		ExpiresAt:  &expiresAt,
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	swept, err := svc.SweepExpiredSessions(10)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept session, got %d", swept)
	}

	stored, err := svc.GetProviderSession("sess_expired_1")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if stored.Status != constants.SessionStatusExpired {
		t.Fatalf("expected expired session, got %s", stored.Status)
	}
	reloaded, err := svc.GetPayment(payment.ID)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if reloaded.Status != constants.PaymentStatusFailed {
		t.Fatalf("expected FAILED payment after sweep, got %s", reloaded.Status)
	}
}

func TestProcessPaymentQuotaFastPathOffChain(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)

	quotaSvc := NewQuotaService(repository.NewQuotaGrantRepository(db))
	grant, err := quotaSvc.CreateAuthorization(CreateAuthorizationInput{
		UserID:      21,
		SingleLimit: money(100),
		DailyLimit:  money(500),
	})
	if err != nil {
		t.Fatalf("create authorization failed: %v", err)
	}

	// 普通稳定币请求也应先做额度匹配
	payment, err := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:   21,
		Amount:   money(30),
		Currency: "USDC",
	})
	if err != nil {
		t.Fatalf("process payment failed: %v", err)
	}
	if payment.Method != constants.MethodX402 {
		t.Fatalf("expected x402 via quota fast path, got %s", payment.Method)
	}
	if payment.Metadata["quota_grant_id"] != grant.ID {
		t.Fatalf("expected grant snapshot in metadata, got %v", payment.Metadata["quota_grant_id"])
	}

	updated, err := quotaSvc.CheckAuthorization(21)
	if err != nil {
		t.Fatalf("check authorization failed: %v", err)
	}
	if !updated.UsedToday.Equal(money(30).Decimal) {
		t.Fatalf("expected 30 used today, got %s", updated.UsedToday.String())
	}

	// 法币请求不走快速通道，x402 不支持该币种
	fiat, _ := svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		UserID:   21,
		Amount:   money(40),
		Currency: "USD",
	})
	if fiat == nil {
		t.Fatalf("expected fiat payment record")
	}
	if fiat.Method == constants.MethodX402 {
		t.Fatalf("fiat request must not take quota fast path")
	}
}

func TestGetPaymentRouting(t *testing.T) {
	svc, _ := setupPaymentServiceTest(t)

	// 默认渠道下钱包成本最低，成本项主导评分
	preview, err := svc.GetPaymentRouting(ProcessPaymentInput{
		UserID:    1,
		Amount:    money(50),
		Currency:  "usdc",
		IsOnChain: true,
	})
	if err != nil {
		t.Fatalf("get routing failed: %v", err)
	}
	if preview.Decision.RecommendedMethod != constants.MethodWallet {
		t.Fatalf("expected wallet recommendation on-chain, got %s", preview.Decision.RecommendedMethod)
	}
	fee, ok := preview.FeeEstimates[constants.MethodWallet]
	if !ok {
		t.Fatalf("expected fee estimate for recommended channel")
	}
	if !fee.Equal(EstimateChannelFee(constants.MethodWallet, decimal.NewFromInt(50))) {
		t.Fatalf("unexpected fee estimate %s", fee.String())
	}
	if _, ok := preview.FeeEstimates[constants.MethodX402]; !ok {
		t.Fatalf("expected fee estimate for every feasible channel")
	}
}

func TestGetPaymentRoutingWalletDisabled(t *testing.T) {
	registry := routing.NewRegistry(routing.DefaultChannels()...)
	if !registry.SetAvailable(constants.MethodWallet, false) {
		t.Fatalf("disable wallet channel failed")
	}
	svc := NewPaymentService(PaymentServiceDeps{Registry: registry})

	preview, err := svc.GetPaymentRouting(ProcessPaymentInput{
		UserID:    1,
		Amount:    money(50),
		Currency:  "USDC",
		IsOnChain: true,
	})
	if err != nil {
		t.Fatalf("get routing failed: %v", err)
	}
	if preview.Decision.RecommendedMethod != constants.MethodX402 {
		t.Fatalf("expected x402 recommendation with wallet disabled, got %s", preview.Decision.RecommendedMethod)
	}
	if _, ok := preview.FeeEstimates[constants.MethodWallet]; ok {
		t.Fatalf("disabled channel must not appear in estimates")
	}
}

func TestEstimateChannelFee(t *testing.T) {
	if got := EstimateChannelFee(constants.MethodCard, decimal.NewFromInt(1000)); !got.Equal(decimal.NewFromInt(32)) {
		t.Fatalf("expected card fee 32, got %s", got.String())
	}
	if got := EstimateChannelFee("unknown", decimal.NewFromInt(100)); !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected default fee 3, got %s", got.String())
	}
}
