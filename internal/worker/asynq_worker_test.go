package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/paymind-next/internal/config"
	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/provider"
	"github.com/paymind-next/internal/queue"
	"github.com/paymind-next/internal/repository"
	"github.com/paymind-next/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupConsumerTest(t *testing.T) (*Consumer, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Payment{}, &models.ProviderSession{}, &models.EscrowAccount{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	escrowService := service.NewEscrowService(repository.NewEscrowRepository(db), nil, config.EscrowConfig{
		AutoReleaseHours:     72,
		LargeAmountThreshold: "1000",
	})
	paymentService := service.NewPaymentService(service.PaymentServiceDeps{
		PaymentRepo: repository.NewPaymentRepository(db),
		SessionRepo: repository.NewProviderSessionRepository(db),
	})

	consumer := NewConsumer(&provider.Container{
		EscrowService:  escrowService,
		PaymentService: paymentService,
	})
	return consumer, db
}

func mustTask(t *testing.T, taskType string, payload interface{}) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	return asynq.NewTask(taskType, data)
}

func TestHandleEscrowAutoRelease(t *testing.T) {
	consumer, db := setupConsumerTest(t)

	account, err := consumer.EscrowService.OpenHold(service.OpenHoldInput{
		Amount:    models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		Currency:  "USD",
		OrderType: constants.OrderTypePhysical,
	})
	if err != nil {
		t.Fatalf("open hold failed: %v", err)
	}

	task := mustTask(t, queue.TaskEscrowAutoRelease, queue.EscrowAutoReleasePayload{EscrowRef: account.EscrowRef})
	if err := consumer.handleEscrowAutoRelease(context.Background(), task); err != nil {
		t.Fatalf("auto release failed: %v", err)
	}

	var stored models.EscrowAccount
	if err := db.Where("escrow_ref = ?", account.EscrowRef).First(&stored).Error; err != nil {
		t.Fatalf("load escrow failed: %v", err)
	}
	if stored.Status != constants.EscrowStatusReleased {
		t.Fatalf("expected released, got %s", stored.Status)
	}

	// 重复投递：非 held 状态应幂等跳过而不报错
	if err := consumer.handleEscrowAutoRelease(context.Background(), task); err != nil {
		t.Fatalf("expected idempotent skip, got %v", err)
	}
}

func TestHandleEscrowAutoReleaseMissingAccount(t *testing.T) {
	consumer, _ := setupConsumerTest(t)

	task := mustTask(t, queue.TaskEscrowAutoRelease, queue.EscrowAutoReleasePayload{EscrowRef: "esc-missing"})
	if err := consumer.handleEscrowAutoRelease(context.Background(), task); err != nil {
		t.Fatalf("expected skip for missing escrow, got %v", err)
	}
}

func TestHandleProviderSessionSweep(t *testing.T) {
	consumer, db := setupConsumerTest(t)

	payment := models.Payment{
		UserID:       7,
		SessionID:    "sess-sweep-1",
		Amount:       models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		Currency:     "USD",
		Method:       constants.MethodRamp,
		Status:       constants.PaymentStatusPending,
		EscrowStatus: constants.EscrowStatusNone,
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	expired := time.Now().Add(-time.Hour)
	session := models.ProviderSession{
		SessionID:  "sess-sweep-1",
		PaymentID:  payment.ID,
		ProviderID: constants.ProviderMockpay,
		Direction:  constants.RampDirectionOnRamp,
		Status:     constants.SessionStatusPending,
		ExpiresAt:  &expired,
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("create session failed: %v", err)
	}

	task := mustTask(t, queue.TaskProviderSessionSweep, queue.ProviderSessionSweepPayload{Limit: 10})
	if err := consumer.handleProviderSessionSweep(context.Background(), task); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	var storedSession models.ProviderSession
	if err := db.Where("session_id = ?", "sess-sweep-1").First(&storedSession).Error; err != nil {
		t.Fatalf("load session failed: %v", err)
	}
	if storedSession.Status != constants.SessionStatusExpired {
		t.Fatalf("expected expired session, got %s", storedSession.Status)
	}

	var storedPayment models.Payment
	if err := db.First(&storedPayment, payment.ID).Error; err != nil {
		t.Fatalf("load payment failed: %v", err)
	}
	if storedPayment.Status != constants.PaymentStatusFailed {
		t.Fatalf("expected failed payment, got %s", storedPayment.Status)
	}
}

func TestHandleSettlementNotifyMissingPayment(t *testing.T) {
	consumer, _ := setupConsumerTest(t)

	task := mustTask(t, queue.TaskSettlementNotify, queue.SettlementNotifyPayload{PaymentID: 9999, Status: constants.PaymentStatusCompleted})
	if err := consumer.handleSettlementNotify(context.Background(), task); err != nil {
		t.Fatalf("expected skip for missing payment, got %v", err)
	}
}
