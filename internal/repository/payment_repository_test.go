package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupPaymentRepositoryTest(t *testing.T) (*GormPaymentRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Payment{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewPaymentRepository(db), db
}

func seedPayment(t *testing.T, db *gorm.DB, payment models.Payment) models.Payment {
	t.Helper()
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("create payment %s failed: %v", payment.SessionID, err)
	}
	return payment
}

func TestPaymentRepositoryListAdminFilters(t *testing.T) {
	repo, db := setupPaymentRepositoryTest(t)

	cardCompleted := seedPayment(t, db, models.Payment{
		UserID:       1,
		SessionID:    "sess-card-1",
		Amount:       models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		Currency:     "USD",
		Method:       constants.MethodCard,
		Status:       constants.PaymentStatusCompleted,
		EscrowStatus: constants.EscrowStatusNone,
	})
	seedPayment(t, db, models.Payment{
		UserID:       1,
		SessionID:    "sess-wallet-1",
		Amount:       models.NewMoneyFromDecimal(decimal.NewFromInt(20)),
		Currency:     "USDC",
		Method:       constants.MethodWallet,
		Status:       constants.PaymentStatusFailed,
		EscrowStatus: constants.EscrowStatusNone,
	})
	seedPayment(t, db, models.Payment{
		UserID:       2,
		SessionID:    "sess-card-2",
		Amount:       models.NewMoneyFromDecimal(decimal.NewFromInt(55)),
		Currency:     "USD",
		Method:       constants.MethodCard,
		Status:       constants.PaymentStatusCompleted,
		EscrowStatus: constants.EscrowStatusNone,
	})

	rows, total, err := repo.ListAdmin(PaymentListFilter{Page: 1, PageSize: 10, UserID: 1})
	if err != nil {
		t.Fatalf("list by user failed: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("user filter want 2 got total=%d len=%d", total, len(rows))
	}

	rows, total, err = repo.ListAdmin(PaymentListFilter{
		Page:     1,
		PageSize: 10,
		Method:   constants.MethodCard,
		Status:   constants.PaymentStatusCompleted,
		Currency: "USD",
	})
	if err != nil {
		t.Fatalf("list by method/status failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("method filter want 2 got %d", total)
	}
	for _, row := range rows {
		if row.Method != constants.MethodCard || row.Status != constants.PaymentStatusCompleted {
			t.Fatalf("unexpected row in filtered list: %+v", row)
		}
	}

	// 时间窗口过滤
	future := time.Now().Add(time.Hour)
	rows, total, err = repo.ListAdmin(PaymentListFilter{Page: 1, PageSize: 10, CreatedFrom: &future})
	if err != nil {
		t.Fatalf("list by created_from failed: %v", err)
	}
	if total != 0 || len(rows) != 0 {
		t.Fatalf("created_from filter want 0 got total=%d len=%d", total, len(rows))
	}

	got, err := repo.GetBySessionID("sess-card-1")
	if err != nil {
		t.Fatalf("get by session failed: %v", err)
	}
	if got == nil || got.ID != cardCompleted.ID {
		t.Fatalf("unexpected payment for session, got %+v", got)
	}
	missing, err := repo.GetBySessionID("sess-none")
	if err != nil {
		t.Fatalf("get missing session failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown session, got %+v", missing)
	}
}

func TestPaymentRepositoryTransactionHashLookup(t *testing.T) {
	repo, db := setupPaymentRepositoryTest(t)

	seedPayment(t, db, models.Payment{
		UserID:          3,
		SessionID:       "sess-hash-1",
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
		Currency:        "USDC",
		Method:          constants.MethodWallet,
		Status:          constants.PaymentStatusProcessing,
		TransactionHash: "0xabc",
		EscrowStatus:    constants.EscrowStatusNone,
	})
	latest := seedPayment(t, db, models.Payment{
		UserID:          3,
		SessionID:       "sess-hash-2",
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(11)),
		Currency:        "USDC",
		Method:          constants.MethodWallet,
		Status:          constants.PaymentStatusProcessing,
		TransactionHash: "0xabc",
		EscrowStatus:    constants.EscrowStatusNone,
	})

	got, err := repo.GetLatestByTransactionHash("0xabc")
	if err != nil {
		t.Fatalf("get by hash failed: %v", err)
	}
	if got == nil || got.ID != latest.ID {
		t.Fatalf("expected latest payment for hash, got %+v", got)
	}
}

func TestPaymentRepositoryMergeMetadata(t *testing.T) {
	repo, db := setupPaymentRepositoryTest(t)

	payment := seedPayment(t, db, models.Payment{
		UserID:       4,
		SessionID:    "sess-meta-1",
		Amount:       models.NewMoneyFromDecimal(decimal.NewFromInt(30)),
		Currency:     "USD",
		Method:       constants.MethodCard,
		Status:       constants.PaymentStatusPending,
		EscrowStatus: constants.EscrowStatusNone,
		Metadata:     models.JSON{"route_reason": "fiat_only", "risk_decision": "approve"},
	})

	if err := repo.MergeMetadata(payment.ID, models.JSON{"provider_ref": "ref-1", "risk_decision": "review"}); err != nil {
		t.Fatalf("merge metadata failed: %v", err)
	}

	stored, err := repo.GetByID(payment.ID)
	if err != nil || stored == nil {
		t.Fatalf("load payment failed: %v", err)
	}
	// 字段级合并：保留旧键、覆盖同名键、追加新键
	if stored.Metadata["route_reason"] != "fiat_only" {
		t.Fatalf("expected route_reason preserved, got %v", stored.Metadata["route_reason"])
	}
	if stored.Metadata["risk_decision"] != "review" {
		t.Fatalf("expected risk_decision overwritten, got %v", stored.Metadata["risk_decision"])
	}
	if stored.Metadata["provider_ref"] != "ref-1" {
		t.Fatalf("expected provider_ref added, got %v", stored.Metadata["provider_ref"])
	}
}
