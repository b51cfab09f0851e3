package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/paymind-next/internal/config"
	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupEscrowServiceTest(t *testing.T) (*EscrowService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:escrow_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.EscrowAccount{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	svc := NewEscrowService(repository.NewEscrowRepository(db), nil, config.EscrowConfig{
		AutoReleaseHours:     72,
		LargeAmountThreshold: "1000",
	})
	return svc, db
}

func boolPtr(v bool) *bool {
	return &v
}

func TestShouldUseEscrowPolicy(t *testing.T) {
	svc, _ := setupEscrowServiceTest(t)

	cases := []struct {
		name  string
		input EscrowPolicyInput
		want  bool
	}{
		{"显式开启优先", EscrowPolicyInput{OrderType: "service", Override: boolPtr(true)}, true},
		{"显式关闭优先", EscrowPolicyInput{OrderType: "physical", Override: boolPtr(false)}, false},
		{"实物订单", EscrowPolicyInput{OrderType: "physical", Amount: money(10)}, true},
		{"商品订单默认", EscrowPolicyInput{Amount: money(10)}, true},
		{"NFT 订单", EscrowPolicyInput{OrderType: "nft", Amount: money(10)}, true},
		{"虚拟资产按分类", EscrowPolicyInput{OrderType: "other", Category: "virtual", Amount: money(10)}, true},
		{"服务订单默认关闭", EscrowPolicyInput{OrderType: "service", Amount: money(10)}, false},
		{"服务订单商户开启", EscrowPolicyInput{OrderType: "service", MerchantEscrowEnabled: true, Amount: money(10)}, true},
		{"未知类型大额强制", EscrowPolicyInput{OrderType: "other", Amount: money(1000)}, true},
		{"未知类型小额关闭", EscrowPolicyInput{OrderType: "other", Amount: money(999)}, false},
	}
	for _, tc := range cases {
		// 确定性：同一输入两次判定结果一致
		got := svc.ShouldUseEscrow(tc.input)
		again := svc.ShouldUseEscrow(tc.input)
		if got != tc.want || got != again {
			t.Fatalf("%s: expected %v, got %v/%v", tc.name, tc.want, got, again)
		}
	}
}

func TestEscrowLifecycle(t *testing.T) {
	svc, _ := setupEscrowServiceTest(t)

	account, err := svc.OpenHold(OpenHoldInput{Amount: money(100), Currency: "usd", OrderType: "physical"})
	if err != nil {
		t.Fatalf("open hold failed: %v", err)
	}
	if account.Status != constants.EscrowStatusHeld || account.Currency != "USD" {
		t.Fatalf("unexpected account %+v", account)
	}

	if err := svc.AttachPayment(account.EscrowRef, 42); err != nil {
		t.Fatalf("attach payment failed: %v", err)
	}

	funded, err := svc.Fund(account.EscrowRef)
	if err != nil {
		t.Fatalf("fund failed: %v", err)
	}
	if funded.HeldAt == nil || funded.PaymentID != 42 {
		t.Fatalf("expected funded account with held_at set, got %+v", funded)
	}

	released, err := svc.Release(account.EscrowRef)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released.Status != constants.EscrowStatusReleased || released.ReleasedAt == nil {
		t.Fatalf("unexpected released account %+v", released)
	}

	// 重复释放幂等
	again, err := svc.Release(account.EscrowRef)
	if err != nil {
		t.Fatalf("repeat release failed: %v", err)
	}
	if again.Status != constants.EscrowStatusReleased {
		t.Fatalf("expected released status, got %s", again.Status)
	}
}

func TestEscrowFundNFTReleasesImmediately(t *testing.T) {
	svc, _ := setupEscrowServiceTest(t)

	account, err := svc.OpenHold(OpenHoldInput{Amount: money(50), Currency: "USDC", OrderType: "nft"})
	if err != nil {
		t.Fatalf("open hold failed: %v", err)
	}
	funded, err := svc.Fund(account.EscrowRef)
	if err != nil {
		t.Fatalf("fund failed: %v", err)
	}
	if funded.Status != constants.EscrowStatusReleased {
		t.Fatalf("expected nft escrow released on funding, got %s", funded.Status)
	}
}

func TestEscrowRefundRequiresHeld(t *testing.T) {
	svc, _ := setupEscrowServiceTest(t)

	account, err := svc.OpenHold(OpenHoldInput{Amount: money(80), Currency: "USD", OrderType: "physical"})
	if err != nil {
		t.Fatalf("open hold failed: %v", err)
	}
	if _, err := svc.Refund(account.EscrowRef); err != nil {
		t.Fatalf("refund held escrow failed: %v", err)
	}
	if _, err := svc.Refund(account.EscrowRef); !errors.Is(err, ErrEscrowStateInvalid) {
		t.Fatalf("expected ErrEscrowStateInvalid on double refund, got %v", err)
	}
	if _, err := svc.Release(account.EscrowRef); !errors.Is(err, ErrEscrowStateInvalid) {
		t.Fatalf("expected ErrEscrowStateInvalid releasing refunded escrow, got %v", err)
	}
}

func TestReleaseByPaymentID(t *testing.T) {
	svc, _ := setupEscrowServiceTest(t)

	if _, err := svc.ReleaseByPaymentID(999); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("expected ErrEscrowNotFound, got %v", err)
	}

	account, err := svc.OpenHold(OpenHoldInput{Amount: money(60), Currency: "USD", OrderType: "physical"})
	if err != nil {
		t.Fatalf("open hold failed: %v", err)
	}
	if err := svc.AttachPayment(account.EscrowRef, 7); err != nil {
		t.Fatalf("attach payment failed: %v", err)
	}
	released, err := svc.ReleaseByPaymentID(7)
	if err != nil {
		t.Fatalf("release by payment failed: %v", err)
	}
	if released.Status != constants.EscrowStatusReleased {
		t.Fatalf("expected released, got %s", released.Status)
	}
}
