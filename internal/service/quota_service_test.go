package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupQuotaServiceTest(t *testing.T) (*QuotaService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:quota_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.QuotaGrant{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewQuotaService(repository.NewQuotaGrantRepository(db)), db
}

func money(v int64) models.Money {
	return models.NewMoneyFromDecimal(decimal.NewFromInt(v))
}

func TestCreateAuthorizationDeactivatesExisting(t *testing.T) {
	svc, db := setupQuotaServiceTest(t)

	first, err := svc.CreateAuthorization(CreateAuthorizationInput{
		UserID:      1,
		SingleLimit: money(50),
		DailyLimit:  money(200),
	})
	if err != nil {
		t.Fatalf("create first grant failed: %v", err)
	}
	second, err := svc.CreateAuthorization(CreateAuthorizationInput{
		UserID:      1,
		SingleLimit: money(100),
		DailyLimit:  money(500),
	})
	if err != nil {
		t.Fatalf("create second grant failed: %v", err)
	}

	var old models.QuotaGrant
	if err := db.First(&old, first.ID).Error; err != nil {
		t.Fatalf("load first grant failed: %v", err)
	}
	if old.IsActive {
		t.Fatalf("expected first grant deactivated")
	}

	active, err := svc.CheckAuthorization(1)
	if err != nil {
		t.Fatalf("check authorization failed: %v", err)
	}
	if active == nil || active.ID != second.ID {
		t.Fatalf("expected second grant active, got %+v", active)
	}
}

func TestCreateAuthorizationRejectsInvalidLimits(t *testing.T) {
	svc, _ := setupQuotaServiceTest(t)

	if _, err := svc.CreateAuthorization(CreateAuthorizationInput{UserID: 1, SingleLimit: money(0), DailyLimit: money(100)}); !errors.Is(err, ErrAmountInvalid) {
		t.Fatalf("expected ErrAmountInvalid for zero single limit, got %v", err)
	}
	if _, err := svc.CreateAuthorization(CreateAuthorizationInput{UserID: 1, SingleLimit: money(500), DailyLimit: money(100)}); !errors.Is(err, ErrAmountInvalid) {
		t.Fatalf("expected ErrAmountInvalid when single exceeds daily, got %v", err)
	}
}

func TestCheckAuthorizationLazyExpiry(t *testing.T) {
	svc, db := setupQuotaServiceTest(t)

	grant, err := svc.CreateAuthorization(CreateAuthorizationInput{
		UserID:       2,
		SingleLimit:  money(10),
		DailyLimit:   money(100),
		DurationDays: 1,
	})
	if err != nil {
		t.Fatalf("create grant failed: %v", err)
	}

	svc.now = func() time.Time { return time.Now().AddDate(0, 0, 2) }

	active, err := svc.CheckAuthorization(2)
	if err != nil {
		t.Fatalf("check authorization failed: %v", err)
	}
	if active != nil {
		t.Fatalf("expected expired grant to be treated as absent")
	}

	var stored models.QuotaGrant
	if err := db.First(&stored, grant.ID).Error; err != nil {
		t.Fatalf("load grant failed: %v", err)
	}
	if stored.IsActive {
		t.Fatalf("expected expired grant flipped inactive")
	}
}

func TestAuthorizeEnforcesLimits(t *testing.T) {
	svc, _ := setupQuotaServiceTest(t)

	if _, err := svc.Authorize(3, money(5)); !errors.Is(err, ErrQuotaNotFound) {
		t.Fatalf("expected ErrQuotaNotFound without grant, got %v", err)
	}

	grant, err := svc.CreateAuthorization(CreateAuthorizationInput{
		UserID:      3,
		SingleLimit: money(10),
		DailyLimit:  money(15),
	})
	if err != nil {
		t.Fatalf("create grant failed: %v", err)
	}

	if _, err := svc.Authorize(3, money(11)); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected single limit rejection, got %v", err)
	}

	if _, err := svc.RecordUsage(grant.ID, money(10)); err != nil {
		t.Fatalf("record usage failed: %v", err)
	}
	if _, err := svc.Authorize(3, money(6)); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected daily limit rejection, got %v", err)
	}
	if _, err := svc.Authorize(3, money(5)); err != nil {
		t.Fatalf("expected amount within limits to pass, got %v", err)
	}
}

func TestRecordUsageAccumulatesSameDay(t *testing.T) {
	svc, _ := setupQuotaServiceTest(t)

	grant, err := svc.CreateAuthorization(CreateAuthorizationInput{
		UserID:      4,
		SingleLimit: money(50),
		DailyLimit:  money(100),
	})
	if err != nil {
		t.Fatalf("create grant failed: %v", err)
	}

	if _, err := svc.RecordUsage(grant.ID, money(10)); err != nil {
		t.Fatalf("record usage failed: %v", err)
	}
	updated, err := svc.RecordUsage(grant.ID, money(5))
	if err != nil {
		t.Fatalf("record usage failed: %v", err)
	}

	if !updated.UsedToday.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected used_today 15, got %s", updated.UsedToday.String())
	}
	if !updated.TotalUsed.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected total_used 15, got %s", updated.TotalUsed.String())
	}
}

func TestRecordUsageResetsOnNewCalendarDay(t *testing.T) {
	svc, _ := setupQuotaServiceTest(t)

	grant, err := svc.CreateAuthorization(CreateAuthorizationInput{
		UserID:      5,
		SingleLimit: money(50),
		DailyLimit:  money(100),
	})
	if err != nil {
		t.Fatalf("create grant failed: %v", err)
	}
	if _, err := svc.RecordUsage(grant.ID, money(40)); err != nil {
		t.Fatalf("record usage failed: %v", err)
	}

	// 次日：当日用量以创建日期为基准重置
	svc.now = func() time.Time { return time.Now().AddDate(0, 0, 1) }

	updated, err := svc.RecordUsage(grant.ID, money(10))
	if err != nil {
		t.Fatalf("record usage failed: %v", err)
	}
	if !updated.UsedToday.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected used_today reset to 10, got %s", updated.UsedToday.String())
	}
	if !updated.TotalUsed.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected total_used 50, got %s", updated.TotalUsed.String())
	}
}
