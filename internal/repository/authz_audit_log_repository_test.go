package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/paymind-next/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzAuditLogRepositoryTest(t *testing.T) *GormAuthzAuditLogRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:authz_audit_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.AuthzAuditLog{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewAuthzAuditLogRepository(db)
}

func TestAuthzAuditLogListAdminFilters(t *testing.T) {
	repo := setupAuthzAuditLogRepositoryTest(t)

	target := uint(9)
	logs := []models.AuthzAuditLog{
		{OperatorAdminID: 1, Action: "role_policy_grant", Role: "finance", Object: "/admin/escrows", Method: "POST"},
		{OperatorAdminID: 1, Action: "role_policy_revoke", Role: "finance", Object: "/admin/escrows", Method: "DELETE"},
		{OperatorAdminID: 2, TargetAdminID: &target, Action: "admin_roles_set", Role: "operations", Method: "PUT"},
	}
	for i := range logs {
		if err := repo.Create(&logs[i]); err != nil {
			t.Fatalf("create log failed: %v", err)
		}
	}

	items, total, err := repo.ListAdmin(AuthzAuditLogListFilter{Page: 1, PageSize: 10, OperatorAdminID: 1})
	if err != nil {
		t.Fatalf("list by operator failed: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 logs for operator 1, got total=%d len=%d", total, len(items))
	}

	items, total, err = repo.ListAdmin(AuthzAuditLogListFilter{Page: 1, PageSize: 10, Action: "role_policy_grant", Role: "finance"})
	if err != nil {
		t.Fatalf("list by action failed: %v", err)
	}
	if total != 1 || items[0].Object != "/admin/escrows" {
		t.Fatalf("expected one grant log on /admin/escrows, got total=%d", total)
	}

	items, total, err = repo.ListAdmin(AuthzAuditLogListFilter{Page: 1, PageSize: 10, TargetAdminID: 9})
	if err != nil {
		t.Fatalf("list by target failed: %v", err)
	}
	if total != 1 || items[0].Action != "admin_roles_set" {
		t.Fatalf("expected target-admin log, got total=%d", total)
	}

	future := time.Now().Add(time.Hour)
	_, total, err = repo.ListAdmin(AuthzAuditLogListFilter{Page: 1, PageSize: 10, CreatedFrom: &future})
	if err != nil {
		t.Fatalf("list by created_from failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected no logs after future cutoff, got %d", total)
	}
}
