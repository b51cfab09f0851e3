package repository

import "time"

// PaymentListFilter 查询结算列表的过滤条件
type PaymentListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Method      string
	Status      string
	Currency    string
	ProviderRef string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// ProviderSessionListFilter 查询提供方会话列表的过滤条件
type ProviderSessionListFilter struct {
	Page       int
	PageSize   int
	PaymentID  uint
	ProviderID string
	Status     string
}

// AuthzAuditLogListFilter 查询权限审计日志列表的过滤条件
type AuthzAuditLogListFilter struct {
	Page            int
	PageSize        int
	OperatorAdminID uint
	TargetAdminID   uint
	Action          string
	Role            string
	Object          string
	Method          string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// EscrowListFilter 查询托管账户列表的过滤条件
type EscrowListFilter struct {
	Page      int
	PageSize  int
	PaymentID uint
	Status    string
	OrderType string
}
