package service

import "errors"

// 结算链路错误分类。闸门类错误在落库前返回，
// 执行类错误先落 FAILED 记录再向调用方透出。
var (
	ErrPolicyViolation         = errors.New("transaction rejected by policy")
	ErrNoChannelAvailable      = errors.New("no settlement channel available")
	ErrRateLockNotFound        = errors.New("rate lock not found")
	ErrRateLockExpired         = errors.New("rate lock expired")
	ErrAmountInvalid           = errors.New("amount invalid")
	ErrQuotaExceeded           = errors.New("quota exceeded")
	ErrQuotaNotFound           = errors.New("no active quota grant")
	ErrRiskRejected            = errors.New("transaction rejected by risk assessment")
	ErrProviderExecutionFailed = errors.New("provider execution failed")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrSessionNotFound         = errors.New("provider session not found")
	ErrProviderNotFound        = errors.New("provider not found")
	ErrEscrowNotFound          = errors.New("escrow account not found")
	ErrEscrowStateInvalid      = errors.New("escrow state does not allow this operation")
	ErrChannelNotFound         = errors.New("settlement channel not found")
)

// 管理端认证错误
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidPassword    = errors.New("password mismatch")
	ErrWeakPassword       = errors.New("password does not meet policy")
	ErrNotFound           = errors.New("record not found")
)
