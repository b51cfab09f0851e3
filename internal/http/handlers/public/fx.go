package public

import (
	"time"

	"github.com/paymind-next/internal/http/response"
	"github.com/paymind-next/internal/models"

	"github.com/gin-gonic/gin"
)

// ExchangeRateQuery 汇率查询参数
type ExchangeRateQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}

// CreateRateLockRequest 创建锁价请求
type CreateRateLockRequest struct {
	From       string       `json:"from" binding:"required"`
	To         string       `json:"to" binding:"required"`
	Amount     models.Money `json:"amount" binding:"required"`
	TTLSeconds int          `json:"ttl_seconds"`
}

// GetExchangeRate 查询当前汇率
func (h *Handler) GetExchangeRate(c *gin.Context) {
	var query ExchangeRateQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	rate, err := h.FXManager.GetExchangeRate(c.Request.Context(), query.From, query.To)
	if err != nil {
		respondError(c, response.CodeInternal, "error.rate_fetch_failed", err)
		return
	}
	response.Success(c, rate)
}

// CreateRateLock 在时间窗口内锁定汇率
func (h *Handler) CreateRateLock(c *gin.Context) {
	var req CreateRateLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	if !req.Amount.IsPositive() {
		respondError(c, response.CodeBadRequest, "error.amount_invalid", nil)
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second

	lock, err := h.FXManager.LockExchangeRate(c.Request.Context(), req.From, req.To, req.Amount.Decimal, ttl)
	if err != nil {
		respondError(c, response.CodeInternal, "error.rate_lock_failed", err)
		return
	}
	response.Success(c, lock)
}

// GetRateLock 查询锁价状态
func (h *Handler) GetRateLock(c *gin.Context) {
	lockID := c.Param("lock_id")
	if lockID == "" {
		respondError(c, response.CodeBadRequest, "error.rate_lock_id_invalid", nil)
		return
	}

	lock, ok := h.FXManager.GetRateLock(lockID)
	if !ok {
		respondError(c, response.CodeNotFound, "error.rate_lock_not_found", nil)
		return
	}
	valid, _ := h.FXManager.ValidateRateLock(lockID)
	response.Success(c, gin.H{
		"lock":  lock,
		"valid": valid,
	})
}
