package public

import (
	"errors"

	"github.com/paymind-next/internal/http/response"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateQuotaRequest 创建自动扣款授权请求
type CreateQuotaRequest struct {
	UserID       uint         `json:"user_id" binding:"required"`
	SingleLimit  models.Money `json:"single_limit" binding:"required"`
	DailyLimit   models.Money `json:"daily_limit" binding:"required"`
	DurationDays int          `json:"duration_days"`
}

// QuotaQuery 授权查询参数
type QuotaQuery struct {
	UserID uint `form:"user_id" binding:"required"`
}

// CreateQuotaAuthorization 创建自动扣款授权，旧授权同时停用
func (h *Handler) CreateQuotaAuthorization(c *gin.Context) {
	var req CreateQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	grant, err := h.QuotaService.CreateAuthorization(service.CreateAuthorizationInput{
		UserID:       req.UserID,
		SingleLimit:  req.SingleLimit,
		DailyLimit:   req.DailyLimit,
		DurationDays: req.DurationDays,
	})
	if err != nil {
		if errors.Is(err, service.ErrAmountInvalid) {
			respondError(c, response.CodeBadRequest, "error.amount_invalid", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.quota_create_failed", err)
		return
	}
	response.Success(c, grant)
}

// GetQuotaAuthorization 查询用户当前有效授权
func (h *Handler) GetQuotaAuthorization(c *gin.Context) {
	var query QuotaQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	grant, err := h.QuotaService.CheckAuthorization(query.UserID)
	if err != nil {
		if errors.Is(err, service.ErrQuotaNotFound) {
			respondError(c, response.CodeNotFound, "error.quota_not_found", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.quota_fetch_failed", err)
		return
	}
	response.Success(c, grant)
}
