package admin

import (
	"strconv"
	"strings"

	"github.com/paymind-next/internal/http/response"
	"github.com/paymind-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetAdminRampHealth 获取出入金提供方健康状态
func (h *Handler) GetAdminRampHealth(c *gin.Context) {
	response.Success(c, h.RampManager.HealthSnapshot())
}

// GetAdminProviderSessions 获取提供方会话列表
func (h *Handler) GetAdminProviderSessions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	var paymentID uint
	if raw := strings.TrimSpace(c.Query("payment_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			respondError(c, response.CodeBadRequest, "error.payment_id_invalid", nil)
			return
		}
		paymentID = uint(parsed)
	}

	sessions, total, err := h.SessionRepo.List(repository.ProviderSessionListFilter{
		Page:       page,
		PageSize:   pageSize,
		PaymentID:  paymentID,
		ProviderID: strings.TrimSpace(c.Query("provider_id")),
		Status:     strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.session_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, sessions, response.BuildPagination(page, pageSize, total))
}
