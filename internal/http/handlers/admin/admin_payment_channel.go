package admin

import (
	"errors"
	"strings"

	"github.com/paymind-next/internal/http/response"
	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ChannelAvailabilityRequest 渠道可用性变更请求
type ChannelAvailabilityRequest struct {
	Available *bool `json:"available" binding:"required"`
}

// GetAdminChannels 获取结算渠道列表
func (h *Handler) GetAdminChannels(c *gin.Context) {
	channels, err := h.ChannelService.List()
	if err != nil {
		respondError(c, response.CodeInternal, "error.channel_fetch_failed", err)
		return
	}
	response.Success(c, channels)
}

// SetAdminChannelAvailability 启停结算渠道，注册表与存储同步更新
func (h *Handler) SetAdminChannelAvailability(c *gin.Context) {
	method := strings.TrimSpace(c.Param("method"))
	if method == "" {
		respondError(c, response.CodeBadRequest, "error.channel_method_invalid", nil)
		return
	}
	var req ChannelAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	if err := h.ChannelService.SetAvailability(method, *req.Available); err != nil {
		if errors.Is(err, service.ErrChannelNotFound) {
			respondError(c, response.CodeNotFound, "error.channel_not_found", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.save_failed", err)
		return
	}

	logger.Infow("admin_channel_availability_updated",
		"operator_admin_id", currentAdminID(c),
		"method", method,
		"available", *req.Available,
	)
	response.Success(c, gin.H{
		"method":    method,
		"available": *req.Available,
	})
}
