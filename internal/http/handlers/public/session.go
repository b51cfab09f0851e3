package public

import (
	"github.com/paymind-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ConfirmSessionRequest 会话确认请求
type ConfirmSessionRequest struct {
	TxHash string `json:"tx_hash"`
}

// GetProviderSession 查询提供方会话
func (h *Handler) GetProviderSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		respondError(c, response.CodeBadRequest, "error.session_id_invalid", nil)
		return
	}

	session, err := h.PaymentService.GetProviderSession(sessionID)
	if err != nil {
		respondSessionLookupError(c, err)
		return
	}
	response.Success(c, session)
}

// ConfirmProviderSession 确认会话完成并推进结算记录
func (h *Handler) ConfirmProviderSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		respondError(c, response.CodeBadRequest, "error.session_id_invalid", nil)
		return
	}
	var req ConfirmSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	payment, err := h.PaymentService.ConfirmProviderSession(sessionID, req.TxHash)
	if err != nil {
		respondSessionLookupError(c, err)
		return
	}
	response.Success(c, payment)
}
