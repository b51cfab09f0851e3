package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/paymind-next/internal/http/response"
	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/repository"
	"github.com/paymind-next/internal/service"

	"github.com/gin-gonic/gin"
)

// GetAdminEscrows 获取托管账户列表
func (h *Handler) GetAdminEscrows(c *gin.Context) {
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

	accounts, total, err := h.EscrowRepo.List(repository.EscrowListFilter{
		Page:      page,
		PageSize:  pageSize,
		PaymentID: paymentID,
		Status:    strings.TrimSpace(c.Query("status")),
		OrderType: strings.TrimSpace(c.Query("order_type")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.escrow_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, accounts, response.BuildPagination(page, pageSize, total))
}

// GetAdminEscrow 按结算记录查询托管账户
func (h *Handler) GetAdminEscrow(c *gin.Context) {
	paymentID, err := strconv.ParseUint(c.Param("payment_id"), 10, 64)
	if err != nil || paymentID == 0 {
		respondError(c, response.CodeBadRequest, "error.payment_id_invalid", nil)
		return
	}

	account, err := h.EscrowService.GetByPaymentID(uint(paymentID))
	if err != nil {
		if errors.Is(err, service.ErrEscrowNotFound) {
			respondError(c, response.CodeNotFound, "error.escrow_not_found", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.escrow_fetch_failed", err)
		return
	}
	response.Success(c, account)
}

// ReleaseAdminEscrow 人工放款（service 类订单无自动释放）
func (h *Handler) ReleaseAdminEscrow(c *gin.Context) {
	paymentID, err := strconv.ParseUint(c.Param("payment_id"), 10, 64)
	if err != nil || paymentID == 0 {
		respondError(c, response.CodeBadRequest, "error.payment_id_invalid", nil)
		return
	}

	account, err := h.EscrowService.ReleaseByPaymentID(uint(paymentID))
	if err != nil {
		respondAdminEscrowError(c, err)
		return
	}

	logger.Infow("admin_escrow_released",
		"operator_admin_id", currentAdminID(c),
		"payment_id", paymentID,
		"escrow_ref", account.EscrowRef,
	)
	response.Success(c, account)
}

// RefundAdminEscrow 人工退款：held 状态资金退回买方
func (h *Handler) RefundAdminEscrow(c *gin.Context) {
	paymentID, err := strconv.ParseUint(c.Param("payment_id"), 10, 64)
	if err != nil || paymentID == 0 {
		respondError(c, response.CodeBadRequest, "error.payment_id_invalid", nil)
		return
	}

	account, err := h.EscrowService.GetByPaymentID(uint(paymentID))
	if err != nil {
		respondAdminEscrowError(c, err)
		return
	}
	refunded, err := h.EscrowService.Refund(account.EscrowRef)
	if err != nil {
		respondAdminEscrowError(c, err)
		return
	}

	logger.Infow("admin_escrow_refunded",
		"operator_admin_id", currentAdminID(c),
		"payment_id", paymentID,
		"escrow_ref", refunded.EscrowRef,
	)
	response.Success(c, refunded)
}

func respondAdminEscrowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEscrowNotFound):
		respondError(c, response.CodeNotFound, "error.escrow_not_found", nil)
	case errors.Is(err, service.ErrEscrowStateInvalid):
		respondError(c, response.CodeBadRequest, "error.escrow_state_invalid", nil)
	default:
		respondError(c, response.CodeInternal, "error.escrow_operation_failed", err)
	}
}
