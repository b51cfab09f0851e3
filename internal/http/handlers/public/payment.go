package public

import (
	"errors"
	"strconv"

	"github.com/paymind-next/internal/http/response"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ProcessPaymentRequest 结算请求
type ProcessPaymentRequest struct {
	UserID      uint         `json:"user_id"`
	Amount      models.Money `json:"amount" binding:"required"`
	Currency    string       `json:"currency" binding:"required"`
	Method      string       `json:"method"`
	Description string       `json:"description"`

	IsOnChain             bool   `json:"is_on_chain"`
	UserKYCLevel          string `json:"user_kyc_level"`
	IsCrossBorder         bool   `json:"is_cross_border"`
	UserCountry           string `json:"user_country"`
	MerchantCountry       string `json:"merchant_country"`
	UserCurrency          string `json:"user_currency"`
	MerchantCurrency      string `json:"merchant_currency"`
	MerchantPaymentConfig string `json:"merchant_payment_config"`
	WalletConnected       *bool  `json:"wallet_connected"`
	QuickPayEligible      bool   `json:"quick_pay_eligible"`
	Scenario              string `json:"scenario"`

	LockID        string `json:"lock_id"`
	TxHash        string `json:"tx_hash"`
	WalletAddress string `json:"wallet_address"`
	ToAddress     string `json:"to_address"`
	Signature     string `json:"signature"`

	OrderType             string `json:"order_type"`
	Category              string `json:"category"`
	MerchantEscrowEnabled bool   `json:"merchant_escrow_enabled"`
	EscrowOverride        *bool  `json:"escrow_override"`
	RefUserID             uint   `json:"ref_user_id"`

	Metadata models.JSON `json:"metadata"`
}

// ListPaymentsQuery 用户结算记录查询参数
type ListPaymentsQuery struct {
	UserID   uint `form:"user_id" binding:"required"`
	Page     int  `form:"page"`
	PageSize int  `form:"page_size"`
}

func (r *ProcessPaymentRequest) toInput() service.ProcessPaymentInput {
	return service.ProcessPaymentInput{
		UserID:                r.UserID,
		Amount:                r.Amount,
		Currency:              r.Currency,
		Method:                r.Method,
		Description:           r.Description,
		IsOnChain:             r.IsOnChain,
		UserKYCLevel:          r.UserKYCLevel,
		IsCrossBorder:         r.IsCrossBorder,
		UserCountry:           r.UserCountry,
		MerchantCountry:       r.MerchantCountry,
		UserCurrency:          r.UserCurrency,
		MerchantCurrency:      r.MerchantCurrency,
		MerchantPaymentConfig: r.MerchantPaymentConfig,
		WalletConnected:       r.WalletConnected,
		QuickPayEligible:      r.QuickPayEligible,
		Scenario:              r.Scenario,
		LockID:                r.LockID,
		TxHash:                r.TxHash,
		WalletAddress:         r.WalletAddress,
		ToAddress:             r.ToAddress,
		Signature:             r.Signature,
		OrderType:             r.OrderType,
		Category:              r.Category,
		MerchantEscrowEnabled: r.MerchantEscrowEnabled,
		EscrowOverride:        r.EscrowOverride,
		RefUserID:             r.RefUserID,
		Metadata:              r.Metadata,
	}
}

// ProcessPayment 创建并执行一笔结算
func (h *Handler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	payment, err := h.PaymentService.ProcessPayment(c.Request.Context(), req.toInput())
	if err != nil {
		respondPaymentProcessError(c, err)
		return
	}
	response.Success(c, payment)
}

// GetPaymentRouting 路由预览：不落库，返回推荐渠道与费用估算
func (h *Handler) GetPaymentRouting(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	preview, err := h.PaymentService.GetPaymentRouting(req.toInput())
	if err != nil {
		if errors.Is(err, service.ErrNoChannelAvailable) {
			respondError(c, response.CodeBadRequest, "error.no_channel_available", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.routing_failed", err)
		return
	}
	response.Success(c, preview)
}

// GetPayment 根据 ID 查询结算记录
func (h *Handler) GetPayment(c *gin.Context) {
	paymentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || paymentID == 0 {
		respondError(c, response.CodeBadRequest, "error.payment_id_invalid", nil)
		return
	}

	payment, err := h.PaymentService.GetPayment(uint(paymentID))
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			respondError(c, response.CodeNotFound, "error.payment_not_found", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.payment_fetch_failed", err)
		return
	}
	response.Success(c, payment)
}

// GetPaymentBySession 根据会话 ID 查询结算记录
func (h *Handler) GetPaymentBySession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		respondError(c, response.CodeBadRequest, "error.session_id_invalid", nil)
		return
	}

	payment, err := h.PaymentService.GetPaymentBySessionID(sessionID)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			respondError(c, response.CodeNotFound, "error.payment_not_found", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.payment_fetch_failed", err)
		return
	}
	response.Success(c, payment)
}

// ListPayments 分页查询指定用户的结算记录
func (h *Handler) ListPayments(c *gin.Context) {
	var query ListPaymentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	page, pageSize := normalizePagination(query.Page, query.PageSize)

	payments, total, err := h.PaymentService.ListUserPayments(query.UserID, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "error.payment_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, payments, response.BuildPagination(page, pageSize, total))
}

// EstimateFee 按渠道估算通道费用
func (h *Handler) EstimateFee(c *gin.Context) {
	method := c.Query("method")
	amountRaw := c.Query("amount")
	if method == "" || amountRaw == "" {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	var amount models.Money
	if err := amount.UnmarshalJSON([]byte(strconv.Quote(amountRaw))); err != nil || !amount.IsPositive() {
		respondError(c, response.CodeBadRequest, "error.amount_invalid", err)
		return
	}

	fee := service.EstimateChannelFee(method, amount.Decimal)
	response.Success(c, gin.H{
		"method": method,
		"amount": amount,
		"fee":    models.NewMoneyFromDecimal(fee),
	})
}
