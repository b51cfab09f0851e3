package public

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/http/response"
	"github.com/paymind-next/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	webhookBodyLimit = 1 << 20

	providerSignatureHeader = "X-Webhook-Signature"
	relayerSignatureHeader  = "X-Relayer-Signature"
)

// ProviderWebhookRequest 出入金提供方回调
type ProviderWebhookRequest struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	TxHash      string `json:"tx_hash"`
	ProviderRef string `json:"provider_ref"`
}

// RelayerWebhookRequest 中继交易回报
type RelayerWebhookRequest struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

// readWebhookBody 读取限长的原始请求体，验签必须基于原始字节
func readWebhookBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
}

// matchHMACSignature 用任一配置密钥对请求体做 HMAC-SHA256 验签
func matchHMACSignature(secrets []string, body []byte, signature string) bool {
	sig := strings.ToLower(strings.TrimSpace(signature))
	if sig == "" {
		return false
	}
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		if hmac.Equal([]byte(sig), []byte(hex.EncodeToString(mac.Sum(nil)))) {
			return true
		}
	}
	return false
}

func hasWebhookSecret(secrets []string) bool {
	for _, secret := range secrets {
		if secret != "" {
			return true
		}
	}
	return false
}

// CardWebhook 收单通道回调：验签后推进结算记录。
// 验签失败返回 401，避免伪造回调探测记录是否存在。
func (h *Handler) CardWebhook(c *gin.Context) {
	body, err := readWebhookBody(c)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	headers := make(map[string]string, len(c.Request.Header))
	for key := range c.Request.Header {
		headers[key] = c.Request.Header.Get(key)
	}

	event, err := h.CardClient.VerifyWebhook(headers, body)
	if err != nil {
		requestLog(c).Warnw("card_webhook_verify_failed", "error", err)
		respondError(c, response.CodeUnauthorized, "error.webhook_signature_invalid", nil)
		return
	}

	payment, err := h.PaymentService.HandleCardWebhook(event)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			respondError(c, response.CodeNotFound, "error.payment_not_found", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.webhook_process_failed", err)
		return
	}
	response.Success(c, gin.H{
		"payment_id": payment.ID,
		"status":     payment.Status,
	})
}

// ProviderWebhook 出入金提供方回调：验签后推进会话与结算记录。
// 未配置任何提供方密钥时放行并告警，便于沙箱联调。
func (h *Handler) ProviderWebhook(c *gin.Context) {
	body, err := readWebhookBody(c)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	secrets := []string{
		h.Config.Ramp.Transak.WebhookSecret,
		h.Config.Ramp.Mockpay.WebhookSecret,
	}
	if hasWebhookSecret(secrets) {
		if !matchHMACSignature(secrets, body, c.GetHeader(providerSignatureHeader)) {
			requestLog(c).Warnw("provider_webhook_verify_failed")
			respondError(c, response.CodeUnauthorized, "error.webhook_signature_invalid", nil)
			return
		}
	} else {
		requestLog(c).Warnw("provider_webhook_secret_missing")
	}

	var req ProviderWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	if req.SessionID == "" || req.Status == "" {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}

	payment, err := h.PaymentService.HandleProviderWebhook(service.ProviderWebhookInput{
		SessionID:   req.SessionID,
		Status:      req.Status,
		TxHash:      req.TxHash,
		ProviderRef: req.ProviderRef,
	})
	if err != nil {
		respondSessionLookupError(c, err)
		return
	}
	response.Success(c, gin.H{
		"payment_id": payment.ID,
		"status":     payment.Status,
	})
}

// RelayerWebhook 中继交易回报：验签后按交易哈希推进结算状态
func (h *Handler) RelayerWebhook(c *gin.Context) {
	body, err := readWebhookBody(c)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	if secret := h.Config.Relayer.WebhookSecret; secret != "" {
		if !matchHMACSignature([]string{secret}, body, c.GetHeader(relayerSignatureHeader)) {
			requestLog(c).Warnw("relayer_webhook_verify_failed")
			respondError(c, response.CodeUnauthorized, "error.webhook_signature_invalid", nil)
			return
		}
	} else {
		requestLog(c).Warnw("relayer_webhook_secret_missing")
	}

	var req RelayerWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	if req.TxHash == "" {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	if req.Status != constants.PaymentStatusCompleted && req.Status != constants.PaymentStatusFailed {
		respondError(c, response.CodeBadRequest, "error.webhook_status_invalid", nil)
		return
	}

	payment, err := h.PaymentService.UpdatePaymentStatusByHash(req.TxHash, req.Status)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			respondError(c, response.CodeNotFound, "error.payment_not_found", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.webhook_process_failed", err)
		return
	}
	response.Success(c, gin.H{
		"payment_id": payment.ID,
		"status":     payment.Status,
	})
}
