package public

import (
	"errors"

	"github.com/paymind-next/internal/http/response"
	"github.com/paymind-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	key    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackKey string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.key, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackKey, err)
}

var paymentProcessErrorRules = []mappedHandlerError{
	{target: service.ErrPolicyViolation, code: response.CodeBadRequest, key: "error.policy_violation"},
	{target: service.ErrAmountInvalid, code: response.CodeBadRequest, key: "error.amount_invalid"},
	{target: service.ErrRiskRejected, code: response.CodeBadRequest, key: "error.risk_rejected"},
	{target: service.ErrRateLockNotFound, code: response.CodeBadRequest, key: "error.rate_lock_not_found"},
	{target: service.ErrRateLockExpired, code: response.CodeBadRequest, key: "error.rate_lock_expired"},
	{target: service.ErrQuotaNotFound, code: response.CodeBadRequest, key: "error.quota_not_found"},
	{target: service.ErrQuotaExceeded, code: response.CodeBadRequest, key: "error.quota_exceeded"},
	{target: service.ErrNoChannelAvailable, code: response.CodeBadRequest, key: "error.no_channel_available"},
	{target: service.ErrProviderExecutionFailed, code: response.CodeBadRequest, key: "error.provider_execution_failed"},
}

var sessionLookupErrorRules = []mappedHandlerError{
	{target: service.ErrSessionNotFound, code: response.CodeNotFound, key: "error.session_not_found"},
	{target: service.ErrPaymentNotFound, code: response.CodeNotFound, key: "error.payment_not_found"},
}

func respondPaymentProcessError(c *gin.Context, err error) {
	respondWithMappedError(c, err, paymentProcessErrorRules, response.CodeInternal, "error.payment_process_failed")
}

func respondSessionLookupError(c *gin.Context, err error) {
	respondWithMappedError(c, err, sessionLookupErrorRules, response.CodeInternal, "error.session_fetch_failed")
}
