// Package cardproc 对接卡收单通道的托管收银台。
// 创建收银台会话后支付在通道侧完成，结果经签名 webhook 回报。
package cardproc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotConfigured    = errors.New("cardproc secret key not configured")
	ErrInputInvalid     = errors.New("cardproc input invalid")
	ErrRequestFailed    = errors.New("cardproc request failed")
	ErrResponseInvalid  = errors.New("cardproc response invalid")
	ErrSignatureInvalid = errors.New("cardproc signature invalid")
)

const (
	defaultAPIBaseURL        = "https://api.stripe.com"
	defaultTimeout           = 12 * time.Second
	defaultWebhookToleranceS = 300
	signatureHeaderName      = "Stripe-Signature"
)

// 会话结果状态
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusExpired = "expired"
	StatusPending = "pending"
)

// 最小货币单位无小数位的币种
var zeroDecimalCurrencies = map[string]struct{}{
	"JPY": {},
	"KRW": {},
	"VND": {},
	"CLP": {},
}

// Config 通道配置
type Config struct {
	SecretKey               string
	WebhookSecret           string
	SuccessURL              string
	CancelURL               string
	APIBaseURL              string
	WebhookToleranceSeconds int
	Timeout                 time.Duration
}

// CheckoutInput 创建收银台会话输入
type CheckoutInput struct {
	SessionRef  string
	PaymentID   uint64
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// Checkout 已创建的收银台会话
type Checkout struct {
	ProviderSessionID string
	URL               string
	Status            string
}

// CheckoutStatus 会话查询结果
type CheckoutStatus struct {
	ProviderSessionID string
	Status            string
	Amount            string
	Currency          string
}

// WebhookEvent 验签后的回调事件
type WebhookEvent struct {
	EventID     string
	EventType   string
	PaymentID   uint64
	SessionRef  string
	ProviderRef string
	Status      string
	Amount      string
	Currency    string
	PaidAt      *time.Time
}

// Client 收单通道客户端
type Client struct {
	config     Config
	httpClient *http.Client
	now        func() time.Time
}

// NewClient 创建客户端
func NewClient(config Config) *Client {
	config.SecretKey = strings.TrimSpace(config.SecretKey)
	config.WebhookSecret = strings.TrimSpace(config.WebhookSecret)
	config.APIBaseURL = strings.TrimRight(strings.TrimSpace(config.APIBaseURL), "/")
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.WebhookToleranceSeconds <= 0 {
		config.WebhookToleranceSeconds = defaultWebhookToleranceS
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// CreateCheckout 创建收银台会话
func (c *Client) CreateCheckout(ctx context.Context, input CheckoutInput) (*Checkout, error) {
	if c.config.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	sessionRef := strings.TrimSpace(input.SessionRef)
	if sessionRef == "" {
		return nil, fmt.Errorf("%w: session_ref is required", ErrInputInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrInputInvalid)
	}
	minorAmount, err := toMinorAmount(input.Amount, currency)
	if err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(input.Description)
	if subject == "" {
		subject = sessionRef
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", c.config.SuccessURL)
	form.Set("cancel_url", c.config.CancelURL)
	form.Set("client_reference_id", sessionRef)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(minorAmount, 10))
	form.Set("line_items[0][price_data][product_data][name]", subject)
	form.Set("metadata[payment_id]", strconv.FormatUint(input.PaymentID, 10))
	form.Set("metadata[session_ref]", sessionRef)
	form.Set("payment_intent_data[metadata][payment_id]", strconv.FormatUint(input.PaymentID, 10))
	form.Set("payment_intent_data[metadata][session_ref]", sessionRef)
	form.Add("payment_method_types[]", "card")

	raw, err := c.doForm(ctx, http.MethodPost, "/v1/checkout/sessions", form)
	if err != nil {
		return nil, err
	}

	checkout := &Checkout{
		ProviderSessionID: readString(raw, "id"),
		URL:               readString(raw, "url"),
		Status:            mapSessionStatus(readString(raw, "payment_status"), readString(raw, "status")),
	}
	if checkout.ProviderSessionID == "" || checkout.URL == "" {
		return nil, fmt.Errorf("%w: missing session id or url", ErrResponseInvalid)
	}
	return checkout, nil
}

// QueryCheckout 查询会话状态
func (c *Client) QueryCheckout(ctx context.Context, providerSessionID string) (*CheckoutStatus, error) {
	if c.config.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	providerSessionID = strings.TrimSpace(providerSessionID)
	if providerSessionID == "" {
		return nil, fmt.Errorf("%w: provider session id is required", ErrInputInvalid)
	}

	raw, err := c.doForm(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(providerSessionID), nil)
	if err != nil {
		return nil, err
	}

	status := &CheckoutStatus{
		ProviderSessionID: readString(raw, "id"),
		Status:            mapSessionStatus(readString(raw, "payment_status"), readString(raw, "status")),
		Currency:          strings.ToUpper(readString(raw, "currency")),
	}
	if amountMinor := readInt64(raw, "amount_total"); amountMinor > 0 && status.Currency != "" {
		status.Amount = fromMinorAmount(amountMinor, status.Currency)
	}
	if status.ProviderSessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrResponseInvalid)
	}
	return status, nil
}

// VerifyWebhook 验签并解析回调。签名头格式 t=<unix>,v1=<hmac-sha256-hex>，
// 时间戳超出容差窗口视为无效。
func (c *Client) VerifyWebhook(headers map[string]string, body []byte) (*WebhookEvent, error) {
	if c.config.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret is required", ErrNotConfigured)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}

	signatureHeader := headerValue(headers, signatureHeaderName)
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrSignatureInvalid, signatureHeaderName)
	}
	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}
	if delta := math.Abs(float64(c.now().Unix() - timestamp)); delta > float64(c.config.WebhookToleranceSeconds) {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
	}

	expected := computeSignature(c.config.WebhookSecret, timestamp, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: verify failed", ErrSignatureInvalid)
	}

	var eventRaw map[string]interface{}
	if err := json.Unmarshal(body, &eventRaw); err != nil {
		return nil, fmt.Errorf("%w: decode event failed", ErrResponseInvalid)
	}
	eventType := readString(eventRaw, "type")
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrResponseInvalid)
	}
	dataRaw, ok := eventRaw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing data object", ErrResponseInvalid)
	}
	objectRaw, ok := dataRaw["object"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing event object", ErrResponseInvalid)
	}

	event := &WebhookEvent{
		EventID:     readString(eventRaw, "id"),
		EventType:   eventType,
		ProviderRef: readString(objectRaw, "id"),
		Currency:    strings.ToUpper(readString(objectRaw, "currency")),
	}
	metadata, _ := objectRaw["metadata"].(map[string]interface{})
	event.SessionRef = readString(metadata, "session_ref")
	if rawID := readString(metadata, "payment_id"); rawID != "" {
		if id, err := strconv.ParseUint(rawID, 10, 64); err == nil {
			event.PaymentID = id
		}
	}
	if amountMinor := readInt64(objectRaw, "amount_total"); amountMinor > 0 && event.Currency != "" {
		event.Amount = fromMinorAmount(amountMinor, event.Currency)
	}
	if created := readInt64(objectRaw, "created"); created > 0 {
		paidAt := time.Unix(created, 0)
		event.PaidAt = &paidAt
	}
	if status, ok := mapEventTypeStatus(eventType); ok {
		event.Status = status
	} else {
		event.Status = mapSessionStatus(readString(objectRaw, "payment_status"), readString(objectRaw, "status"))
	}
	return event, nil
}

func (c *Client) doForm(ctx context.Context, method, path string, form url.Values) (map[string]interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrResponseInvalid, resp.StatusCode)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func mapEventTypeStatus(eventType string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return StatusSuccess, true
	case "checkout.session.expired":
		return StatusExpired, true
	case "checkout.session.async_payment_failed":
		return StatusFailed, true
	default:
		return "", false
	}
}

func mapSessionStatus(paymentStatus, sessionStatus string) string {
	paymentStatus = strings.ToLower(strings.TrimSpace(paymentStatus))
	sessionStatus = strings.ToLower(strings.TrimSpace(sessionStatus))
	if paymentStatus == "paid" {
		return StatusSuccess
	}
	if sessionStatus == "expired" {
		return StatusExpired
	}
	return StatusPending
}

func toMinorAmount(amount decimal.Decimal, currency string) (int64, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("%w: amount must be greater than zero", ErrInputInvalid)
	}
	scale := currencyScale(currency)
	return amount.Shift(int32(scale)).Round(0).IntPart(), nil
}

func fromMinorAmount(minor int64, currency string) string {
	scale := currencyScale(currency)
	return decimal.NewFromInt(minor).Shift(int32(-scale)).StringFixed(int32(scale))
}

func currencyScale(currency string) int {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return 0
	}
	return 2
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	payload := strconv.FormatInt(timestamp, 10) + "." + string(body)
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(payload))
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}

func parseSignatureHeader(signatureHeader string) (int64, []string, error) {
	timestamp := int64(0)
	signatures := make([]string, 0)
	for _, part := range strings.Split(signatureHeader, ",") {
		part = strings.TrimSpace(part)
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.TrimSpace(kv[0]) {
		case "t":
			parsed, err := strconv.ParseInt(strings.TrimSpace(kv[1]), 10, 64)
			if err != nil || parsed <= 0 {
				return 0, nil, fmt.Errorf("%w: invalid timestamp", ErrSignatureInvalid)
			}
			timestamp = parsed
		case "v1":
			if value := strings.TrimSpace(kv[1]); value != "" {
				signatures = append(signatures, strings.ToLower(value))
			}
		}
	}
	if timestamp <= 0 {
		return 0, nil, fmt.Errorf("%w: timestamp is missing", ErrSignatureInvalid)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: v1 signature is missing", ErrSignatureInvalid)
	}
	return timestamp, signatures, nil
}

func headerValue(headers map[string]string, key string) string {
	for h, value := range headers {
		if strings.EqualFold(strings.TrimSpace(h), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	default:
		return ""
	}
}

func readInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil {
		return 0
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return 0
	}
	switch typed := value.(type) {
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
