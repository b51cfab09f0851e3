// Package transak 对接 Transak 的入金/出金接口。
// Transak 以前端 Widget 为主要集成方式，后端负责创建会话、
// 报价、出金下单与 webhook 验签。
package transak

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/logger"
	"github.com/paymind-next/internal/ramp"

	"github.com/google/uuid"
)

var (
	ErrNotConfigured   = errors.New("transak api key not configured")
	ErrRequestFailed   = errors.New("transak request failed")
	ErrResponseInvalid = errors.New("transak response invalid")
)

const (
	defaultBaseURL   = "https://api.transak.com"
	defaultTimeout   = 30 * time.Second
	quoteValidityTTL = 5 * time.Minute
	envProduction    = "PRODUCTION"
	widgetURLLive    = "https://global.transak.com"
	widgetURLSandbox = "https://global-stg.transak.com"
)

// Config 适配器配置
type Config struct {
	APIKey        string
	AccessToken   string
	WebhookSecret string
	Environment   string
	BaseURL       string
	Timeout       time.Duration
}

// Client Transak 适配器
type Client struct {
	config     Config
	baseURL    string
	widgetURL  string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient 创建适配器
func NewClient(config Config) *Client {
	baseURL := strings.TrimSpace(config.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	widgetURL := widgetURLSandbox
	if strings.EqualFold(config.Environment, envProduction) {
		widgetURL = widgetURLLive
	}
	if config.APIKey == "" {
		logger.Warnw("transak_api_key_missing", "provider", constants.ProviderTransak)
	}
	return &Client{
		config:     config,
		baseURL:    strings.TrimRight(baseURL, "/"),
		widgetURL:  widgetURL,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (c *Client) ID() string   { return constants.ProviderTransak }
func (c *Client) Name() string { return "Transak" }

func (c *Client) SupportsOnRamp() bool      { return true }
func (c *Client) SupportsOffRamp() bool     { return true }
func (c *Client) SupportsFiatPayment() bool { return false }

// GetQuote 查询实时报价
func (c *Client) GetQuote(ctx context.Context, amount float64, fromCurrency, toCurrency string) (*ramp.Quote, error) {
	if c.config.APIKey == "" {
		return nil, ErrNotConfigured
	}

	query := url.Values{}
	query.Set("fiatCurrency", strings.ToUpper(fromCurrency))
	query.Set("cryptoCurrency", strings.ToUpper(toCurrency))
	query.Set("fiatAmount", strconv.FormatFloat(amount, 'f', -1, 64))
	endpoint := c.baseURL + "/api/v2/currencies/price?" + query.Encode()

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		CryptoAmount json.Number `json:"cryptoAmount"`
		Amount       json.Number `json:"amount"`
		Fee          json.Number `json:"fee"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	cryptoAmount := numberOr(payload.CryptoAmount, numberOr(payload.Amount, 0))
	if cryptoAmount <= 0 || amount <= 0 {
		return nil, fmt.Errorf("%w: bad quote amount %v", ErrResponseInvalid, cryptoAmount)
	}

	return &ramp.Quote{
		ProviderID:      c.ID(),
		Rate:            cryptoAmount / amount,
		Fee:             numberOr(payload.Fee, 0),
		EstimatedAmount: cryptoAmount,
		ExpiresAt:       c.now().Add(quoteValidityTTL),
	}, nil
}

// SessionParams Create Session API 参数
type SessionParams struct {
	Amount         float64
	FiatCurrency   string
	CryptoCurrency string
	Network        string
	WalletAddress  string
	OrderID        string
	Email          string
	RedirectURL    string
}

// Session 已创建的 Widget 会话
type Session struct {
	SessionID string `json:"session_id"`
	WidgetURL string `json:"widget_url"`
}

// CreateSession 调用 Create Session API 锁定 Widget 参数
func (c *Client) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	accessToken := c.config.AccessToken
	if accessToken == "" {
		accessToken = c.config.APIKey
	}
	if accessToken == "" {
		return nil, ErrNotConfigured
	}

	widgetParams := map[string]string{
		"fiatAmount":         strconv.FormatFloat(params.Amount, 'f', -1, 64),
		"fiatCurrency":       strings.ToUpper(params.FiatCurrency),
		"cryptoCurrencyCode": strings.ToUpper(params.CryptoCurrency),
	}
	if params.Network != "" {
		widgetParams["network"] = params.Network
	}
	if params.WalletAddress != "" {
		widgetParams["walletAddress"] = params.WalletAddress
	}
	if params.OrderID != "" {
		widgetParams["partnerOrderId"] = params.OrderID
	}
	if params.Email != "" {
		widgetParams["email"] = params.Email
	}
	if params.RedirectURL != "" {
		widgetParams["redirectURL"] = params.RedirectURL
	}

	requestBody, err := json.Marshal(map[string]any{"widgetParams": widgetParams})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal session params: %v", ErrRequestFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/public/v2/session", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, truncate(body, 256))
	}

	var payload struct {
		SessionIDSnake string `json:"session_id"`
		SessionIDCamel string `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	sessionID := payload.SessionIDSnake
	if sessionID == "" {
		sessionID = payload.SessionIDCamel
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrResponseInvalid)
	}

	logger.Infow("transak_session_created", "session_id", sessionID)
	return &Session{
		SessionID: sessionID,
		WidgetURL: fmt.Sprintf("%s?apiKey=%s&sessionId=%s", c.widgetURL, url.QueryEscape(c.config.APIKey), url.QueryEscape(sessionID)),
	}, nil
}

// ExecuteOnRamp 创建 Widget 会话，实际成交由前端完成并经 webhook 回报
func (c *Client) ExecuteOnRamp(ctx context.Context, params ramp.OnRampParams) (*ramp.OnRampResult, error) {
	orderID := params.OrderID
	if orderID == "" {
		orderID = c.newOrderID("on")
	}

	session, err := c.CreateSession(ctx, SessionParams{
		Amount:         params.Amount,
		FiatCurrency:   params.FromCurrency,
		CryptoCurrency: params.ToCurrency,
		Network:        params.Network,
		WalletAddress:  params.WalletAddress,
		OrderID:        orderID,
		Email:          params.Email,
	})
	if err != nil {
		return nil, err
	}

	return &ramp.OnRampResult{
		TransactionID:  session.SessionID,
		Status:         constants.SessionStatusPending,
		CryptoCurrency: strings.ToUpper(params.ToCurrency),
		WidgetURL:      session.WidgetURL,
	}, nil
}

// ExecuteOffRamp 出金下单，状态由 webhook 推进
func (c *Client) ExecuteOffRamp(ctx context.Context, params ramp.OffRampParams) (*ramp.OffRampResult, error) {
	if c.config.APIKey == "" {
		return nil, ErrNotConfigured
	}

	orderID := c.newOrderID("off")
	requestBody, err := json.Marshal(map[string]any{
		"cryptoCurrency": strings.ToUpper(params.FromCurrency),
		"fiatCurrency":   strings.ToUpper(params.ToCurrency),
		"cryptoAmount":   strconv.FormatFloat(params.Amount, 'f', -1, 64),
		"walletAddress":  params.WalletAddress,
		"bankAccount":    params.BankAccount,
		"partnerOrderId": orderID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal order: %v", ErrRequestFailed, err)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v2/offramp/order", requestBody)
	if err != nil {
		return nil, err
	}

	var payload struct {
		OrderID            string      `json:"orderId"`
		ID                 string      `json:"id"`
		FiatAmount         json.Number `json:"fiatAmount"`
		ExpectedFiatAmount json.Number `json:"expectedFiatAmount"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	transactionID := payload.OrderID
	if transactionID == "" {
		transactionID = payload.ID
	}
	if transactionID == "" {
		transactionID = orderID
	}

	return &ramp.OffRampResult{
		TransactionID: transactionID,
		Status:        constants.SessionStatusPending,
		FiatAmount:    numberOr(payload.FiatAmount, numberOr(payload.ExpectedFiatAmount, 0)),
		FiatCurrency:  strings.ToUpper(params.ToCurrency),
	}, nil
}

// VerifySignature HMAC-SHA256 验签。未配置密钥时放行并告警，便于沙箱联调。
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	if c.config.WebhookSecret == "" {
		logger.Warnw("transak_webhook_secret_missing", "provider", constants.ProviderTransak)
		return true
	}
	mac := hmac.New(sha256.New, []byte(c.config.WebhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(signature))), []byte(expected))
}

func (c *Client) do(ctx context.Context, method, endpoint string, requestBody []byte) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if requestBody != nil {
		reader = bytes.NewReader(requestBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrRequestFailed, err)
	}
	req.Header.Set("apiKey", c.config.APIKey)
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func (c *Client) newOrderID(direction string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("transak_%s_%d_%s", direction, c.now().UnixMilli(), suffix)
}

func numberOr(n json.Number, fallback float64) float64 {
	if n == "" {
		return fallback
	}
	value, err := n.Float64()
	if err != nil {
		return fallback
	}
	return value
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
