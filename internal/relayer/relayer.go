// Package relayer 对接链上代付网关。
// 签名与广播在网关侧完成，这里只负责提交转账与查询回执。
package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotConfigured   = errors.New("relayer endpoint not configured")
	ErrRequestFailed   = errors.New("relayer request failed")
	ErrResponseInvalid = errors.New("relayer response invalid")
	ErrTransferFailed  = errors.New("relayer transfer rejected")
)

const defaultTimeout = 30 * time.Second

// TransferRequest 代付转账请求
type TransferRequest struct {
	SessionID   string          `json:"session_id"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ChainID     int64           `json:"chain_id"`
	Signature   string          `json:"signature,omitempty"`
	AuthRef     string          `json:"auth_ref,omitempty"`
	Description string          `json:"description,omitempty"`
}

// TransferResult 转账提交结果
type TransferResult struct {
	TxHash      string     `json:"tx_hash"`
	Status      string     `json:"status"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// Receipt 链上回执
type Receipt struct {
	TxHash        string `json:"tx_hash"`
	Status        string `json:"status"`
	BlockNumber   int64  `json:"block_number"`
	Confirmations int64  `json:"confirmations"`
}

// Config 网关配置
type Config struct {
	BaseURL string
	APIKey  string
	ChainID int64
	Timeout time.Duration
}

// Client 代付网关客户端
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient 创建客户端
func NewClient(config Config) *Client {
	config.BaseURL = strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SubmitTransfer 提交转账，返回交易哈希。
// 网关接受请求不代表上链成功，最终状态由回执或回调确认。
func (c *Client) SubmitTransfer(ctx context.Context, request TransferRequest) (*TransferResult, error) {
	if c.config.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if request.ChainID == 0 {
		request.ChainID = c.config.ChainID
	}
	if !request.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrTransferFailed)
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/transfers", request)
	if err != nil {
		return nil, err
	}

	var result TransferResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if result.TxHash == "" {
		return nil, fmt.Errorf("%w: missing tx hash", ErrResponseInvalid)
	}
	if strings.EqualFold(result.Status, "failed") {
		return nil, fmt.Errorf("%w: tx %s", ErrTransferFailed, result.TxHash)
	}
	return &result, nil
}

// GetReceipt 查询交易回执
func (c *Client) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	if c.config.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, fmt.Errorf("%w: tx hash is required", ErrRequestFailed)
	}

	body, err := c.do(ctx, http.MethodGet, "/v1/transfers/"+url.PathEscape(txHash), nil)
	if err != nil {
		return nil, err
	}

	var receipt Receipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return &receipt, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal payload: %v", ErrRequestFailed, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrRequestFailed, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
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
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}
	return body, nil
}
