package ramp

import (
	"context"
	"time"
)

// Quote 供应商报价
type Quote struct {
	ProviderID      string    `json:"provider_id"`
	Rate            float64   `json:"rate"`
	Fee             float64   `json:"fee"`
	EstimatedAmount float64   `json:"estimated_amount"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// OnRampParams 法币入金参数
type OnRampParams struct {
	UserID        uint64            `json:"user_id"`
	Amount        float64           `json:"amount"`
	FromCurrency  string            `json:"from_currency"`
	ToCurrency    string            `json:"to_currency"`
	Network       string            `json:"network"`
	WalletAddress string            `json:"wallet_address"`
	OrderID       string            `json:"order_id"`
	Email         string            `json:"email"`
	Metadata      map[string]string `json:"metadata"`
}

// OnRampResult 法币入金结果
type OnRampResult struct {
	TransactionID  string  `json:"transaction_id"`
	Status         string  `json:"status"`
	CryptoAmount   float64 `json:"crypto_amount"`
	CryptoCurrency string  `json:"crypto_currency"`
	WidgetURL      string  `json:"widget_url"`
}

// OffRampParams 数字货币出金参数
type OffRampParams struct {
	Amount        float64           `json:"amount"`
	FromCurrency  string            `json:"from_currency"`
	ToCurrency    string            `json:"to_currency"`
	WalletAddress string            `json:"wallet_address"`
	BankAccount   string            `json:"bank_account"`
	Metadata      map[string]string `json:"metadata"`
}

// OffRampResult 数字货币出金结果
type OffRampResult struct {
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	FiatAmount    float64 `json:"fiat_amount"`
	FiatCurrency  string  `json:"fiat_currency"`
}

// Provider 法币/数字货币兑换供应商。
// 能力标记决定供应商能参与哪类流程，报价与执行由各适配器对接真实接口。
type Provider interface {
	ID() string
	Name() string
	SupportsOnRamp() bool
	SupportsOffRamp() bool
	SupportsFiatPayment() bool
	GetQuote(ctx context.Context, amount float64, fromCurrency, toCurrency string) (*Quote, error)
	ExecuteOnRamp(ctx context.Context, params OnRampParams) (*OnRampResult, error)
	ExecuteOffRamp(ctx context.Context, params OffRampParams) (*OffRampResult, error)
}
