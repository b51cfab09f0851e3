// Package mockpay 内置的确定性供应商，用于本地联调与测试。
// 报价按固定汇率表计算，执行动作不出网。
package mockpay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/ramp"

	"github.com/google/uuid"
)

// usdRates 1 USD = X 该货币
var usdRates = map[string]float64{
	"USD":  1.0,
	"EUR":  0.92,
	"GBP":  0.79,
	"CNY":  7.2,
	"JPY":  150.0,
	"USDC": 1.0,
	"USDT": 1.0,
	"ETH":  0.0004,
	"BTC":  0.000016,
	"BNB":  0.0016,
}

const feeRate = 0.015

// Provider 确定性供应商
type Provider struct {
	now func() time.Time
}

// NewProvider 创建供应商
func NewProvider() *Provider {
	return &Provider{now: time.Now}
}

func (p *Provider) ID() string   { return constants.ProviderMockpay }
func (p *Provider) Name() string { return "MockPay" }

func (p *Provider) SupportsOnRamp() bool      { return true }
func (p *Provider) SupportsOffRamp() bool     { return true }
func (p *Provider) SupportsFiatPayment() bool { return true }

// GetQuote 固定汇率报价，扣除 1.5% 手续费
func (p *Provider) GetQuote(_ context.Context, amount float64, fromCurrency, toCurrency string) (*ramp.Quote, error) {
	rate, err := p.rate(fromCurrency, toCurrency)
	if err != nil {
		return nil, err
	}
	fee := amount * feeRate
	return &ramp.Quote{
		ProviderID:      p.ID(),
		Rate:            rate,
		Fee:             fee,
		EstimatedAmount: (amount - fee) * rate,
		ExpiresAt:       p.now().Add(5 * time.Minute),
	}, nil
}

// ExecuteOnRamp 直接按报价成交
func (p *Provider) ExecuteOnRamp(ctx context.Context, params ramp.OnRampParams) (*ramp.OnRampResult, error) {
	quote, err := p.GetQuote(ctx, params.Amount, params.FromCurrency, params.ToCurrency)
	if err != nil {
		return nil, err
	}
	txID := p.newTransactionID("on")
	return &ramp.OnRampResult{
		TransactionID:  txID,
		Status:         constants.SessionStatusCompleted,
		CryptoAmount:   quote.EstimatedAmount,
		CryptoCurrency: strings.ToUpper(params.ToCurrency),
		WidgetURL:      "https://mockpay.local/widget/" + txID,
	}, nil
}

// ExecuteOffRamp 直接按报价成交
func (p *Provider) ExecuteOffRamp(ctx context.Context, params ramp.OffRampParams) (*ramp.OffRampResult, error) {
	quote, err := p.GetQuote(ctx, params.Amount, params.FromCurrency, params.ToCurrency)
	if err != nil {
		return nil, err
	}
	return &ramp.OffRampResult{
		TransactionID: p.newTransactionID("off"),
		Status:        constants.SessionStatusCompleted,
		FiatAmount:    quote.EstimatedAmount,
		FiatCurrency:  strings.ToUpper(params.ToCurrency),
	}, nil
}

func (p *Provider) rate(fromCurrency, toCurrency string) (float64, error) {
	from := strings.ToUpper(strings.TrimSpace(fromCurrency))
	to := strings.ToUpper(strings.TrimSpace(toCurrency))
	if from == to {
		return 1.0, nil
	}
	fromRate, okFrom := usdRates[from]
	toRate, okTo := usdRates[to]
	if !okFrom || !okTo {
		return 0, fmt.Errorf("mockpay: unsupported pair %s -> %s", from, to)
	}
	return toRate / fromRate, nil
}

func (p *Provider) newTransactionID(direction string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("mockpay_%s_%d_%s", direction, p.now().UnixMilli(), suffix)
}
