package routing

import (
	"sync"

	"github.com/paymind-next/internal/constants"

	"github.com/shopspring/decimal"
)

// Channel 结算渠道配置快照
type Channel struct {
	Method              string          `json:"method"`
	Name                string          `json:"name"`
	Priority            int             `json:"priority"`
	MinAmount           decimal.Decimal `json:"min_amount"`
	MaxAmount           decimal.Decimal `json:"max_amount"`
	Cost                float64         `json:"cost"`
	Speed               int             `json:"speed"`
	Available           bool            `json:"available"`
	KYCRequired         bool            `json:"kyc_required"`
	CrossBorder         bool            `json:"cross_border"`
	SupportedCurrencies []string        `json:"supported_currencies"`
}

// SupportsCurrency 判断渠道是否声明支持该币种（未声明视为全部支持）
func (c Channel) SupportsCurrency(currency string) bool {
	if len(c.SupportedCurrencies) == 0 {
		return true
	}
	for _, cur := range c.SupportedCurrencies {
		if cur == currency {
			return true
		}
	}
	return false
}

// Registry 渠道注册表，读多写少，admin 启停是唯一的写入口
type Registry struct {
	mu       sync.RWMutex
	channels []Channel
}

// NewRegistry 创建注册表（保持注册顺序，得分相同先注册者胜出）
func NewRegistry(channels ...Channel) *Registry {
	r := &Registry{channels: make([]Channel, 0, len(channels))}
	r.channels = append(r.channels, channels...)
	return r
}

// DefaultChannels 默认四条结算渠道
func DefaultChannels() []Channel {
	return []Channel{
		{
			Method:              constants.MethodCard,
			Name:                "银行卡收单",
			Priority:            50,
			MinAmount:           decimal.NewFromInt(1),
			MaxAmount:           decimal.NewFromInt(1000000),
			Cost:                0.029,
			Speed:               9,
			Available:           true,
			KYCRequired:         false,
			CrossBorder:         false,
			SupportedCurrencies: []string{"USD", "EUR", "GBP", "CNY", "JPY"},
		},
		{
			Method:              constants.MethodWallet,
			Name:                "链上钱包转账",
			Priority:            60,
			MinAmount:           decimal.NewFromFloat(0.001),
			MaxAmount:           decimal.NewFromInt(1000000),
			Cost:                0.001,
			Speed:               7,
			Available:           true,
			CrossBorder:         true,
			SupportedCurrencies: []string{"USDC", "USDT", "ETH", "BTC"},
		},
		{
			Method:              constants.MethodX402,
			Name:                "x402 自动扣款协议",
			Priority:            90,
			MinAmount:           decimal.NewFromFloat(0.0001),
			MaxAmount:           decimal.NewFromInt(1000000),
			Cost:                0.003,
			Speed:               9,
			Available:           true,
			CrossBorder:         true,
			SupportedCurrencies: []string{"USDC", "USDT", "ETH", "BTC"},
		},
		{
			Method:              constants.MethodMultisig,
			Name:                "多签大额转账",
			Priority:            40,
			MinAmount:           decimal.NewFromInt(1000),
			MaxAmount:           decimal.NewFromInt(10000000),
			Cost:                0.002,
			Speed:               5,
			Available:           true,
			CrossBorder:         true,
			SupportedCurrencies: []string{"USDC", "USDT", "ETH", "BTC"},
		},
	}
}

// Snapshot 返回渠道副本，调用方可安全并发读取
func (r *Registry) Snapshot() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, len(r.channels))
	copy(out, r.channels)
	return out
}

// Get 根据渠道标识获取渠道副本
func (r *Registry) Get(method string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.channels {
		if c.Method == method {
			return c, true
		}
	}
	return Channel{}, false
}

// SetAvailable 切换渠道可用状态，返回是否命中
func (r *Registry) SetAvailable(method string, available bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.channels {
		if r.channels[i].Method == method {
			r.channels[i].Available = available
			return true
		}
	}
	return false
}

// Replace 整体替换渠道配置（启动时从持久化状态恢复）
func (r *Registry) Replace(channels []Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = make([]Channel, len(channels))
	copy(r.channels, channels)
}
