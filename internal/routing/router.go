package routing

import (
	"errors"
	"fmt"

	"github.com/paymind-next/internal/constants"

	"github.com/shopspring/decimal"
)

// ErrNoChannelAvailable 过滤与兜底后仍无可用渠道
var ErrNoChannelAvailable = errors.New("no settlement channel available")

// Context 单次路由请求的上下文
type Context struct {
	Amount                decimal.Decimal
	Currency              string
	IsOnChain             bool
	UserKYCLevel          string
	IsCrossBorder         bool
	UserCountry           string
	MerchantCountry       string
	UserCurrency          string
	MerchantCurrency      string
	MerchantPaymentConfig string
	WalletConnected       *bool
	QuickPayEligible      bool
	Scenario              string
}

// CrossBorderRoute 跨境换汇建议（仅展示）
type CrossBorderRoute struct {
	FiatToCrypto        bool   `json:"fiat_to_crypto"`
	CryptoToFiat        bool   `json:"crypto_to_fiat"`
	RecommendedProvider string `json:"recommended_provider"`
}

// PriceComparison 渠道价格对比（仅展示，统一折算为 USDC）
type PriceComparison struct {
	CardPrice          *float64 `json:"card_price,omitempty"`
	CryptoPrice        *float64 `json:"crypto_price,omitempty"`
	FiatToCryptoPrice  *float64 `json:"fiat_to_crypto_price,omitempty"`
	FiatToCryptoVendor string   `json:"fiat_to_crypto_vendor,omitempty"`
}

// Decision 路由决策结果
type Decision struct {
	RecommendedMethod string            `json:"recommended_method"`
	Channels          []Channel         `json:"channels"`
	Reason            string            `json:"reason"`
	RequiresKYC       bool              `json:"requires_kyc"`
	CrossBorderRoute  *CrossBorderRoute `json:"cross_border_route,omitempty"`
	PriceComparison   *PriceComparison  `json:"price_comparison,omitempty"`
	ScenarioType      string            `json:"scenario_type"`
	FlowType          string            `json:"flow_type"`
}

// usdcDisplayRates 价格对比展示用的静态折算率
var usdcDisplayRates = map[string]float64{
	"CNY":  0.14,
	"USD":  1.0,
	"EUR":  1.08,
	"GBP":  1.27,
	"JPY":  0.0067,
	"USDC": 1.0,
	"USDT": 1.0,
}

// SelectBestChannel 基于注册表快照选择最佳结算渠道。
// 纯函数：相同输入与相同快照必然返回相同决策。
func (r *Registry) SelectBestChannel(amount decimal.Decimal, currency string, isOnChain bool, ctx *Context) (*Decision, error) {
	if ctx == nil {
		ctx = &Context{Amount: amount, Currency: currency, IsOnChain: isOnChain}
	}

	scenarioType := detectScenario(ctx)
	walletConnected := ctx.WalletConnected

	// 跨境判定：显式标记或买卖双方国家不同
	isCrossBorder := ctx.IsCrossBorder ||
		(ctx.UserCountry != "" && ctx.MerchantCountry != "" && ctx.UserCountry != ctx.MerchantCountry)

	merchantConfig := ctx.MerchantPaymentConfig
	if merchantConfig == "" {
		merchantConfig = constants.MerchantPaymentBoth
	}

	snapshot := r.Snapshot()
	feasible := make([]Channel, 0, len(snapshot))
	for _, channel := range snapshot {
		if !channel.Available {
			continue
		}
		if amount.LessThan(channel.MinAmount) || amount.GreaterThan(channel.MaxAmount) {
			continue
		}
		// 商户收款方式过滤
		if merchantConfig == constants.MerchantPaymentFiatOnly && channel.Method != constants.MethodCard {
			continue
		}
		if merchantConfig == constants.MerchantPaymentCryptoOnly && channel.Method == constants.MethodCard {
			continue
		}
		if !channel.SupportsCurrency(currency) {
			continue
		}
		// 境内收单不支持跨境
		if isCrossBorder && !channel.CrossBorder && channel.Method == constants.MethodCard {
			continue
		}
		if channel.KYCRequired && ctx.UserKYCLevel == constants.KYCLevelNone {
			continue
		}
		// 扫码场景且钱包明确未连接时不提供钱包类渠道
		if (channel.Method == constants.MethodWallet || channel.Method == constants.MethodX402) &&
			scenarioType == constants.ScenarioQRPay &&
			walletConnected != nil && !*walletConnected {
			continue
		}
		feasible = append(feasible, channel)
	}

	// 兜底：重新放入银行卡渠道，只要金额在其范围内
	if len(feasible) == 0 {
		if card, ok := findChannel(snapshot, constants.MethodCard); ok && card.Available {
			if amount.GreaterThanOrEqual(card.MinAmount) && amount.LessThanOrEqual(card.MaxAmount) {
				feasible = append(feasible, card)
			}
		}
		if len(feasible) == 0 {
			return nil, fmt.Errorf("%w: amount=%s currency=%s scenario=%s merchant_config=%s",
				ErrNoChannelAvailable, amount.String(), currency, scenarioType, merchantConfig)
		}
	}

	// 优先级加分只作用于过滤后的副本
	for i := range feasible {
		if feasible[i].Method == constants.MethodX402 || feasible[i].Method == constants.MethodWallet {
			feasible[i].Priority += 25
		}
	}
	if ctx.IsOnChain {
		if i := indexOfChannel(feasible, constants.MethodX402); i >= 0 {
			feasible[i].Priority += 30
		}
	}
	if isCrossBorder {
		for i := range feasible {
			if feasible[i].CrossBorder {
				feasible[i].Priority += 20
			}
		}
	}
	if scenarioType == constants.ScenarioMicroSub || ctx.QuickPayEligible {
		if i := indexOfChannel(feasible, constants.MethodX402); i >= 0 {
			feasible[i].Priority += 25
		}
	}
	if scenarioType == constants.ScenarioWalletDirect && walletConnected != nil && *walletConnected {
		if i := indexOfChannel(feasible, constants.MethodWallet); i >= 0 {
			feasible[i].Priority += 25
		}
	}

	// 得分 = 优先级*0.4 + (1/成本)*0.3 + 速度*0.3，得分相同先注册者胜出
	best := 0
	bestScore := channelScore(feasible[0])
	for i := 1; i < len(feasible); i++ {
		if s := channelScore(feasible[i]); s > bestScore {
			best = i
			bestScore = s
		}
	}
	recommended := feasible[best]

	flowType := flowTypeFor(recommended.Method, merchantConfig, scenarioType)

	var crossBorderRoute *CrossBorderRoute
	if isCrossBorder && recommended.CrossBorder {
		// 双方结算币种缺省时按请求币种处理
		userCurrency := ctx.UserCurrency
		if userCurrency == "" {
			userCurrency = currency
		}
		merchantCurrency := ctx.MerchantCurrency
		if merchantCurrency == "" {
			merchantCurrency = currency
		}
		crossBorderRoute = &CrossBorderRoute{
			FiatToCrypto:        !isStablecoinCurrency(userCurrency),
			CryptoToFiat:        !isStablecoinCurrency(merchantCurrency),
			RecommendedProvider: "binance",
		}
	}

	return &Decision{
		RecommendedMethod: recommended.Method,
		Channels:          feasible,
		Reason:            reasoning(recommended, amount, ctx.IsOnChain, isCrossBorder, merchantConfig),
		RequiresKYC:       recommended.KYCRequired && ctx.UserKYCLevel == constants.KYCLevelNone,
		CrossBorderRoute:  crossBorderRoute,
		PriceComparison:   priceComparison(amount, currency, feasible, merchantConfig),
		ScenarioType:      scenarioType,
		FlowType:          flowType,
	}, nil
}

func channelScore(channel Channel) float64 {
	costScore := 1 / (channel.Cost + 0.001) // 避免除零
	speedScore := float64(channel.Speed) / 10
	priorityScore := float64(channel.Priority) / 100
	return priorityScore*0.4 + costScore*0.3 + speedScore*0.3
}

func detectScenario(ctx *Context) string {
	if ctx.Scenario != "" {
		return ctx.Scenario
	}
	if ctx.QuickPayEligible {
		return constants.ScenarioMicroSub
	}
	if ctx.WalletConnected != nil && *ctx.WalletConnected {
		return constants.ScenarioWalletDirect
	}
	if ctx.MerchantPaymentConfig == constants.MerchantPaymentCryptoOnly &&
		ctx.WalletConnected != nil && !*ctx.WalletConnected {
		return constants.ScenarioQRPay
	}
	return constants.ScenarioStandard
}

func flowTypeFor(method, merchantConfig, scenario string) string {
	if scenario == constants.ScenarioQRPay {
		return constants.FlowTypeFiatToCrypto
	}
	if method == constants.MethodCard {
		if merchantConfig == constants.MerchantPaymentCryptoOnly {
			return constants.FlowTypeFiatToCrypto
		}
		return constants.FlowTypeFiat
	}
	return constants.FlowTypeCrypto
}

// priceComparison 仅用于前端展示，不参与渠道评分
func priceComparison(amount decimal.Decimal, currency string, feasible []Channel, merchantConfig string) *PriceComparison {
	comparison := &PriceComparison{}
	usdcRate := usdcDisplayRates[currency]
	if usdcRate == 0 {
		usdcRate = 1.0
	}
	amt := amount.InexactFloat64()

	if merchantConfig == constants.MerchantPaymentFiatOnly || merchantConfig == constants.MerchantPaymentBoth {
		if i := indexOfChannel(feasible, constants.MethodCard); i >= 0 {
			// 收单费率 + 固定费用，折算为 USDC
			fiatPrice := amt*(1+feasible[i].Cost) + 0.3
			price := fiatPrice * usdcRate
			comparison.CardPrice = &price
		}
	}

	if merchantConfig == constants.MerchantPaymentCryptoOnly || merchantConfig == constants.MerchantPaymentBoth {
		bestCost := -1.0
		for _, c := range feasible {
			if c.Method != constants.MethodX402 && c.Method != constants.MethodWallet {
				continue
			}
			if bestCost < 0 || c.Cost < bestCost {
				bestCost = c.Cost
			}
		}
		if bestCost >= 0 {
			cryptoAmount := amt
			if currency != "USDC" && currency != "USDT" {
				cryptoAmount = amt * usdcRate
			}
			price := cryptoAmount * (1 + bestCost)
			comparison.CryptoPrice = &price
		}
	}

	if comparison.CardPrice != nil {
		// 估算值：最优出入金提供方通常比收单便宜约 8%
		price := *comparison.CardPrice * 0.92
		comparison.FiatToCryptoPrice = &price
		comparison.FiatToCryptoVendor = "transak"
	}

	if comparison.CardPrice == nil && comparison.CryptoPrice == nil {
		return nil
	}
	return comparison
}

func reasoning(channel Channel, amount decimal.Decimal, isOnChain, isCrossBorder bool, merchantConfig string) string {
	crossBorderSuffix := ""
	if isCrossBorder {
		crossBorderSuffix = "（跨境场景）"
	}
	switch {
	case channel.Method == constants.MethodX402 && isOnChain:
		return "x402 协议：链上支付成本更低，推荐用于链上交易" + crossBorderSuffix
	case channel.Method == constants.MethodCard && merchantConfig == constants.MerchantPaymentFiatOnly:
		return "银行卡收单：商户只接受法币，快速到账"
	case channel.Method == constants.MethodCard && amount.LessThan(decimal.NewFromInt(100)) && !isCrossBorder:
		return "银行卡收单：小额支付，快速到账，推荐用于境内支付"
	case channel.Method == constants.MethodWallet && merchantConfig == constants.MerchantPaymentCryptoOnly:
		return "钱包转账：商户只接受数字货币，链上交易"
	case channel.Method == constants.MethodWallet:
		return "钱包转账：链上交易，推荐用于 Web3 支付" + crossBorderSuffix
	case channel.Method == constants.MethodMultisig && amount.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return "多签转账：大额交易，安全可靠" + crossBorderSuffix
	case isCrossBorder:
		return "跨境支付：推荐数字货币渠道，成本更低，到账更快"
	case merchantConfig == constants.MerchantPaymentCryptoOnly:
		return "商户只接受数字货币：推荐 x402 或钱包转账"
	default:
		return "综合评估：成本、速度、安全性最优"
	}
}

func isStablecoinCurrency(currency string) bool {
	return currency == "USDC" || currency == "USDT"
}

func findChannel(channels []Channel, method string) (Channel, bool) {
	for _, c := range channels {
		if c.Method == method {
			return c, true
		}
	}
	return Channel{}, false
}

func indexOfChannel(channels []Channel, method string) int {
	for i := range channels {
		if channels[i].Method == method {
			return i
		}
	}
	return -1
}
