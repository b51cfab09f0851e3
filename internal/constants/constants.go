package constants

// 支付状态常量
const (
	PaymentStatusPending    = "PENDING"
	PaymentStatusProcessing = "PROCESSING"
	PaymentStatusCompleted  = "COMPLETED"
	PaymentStatusFailed     = "FAILED"
)

// 结算渠道常量
const (
	MethodCard     = "card"
	MethodWallet   = "wallet"
	MethodX402     = "x402"
	MethodMultisig = "multisig"
	MethodRamp     = "ramp"
)

// 路由场景常量
const (
	ScenarioStandard     = "standard"
	ScenarioQRPay        = "qr_pay"
	ScenarioMicroSub     = "micro_sub"
	ScenarioWalletDirect = "wallet_direct"
)

// 资金流向常量
const (
	FlowTypeFiat         = "fiat"
	FlowTypeCrypto       = "crypto"
	FlowTypeFiatToCrypto = "fiat_to_crypto"
)

// 商户收款配置常量
const (
	MerchantPaymentFiatOnly   = "fiat_only"
	MerchantPaymentCryptoOnly = "crypto_only"
	MerchantPaymentBoth       = "both"
)

// KYC 等级常量
const (
	KYCLevelNone     = "NONE"
	KYCLevelBasic    = "BASIC"
	KYCLevelAdvanced = "ADVANCED"
)

// 托管状态常量
const (
	EscrowStatusNone     = "none"
	EscrowStatusHeld     = "held"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
)

// 订单类型常量
const (
	OrderTypeProduct  = "product"
	OrderTypePhysical = "physical"
	OrderTypeVirtual  = "virtual"
	OrderTypeNFT      = "nft"
	OrderTypeService  = "service"
)

// 风控决策常量
const (
	RiskDecisionApprove = "approve"
	RiskDecisionReview  = "review"
	RiskDecisionReject  = "reject"
)

// 提供方会话状态常量
const (
	SessionStatusPending   = "pending"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
	SessionStatusExpired   = "expired"
)

// 提供方方向常量
const (
	RampDirectionOnRamp  = "onramp"
	RampDirectionOffRamp = "offramp"
)

// 提供方标识常量
const (
	ProviderTransak = "transak"
	ProviderMockpay = "mockpay"
)

// 汇率来源常量
const (
	RateSourceCoinGecko = "coingecko"
	RateSourceBinance   = "binance"
	RateSourceStatic    = "static"
	RateSourceIdentity  = "identity"
)

// 队列常量
const (
	QueueDefault             = "default"
	TaskEscrowAutoRelease    = "escrow:auto_release"
	TaskProviderSessionSweep = "provider_session:timeout_expire"
	TaskSettlementNotify     = "settlement:notify"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "pm"
)

// 法币集合（用于路由失败后的币种分流）
var FiatCurrencies = []string{"USD", "EUR", "GBP", "CNY", "JPY", "KRW", "INR", "BRL"}

// IsFiatCurrency 判断币种是否为法币
func IsFiatCurrency(currency string) bool {
	for _, c := range FiatCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}
