package fx

import "github.com/paymind-next/internal/logger"

// usdBaseRates 静态兜底汇率表（1 USD = X 该货币）
var usdBaseRates = map[string]float64{
	// 主流法币
	"USD": 1.0,
	"CNY": 7.2,
	"EUR": 0.92,
	"GBP": 0.79,
	"JPY": 150.0,
	// 亚洲货币
	"SGD": 1.35,
	"HKD": 7.8,
	"KRW": 1350.0,
	"TWD": 32.0,
	"THB": 36.0,
	"MYR": 4.7,
	"IDR": 15800.0,
	"PHP": 56.0,
	"VND": 24500.0,
	"INR": 83.0,
	// 欧洲货币
	"CHF": 0.88,
	"NOK": 10.8,
	"SEK": 10.5,
	"DKK": 6.9,
	"PLN": 4.0,
	"RUB": 92.0,
	// 美洲货币
	"CAD": 1.35,
	"MXN": 17.0,
	"BRL": 5.0,
	"ARS": 850.0,
	"CLP": 950.0,
	// 大洋洲货币
	"AUD": 1.52,
	"NZD": 1.65,
	// 中东/非洲货币
	"AED": 3.67,
	"SAR": 3.75,
	"ILS": 3.7,
	"ZAR": 18.5,
	"TRY": 32.0,
	// 稳定币
	"USDC": 1.0,
	"USDT": 1.0,
	"DAI":  1.0,
	"BUSD": 1.0,
	"TUSD": 1.0,
	// 主流加密货币
	"BTC":  0.000016,
	"ETH":  0.0004,
	"BNB":  0.0016,
	"SOL":  0.01,
	"XRP":  1.5,
	"ADA":  1.2,
	"DOGE": 8.0,
}

var stableCodes = map[string]struct{}{
	"USD":  {},
	"USDC": {},
	"USDT": {},
	"DAI":  {},
	"BUSD": {},
	"TUSD": {},
}

// staticRate 静态表兜底：未知货币按 1:1 处理并告警
func staticRate(from, to string) float64 {
	if from == to {
		return 1.0
	}

	fromRate, okFrom := usdBaseRates[from]
	toRate, okTo := usdBaseRates[to]

	if !okFrom || !okTo {
		if _, stable := stableCodes[from]; stable {
			if !okTo {
				logger.Warnw("fx_rate_static_fallback_unknown_pair", "from", from, "to", to, "assumed", "1:1")
				return 1.0
			}
			return toRate
		}
		if _, stable := stableCodes[to]; stable {
			if !okFrom {
				logger.Warnw("fx_rate_static_fallback_unknown_pair", "from", from, "to", to, "assumed", "1:1")
				return 1.0
			}
			return 1.0 / fromRate
		}
		logger.Warnw("fx_rate_static_fallback_unknown_pair", "from", from, "to", to, "assumed", "1:1")
		return 1.0
	}

	// 例：CNY -> USDT = 1.0 / 7.2
	return toRate / fromRate
}
