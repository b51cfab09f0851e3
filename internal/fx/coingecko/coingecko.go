package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrPairUnsupported = errors.New("coingecko pair unsupported")
	ErrRequestFailed   = errors.New("coingecko request failed")
	ErrResponseInvalid = errors.New("coingecko response invalid")
)

const (
	defaultBaseURL = "https://api.coingecko.com"
	defaultTimeout = 5 * time.Second
)

// coinIDs 货币代码到 CoinGecko ID 的映射
var coinIDs = map[string]string{
	"USDC": "usd-coin",
	"USDT": "tether",
	"DAI":  "dai",
	"BUSD": "binance-usd",
	"TUSD": "true-usd",
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"BNB":  "binancecoin",
	"SOL":  "solana",
	"XRP":  "ripple",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"USD":  "usd",
	"EUR":  "eur",
	"GBP":  "gbp",
	"CNY":  "cny",
	"JPY":  "jpy",
	"SGD":  "sgd",
	"HKD":  "hkd",
	"KRW":  "krw",
	"INR":  "inr",
	"CAD":  "cad",
	"AUD":  "aud",
	"CHF":  "chf",
	"BRL":  "brl",
}

// cryptoIDs simple/price 的 ids 参数只接受加密货币 ID
var cryptoIDs = map[string]struct{}{
	"bitcoin":     {},
	"ethereum":    {},
	"binancecoin": {},
	"solana":      {},
	"ripple":      {},
	"cardano":     {},
	"dogecoin":    {},
	"usd-coin":    {},
	"tether":      {},
	"dai":         {},
	"binance-usd": {},
	"true-usd":    {},
}

// Client CoinGecko simple/price 客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 创建客户端
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name 来源名称
func (c *Client) Name() string {
	return "coingecko"
}

// GetRate 获取 from -> to 汇率（以两侧 USD 价格换算）
func (c *Client) GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	from := strings.ToUpper(strings.TrimSpace(fromCurrency))
	to := strings.ToUpper(strings.TrimSpace(toCurrency))
	if from == to {
		return 1.0, nil
	}

	fromID, okFrom := coinIDs[from]
	toID, okTo := coinIDs[to]
	_, fromCrypto := cryptoIDs[fromID]
	_, toCrypto := cryptoIDs[toID]
	// simple/price 无法处理法币对法币
	if !okFrom || !okTo || (!fromCrypto && !toCrypto) {
		return 0, fmt.Errorf("%w: %s -> %s", ErrPairUnsupported, from, to)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	query := url.Values{}
	query.Set("ids", fromID+","+toID)
	query.Set("vs_currencies", "usd")
	endpoint := c.baseURL + "/api/v3/simple/price?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrRequestFailed, err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("%w: read body: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	var prices map[string]map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	fromPrice := prices[fromID]["usd"]
	toPrice := prices[toID]["usd"]
	if fromPrice <= 0 || toPrice <= 0 {
		return 0, fmt.Errorf("%w: missing price %s=%v %s=%v", ErrResponseInvalid, fromID, fromPrice, toID, toPrice)
	}

	return fromPrice / toPrice, nil
}
