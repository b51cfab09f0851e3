package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrPairUnsupported = errors.New("binance pair unsupported")
	ErrRequestFailed   = errors.New("binance request failed")
	ErrResponseInvalid = errors.New("binance response invalid")
)

const (
	defaultBaseURL = "https://api.binance.com"
	defaultTimeout = 5 * time.Second
)

// fiatCodes Binance 没有法币现货交易对
var fiatCodes = map[string]struct{}{
	"CNY": {},
	"USD": {},
	"EUR": {},
	"GBP": {},
	"JPY": {},
	"INR": {},
}

// Client Binance 行情客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建客户端
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name 来源名称
func (c *Client) Name() string {
	return "binance"
}

// GetRate 获取 from -> to 汇率，先查直接交易对，失败时经 USDT 中转
func (c *Client) GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	from := strings.ToUpper(strings.TrimSpace(fromCurrency))
	to := strings.ToUpper(strings.TrimSpace(toCurrency))
	if from == to {
		return 1.0, nil
	}

	if rate, err := c.tickerPrice(ctx, from+to); err == nil {
		return rate, nil
	}

	// 法币没有现货交易对，中转也无意义
	if _, fiat := fiatCodes[from]; fiat {
		return 0, fmt.Errorf("%w: fiat pair %s%s", ErrPairUnsupported, from, to)
	}

	fromUSDT, err := c.tickerPrice(ctx, from+"USDT")
	if err != nil {
		return 0, err
	}
	toUSDT, err := c.tickerPrice(ctx, to+"USDT")
	if err != nil {
		return 0, err
	}
	if toUSDT <= 0 {
		return 0, fmt.Errorf("%w: zero pivot price for %sUSDT", ErrResponseInvalid, to)
	}
	return fromUSDT / toUSDT, nil
}

func (c *Client) tickerPrice(ctx context.Context, symbol string) (float64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	query := url.Values{}
	query.Set("symbol", symbol)
	endpoint := c.baseURL + "/api/v3/ticker/price?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrRequestFailed, err)
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
		return 0, fmt.Errorf("%w: status %d symbol %s", ErrRequestFailed, resp.StatusCode, symbol)
	}

	var payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(payload.Price), 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%w: bad price %q for %s", ErrResponseInvalid, payload.Price, symbol)
	}
	return price, nil
}
