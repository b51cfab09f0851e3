package fx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrAmountInvalid = errors.New("rate lock amount must be positive")
	ErrLockNotFound  = errors.New("rate lock not found")
)

const (
	defaultCacheTTL      = 60 * time.Second
	defaultLockTTL       = 600 * time.Second
	defaultSourceTimeout = 3 * time.Second
)

// Source 汇率来源
type Source interface {
	Name() string
	GetRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error)
}

// Rate 一次汇率查询结果
type Rate struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Rate      float64   `json:"rate"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"`
}

// RateLock 时间窗口内的锁价
type RateLock struct {
	LockID          string          `json:"lock_id"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	Amount          decimal.Decimal `json:"amount"`
	Rate            float64         `json:"rate"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	Source          string          `json:"source"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
}

type cachedRate struct {
	rate      float64
	source    string
	fetchedAt time.Time
}

// ManagerOptions 汇率管理器配置
type ManagerOptions struct {
	CacheTTL      time.Duration
	LockTTL       time.Duration
	SourceTimeout time.Duration
	Now           func() time.Time
}

// Manager 汇率与锁价管理器。
// 缓存与锁表是多请求共享的可变状态，全部操作持锁；
// 外部来源调用不在锁内进行。
type Manager struct {
	sources       []Source
	cacheTTL      time.Duration
	lockTTL       time.Duration
	sourceTimeout time.Duration
	now           func() time.Time

	mu    sync.Mutex
	cache map[string]cachedRate
	locks map[string]*RateLock
}

// NewManager 创建管理器，来源按给定顺序依次回退
func NewManager(options ManagerOptions, sources ...Source) *Manager {
	if options.CacheTTL <= 0 {
		options.CacheTTL = defaultCacheTTL
	}
	if options.LockTTL <= 0 {
		options.LockTTL = defaultLockTTL
	}
	if options.SourceTimeout <= 0 {
		options.SourceTimeout = defaultSourceTimeout
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Manager{
		sources:       sources,
		cacheTTL:      options.CacheTTL,
		lockTTL:       options.LockTTL,
		sourceTimeout: options.SourceTimeout,
		now:           options.Now,
		cache:         make(map[string]cachedRate),
		locks:         make(map[string]*RateLock),
	}
}

// GetExchangeRate 获取汇率：同币种 1.0 → 缓存 → 来源链 → 静态表兜底
func (m *Manager) GetExchangeRate(ctx context.Context, fromCurrency, toCurrency string) (*Rate, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	from := strings.ToUpper(strings.TrimSpace(fromCurrency))
	to := strings.ToUpper(strings.TrimSpace(toCurrency))
	now := m.now()

	if from == to {
		return &Rate{From: from, To: to, Rate: 1.0, FetchedAt: now, Source: constants.RateSourceIdentity}, nil
	}

	cacheKey := from + "_" + to
	m.mu.Lock()
	if cached, ok := m.cache[cacheKey]; ok && now.Sub(cached.fetchedAt) < m.cacheTTL {
		m.mu.Unlock()
		return &Rate{From: from, To: to, Rate: cached.rate, FetchedAt: cached.fetchedAt, Source: cached.source}, nil
	}
	m.mu.Unlock()

	for _, source := range m.sources {
		sourceCtx, cancel := context.WithTimeout(ctx, m.sourceTimeout)
		rate, err := source.GetRate(sourceCtx, from, to)
		cancel()
		if err != nil {
			logger.Warnw("fx_rate_source_failed", "source", source.Name(), "from", from, "to", to, "error", err)
			continue
		}
		m.storeCache(cacheKey, rate, source.Name(), now)
		return &Rate{From: from, To: to, Rate: rate, FetchedAt: now, Source: source.Name()}, nil
	}

	rate := staticRate(from, to)
	logger.Warnw("fx_rate_using_static_table", "from", from, "to", to, "rate", rate)
	return &Rate{From: from, To: to, Rate: rate, FetchedAt: now, Source: constants.RateSourceStatic}, nil
}

func (m *Manager) storeCache(key string, rate float64, source string, fetchedAt time.Time) {
	m.mu.Lock()
	m.cache[key] = cachedRate{rate: rate, source: source, fetchedAt: fetchedAt}
	m.mu.Unlock()
}

// LockExchangeRate 按当前汇率锁定金额换算结果
func (m *Manager) LockExchangeRate(ctx context.Context, fromCurrency, toCurrency string, amount decimal.Decimal, ttl time.Duration) (*RateLock, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrAmountInvalid, amount.String())
	}
	if ttl <= 0 {
		ttl = m.lockTTL
	}

	rate, err := m.GetExchangeRate(ctx, fromCurrency, toCurrency)
	if err != nil {
		return nil, err
	}

	now := m.now()
	lock := &RateLock{
		LockID:          newLockID(now),
		From:            rate.From,
		To:              rate.To,
		Amount:          amount,
		Rate:            rate.Rate,
		ConvertedAmount: amount.Mul(decimal.NewFromFloat(rate.Rate)),
		Source:          rate.Source,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}

	m.mu.Lock()
	m.locks[lock.LockID] = lock
	m.purgeExpiredLocked(now)
	m.mu.Unlock()

	logger.Debugw("fx_rate_locked",
		"lock_id", lock.LockID,
		"from", lock.From,
		"to", lock.To,
		"rate", lock.Rate,
		"amount", lock.Amount.String(),
		"expires_at", lock.ExpiresAt,
	)
	return lock, nil
}

// GetRateLock 查询锁价，过期视为不存在
func (m *Manager) GetRateLock(lockID string) (*RateLock, bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpiredLocked(now)
	lock, ok := m.locks[lockID]
	if !ok {
		return nil, false
	}
	copied := *lock
	return &copied, true
}

// ValidateRateLock 校验锁价有效性，过期条目读时删除。
// 锁本身不做单次消费限制，调用方须在使用前重新校验。
func (m *Manager) ValidateRateLock(lockID string) (bool, *RateLock) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[lockID]
	if !ok {
		return false, nil
	}
	if now.After(lock.ExpiresAt) {
		delete(m.locks, lockID)
		copied := *lock
		return false, &copied
	}
	copied := *lock
	return true, &copied
}

// PurgeExpiredLocks 清理过期锁，返回清理数量（供后台周期任务调用）
func (m *Manager) PurgeExpiredLocks() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeExpiredLocked(now)
}

func (m *Manager) purgeExpiredLocked(now time.Time) int {
	purged := 0
	for id, lock := range m.locks {
		if now.After(lock.ExpiresAt) {
			delete(m.locks, id)
			purged++
		}
	}
	return purged
}

// LockCount 当前持有的锁数量
func (m *Manager) LockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func newLockID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("lock_%d_%s", now.UnixMilli(), suffix)
}
