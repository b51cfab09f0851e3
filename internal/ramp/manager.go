package ramp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/paymind-next/internal/constants"
	"github.com/paymind-next/internal/logger"
)

var (
	ErrProviderNotFound   = errors.New("ramp provider not found")
	ErrNoQuoteAvailable   = errors.New("no ramp provider returned a quote")
	ErrAllProvidersFailed = errors.New("all ramp providers failed")
)

// 连续失败达到阈值后标记为不健康，探测成功即恢复
const maxConsecutiveFailures = 3

// 健康探测用报价：金额取 100 避免低于供应商最小限额
const (
	probeAmount       = 100.0
	probeFromCurrency = "USD"
	probeToCurrency   = "ETH"
)

// Health 供应商健康状态
type Health struct {
	ProviderID          string    `json:"provider_id"`
	Healthy             bool      `json:"healthy"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Manager 统一管理供应商：注册、比价、健康检查与故障转移
type Manager struct {
	now func() time.Time

	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	health    map[string]*Health
}

// NewManager 创建管理器
func NewManager(providers ...Provider) *Manager {
	m := &Manager{
		now:       time.Now,
		providers: make(map[string]Provider),
		health:    make(map[string]*Health),
	}
	for _, p := range providers {
		m.Register(p)
	}
	return m
}

// Register 注册供应商，后续遍历顺序与注册顺序一致
func (m *Manager) Register(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.providers[p.ID()]; !exists {
		m.order = append(m.order, p.ID())
	}
	m.providers[p.ID()] = p
	logger.Infow("ramp_provider_registered", "provider", p.ID(), "name", p.Name())
}

// Get 查询供应商，不存在返回 nil
func (m *Manager) Get(providerID string) Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[providerID]
}

// IsHealthy 新注册且未检查过的供应商默认健康
func (m *Manager) IsHealthy(providerID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	health, ok := m.health[providerID]
	if !ok {
		return true
	}
	return health.Healthy
}

// HealthSnapshot 返回所有供应商健康状态的拷贝（管理界面用）
func (m *Manager) HealthSnapshot() []Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Health, 0, len(m.health))
	for _, id := range m.order {
		if health, ok := m.health[id]; ok {
			out = append(out, *health)
		}
	}
	return out
}

// MarkUnhealthy 手动下线供应商（如 webhook 连续失败时）
func (m *Manager) MarkUnhealthy(providerID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	health := m.healthEntryLocked(providerID)
	health.Healthy = false
	health.ConsecutiveFailures = maxConsecutiveFailures
	health.LastError = reason
	health.LastCheck = m.now()
	logger.Warnw("ramp_provider_marked_unhealthy", "provider", providerID, "reason", reason)
}

// MarkHealthy 手动恢复供应商
func (m *Manager) MarkHealthy(providerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	health := m.healthEntryLocked(providerID)
	health.Healthy = true
	health.ConsecutiveFailures = 0
	health.LastError = ""
	health.LastCheck = m.now()
	logger.Infow("ramp_provider_marked_healthy", "provider", providerID)
}

func (m *Manager) healthEntryLocked(providerID string) *Health {
	health, ok := m.health[providerID]
	if !ok {
		health = &Health{ProviderID: providerID, Healthy: true}
		m.health[providerID] = health
	}
	return health
}

func (m *Manager) recordSuccess(providerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	health := m.healthEntryLocked(providerID)
	health.Healthy = true
	health.ConsecutiveFailures = 0
	health.LastError = ""
	health.LastCheck = m.now()
}

func (m *Manager) recordFailure(providerID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	health := m.healthEntryLocked(providerID)
	health.ConsecutiveFailures++
	health.LastError = err.Error()
	health.LastCheck = m.now()
	if health.ConsecutiveFailures >= maxConsecutiveFailures {
		if health.Healthy {
			logger.Warnw("ramp_provider_unhealthy",
				"provider", providerID,
				"consecutive_failures", health.ConsecutiveFailures,
				"error", err,
			)
		}
		health.Healthy = false
	} else {
		logger.Debugw("ramp_provider_probe_failed",
			"provider", providerID,
			"consecutive_failures", health.ConsecutiveFailures,
			"error", err,
		)
	}
}

// snapshotProviders 按注册顺序返回供应商列表
func (m *Manager) snapshotProviders() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Provider, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.providers[id])
	}
	return out
}

// CheckAllHealth 对所有供应商执行一次健康探测（由后台周期任务调用）。
// 内置供应商不走外部网络，跳过探测。
func (m *Manager) CheckAllHealth(ctx context.Context) {
	for _, p := range m.snapshotProviders() {
		if p.ID() == constants.ProviderMockpay {
			continue
		}
		if _, err := p.GetQuote(ctx, probeAmount, probeFromCurrency, probeToCurrency); err != nil {
			m.recordFailure(p.ID(), err)
			continue
		}
		m.recordSuccess(p.ID())
	}
}

// GetBestQuote 在健康且具备入金能力的供应商中比价，取到手数量最高者
func (m *Manager) GetBestQuote(ctx context.Context, amount float64, fromCurrency, toCurrency string) (*Quote, error) {
	var best *Quote
	for _, p := range m.snapshotProviders() {
		if !p.SupportsOnRamp() || !m.IsHealthy(p.ID()) {
			continue
		}
		quote, err := p.GetQuote(ctx, amount, fromCurrency, toCurrency)
		if err != nil {
			m.recordFailure(p.ID(), err)
			continue
		}
		m.recordSuccess(p.ID())
		if best == nil || quote.EstimatedAmount > best.EstimatedAmount {
			best = quote
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoQuoteAvailable, fromCurrency, toCurrency)
	}
	return best, nil
}

// ExecuteOnRampWithFailover 按注册顺序尝试健康供应商，失败自动切换下一家
func (m *Manager) ExecuteOnRampWithFailover(ctx context.Context, params OnRampParams, excludeProviders ...string) (*OnRampResult, string, error) {
	excluded := make(map[string]struct{}, len(excludeProviders))
	for _, id := range excludeProviders {
		excluded[id] = struct{}{}
	}

	var lastErr error
	for _, p := range m.snapshotProviders() {
		if _, skip := excluded[p.ID()]; skip {
			continue
		}
		if !p.SupportsOnRamp() || !m.IsHealthy(p.ID()) {
			continue
		}
		result, err := p.ExecuteOnRamp(ctx, params)
		if err != nil {
			m.recordFailure(p.ID(), err)
			logger.Warnw("ramp_onramp_failover", "provider", p.ID(), "error", err)
			lastErr = err
			continue
		}
		m.recordSuccess(p.ID())
		return result, p.ID(), nil
	}
	if lastErr != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
	}
	return nil, "", ErrAllProvidersFailed
}

// ExecuteOffRampWithFailover 出金路径的故障转移
func (m *Manager) ExecuteOffRampWithFailover(ctx context.Context, params OffRampParams, excludeProviders ...string) (*OffRampResult, string, error) {
	excluded := make(map[string]struct{}, len(excludeProviders))
	for _, id := range excludeProviders {
		excluded[id] = struct{}{}
	}

	var lastErr error
	for _, p := range m.snapshotProviders() {
		if _, skip := excluded[p.ID()]; skip {
			continue
		}
		if !p.SupportsOffRamp() || !m.IsHealthy(p.ID()) {
			continue
		}
		result, err := p.ExecuteOffRamp(ctx, params)
		if err != nil {
			m.recordFailure(p.ID(), err)
			logger.Warnw("ramp_offramp_failover", "provider", p.ID(), "error", err)
			lastErr = err
			continue
		}
		m.recordSuccess(p.ID())
		return result, p.ID(), nil
	}
	if lastErr != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
	}
	return nil, "", ErrAllProvidersFailed
}
