package fx

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeSource struct {
	name  string
	rate  float64
	err   error
	calls int
	mu    sync.Mutex
}

func (s *fakeSource) Name() string {
	return s.name
}

func (s *fakeSource) GetRate(_ context.Context, _, _ string) (float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.rate, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGetExchangeRateSameCurrency(t *testing.T) {
	m := NewManager(ManagerOptions{})

	rate, err := m.GetExchangeRate(context.Background(), "usdc", "USDC")
	if err != nil {
		t.Fatalf("GetExchangeRate failed: %v", err)
	}
	if rate.Rate != 1.0 {
		t.Fatalf("expected 1.0 for same currency, got %v", rate.Rate)
	}
}

func TestGetExchangeRateSourceFallbackChain(t *testing.T) {
	primary := &fakeSource{name: "primary", err: errors.New("unavailable")}
	secondary := &fakeSource{name: "secondary", rate: 0.139}
	m := NewManager(ManagerOptions{}, primary, secondary)

	rate, err := m.GetExchangeRate(context.Background(), "CNY", "USDT")
	if err != nil {
		t.Fatalf("GetExchangeRate failed: %v", err)
	}
	if rate.Source != "secondary" || rate.Rate != 0.139 {
		t.Fatalf("expected secondary source rate, got %+v", rate)
	}
	if primary.callCount() != 1 {
		t.Fatalf("expected primary attempted once, got %d", primary.callCount())
	}
}

func TestGetExchangeRateStaticFallback(t *testing.T) {
	failing := &fakeSource{name: "down", err: errors.New("unavailable")}
	m := NewManager(ManagerOptions{}, failing)

	rate, err := m.GetExchangeRate(context.Background(), "CNY", "USDT")
	if err != nil {
		t.Fatalf("GetExchangeRate failed: %v", err)
	}
	if rate.Source != "static" {
		t.Fatalf("expected static source, got %s", rate.Source)
	}
	want := 1.0 / 7.2
	if math.Abs(rate.Rate-want) > 1e-9 {
		t.Fatalf("expected cross rate %.6f, got %.6f", want, rate.Rate)
	}
}

func TestGetExchangeRateUnknownPairDefaultsToOne(t *testing.T) {
	m := NewManager(ManagerOptions{})

	rate, err := m.GetExchangeRate(context.Background(), "ABCX", "ZZZQ")
	if err != nil {
		t.Fatalf("GetExchangeRate failed: %v", err)
	}
	if rate.Rate != 1.0 {
		t.Fatalf("expected 1.0 for unknown pair, got %v", rate.Rate)
	}
}

func TestGetExchangeRateCacheHit(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{name: "live", rate: 2.5}
	m := NewManager(ManagerOptions{Now: clock.Now}, source)

	for i := 0; i < 3; i++ {
		if _, err := m.GetExchangeRate(context.Background(), "ETH", "USDC"); err != nil {
			t.Fatalf("GetExchangeRate failed: %v", err)
		}
	}
	if source.callCount() != 1 {
		t.Fatalf("expected single source call within cache ttl, got %d", source.callCount())
	}

	clock.Advance(61 * time.Second)
	if _, err := m.GetExchangeRate(context.Background(), "ETH", "USDC"); err != nil {
		t.Fatalf("GetExchangeRate failed after ttl: %v", err)
	}
	if source.callCount() != 2 {
		t.Fatalf("expected refetch after cache ttl, got %d calls", source.callCount())
	}
}

func TestLockExchangeRateRejectsNonPositiveAmount(t *testing.T) {
	m := NewManager(ManagerOptions{})

	if _, err := m.LockExchangeRate(context.Background(), "USD", "USDC", decimal.Zero, 0); !errors.Is(err, ErrAmountInvalid) {
		t.Fatalf("expected ErrAmountInvalid for zero amount, got %v", err)
	}
	if _, err := m.LockExchangeRate(context.Background(), "USD", "USDC", decimal.NewFromInt(-5), 0); !errors.Is(err, ErrAmountInvalid) {
		t.Fatalf("expected ErrAmountInvalid for negative amount, got %v", err)
	}
}

func TestRateLockLifecycle(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{name: "live", rate: 2.0}
	m := NewManager(ManagerOptions{Now: clock.Now}, source)

	lock, err := m.LockExchangeRate(context.Background(), "USD", "USDC", decimal.NewFromInt(100), 0)
	if err != nil {
		t.Fatalf("LockExchangeRate failed: %v", err)
	}
	if !lock.ConvertedAmount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected converted amount 200, got %s", lock.ConvertedAmount.String())
	}
	if !lock.ExpiresAt.After(lock.CreatedAt) {
		t.Fatal("expires_at must be after created_at")
	}

	valid, got := m.ValidateRateLock(lock.LockID)
	if !valid || got == nil || got.LockID != lock.LockID {
		t.Fatalf("expected lock valid immediately, got valid=%v lock=%+v", valid, got)
	}

	// 过期后第一次校验失败并删除，之后按不存在处理
	clock.Advance(601 * time.Second)
	valid, _ = m.ValidateRateLock(lock.LockID)
	if valid {
		t.Fatal("expected lock invalid after ttl")
	}
	if _, ok := m.GetRateLock(lock.LockID); ok {
		t.Fatal("expected expired lock to be deleted on read")
	}
}

func TestLockExchangeRateInlinePurge(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{name: "live", rate: 1.0}
	m := NewManager(ManagerOptions{Now: clock.Now}, source)

	if _, err := m.LockExchangeRate(context.Background(), "USD", "USDC", decimal.NewFromInt(1), time.Second); err != nil {
		t.Fatalf("LockExchangeRate failed: %v", err)
	}
	clock.Advance(2 * time.Second)

	// 新的锁定动作顺带清理已过期条目
	if _, err := m.LockExchangeRate(context.Background(), "USD", "USDC", decimal.NewFromInt(1), time.Minute); err != nil {
		t.Fatalf("LockExchangeRate failed: %v", err)
	}
	if count := m.LockCount(); count != 1 {
		t.Fatalf("expected 1 live lock after inline purge, got %d", count)
	}
}

func TestPurgeExpiredLocks(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{name: "live", rate: 1.0}
	m := NewManager(ManagerOptions{Now: clock.Now}, source)

	for i := 0; i < 3; i++ {
		if _, err := m.LockExchangeRate(context.Background(), "USD", "USDC", decimal.NewFromInt(1), time.Second); err != nil {
			t.Fatalf("LockExchangeRate failed: %v", err)
		}
	}
	clock.Advance(2 * time.Second)

	if purged := m.PurgeExpiredLocks(); purged != 3 {
		t.Fatalf("expected 3 purged locks, got %d", purged)
	}
	if count := m.LockCount(); count != 0 {
		t.Fatalf("expected empty lock table, got %d", count)
	}
}
