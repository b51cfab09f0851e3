package ramp

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProvider struct {
	id             string
	onRamp         bool
	offRamp        bool
	quoteAmount    float64
	quoteErr       error
	executeErr     error
	executeCalls   int
	quoteCalls     int
	lastExecutedID string
}

func (p *stubProvider) ID() string   { return p.id }
func (p *stubProvider) Name() string { return p.id }

func (p *stubProvider) SupportsOnRamp() bool      { return p.onRamp }
func (p *stubProvider) SupportsOffRamp() bool     { return p.offRamp }
func (p *stubProvider) SupportsFiatPayment() bool { return false }

func (p *stubProvider) GetQuote(_ context.Context, amount float64, _, _ string) (*Quote, error) {
	p.quoteCalls++
	if p.quoteErr != nil {
		return nil, p.quoteErr
	}
	return &Quote{
		ProviderID:      p.id,
		Rate:            p.quoteAmount / amount,
		EstimatedAmount: p.quoteAmount,
		ExpiresAt:       time.Now().Add(time.Minute),
	}, nil
}

func (p *stubProvider) ExecuteOnRamp(_ context.Context, params OnRampParams) (*OnRampResult, error) {
	p.executeCalls++
	if p.executeErr != nil {
		return nil, p.executeErr
	}
	p.lastExecutedID = params.OrderID
	return &OnRampResult{TransactionID: p.id + "_tx", Status: "pending"}, nil
}

func (p *stubProvider) ExecuteOffRamp(_ context.Context, params OffRampParams) (*OffRampResult, error) {
	p.executeCalls++
	if p.executeErr != nil {
		return nil, p.executeErr
	}
	return &OffRampResult{TransactionID: p.id + "_tx", Status: "pending", FiatCurrency: params.ToCurrency}, nil
}

func TestGetBestQuotePicksHighestEstimatedAmount(t *testing.T) {
	low := &stubProvider{id: "low", onRamp: true, quoteAmount: 95}
	high := &stubProvider{id: "high", onRamp: true, quoteAmount: 97}
	m := NewManager(low, high)

	quote, err := m.GetBestQuote(context.Background(), 100, "USD", "USDC")
	if err != nil {
		t.Fatalf("GetBestQuote failed: %v", err)
	}
	if quote.ProviderID != "high" {
		t.Fatalf("expected highest quote to win, got %s", quote.ProviderID)
	}
}

func TestGetBestQuoteSkipsUnhealthyProvider(t *testing.T) {
	down := &stubProvider{id: "down", onRamp: true, quoteAmount: 99}
	up := &stubProvider{id: "up", onRamp: true, quoteAmount: 90}
	m := NewManager(down, up)
	m.MarkUnhealthy("down", "webhook failures")

	quote, err := m.GetBestQuote(context.Background(), 100, "USD", "USDC")
	if err != nil {
		t.Fatalf("GetBestQuote failed: %v", err)
	}
	if quote.ProviderID != "up" {
		t.Fatalf("expected healthy provider, got %s", quote.ProviderID)
	}
	if down.quoteCalls != 0 {
		t.Fatalf("unhealthy provider should not be queried, got %d calls", down.quoteCalls)
	}
}

func TestGetBestQuoteNoProviderAvailable(t *testing.T) {
	m := NewManager(&stubProvider{id: "broken", onRamp: true, quoteErr: errors.New("unavailable")})

	if _, err := m.GetBestQuote(context.Background(), 100, "USD", "USDC"); !errors.Is(err, ErrNoQuoteAvailable) {
		t.Fatalf("expected ErrNoQuoteAvailable, got %v", err)
	}
}

func TestHealthFlipsAfterThreeConsecutiveFailures(t *testing.T) {
	p := &stubProvider{id: "flaky", onRamp: true, quoteErr: errors.New("timeout")}
	m := NewManager(p)

	for i := 0; i < maxConsecutiveFailures-1; i++ {
		m.CheckAllHealth(context.Background())
		if !m.IsHealthy("flaky") {
			t.Fatalf("provider unhealthy after %d failures, threshold is %d", i+1, maxConsecutiveFailures)
		}
	}

	m.CheckAllHealth(context.Background())
	if m.IsHealthy("flaky") {
		t.Fatal("expected provider unhealthy after threshold failures")
	}

	// 探测成功即恢复
	p.quoteErr = nil
	p.quoteAmount = 100
	m.CheckAllHealth(context.Background())
	if !m.IsHealthy("flaky") {
		t.Fatal("expected provider healthy after successful probe")
	}
	snapshot := m.HealthSnapshot()
	if len(snapshot) != 1 || snapshot[0].ConsecutiveFailures != 0 {
		t.Fatalf("expected failure counter reset, got %+v", snapshot)
	}
}

func TestExecuteOnRampFailoverOrdering(t *testing.T) {
	first := &stubProvider{id: "first", onRamp: true, executeErr: errors.New("rejected")}
	second := &stubProvider{id: "second", onRamp: true}
	m := NewManager(first, second)

	result, providerID, err := m.ExecuteOnRampWithFailover(context.Background(), OnRampParams{Amount: 50, FromCurrency: "USD", ToCurrency: "USDC", OrderID: "order-1"})
	if err != nil {
		t.Fatalf("ExecuteOnRampWithFailover failed: %v", err)
	}
	if providerID != "second" || result.TransactionID != "second_tx" {
		t.Fatalf("expected failover to second provider, got %s / %+v", providerID, result)
	}
	if first.executeCalls != 1 {
		t.Fatalf("expected first provider attempted once, got %d", first.executeCalls)
	}
	if second.lastExecutedID != "order-1" {
		t.Fatalf("expected params forwarded, got %q", second.lastExecutedID)
	}
}

func TestExecuteOnRampExcludeProviders(t *testing.T) {
	first := &stubProvider{id: "first", onRamp: true}
	second := &stubProvider{id: "second", onRamp: true}
	m := NewManager(first, second)

	_, providerID, err := m.ExecuteOnRampWithFailover(context.Background(), OnRampParams{Amount: 50, FromCurrency: "USD", ToCurrency: "USDC"}, "first")
	if err != nil {
		t.Fatalf("ExecuteOnRampWithFailover failed: %v", err)
	}
	if providerID != "second" {
		t.Fatalf("expected excluded provider skipped, got %s", providerID)
	}
	if first.executeCalls != 0 {
		t.Fatalf("excluded provider must not execute, got %d calls", first.executeCalls)
	}
}

func TestExecuteOnRampAllProvidersFailed(t *testing.T) {
	m := NewManager(&stubProvider{id: "only", onRamp: true, executeErr: errors.New("rejected")})

	if _, _, err := m.ExecuteOnRampWithFailover(context.Background(), OnRampParams{Amount: 50, FromCurrency: "USD", ToCurrency: "USDC"}); !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
}

func TestExecuteOffRampSkipsOnRampOnlyProvider(t *testing.T) {
	onrampOnly := &stubProvider{id: "onramp_only", onRamp: true}
	offramp := &stubProvider{id: "offramp", offRamp: true}
	m := NewManager(onrampOnly, offramp)

	result, providerID, err := m.ExecuteOffRampWithFailover(context.Background(), OffRampParams{Amount: 10, FromCurrency: "USDC", ToCurrency: "USD"})
	if err != nil {
		t.Fatalf("ExecuteOffRampWithFailover failed: %v", err)
	}
	if providerID != "offramp" || result.FiatCurrency != "USD" {
		t.Fatalf("expected offramp-capable provider, got %s / %+v", providerID, result)
	}
	if onrampOnly.executeCalls != 0 {
		t.Fatalf("onramp-only provider must not execute offramp, got %d calls", onrampOnly.executeCalls)
	}
}
