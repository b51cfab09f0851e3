package mockpay

import (
	"context"
	"math"
	"testing"

	"github.com/paymind-next/internal/ramp"
)

func TestGetQuoteDeterministic(t *testing.T) {
	p := NewProvider()

	quote, err := p.GetQuote(context.Background(), 100, "USD", "USDC")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if quote.Fee != 1.5 {
		t.Fatalf("expected 1.5 fee on 100, got %v", quote.Fee)
	}
	if math.Abs(quote.EstimatedAmount-98.5) > 1e-9 {
		t.Fatalf("expected 98.5 estimated, got %v", quote.EstimatedAmount)
	}
}

func TestGetQuoteCrossRate(t *testing.T) {
	p := NewProvider()

	quote, err := p.GetQuote(context.Background(), 720, "CNY", "USDT")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	want := (720 - 720*0.015) / 7.2
	if math.Abs(quote.EstimatedAmount-want) > 1e-9 {
		t.Fatalf("expected %v estimated, got %v", want, quote.EstimatedAmount)
	}
}

func TestGetQuoteUnsupportedPair(t *testing.T) {
	p := NewProvider()

	if _, err := p.GetQuote(context.Background(), 10, "USD", "XYZ"); err == nil {
		t.Fatal("expected error for unsupported pair")
	}
}

func TestExecuteOnRampCompletesImmediately(t *testing.T) {
	p := NewProvider()

	result, err := p.ExecuteOnRamp(context.Background(), ramp.OnRampParams{Amount: 50, FromCurrency: "USD", ToCurrency: "usdc"})
	if err != nil {
		t.Fatalf("ExecuteOnRamp failed: %v", err)
	}
	if result.Status != "completed" {
		t.Fatalf("expected completed status, got %s", result.Status)
	}
	if result.CryptoCurrency != "USDC" {
		t.Fatalf("expected USDC, got %s", result.CryptoCurrency)
	}
	if result.TransactionID == "" || result.WidgetURL == "" {
		t.Fatalf("expected transaction id and widget url, got %+v", result)
	}
}
