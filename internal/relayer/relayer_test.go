package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSubmitTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var request TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if request.ChainID != 8453 {
			t.Fatalf("expected default chain id applied, got %d", request.ChainID)
		}
		w.Write([]byte(`{"tx_hash":"0xabc","status":"pending"}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, ChainID: 8453})
	result, err := c.SubmitTransfer(context.Background(), TransferRequest{
		SessionID: "sess_1",
		From:      "0xfrom",
		To:        "0xto",
		Amount:    decimal.NewFromFloat(0.05),
		Currency:  "USDC",
	})
	if err != nil {
		t.Fatalf("SubmitTransfer failed: %v", err)
	}
	if result.TxHash != "0xabc" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSubmitTransferRejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"tx_hash":"0xdead","status":"failed"}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	if _, err := c.SubmitTransfer(context.Background(), TransferRequest{Amount: decimal.NewFromInt(1), Currency: "USDC"}); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
}

func TestSubmitTransferRequiresEndpoint(t *testing.T) {
	c := NewClient(Config{})
	if _, err := c.SubmitTransfer(context.Background(), TransferRequest{Amount: decimal.NewFromInt(1)}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestGetReceipt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers/0xabc" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"tx_hash":"0xabc","status":"confirmed","block_number":123,"confirmations":6}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	receipt, err := c.GetReceipt(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("GetReceipt failed: %v", err)
	}
	if receipt.Status != "confirmed" || receipt.Confirmations != 6 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}
