package cardproc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCreateCheckout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Fatalf("missing auth header")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("line_items[0][price_data][unit_amount]"); got != "1999" {
			t.Fatalf("expected minor amount 1999, got %s", got)
		}
		if got := r.PostForm.Get("metadata[session_ref]"); got != "sess_abc" {
			t.Fatalf("expected session_ref forwarded, got %s", got)
		}
		w.Write([]byte(`{"id":"cs_123","url":"https://pay.example/cs_123","status":"open","payment_status":"unpaid"}`))
	}))
	defer server.Close()

	c := NewClient(Config{SecretKey: "sk_test", APIBaseURL: server.URL})
	checkout, err := c.CreateCheckout(context.Background(), CheckoutInput{
		SessionRef: "sess_abc",
		PaymentID:  7,
		Amount:     decimal.NewFromFloat(19.99),
		Currency:   "USD",
	})
	if err != nil {
		t.Fatalf("CreateCheckout failed: %v", err)
	}
	if checkout.ProviderSessionID != "cs_123" || checkout.Status != "pending" {
		t.Fatalf("unexpected checkout %+v", checkout)
	}
}

func TestCreateCheckoutZeroDecimalCurrency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("line_items[0][price_data][unit_amount]"); got != "1500" {
			t.Fatalf("expected 1500 for JPY 1500, got %s", got)
		}
		w.Write([]byte(`{"id":"cs_jpy","url":"https://pay.example/cs_jpy"}`))
	}))
	defer server.Close()

	c := NewClient(Config{SecretKey: "sk_test", APIBaseURL: server.URL})
	if _, err := c.CreateCheckout(context.Background(), CheckoutInput{
		SessionRef: "sess_jpy",
		Amount:     decimal.NewFromInt(1500),
		Currency:   "JPY",
	}); err != nil {
		t.Fatalf("CreateCheckout failed: %v", err)
	}
}

func TestCreateCheckoutRejectsNonPositiveAmount(t *testing.T) {
	c := NewClient(Config{SecretKey: "sk_test"})
	if _, err := c.CreateCheckout(context.Background(), CheckoutInput{
		SessionRef: "sess_zero",
		Amount:     decimal.Zero,
		Currency:   "USD",
	}); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestVerifyWebhook(t *testing.T) {
	c := NewClient(Config{SecretKey: "sk_test", WebhookSecret: "whsec_test"})
	now := time.Now()
	c.now = func() time.Time { return now }

	body := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_123",
			"object": "checkout.session",
			"currency": "usd",
			"amount_total": 1999,
			"created": 1760000000,
			"metadata": {"payment_id": "7", "session_ref": "sess_abc"}
		}}
	}`)
	signature := computeSignature("whsec_test", now.Unix(), body)
	headers := map[string]string{
		"Stripe-Signature": fmt.Sprintf("t=%d,v1=%s", now.Unix(), signature),
	}

	event, err := c.VerifyWebhook(headers, body)
	if err != nil {
		t.Fatalf("VerifyWebhook failed: %v", err)
	}
	if event.Status != "success" || event.PaymentID != 7 || event.SessionRef != "sess_abc" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Amount != "19.99" || event.Currency != "USD" {
		t.Fatalf("unexpected amount %s %s", event.Amount, event.Currency)
	}
}

func TestVerifyWebhookBadSignature(t *testing.T) {
	c := NewClient(Config{SecretKey: "sk_test", WebhookSecret: "whsec_test"})
	now := time.Now()
	c.now = func() time.Time { return now }

	body := []byte(`{"id":"evt_2","type":"checkout.session.completed","data":{"object":{}}}`)
	headers := map[string]string{
		"Stripe-Signature": fmt.Sprintf("t=%d,v1=%s", now.Unix(), "00ff00ff"),
	}
	if _, err := c.VerifyWebhook(headers, body); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestVerifyWebhookStaleTimestamp(t *testing.T) {
	c := NewClient(Config{SecretKey: "sk_test", WebhookSecret: "whsec_test"})
	now := time.Now()
	c.now = func() time.Time { return now }

	stale := now.Add(-10 * time.Minute).Unix()
	body := []byte(`{"id":"evt_3","type":"checkout.session.completed","data":{"object":{}}}`)
	signature := computeSignature("whsec_test", stale, body)
	headers := map[string]string{
		"Stripe-Signature": fmt.Sprintf("t=%d,v1=%s", stale, signature),
	}
	if _, err := c.VerifyWebhook(headers, body); err == nil {
		t.Fatal("expected stale timestamp rejection")
	}
}
