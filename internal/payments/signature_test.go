package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func signHex(t *testing.T, secret string, payload []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyCheckoutSignature(t *testing.T) {
	const secret = "test_key_secret"
	valid := signHex(t, secret, []byte("order_123|pay_456"))

	cases := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		secret    string
		want      bool
	}{
		{name: "valid", orderID: "order_123", paymentID: "pay_456", signature: valid, secret: secret, want: true},
		{name: "uppercase hex accepted", orderID: "order_123", paymentID: "pay_456", signature: strings.ToUpper(valid), secret: secret, want: true},
		{name: "tampered payment id", orderID: "order_123", paymentID: "pay_457", signature: valid, secret: secret, want: false},
		{name: "wrong secret", orderID: "order_123", paymentID: "pay_456", signature: valid, secret: "other", want: false},
		{name: "empty signature", orderID: "order_123", paymentID: "pay_456", signature: "", secret: secret, want: false},
		{name: "empty order id", orderID: "", paymentID: "pay_456", signature: valid, secret: secret, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := VerifyCheckoutSignature(tc.orderID, tc.paymentID, tc.signature, tc.secret)
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	const secret = "whsec_test"
	body := []byte(`{"event":"payment.captured"}`)
	valid := signHex(t, secret, body)

	if !VerifyWebhookSignature(body, valid, secret) {
		t.Fatal("expected valid signature to verify")
	}
	if VerifyWebhookSignature([]byte(`{"event":"payment.failed"}`), valid, secret) {
		t.Fatal("expected mutated body to fail verification")
	}
	if VerifyWebhookSignature(body, valid, "wrong") {
		t.Fatal("expected wrong secret to fail verification")
	}
	if VerifyWebhookSignature(nil, valid, secret) {
		t.Fatal("expected empty body to fail verification")
	}
}
