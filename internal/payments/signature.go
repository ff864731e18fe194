package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyCheckoutSignature validates the signature Razorpay hands back after a
// successful checkout: HMAC-SHA256 over "<orderID>|<paymentID>" keyed with the
// key secret, hex encoded. Comparison is constant time.
func VerifyCheckoutSignature(gatewayOrderID, paymentID, signature, secret string) bool {
	orderID := strings.TrimSpace(gatewayOrderID)
	payID := strings.TrimSpace(paymentID)
	sig := strings.TrimSpace(signature)
	if orderID == "" || payID == "" || sig == "" || secret == "" {
		return false
	}
	return hmacEqualHex([]byte(orderID+"|"+payID), sig, secret)
}

// VerifyWebhookSignature validates the X-Razorpay-Signature header: HMAC-SHA256
// over the raw request body keyed with the webhook secret, hex encoded.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	sig := strings.TrimSpace(signature)
	if len(body) == 0 || sig == "" || secret == "" {
		return false
	}
	return hmacEqualHex(body, sig, secret)
}

func hmacEqualHex(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
