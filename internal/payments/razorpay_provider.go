package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
)

const defaultCurrency = "INR"

// RazorpayProvider implements Provider on top of the Razorpay REST client.
type RazorpayProvider struct {
	client *razorpay.Client
}

// NewRazorpayProvider constructs a Razorpay-backed payment provider.
func NewRazorpayProvider(keyID, keySecret string) (*RazorpayProvider, error) {
	key := strings.TrimSpace(keyID)
	secret := strings.TrimSpace(keySecret)
	if key == "" || secret == "" {
		return nil, errors.New("razorpay provider: key id and secret are required")
	}
	return &RazorpayProvider{
		client: razorpay.NewClient(key, secret),
	}, nil
}

// CreateOrder opens a gateway order for the given paise amount.
func (p *RazorpayProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	if p == nil || p.client == nil {
		return GatewayOrder{}, errors.New("razorpay provider not initialised")
	}
	if err := ctx.Err(); err != nil {
		return GatewayOrder{}, err
	}
	if req.AmountPaise <= 0 {
		return GatewayOrder{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	body := map[string]interface{}{
		"amount":   req.AmountPaise,
		"currency": currency,
	}
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		body["receipt"] = receipt
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		body["notes"] = notes
	}

	res, err := p.client.Order.Create(body, nil)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: create order: %v", ErrGatewayUnavailable, err)
	}

	order := GatewayOrder{
		ID:          stringField(res, "id"),
		AmountPaise: int64Field(res, "amount"),
		Currency:    stringField(res, "currency"),
		Receipt:     stringField(res, "receipt"),
		Status:      Status(stringField(res, "status")),
	}
	if order.ID == "" {
		return GatewayOrder{}, fmt.Errorf("%w: create order: response missing id", ErrGatewayUnavailable)
	}
	if order.Status == "" {
		order.Status = StatusCreated
	}
	return order, nil
}

// Refund issues a partial or full refund against a captured payment.
func (p *RazorpayProvider) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if p == nil || p.client == nil {
		return RefundResult{}, errors.New("razorpay provider not initialised")
	}
	if err := ctx.Err(); err != nil {
		return RefundResult{}, err
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return RefundResult{}, fmt.Errorf("%w: payment id is required", ErrInvalidRequest)
	}
	if req.AmountPaise <= 0 {
		return RefundResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	data := map[string]interface{}{}
	notes := make(map[string]interface{}, len(req.Notes)+1)
	for k, v := range req.Notes {
		notes[k] = v
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		notes["reason"] = reason
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	res, err := p.client.Payment.Refund(paymentID, int(req.AmountPaise), data, nil)
	if err != nil {
		return RefundResult{}, fmt.Errorf("%w: refund: %v", ErrGatewayUnavailable, err)
	}

	result := RefundResult{
		RefundID:    stringField(res, "id"),
		AmountPaise: int64Field(res, "amount"),
		Status:      normaliseRefundStatus(stringField(res, "status")),
	}
	if result.RefundID == "" {
		return RefundResult{}, fmt.Errorf("%w: refund: response missing id", ErrGatewayUnavailable)
	}
	return result, nil
}

func normaliseRefundStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "processed":
		return StatusRefunded
	case "failed":
		return StatusFailed
	default:
		return StatusCreated
	}
}

func stringField(res map[string]interface{}, key string) string {
	value, _ := res[key].(string)
	return strings.TrimSpace(value)
}

func int64Field(res map[string]interface{}, key string) int64 {
	switch value := res[key].(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case float64:
		return int64(value)
	case json.Number:
		parsed, _ := value.Int64()
		return parsed
	default:
		return 0
	}
}

var _ Provider = (*RazorpayProvider)(nil)
