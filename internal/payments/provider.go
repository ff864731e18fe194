package payments

import (
	"context"
	"errors"
)

// Status enumerates the normalised gateway states shared across providers.
type Status string

const (
	// StatusCreated indicates the gateway order exists but is unpaid.
	StatusCreated Status = "created"
	// StatusCaptured indicates the gateway captured the payment.
	StatusCaptured Status = "captured"
	// StatusFailed indicates the gateway reported a failure.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded.
	StatusRefunded Status = "refunded"
)

// ErrGatewayUnavailable is returned when the gateway cannot be reached or
// rejects the request for transient reasons.
var ErrGatewayUnavailable = errors.New("payments: gateway unavailable")

// ErrInvalidRequest is returned when the gateway rejects the request payload.
var ErrInvalidRequest = errors.New("payments: invalid request")

// CreateOrderRequest captures the payload required to open a gateway order.
// Amounts are integer paise.
type CreateOrderRequest struct {
	AmountPaise int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// GatewayOrder represents the gateway order returned to the client for checkout.
type GatewayOrder struct {
	ID          string
	AmountPaise int64
	Currency    string
	Receipt     string
	Status      Status
}

// RefundRequest defines a gateway refund attempt against a captured payment.
type RefundRequest struct {
	PaymentID   string
	AmountPaise int64
	Reason      string
	Notes       map[string]string
}

// RefundResult normalises the gateway refund record for storage.
type RefundResult struct {
	RefundID    string
	AmountPaise int64
	Status      Status
}

// Provider defines the contract gateway adapters implement.
type Provider interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}
