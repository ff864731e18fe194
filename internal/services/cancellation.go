package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/zenithcart/api/internal/domain"
)

var (
	// ErrOrderNotCancellable indicates the order has progressed past the cancellable statuses.
	ErrOrderNotCancellable = errors.New("order: not cancellable")
	// ErrOrderItemNotFound indicates the addressed item is not part of the order.
	ErrOrderItemNotFound = errors.New("order: item not found")
	// ErrOrderItemAlreadyCancelled indicates the addressed item was cancelled earlier.
	ErrOrderItemAlreadyCancelled = errors.New("order: item already cancelled")
)

// cancellationOutcome is the result of applying a cancellation to an order
// snapshot. RefundAmount is the difference between the total before and after
// the cancellation, which is exactly what the customer is owed back.
type cancellationOutcome struct {
	Order          domain.Order
	RefundAmount   decimal.Decimal
	FullyCancelled bool
}

// cancellableStatus reports whether the order may still be cancelled. Once
// shipment starts the order is locked in.
func cancellableStatus(status domain.OrderStatus) bool {
	return status == domain.OrderStatusPlaced || status == domain.OrderStatusConfirmed
}

// applyOrderCancellation cancels every remaining item and moves the order to
// Cancelled. Pure: operates on a copy, never touches storage.
func applyOrderCancellation(order domain.Order, now time.Time) (cancellationOutcome, error) {
	if !cancellableStatus(order.Status) {
		return cancellationOutcome{}, fmt.Errorf("%w: status %s", ErrOrderNotCancellable, order.Status)
	}
	if len(order.ActiveItems()) == 0 {
		return cancellationOutcome{}, fmt.Errorf("%w: nothing left to cancel", ErrOrderNotCancellable)
	}

	totalBefore := order.Summary.TotalAmount
	next := order
	next.Items = cloneOrderItems(order.Items)
	for i := range next.Items {
		next.Items[i].Cancelled = true
	}
	return finishCancellation(next, totalBefore, now), nil
}

// applyItemCancellation cancels a single item and recomputes the money
// summary. Cancelling the last remaining item cancels the whole order.
func applyItemCancellation(order domain.Order, itemID string, now time.Time) (cancellationOutcome, error) {
	if !cancellableStatus(order.Status) {
		return cancellationOutcome{}, fmt.Errorf("%w: status %s", ErrOrderNotCancellable, order.Status)
	}

	target := strings.TrimSpace(itemID)
	idx := -1
	for i, item := range order.Items {
		if strings.EqualFold(strings.TrimSpace(item.ID), target) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return cancellationOutcome{}, fmt.Errorf("%w: %s", ErrOrderItemNotFound, itemID)
	}
	if order.Items[idx].Cancelled {
		return cancellationOutcome{}, fmt.Errorf("%w: %s", ErrOrderItemAlreadyCancelled, itemID)
	}

	totalBefore := order.Summary.TotalAmount
	next := order
	next.Items = cloneOrderItems(order.Items)
	next.Items[idx].Cancelled = true
	return finishCancellation(next, totalBefore, now), nil
}

func finishCancellation(order domain.Order, totalBefore decimal.Decimal, now time.Time) cancellationOutcome {
	order.Summary = computeSummary(order.Items)
	fully := len(order.ActiveItems()) == 0
	if fully {
		order.Status = domain.OrderStatusCancelled
		ts := now.UTC()
		order.CancelledAt = &ts
	}
	return cancellationOutcome{
		Order:          order,
		RefundAmount:   totalBefore.Sub(order.Summary.TotalAmount),
		FullyCancelled: fully,
	}
}
