package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/payments"
	"github.com/zenithcart/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input parameters.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderUnavailable indicates order dependencies are currently unavailable.
	ErrOrderUnavailable = errors.New("order: unavailable")
	// ErrOrderNotFound indicates the order does not exist or belongs to another user.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates a concurrent modification prevented the update.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderInvalidStatus indicates the requested lifecycle transition is not allowed.
	ErrOrderInvalidStatus = errors.New("order: invalid status transition")
	// ErrOrderRefundFailed indicates the gateway refund could not be raised, so the
	// cancellation was not committed.
	ErrOrderRefundFailed = errors.New("order: refund failed")
)

// lifecycleStatuses is the set UpdateStatus accepts. Cancelled sits outside
// the set and is only reachable through the cancel operations.
var lifecycleStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPlaced:         true,
	domain.OrderStatusConfirmed:      true,
	domain.OrderStatusShipped:        true,
	domain.OrderStatusOutForDelivery: true,
	domain.OrderStatusDelivered:      true,
}

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Orders  repositories.OrderRepository
	Gateway payments.Provider
	Events  OrderEventPublisher
	Mailer  NotificationSender
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders  repositories.OrderRepository
	gateway payments.Provider
	events  OrderEventPublisher
	mailer  NotificationSender
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("order service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:  deps.Orders,
		gateway: deps.Gateway,
		events:  deps.Events,
		mailer:  deps.Mailer,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

var _ OrderService = (*orderService)(nil)

// GetOrder loads an order. A non-empty userID enforces ownership; admin
// callers pass an empty userID to read any order.
func (s *orderService) GetOrder(ctx context.Context, userID string, orderID string) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if uid := strings.TrimSpace(userID); uid != "" && !strings.EqualFold(strings.TrimSpace(order.UserID), uid) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders pages through orders newest first, optionally narrowed by user,
// status and date range.
func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     strings.TrimSpace(filter.UserID),
		Status:     filter.Status,
		DateRange:  filter.DateRange,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// UpdateStatus sets any status in the lifecycle set, moves backwards
// included. Cancelled is reserved for the cancel operations and a cancelled
// order stays cancelled. Delivery settles COD payments.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if !lifecycleStatuses[cmd.Status] {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderInvalidStatus, cmd.Status)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if order.Status == domain.OrderStatusCancelled {
		return Order{}, fmt.Errorf("%w: order is cancelled", ErrOrderInvalidStatus)
	}

	expected := order.UpdatedAt
	order.Status = cmd.Status
	if cmd.Status == domain.OrderStatusDelivered {
		now := s.now()
		order.DeliveredAt = &now
		if order.PaymentMethod == domain.PaymentMethodCOD && order.PaymentStatus == domain.PaymentStatusPending {
			order.PaymentStatus = domain.PaymentStatusPaid
		}
	}

	saved, err := s.saveOrder(ctx, order, expected)
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:       OrderEventStatusChanged,
		OrderID:    saved.ID,
		UserID:     saved.UserID,
		Status:     string(saved.Status),
		OccurredAt: s.now(),
	})
	s.sendStatusEmail(ctx, saved)
	return saved, nil
}

// CancelOrder cancels every remaining item. Paid orders get a gateway refund
// for the full remaining total before the cancellation is committed.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (CancellationResult, error) {
	if s == nil || s.orders == nil {
		return CancellationResult{}, ErrOrderUnavailable
	}

	order, err := s.loadForCancellation(ctx, cmd.UserID, cmd.OrderID, cmd.Admin)
	if err != nil {
		return CancellationResult{}, err
	}
	outcome, err := applyOrderCancellation(order, s.now())
	if err != nil {
		return CancellationResult{}, err
	}
	return s.commitCancellation(ctx, order, outcome, cmd.Reason)
}

// CancelItem cancels one item and refunds exactly the amount that item
// contributed to the total. Cancelling the last item cancels the order.
func (s *orderService) CancelItem(ctx context.Context, cmd CancelOrderItemCommand) (CancellationResult, error) {
	if s == nil || s.orders == nil {
		return CancellationResult{}, ErrOrderUnavailable
	}
	if strings.TrimSpace(cmd.ItemID) == "" {
		return CancellationResult{}, ErrOrderInvalidInput
	}

	order, err := s.loadForCancellation(ctx, cmd.UserID, cmd.OrderID, cmd.Admin)
	if err != nil {
		return CancellationResult{}, err
	}
	outcome, err := applyItemCancellation(order, cmd.ItemID, s.now())
	if err != nil {
		return CancellationResult{}, err
	}
	return s.commitCancellation(ctx, order, outcome, cmd.Reason)
}

// HandlePaymentCaptured reconciles the gateway's payment.captured webhook.
// Replays of an already settled payment are no-ops.
func (s *orderService) HandlePaymentCaptured(ctx context.Context, gatewayOrderID string, paymentID string) error {
	if s == nil || s.orders == nil {
		return ErrOrderUnavailable
	}
	gid := strings.TrimSpace(gatewayOrderID)
	pid := strings.TrimSpace(paymentID)
	if gid == "" || pid == "" {
		return ErrOrderInvalidInput
	}

	order, err := s.orders.FindByGatewayOrderID(ctx, gid)
	if err != nil {
		return s.translateRepoError(err)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return nil
	}

	expected := order.UpdatedAt
	order.PaymentStatus = domain.PaymentStatusPaid
	if order.Gateway.PaymentID == "" {
		order.Gateway.PaymentID = pid
	}
	if _, err := s.saveOrder(ctx, order, expected); err != nil {
		return err
	}
	s.logger(ctx, "order.payment_captured", map[string]any{
		"orderID":   order.ID,
		"paymentID": pid,
	})
	return nil
}

// HandleRefundEvent reconciles refund.processed and refund.failed webhooks by
// updating the matching refund entry in place.
func (s *orderService) HandleRefundEvent(ctx context.Context, refundID string, status domain.RefundStatus) error {
	if s == nil || s.orders == nil {
		return ErrOrderUnavailable
	}
	rid := strings.TrimSpace(refundID)
	if rid == "" {
		return ErrOrderInvalidInput
	}
	if status != domain.RefundStatusProcessed && status != domain.RefundStatusFailed {
		return fmt.Errorf("%w: refund status %s", ErrOrderInvalidInput, status)
	}

	order, err := s.orders.FindByRefundID(ctx, rid)
	if err != nil {
		return s.translateRepoError(err)
	}

	idx := -1
	for i, refund := range order.Refunds {
		if strings.EqualFold(strings.TrimSpace(refund.RefundID), rid) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrOrderNotFound
	}
	if order.Refunds[idx].Status == status {
		return nil
	}

	expected := order.UpdatedAt
	order.Refunds[idx].Status = status
	saved, err := s.saveOrder(ctx, order, expected)
	if err != nil {
		return err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:       OrderEventRefundUpdated,
		OrderID:    saved.ID,
		UserID:     saved.UserID,
		RefundID:   rid,
		Amount:     domain.AmountString(saved.Refunds[idx].Amount),
		OccurredAt: s.now(),
	})
	s.sendRefundEmail(ctx, saved, saved.Refunds[idx])
	return nil
}

func (s *orderService) loadForCancellation(ctx context.Context, userID, orderID string, admin bool) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, ErrOrderInvalidInput
	}
	uid := strings.TrimSpace(userID)
	if uid == "" && !admin {
		return domain.Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}
	if !admin && !strings.EqualFold(strings.TrimSpace(order.UserID), uid) {
		return domain.Order{}, ErrOrderNotFound
	}
	return order, nil
}

// commitCancellation raises the gateway refund when one is owed, then
// persists the cancelled order. The refund comes first so a gateway outage
// never leaves a cancellation without its refund record.
func (s *orderService) commitCancellation(ctx context.Context, before domain.Order, outcome cancellationOutcome, reason string) (CancellationResult, error) {
	order := outcome.Order
	refundIssued := false

	if refundOwed(before, outcome) {
		refund, err := s.raiseRefund(ctx, before, outcome, reason)
		if err != nil {
			return CancellationResult{}, err
		}
		order.Refunds = append(order.Refunds, refund)
		if outcome.FullyCancelled {
			order.PaymentStatus = domain.PaymentStatusRefunded
		} else {
			order.PaymentStatus = domain.PaymentStatusPartialRefunded
		}
		refundIssued = true
	}

	saved, err := s.saveOrder(ctx, order, before.UpdatedAt)
	if err != nil {
		return CancellationResult{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:       OrderEventCancelled,
		OrderID:    saved.ID,
		UserID:     saved.UserID,
		Status:     string(saved.Status),
		Amount:     domain.AmountString(outcome.RefundAmount),
		OccurredAt: s.now(),
	})
	s.sendStatusEmail(ctx, saved)

	return CancellationResult{
		Order:        saved,
		RefundAmount: outcome.RefundAmount,
		RefundIssued: refundIssued,
	}, nil
}

// refundOwed reports whether money has to go back to the customer: something
// was actually charged and the cancellation shrank the total.
func refundOwed(before domain.Order, outcome cancellationOutcome) bool {
	switch before.PaymentStatus {
	case domain.PaymentStatusPaid, domain.PaymentStatusPartialRefunded:
	default:
		return false
	}
	return outcome.RefundAmount.IsPositive() && strings.TrimSpace(before.Gateway.PaymentID) != ""
}

func (s *orderService) raiseRefund(ctx context.Context, before domain.Order, outcome cancellationOutcome, reason string) (domain.Refund, error) {
	result, err := s.gateway.Refund(ctx, payments.RefundRequest{
		PaymentID:   before.Gateway.PaymentID,
		AmountPaise: domain.ToPaise(outcome.RefundAmount),
		Reason:      strings.TrimSpace(reason),
		Notes: map[string]string{
			"orderId": before.ID,
		},
	})
	if err != nil {
		s.logger(ctx, "order.refund_failed", map[string]any{
			"orderID": before.ID,
			"amount":  domain.AmountString(outcome.RefundAmount),
			"error":   err.Error(),
		})
		return domain.Refund{}, ErrOrderRefundFailed
	}

	return domain.Refund{
		RefundID:  result.RefundID,
		Amount:    outcome.RefundAmount,
		Reason:    strings.TrimSpace(reason),
		Status:    refundStatusFromGateway(result.Status),
		CreatedAt: s.now(),
	}, nil
}

func refundStatusFromGateway(status payments.Status) domain.RefundStatus {
	switch status {
	case payments.StatusRefunded:
		return domain.RefundStatusProcessed
	case payments.StatusFailed:
		return domain.RefundStatusFailed
	default:
		return domain.RefundStatusPending
	}
}

func (s *orderService) saveOrder(ctx context.Context, order domain.Order, expected time.Time) (domain.Order, error) {
	var precondition *time.Time
	if !expected.IsZero() {
		ts := expected.UTC()
		precondition = &ts
	}
	saved, err := s.orders.Update(ctx, order, precondition)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderID": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) sendStatusEmail(ctx context.Context, order domain.Order) {
	if s.mailer == nil || strings.TrimSpace(order.UserEmail) == "" {
		return
	}
	note := OrderNotification{
		Email:       order.UserEmail,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		Status:      order.Status,
		Total:       order.Summary.TotalAmount,
		Items:       order.ActiveItems(),
	}
	if err := s.mailer.SendOrderStatusUpdate(ctx, note); err != nil {
		s.logger(ctx, "order.status_email_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) sendRefundEmail(ctx context.Context, order domain.Order, refund domain.Refund) {
	if s.mailer == nil || strings.TrimSpace(order.UserEmail) == "" {
		return
	}
	note := RefundNotification{
		Email:       order.UserEmail,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		RefundID:    refund.RefundID,
		Amount:      refund.Amount,
		Status:      refund.Status,
	}
	if err := s.mailer.SendRefundUpdate(ctx, note); err != nil {
		s.logger(ctx, "order.refund_email_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return ErrOrderConflict
		}
	}
	return ErrOrderUnavailable
}
