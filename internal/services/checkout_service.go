package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/payments"
	"github.com/zenithcart/api/internal/repositories"
)

const (
	checkoutCurrency   = "INR"
	orderCounterID     = "orders"
	orderNumberPattern = "ORD-%06d"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutCartEmpty indicates the cart holds nothing purchasable.
	ErrCheckoutCartEmpty = errors.New("checkout: cart is empty")
	// ErrCheckoutPaymentFailed indicates the gateway order could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutSignatureMismatch indicates the gateway signature did not verify.
	ErrCheckoutSignatureMismatch = errors.New("checkout: signature mismatch")
	// ErrCheckoutOrderNotFound indicates no order matches the gateway reference for this user.
	ErrCheckoutOrderNotFound = errors.New("checkout: order not found")
	// ErrCheckoutConflict indicates a concurrent modification prevented completing checkout.
	ErrCheckoutConflict = errors.New("checkout: conflict")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	Users       repositories.UserRepository
	Counters    repositories.CounterRepository
	Gateway     payments.Provider
	Events      OrderEventPublisher
	Mailer      NotificationSender
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string
	// GatewayKeyID is surfaced to clients so they can open the payment widget.
	GatewayKeyID string
	// GatewayKeySecret signs and verifies checkout signatures.
	GatewayKeySecret string
}

type checkoutService struct {
	carts     repositories.CartRepository
	products  repositories.ProductRepository
	orders    repositories.OrderRepository
	users     repositories.UserRepository
	counters  repositories.CounterRepository
	gateway   payments.Provider
	events    OrderEventPublisher
	mailer    NotificationSender
	now       func() time.Time
	newID     func() string
	logger    func(ctx context.Context, event string, fields map[string]any)
	keyID     string
	keySecret string
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("checkout service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("checkout service: user repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &checkoutService{
		carts:     deps.Carts,
		products:  deps.Products,
		orders:    deps.Orders,
		users:     deps.Users,
		counters:  deps.Counters,
		gateway:   deps.Gateway,
		events:    deps.Events,
		mailer:    deps.Mailer,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
		keyID:     strings.TrimSpace(deps.GatewayKeyID),
		keySecret: deps.GatewayKeySecret,
	}, nil
}

var _ CheckoutService = (*checkoutService)(nil)

// Checkout snapshots the purchase into an order. COD orders are placed
// immediately; prepay orders are persisted pending payment alongside a
// gateway order the client completes.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	if s == nil || s.orders == nil || s.gateway == nil {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CheckoutResult{}, ErrCheckoutInvalidInput
	}
	if err := validateShippingAddress(cmd.ShippingAddress); err != nil {
		return CheckoutResult{}, err
	}
	method, err := normalisePaymentMethod(cmd.Method)
	if err != nil {
		return CheckoutResult{}, err
	}

	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutResult{}, ErrCheckoutInvalidInput
		}
		return CheckoutResult{}, s.translateRepoError(err)
	}

	lines, fromCart, err := s.collectCheckoutLines(ctx, uid, cmd.Items)
	if err != nil {
		return CheckoutResult{}, err
	}
	if len(lines) == 0 {
		return CheckoutResult{}, ErrCheckoutCartEmpty
	}

	items := buildOrderItems(lines)
	summary := computeSummary(items)

	now := s.now()
	order := domain.Order{
		ID:              "ord_" + s.newID(),
		Number:          s.nextOrderNumber(ctx),
		UserID:          uid,
		UserEmail:       user.Email,
		Items:           items,
		ShippingAddress: normaliseAddress(cmd.ShippingAddress),
		Summary:         summary,
		Status:          domain.OrderStatusPlaced,
		PaymentMethod:   method,
		PaymentStatus:   domain.PaymentStatusPending,
		PlacedAt:        now,
		CreatedAt:       now,
	}

	if method == domain.PaymentMethodRazorpay {
		gateway, err := s.createGatewayOrder(ctx, order)
		if err != nil {
			return CheckoutResult{}, err
		}
		order.Gateway.OrderID = gateway.GatewayOrderID

		if err := s.orders.Insert(ctx, order); err != nil {
			return CheckoutResult{}, s.translateRepoError(err)
		}
		// The cart survives until payment verification succeeds.
		return CheckoutResult{Order: order, Gateway: gateway}, nil
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return CheckoutResult{}, s.translateRepoError(err)
	}
	s.finalisePlacedOrder(ctx, order, fromCart)
	return CheckoutResult{Order: order}, nil
}

// VerifyAndPlaceOrder finalises a prepay order after the client completes the
// gateway widget. The signature binds the payment to the gateway order; on a
// match the pending order flips to paid and the cart is cleared.
func (s *checkoutService) VerifyAndPlaceOrder(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrCheckoutUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	paymentID := strings.TrimSpace(cmd.GatewayPaymentID)
	signature := strings.TrimSpace(cmd.GatewaySignature)
	if uid == "" || gatewayOrderID == "" || paymentID == "" || signature == "" {
		return Order{}, ErrCheckoutInvalidInput
	}

	order, err := s.orders.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrCheckoutOrderNotFound
		}
		return Order{}, s.translateRepoError(err)
	}
	if !strings.EqualFold(strings.TrimSpace(order.UserID), uid) {
		return Order{}, ErrCheckoutOrderNotFound
	}

	// Replayed verification of an already settled payment is idempotent.
	if order.PaymentStatus == domain.PaymentStatusPaid && order.Gateway.PaymentID == paymentID {
		return order, nil
	}

	if !payments.VerifyCheckoutSignature(gatewayOrderID, paymentID, signature, s.keySecret) {
		s.markPaymentFailed(ctx, order)
		s.logger(ctx, "checkout.signature_mismatch", map[string]any{
			"orderID":        order.ID,
			"gatewayOrderID": gatewayOrderID,
		})
		return Order{}, ErrCheckoutSignatureMismatch
	}

	expected := order.UpdatedAt
	order.PaymentStatus = domain.PaymentStatusPaid
	order.Gateway.PaymentID = paymentID
	order.Gateway.Signature = signature

	saved, err := s.updateOrder(ctx, order, expected)
	if err != nil {
		return Order{}, err
	}
	s.finalisePlacedOrder(ctx, saved, true)
	return saved, nil
}

// collectCheckoutLines resolves either the direct checkout payload or the
// user's cart into purchasable lines. Unlike cart aggregation, checkout does
// not clamp: a quantity above the current stock fails the whole request.
func (s *checkoutService) collectCheckoutLines(ctx context.Context, userID string, direct []CheckoutItemInput) ([]checkoutLine, bool, error) {
	if len(direct) > 0 {
		lines := make([]checkoutLine, 0, len(direct))
		for _, input := range direct {
			if input.Quantity <= 0 {
				return nil, false, fmt.Errorf("%w: quantity must be greater than zero", ErrCheckoutInvalidInput)
			}
			product, err := s.loadCheckoutProduct(ctx, input.ProductID)
			if err != nil {
				return nil, false, err
			}
			variant, _, err := resolveVariant(product, input.Selection, input.Quantity)
			if err != nil {
				return nil, false, err
			}
			lines = append(lines, checkoutLine{
				Product:   product,
				Variant:   variant,
				Selection: input.Selection,
				Quantity:  input.Quantity,
			})
		}
		return lines, false, nil
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, true, ErrCheckoutCartEmpty
		}
		return nil, true, s.translateRepoError(err)
	}

	lines := make([]checkoutLine, 0, len(cart.Entries))
	for _, entry := range cart.Entries {
		product, err := s.loadCheckoutProduct(ctx, entry.ProductID)
		if err != nil {
			return nil, true, err
		}
		variant, _, err := resolveVariantByID(product, entry.VariantID, entry.Selection, entry.Quantity)
		if err != nil {
			return nil, true, err
		}
		lines = append(lines, checkoutLine{
			EntryID:   entry.ID,
			Product:   product,
			Variant:   variant,
			Selection: entry.Selection,
			Quantity:  entry.Quantity,
		})
	}
	return lines, true, nil
}

func (s *checkoutService) loadCheckoutProduct(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, ErrCheckoutInvalidInput
	}
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		return domain.Product{}, s.translateRepoError(err)
	}
	if product.IsDeleted {
		return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return product, nil
}

func (s *checkoutService) createGatewayOrder(ctx context.Context, order domain.Order) (*GatewayCheckout, error) {
	amount := domain.ToPaise(order.Summary.TotalAmount)
	if amount <= 0 {
		return nil, fmt.Errorf("%w: order total must be positive", ErrCheckoutInvalidInput)
	}

	created, err := s.gateway.CreateOrder(ctx, payments.CreateOrderRequest{
		AmountPaise: amount,
		Currency:    checkoutCurrency,
		Receipt:     order.Number,
		Notes: map[string]string{
			"orderId": order.ID,
			"userId":  order.UserID,
		},
	})
	if err != nil {
		s.logger(ctx, "checkout.gateway_order_failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
		if errors.Is(err, payments.ErrInvalidRequest) {
			return nil, ErrCheckoutInvalidInput
		}
		return nil, ErrCheckoutPaymentFailed
	}

	return &GatewayCheckout{
		GatewayOrderID: created.ID,
		AmountPaise:    created.AmountPaise,
		Currency:       created.Currency,
		KeyID:          s.keyID,
	}, nil
}

// finalisePlacedOrder runs the side effects of a settled placement: cart
// clearing, the order event, and the confirmation email. Failures here are
// logged, never surfaced, since the order itself is already persisted.
func (s *checkoutService) finalisePlacedOrder(ctx context.Context, order domain.Order, clearCart bool) {
	if clearCart && s.carts != nil {
		if err := s.carts.ClearCart(ctx, order.UserID); err != nil && !isRepoNotFound(err) {
			s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
				"orderID": order.ID,
				"error":   err.Error(),
			})
		}
	}

	if s.events != nil {
		event := OrderEvent{
			Type:       OrderEventCreated,
			OrderID:    order.ID,
			UserID:     order.UserID,
			Status:     string(order.Status),
			Amount:     domain.AmountString(order.Summary.TotalAmount),
			OccurredAt: s.now(),
		}
		if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
			s.logger(ctx, "checkout.event_publish_failed", map[string]any{
				"orderID": order.ID,
				"error":   err.Error(),
			})
		}
	}

	if s.mailer != nil && strings.TrimSpace(order.UserEmail) != "" {
		note := OrderNotification{
			Email:       order.UserEmail,
			OrderID:     order.ID,
			OrderNumber: order.Number,
			Status:      order.Status,
			Total:       order.Summary.TotalAmount,
			Items:       order.ActiveItems(),
		}
		if err := s.mailer.SendOrderConfirmation(ctx, note); err != nil {
			s.logger(ctx, "checkout.confirmation_email_failed", map[string]any{
				"orderID": order.ID,
				"error":   err.Error(),
			})
		}
	}
}

// markPaymentFailed records a failed verification on the pending order. Best
// effort: the verification error is what the caller sees.
func (s *checkoutService) markPaymentFailed(ctx context.Context, order domain.Order) {
	expected := order.UpdatedAt
	order.PaymentStatus = domain.PaymentStatusFailed
	if _, err := s.updateOrder(ctx, order, expected); err != nil {
		s.logger(ctx, "checkout.mark_failed_error", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) updateOrder(ctx context.Context, order domain.Order, expected time.Time) (domain.Order, error) {
	var precondition *time.Time
	if !expected.IsZero() {
		ts := expected.UTC()
		precondition = &ts
	}
	saved, err := s.orders.Update(ctx, order, precondition)
	if err != nil {
		if isRepoConflict(err) {
			return domain.Order{}, ErrCheckoutConflict
		}
		return domain.Order{}, s.translateRepoError(err)
	}
	return saved, nil
}

// nextOrderNumber draws a human-facing sequence number. Counter outages fall
// back to the order ID so checkout never blocks on the sequence document.
func (s *checkoutService) nextOrderNumber(ctx context.Context) string {
	if s.counters == nil {
		return "ORD-" + s.newID()
	}
	n, err := s.counters.Next(ctx, orderCounterID, 1)
	if err != nil {
		s.logger(ctx, "checkout.counter_failed", map[string]any{"error": err.Error()})
		return "ORD-" + s.newID()
	}
	return fmt.Sprintf(orderNumberPattern, n)
}

func (s *checkoutService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCheckoutOrderNotFound
		case repoErr.IsConflict():
			return ErrCheckoutConflict
		}
	}
	return ErrCheckoutUnavailable
}

func normalisePaymentMethod(method domain.PaymentMethod) (domain.PaymentMethod, error) {
	switch domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method)))) {
	case domain.PaymentMethodCOD:
		return domain.PaymentMethodCOD, nil
	case domain.PaymentMethodRazorpay:
		return domain.PaymentMethodRazorpay, nil
	default:
		return "", fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutInvalidInput, method)
	}
}

func validateShippingAddress(addr domain.Address) error {
	if strings.TrimSpace(addr.Line1) == "" ||
		strings.TrimSpace(addr.City) == "" ||
		strings.TrimSpace(addr.Pincode) == "" ||
		strings.TrimSpace(addr.Phone) == "" {
		return fmt.Errorf("%w: shipping address is incomplete", ErrCheckoutInvalidInput)
	}
	return nil
}

func normaliseAddress(addr domain.Address) domain.Address {
	return domain.Address{
		Line1:   strings.TrimSpace(addr.Line1),
		City:    strings.TrimSpace(addr.City),
		State:   strings.TrimSpace(addr.State),
		Pincode: strings.TrimSpace(addr.Pincode),
		Phone:   strings.TrimSpace(addr.Phone),
	}
}
