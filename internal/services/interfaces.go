package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination       = domain.Pagination
	Cart             = domain.Cart
	CartEntry        = domain.CartEntry
	VariantSelection = domain.VariantSelection
	Product          = domain.Product
	Variant          = domain.Variant
	Rating           = domain.Rating
	Order            = domain.Order
	OrderItem        = domain.OrderItem
	OrderStatus      = domain.OrderStatus
	Address          = domain.Address
	Refund           = domain.Refund
	User             = domain.User
)

// CartLine is a cart entry joined against the live catalog for presentation.
type CartLine struct {
	Entry          CartEntry
	Name           string
	Brand          string
	Image          string
	Price          decimal.Decimal
	OfferPrice     *decimal.Decimal
	LineTotal      decimal.Decimal
	AvailableStock int
	StockWarning   bool
	Unavailable    bool
}

// CartView is the aggregated cart projection returned to clients.
type CartView struct {
	UserID     string
	Lines      []CartLine
	ItemsPrice decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	UpdatedAt  time.Time
}

// AddToCartCommand adds quantity of a resolved variant to the user's cart.
type AddToCartCommand struct {
	UserID    string
	ProductID string
	Selection VariantSelection
	Quantity  int
}

// UpdateCartQuantityCommand sets the absolute quantity of an existing entry.
type UpdateCartQuantityCommand struct {
	UserID   string
	EntryID  string
	Quantity int
}

// RemoveFromCartCommand removes a cart entry either by its entry ID or by the
// (product, variant, selection) triple.
type RemoveFromCartCommand struct {
	UserID    string
	EntryID   string
	ProductID string
	VariantID string
	Selection VariantSelection
}

// ReorderCommand copies a past order's purchasable items back into the cart.
type ReorderCommand struct {
	UserID  string
	OrderID string
}

// CartService aggregates cart mutations with catalog-aware stock ceilings.
type CartService interface {
	GetCart(ctx context.Context, userID string) (CartView, error)
	AddToCart(ctx context.Context, cmd AddToCartCommand) (CartView, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (CartView, error)
	RemoveFromCart(ctx context.Context, cmd RemoveFromCartCommand) (CartView, error)
	ClearCart(ctx context.Context, userID string) error
	Reorder(ctx context.Context, cmd ReorderCommand) (CartView, error)
}

// CheckoutItemInput is one line of a direct checkout payload bypassing the cart.
type CheckoutItemInput struct {
	ProductID string
	Selection VariantSelection
	Quantity  int
}

// CheckoutCommand places an order from the cart, or from Items when supplied.
type CheckoutCommand struct {
	UserID          string
	Method          domain.PaymentMethod
	ShippingAddress Address
	Items           []CheckoutItemInput
}

// GatewayCheckout carries the gateway order details the client needs to open
// the payment widget.
type GatewayCheckout struct {
	GatewayOrderID string
	AmountPaise    int64
	Currency       string
	KeyID          string
}

// CheckoutResult is the outcome of Checkout: a placed COD order, or a
// provisional order plus gateway details for prepay methods.
type CheckoutResult struct {
	Order   Order
	Gateway *GatewayCheckout
}

// VerifyPaymentCommand finalises a prepay checkout after the gateway returns.
type VerifyPaymentCommand struct {
	UserID           string
	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string
}

// CheckoutService coordinates order building and payment initiation.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
	VerifyAndPlaceOrder(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID     string
	Status     []OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}

// UpdateOrderStatusCommand advances the order lifecycle (admin only).
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
}

// CancelOrderCommand cancels an entire order.
type CancelOrderCommand struct {
	UserID  string
	OrderID string
	Reason  string
	Admin   bool
}

// CancelOrderItemCommand cancels a single item within an order.
type CancelOrderItemCommand struct {
	UserID  string
	OrderID string
	ItemID  string
	Reason  string
	Admin   bool
}

// CancellationResult reports the refreshed order and any refund raised.
type CancellationResult struct {
	Order        Order
	RefundAmount decimal.Decimal
	RefundIssued bool
}

// OrderService owns the order lifecycle, cancellation accounting and gateway
// event reconciliation.
type OrderService interface {
	GetOrder(ctx context.Context, userID string, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (CancellationResult, error)
	CancelItem(ctx context.Context, cmd CancelOrderItemCommand) (CancellationResult, error)
	HandlePaymentCaptured(ctx context.Context, gatewayOrderID string, paymentID string) error
	HandleRefundEvent(ctx context.Context, refundID string, status domain.RefundStatus) error
}

// VariantInput describes one variant in a product create/update payload.
// Amounts arrive as decimal strings.
type VariantInput struct {
	Color      string
	Price      string
	OfferPrice string
	Sizes      []domain.SizeStock
	RAM        string
	ROM        string
	Stock      int
	Images     []string
}

// CreateProductCommand adds a product with its variants to the catalog.
type CreateProductCommand struct {
	Name        string
	Brand       string
	Description string
	Category    string
	Images      []string
	Variants    []VariantInput
}

// UpdateProductCommand replaces the mutable fields of an existing product.
type UpdateProductCommand struct {
	ProductID   string
	Name        string
	Brand       string
	Description string
	Category    string
	Images      []string
	Variants    []VariantInput
}

// AddRatingCommand attaches a review to a product.
type AddRatingCommand struct {
	ProductID string
	UserID    string
	UserName  string
	Score     int
	Comment   string
}

// ProductListQuery narrows catalog listings.
type ProductListQuery struct {
	Category   string
	Brand      string
	Search     string
	Pagination Pagination
}

// CatalogService manages products, variants and ratings.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[Product], error)
	DeleteProduct(ctx context.Context, productID string) error
	AddRating(ctx context.Context, cmd AddRatingCommand) (Product, error)
}

// RegisterCommand creates a new customer account.
type RegisterCommand struct {
	FullName string
	Email    string
	Password string
}

// LoginCommand authenticates an existing account.
type LoginCommand struct {
	Email    string
	Password string
}

// AuthSession is a signed token plus the authenticated account.
type AuthSession struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// UserService manages accounts and authentication.
type UserService interface {
	Register(ctx context.Context, cmd RegisterCommand) (AuthSession, error)
	Login(ctx context.Context, cmd LoginCommand) (AuthSession, error)
	GetProfile(ctx context.Context, userID string) (User, error)
}

// OrderEvent is published on the event bus after order state transitions.
type OrderEvent struct {
	Type       string            `json:"type"`
	OrderID    string            `json:"orderId"`
	UserID     string            `json:"userId"`
	Status     string            `json:"status,omitempty"`
	RefundID   string            `json:"refundId,omitempty"`
	Amount     string            `json:"amount,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Order event types.
const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status.changed"
	OrderEventCancelled     = "order.cancelled"
	OrderEventRefundUpdated = "order.refund.updated"
)

// OrderEventPublisher pushes order events to the message bus.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// OrderNotification carries the data rendered into transactional emails.
type OrderNotification struct {
	Email       string
	UserName    string
	OrderID     string
	OrderNumber string
	Status      OrderStatus
	Total       decimal.Decimal
	Items       []OrderItem
}

// RefundNotification carries refund figures for customer emails.
type RefundNotification struct {
	Email       string
	OrderID     string
	OrderNumber string
	RefundID    string
	Amount      decimal.Decimal
	Status      domain.RefundStatus
}

// NotificationSender delivers transactional emails. Delivery failures are
// logged, never surfaced to callers.
type NotificationSender interface {
	SendOrderConfirmation(ctx context.Context, note OrderNotification) error
	SendOrderStatusUpdate(ctx context.Context, note OrderNotification) error
	SendRefundUpdate(ctx context.Context, note RefundNotification) error
	SendWelcome(ctx context.Context, email string, userName string) error
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}
