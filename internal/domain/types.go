package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// CategoryClass partitions product categories by the variant shape they carry.
type CategoryClass string

const (
	// CategoryClassSized covers categories whose variants hold per-size stock.
	CategoryClassSized CategoryClass = "sized"
	// CategoryClassConfigured covers categories whose variants hold a RAM/ROM
	// configuration with a single stock pool.
	CategoryClassConfigured CategoryClass = "configured"
)

var sizedCategories = map[string]struct{}{
	"clothing": {},
	"fashion":  {},
	"shoes":    {},
	"footwear": {},
}

// ClassOfCategory derives the variant shape class for a product category.
// Unknown categories default to the configured class.
func ClassOfCategory(category string) CategoryClass {
	if _, ok := sizedCategories[strings.ToLower(strings.TrimSpace(category))]; ok {
		return CategoryClassSized
	}
	return CategoryClassConfigured
}

// SizeStock pairs a size label with the units available for that size.
type SizeStock struct {
	Size  string
	Stock int
}

// SizedShape carries the per-size stock table for sized variants.
type SizedShape struct {
	Sizes []SizeStock
}

// ConfiguredShape carries the memory configuration and the single stock pool
// for configured variants.
type ConfiguredShape struct {
	RAM   string
	ROM   string
	Stock int
}

// VariantPricing holds the list price and the optional discounted offer price.
type VariantPricing struct {
	Price      decimal.Decimal
	OfferPrice *decimal.Decimal
}

// Variant is a purchasable configuration of a product. Exactly one of Sized or
// Configured is set, matching the product's category class.
type Variant struct {
	ID         string
	Color      string
	Sized      *SizedShape
	Configured *ConfiguredShape
	Pricing    VariantPricing
	Images     []string
}

// Shape reports the variant's category class based on which shape is present.
func (v Variant) Shape() CategoryClass {
	if v.Sized != nil {
		return CategoryClassSized
	}
	return CategoryClassConfigured
}

// Rating is a single user review attached to a product.
type Rating struct {
	UserID    string
	UserName  string
	Score     int
	Comment   string
	CreatedAt time.Time
}

// Product is the catalog aggregate with embedded variants and ratings.
type Product struct {
	ID            string
	Name          string
	Brand         string
	Description   string
	Category      string
	Class         CategoryClass
	Images        []string
	Variants      []Variant
	Ratings       []Rating
	AverageRating float64
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// VariantSelection identifies a variant within a product by its distinguishing
// attributes. Size applies to sized products only; RAM/ROM to configured ones.
type VariantSelection struct {
	Color string
	Size  string
	RAM   string
	ROM   string
}

// CartEntry is a single line in a user's cart referencing a product variant.
type CartEntry struct {
	ID        string
	ProductID string
	VariantID string
	Selection VariantSelection
	Quantity  int
	AddedAt   time.Time
	UpdatedAt time.Time
}

// Cart aggregates a user's pending purchases. One cart per user; the document
// ID equals the user ID.
type Cart struct {
	ID        string
	UserID    string
	Entries   []CartEntry
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPlaced marks a freshly created order.
	OrderStatusPlaced OrderStatus = "Placed"
	// OrderStatusConfirmed marks an order acknowledged by operations.
	OrderStatusConfirmed OrderStatus = "Confirmed"
	// OrderStatusShipped marks an order handed to the carrier.
	OrderStatusShipped OrderStatus = "Shipped"
	// OrderStatusOutForDelivery marks an order on its final delivery leg.
	OrderStatusOutForDelivery OrderStatus = "Out for Delivery"
	// OrderStatusDelivered marks a completed delivery.
	OrderStatusDelivered OrderStatus = "Delivered"
	// OrderStatusCancelled marks an order cancelled in full.
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// PaymentMethod enumerates the supported payment instruments.
type PaymentMethod string

const (
	// PaymentMethodCOD settles on delivery with no gateway involvement.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodRazorpay settles through the Razorpay gateway.
	PaymentMethodRazorpay PaymentMethod = "razorpay"
)

// PaymentStatus enumerates settlement states for an order.
type PaymentStatus string

const (
	// PaymentStatusPending awaits capture, or delivery for COD.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the gateway captured the full amount.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the gateway reported a failure.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the full amount was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
	// PaymentStatusPartialRefunded indicates part of the amount was returned.
	PaymentStatusPartialRefunded PaymentStatus = "partial-refunded"
)

// RefundStatus tracks a refund through gateway reconciliation.
type RefundStatus string

const (
	// RefundStatusPending means the refund was requested but not settled.
	RefundStatusPending RefundStatus = "pending"
	// RefundStatusProcessed means the gateway confirmed the refund.
	RefundStatusProcessed RefundStatus = "processed"
	// RefundStatusFailed means the gateway rejected the refund.
	RefundStatusFailed RefundStatus = "failed"
)

// Address is the shipping destination captured at checkout.
type Address struct {
	Line1   string
	City    string
	State   string
	Pincode string
	Phone   string
}

// OrderItem is an immutable snapshot of a variant at purchase time. Pricing
// and naming never change after the order is placed, regardless of later
// catalog edits.
type OrderItem struct {
	ID         string
	ProductID  string
	VariantID  string
	Name       string
	Selection  VariantSelection
	Quantity   int
	Price      decimal.Decimal
	OfferPrice *decimal.Decimal
	Images     []string
	Cancelled  bool
}

// UnitPrice returns the effective charge per unit: the offer price when set,
// otherwise the list price.
func (i OrderItem) UnitPrice() decimal.Decimal {
	if i.OfferPrice != nil {
		return *i.OfferPrice
	}
	return i.Price
}

// OrderSummary aggregates order money figures over non-cancelled items.
// TotalAmount always equals ItemsPrice minus Discount.
type OrderSummary struct {
	ItemsPrice  decimal.Decimal
	Discount    decimal.Decimal
	TotalAmount decimal.Decimal
}

// GatewayRef links an order to its payment gateway artefacts.
type GatewayRef struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Refund records one refund attempt against an order. The list on Order is
// append-only; reconciliation updates Status in place.
type Refund struct {
	RefundID  string
	Amount    decimal.Decimal
	Reason    string
	Status    RefundStatus
	CreatedAt time.Time
}

// Order is the purchase aggregate: snapshot items, money summary, lifecycle
// state and refund history.
type Order struct {
	ID              string
	Number          string
	UserID          string
	UserEmail       string
	Items           []OrderItem
	ShippingAddress Address
	Summary         OrderSummary
	Status          OrderStatus
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	Gateway         GatewayRef
	Refunds         []Refund
	PlacedAt        time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ActiveItems returns the non-cancelled items of the order.
func (o Order) ActiveItems() []OrderItem {
	items := make([]OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		if !item.Cancelled {
			items = append(items, item)
		}
	}
	return items
}

// UserRole separates shoppers from back-office operators.
type UserRole string

const (
	// RoleCustomer is the default shopper role.
	RoleCustomer UserRole = "customer"
	// RoleAdmin grants catalog and order administration.
	RoleAdmin UserRole = "admin"
)

// User is the account aggregate. The cart is stored separately under the same
// document ID.
type User struct {
	ID           string
	FullName     string
	Email        string
	PasswordHash string
	Role         UserRole
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
