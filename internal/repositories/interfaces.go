package repositories

import (
	"context"
	"time"

	domain "github.com/zenithcart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Users() UserRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Category       string
	Brand          string
	Search         string
	IncludeDeleted bool
	Pagination     domain.Pagination
	Sort           domain.SortOrder
}

// ProductRepository persists catalog products with embedded variants and ratings.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	// Update replaces the stored product. A non-nil expectedUpdate enforces an
	// optimistic precondition against the document's last update time.
	Update(ctx context.Context, product domain.Product, expectedUpdate *time.Time) (domain.Product, error)
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// CartRepository persists one cart document per user.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	// ReplaceEntries overwrites the cart's entry list. A non-nil expectedUpdate
	// enforces an optimistic precondition; nil creates or blindly overwrites.
	ReplaceEntries(ctx context.Context, userID string, entries []domain.CartEntry, expectedUpdate *time.Time) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderListFilter narrows order listings for user and admin views.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// OrderRepository persists orders and supports the gateway reconciliation lookups.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update replaces the stored order. A non-nil expectedUpdate enforces an
	// optimistic precondition against the document's last update time.
	Update(ctx context.Context, order domain.Order, expectedUpdate *time.Time) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error)
	FindByRefundID(ctx context.Context, refundID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// UserRepository persists account documents.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
}

// CounterConfig captures optional counter settings.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// CounterRepository provides monotonically increasing sequences (order numbers, receipts).
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository reports backend connectivity for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
