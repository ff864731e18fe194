package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: cart repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartEntryNotFound indicates the addressed cart entry does not exist.
var ErrCartEntryNotFound = errors.New("cart service: entry not found")

// ErrCartConflict indicates the cart could not be updated after repeated concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartOrderNotFound indicates the reorder source order does not exist for the user.
var ErrCartOrderNotFound = errors.New("cart service: source order not found")

// Concurrent writers race on the single cart document; each attempt re-reads
// and re-applies the mutation before giving up.
const cartSaveAttempts = 3

// CartServiceDeps wires the repositories and ambient dependencies for cart operations.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	orders   repositories.OrderRepository
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		orders:   deps.Orders,
		now:      func() time.Time { return deps.Clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

var _ CartService = (*cartService)(nil)

// GetCart loads the user's cart joined against the live catalog. An absent
// cart renders as an empty view.
func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	if s == nil || s.carts == nil {
		return CartView{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return emptyCartView(uid), nil
		}
		return CartView{}, s.translateRepoError(err)
	}
	return s.buildCartView(ctx, cart)
}

// AddToCart resolves the selection against the catalog and merges the
// quantity into the cart. The merged quantity must fit the variant's
// available stock; the request is rejected otherwise.
func (s *cartService) AddToCart(ctx context.Context, cmd AddToCartCommand) (CartView, error) {
	if s == nil || s.carts == nil {
		return CartView{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if uid == "" || productID == "" {
		return CartView{}, ErrCartInvalidInput
	}
	if cmd.Quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}

	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return CartView{}, err
	}
	variant, stock, err := resolveVariant(product, cmd.Selection, cmd.Quantity)
	if err != nil {
		return CartView{}, err
	}

	saved, err := s.mutateCart(ctx, uid, func(entries []domain.CartEntry) ([]domain.CartEntry, error) {
		now := s.now()
		idx := indexOfMatchingEntry(entries, productID, variant.ID, cmd.Selection)
		if idx >= 0 {
			merged := entries[idx].Quantity + cmd.Quantity
			if merged > stock {
				return nil, fmt.Errorf("%w: variant %s has %d units, cart already holds %d",
					ErrOutOfStock, variant.ID, stock, entries[idx].Quantity)
			}
			entries[idx].Quantity = merged
			entries[idx].UpdatedAt = now
			return entries, nil
		}
		entries = append(entries, domain.CartEntry{
			ID:        s.newID(),
			ProductID: productID,
			VariantID: variant.ID,
			Selection: normaliseSelection(cmd.Selection),
			Quantity:  cmd.Quantity,
			AddedAt:   now,
			UpdatedAt: now,
		})
		return entries, nil
	})
	if err != nil {
		return CartView{}, err
	}
	return s.buildCartView(ctx, saved)
}

// UpdateQuantity sets the absolute quantity of an existing entry. The new
// quantity must fit the variant's available stock.
func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (CartView, error) {
	if s == nil || s.carts == nil {
		return CartView{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	entryID := strings.TrimSpace(cmd.EntryID)
	if uid == "" || entryID == "" {
		return CartView{}, ErrCartInvalidInput
	}
	if cmd.Quantity <= 0 {
		return CartView{}, fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}

	saved, err := s.mutateCart(ctx, uid, func(entries []domain.CartEntry) ([]domain.CartEntry, error) {
		idx := indexOfEntry(entries, entryID)
		if idx < 0 {
			return nil, ErrCartEntryNotFound
		}

		product, err := s.loadProduct(ctx, entries[idx].ProductID)
		if err != nil {
			return nil, err
		}
		if _, _, err := resolveVariantByID(product, entries[idx].VariantID, entries[idx].Selection, cmd.Quantity); err != nil {
			return nil, err
		}

		entries[idx].Quantity = cmd.Quantity
		entries[idx].UpdatedAt = s.now()
		return entries, nil
	})
	if err != nil {
		return CartView{}, err
	}
	return s.buildCartView(ctx, saved)
}

// RemoveFromCart deletes an entry. Addressing by entry ID requires the entry
// to exist; addressing by product fields silently ignores absent matches so
// removal stays idempotent for retrying clients.
func (s *cartService) RemoveFromCart(ctx context.Context, cmd RemoveFromCartCommand) (CartView, error) {
	if s == nil || s.carts == nil {
		return CartView{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}
	entryID := strings.TrimSpace(cmd.EntryID)
	productID := strings.TrimSpace(cmd.ProductID)
	if entryID == "" && productID == "" {
		return CartView{}, ErrCartInvalidInput
	}

	saved, err := s.mutateCart(ctx, uid, func(entries []domain.CartEntry) ([]domain.CartEntry, error) {
		if entryID != "" {
			idx := indexOfEntry(entries, entryID)
			if idx < 0 {
				return nil, ErrCartEntryNotFound
			}
			return append(entries[:idx], entries[idx+1:]...), nil
		}

		kept := entries[:0]
		for _, entry := range entries {
			if entryMatchesFields(entry, productID, cmd.VariantID, cmd.Selection) {
				continue
			}
			kept = append(kept, entry)
		}
		return kept, nil
	})
	if err != nil {
		return CartView{}, err
	}
	return s.buildCartView(ctx, saved)
}

// ClearCart removes every entry. Clearing an absent cart is a no-op.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	if s == nil || s.carts == nil {
		return ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}
	if err := s.carts.ClearCart(ctx, uid); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	return nil
}

// Reorder merges a past order's items back into the cart. Items whose product
// or variant has since disappeared, or whose stock is exhausted, are skipped.
func (s *cartService) Reorder(ctx context.Context, cmd ReorderCommand) (CartView, error) {
	if s == nil || s.carts == nil || s.orders == nil {
		return CartView{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if uid == "" || orderID == "" {
		return CartView{}, ErrCartInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{}, ErrCartOrderNotFound
		}
		return CartView{}, s.translateRepoError(err)
	}
	if !strings.EqualFold(strings.TrimSpace(order.UserID), uid) {
		return CartView{}, ErrCartOrderNotFound
	}

	skipped := 0
	saved, err := s.mutateCart(ctx, uid, func(entries []domain.CartEntry) ([]domain.CartEntry, error) {
		skipped = 0
		now := s.now()
		for _, item := range order.ActiveItems() {
			product, err := s.loadProduct(ctx, item.ProductID)
			if err != nil {
				if errors.Is(err, ErrProductNotFound) {
					skipped++
					continue
				}
				return nil, err
			}
			variant, stock, err := resolveVariantByID(product, item.VariantID, item.Selection, 0)
			if err != nil {
				if errors.Is(err, ErrVariantNotFound) || errors.Is(err, ErrOutOfStock) {
					skipped++
					continue
				}
				return nil, err
			}

			idx := indexOfMatchingEntry(entries, item.ProductID, variant.ID, item.Selection)
			if idx >= 0 {
				entries[idx].Quantity = capQuantity(entries[idx].Quantity+item.Quantity, stock)
				entries[idx].UpdatedAt = now
				continue
			}
			entries = append(entries, domain.CartEntry{
				ID:        s.newID(),
				ProductID: item.ProductID,
				VariantID: variant.ID,
				Selection: normaliseSelection(item.Selection),
				Quantity:  capQuantity(item.Quantity, stock),
				AddedAt:   now,
				UpdatedAt: now,
			})
		}
		return entries, nil
	})
	if err != nil {
		return CartView{}, err
	}

	if skipped > 0 {
		s.logger(ctx, "cart.reorder_items_skipped", map[string]any{
			"userID":  uid,
			"orderID": orderID,
			"skipped": skipped,
		})
	}
	return s.buildCartView(ctx, saved)
}

// mutateCart runs the read-modify-write cycle under the optimistic update
// precondition, retrying when a concurrent writer invalidates the snapshot.
func (s *cartService) mutateCart(ctx context.Context, userID string, mutate func([]domain.CartEntry) ([]domain.CartEntry, error)) (domain.Cart, error) {
	for attempt := 0; attempt < cartSaveAttempts; attempt++ {
		cart, err := s.carts.GetCart(ctx, userID)
		var expected *time.Time
		if err != nil {
			if !isRepoNotFound(err) {
				return domain.Cart{}, s.translateRepoError(err)
			}
			cart = domain.Cart{ID: userID, UserID: userID, Entries: []domain.CartEntry{}}
		} else if !cart.UpdatedAt.IsZero() {
			ts := cart.UpdatedAt.UTC()
			expected = &ts
		}

		entries, err := mutate(cloneCartEntries(cart.Entries))
		if err != nil {
			return domain.Cart{}, err
		}

		saved, err := s.carts.ReplaceEntries(ctx, userID, entries, expected)
		if err != nil {
			if isRepoConflict(err) {
				s.logger(ctx, "cart.save_conflict", map[string]any{
					"userID":  userID,
					"attempt": attempt + 1,
				})
				continue
			}
			return domain.Cart{}, s.translateRepoError(err)
		}
		return saved, nil
	}
	return domain.Cart{}, ErrCartConflict
}

func (s *cartService) loadProduct(ctx context.Context, productID string) (domain.Product, error) {
	product, err := s.products.FindByID(ctx, strings.TrimSpace(productID))
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return domain.Product{}, s.translateRepoError(err)
	}
	if product.IsDeleted {
		return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return product, nil
}

// buildCartView joins the cart against the catalog. Quantities above the
// current stock ceiling are clamped in the projection totals and flagged with
// a stock warning; vanished products render as unavailable lines.
func (s *cartService) buildCartView(ctx context.Context, cart domain.Cart) (CartView, error) {
	view := emptyCartView(cart.UserID)
	view.UpdatedAt = cart.UpdatedAt
	if len(cart.Entries) == 0 {
		return view, nil
	}

	ids := make([]string, 0, len(cart.Entries))
	for _, entry := range cart.Entries {
		ids = append(ids, entry.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	for _, entry := range cart.Entries {
		line := CartLine{Entry: entry}

		product, ok := products[entry.ProductID]
		if !ok || product.IsDeleted {
			line.Unavailable = true
			view.Lines = append(view.Lines, line)
			continue
		}
		variant, stock, err := resolveVariantByID(product, entry.VariantID, entry.Selection, 0)
		if err != nil {
			if errors.Is(err, ErrVariantNotFound) {
				line.Unavailable = true
				view.Lines = append(view.Lines, line)
				continue
			}
			if errors.Is(err, ErrOutOfStock) {
				line.Name = product.Name
				line.Brand = product.Brand
				line.StockWarning = true
				view.Lines = append(view.Lines, line)
				continue
			}
			return CartView{}, err
		}

		line.Name = product.Name
		line.Brand = product.Brand
		if len(variant.Images) > 0 {
			line.Image = variant.Images[0]
		} else if len(product.Images) > 0 {
			line.Image = product.Images[0]
		}
		line.Price = variant.Pricing.Price
		line.OfferPrice = cloneDecimalPointer(variant.Pricing.OfferPrice)
		line.AvailableStock = stock

		effectiveQty := entry.Quantity
		if effectiveQty > stock {
			effectiveQty = stock
			line.StockWarning = true
		}

		qty := decimal.NewFromInt(int64(effectiveQty))
		unit := variant.Pricing.Price
		if variant.Pricing.OfferPrice != nil {
			unit = *variant.Pricing.OfferPrice
		}
		line.LineTotal = unit.Mul(qty)

		view.ItemsPrice = view.ItemsPrice.Add(variant.Pricing.Price.Mul(qty))
		view.Discount = view.Discount.Add(variant.Pricing.Price.Sub(unit).Mul(qty))
		view.Lines = append(view.Lines, line)
	}

	view.Total = view.ItemsPrice.Sub(view.Discount)
	return view, nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartEntryNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		}
	}
	return ErrCartUnavailable
}

func emptyCartView(userID string) CartView {
	return CartView{
		UserID:     userID,
		Lines:      []CartLine{},
		ItemsPrice: decimal.Zero,
		Discount:   decimal.Zero,
		Total:      decimal.Zero,
	}
}

func capQuantity(quantity, stock int) int {
	if stock > 0 && quantity > stock {
		return stock
	}
	if quantity < 1 {
		return 1
	}
	return quantity
}

func normaliseSelection(sel domain.VariantSelection) domain.VariantSelection {
	return domain.VariantSelection{
		Color: strings.TrimSpace(sel.Color),
		Size:  strings.TrimSpace(sel.Size),
		RAM:   strings.TrimSpace(sel.RAM),
		ROM:   strings.TrimSpace(sel.ROM),
	}
}

func selectionsEqual(a, b domain.VariantSelection) bool {
	return strings.EqualFold(strings.TrimSpace(a.Color), strings.TrimSpace(b.Color)) &&
		strings.EqualFold(strings.TrimSpace(a.Size), strings.TrimSpace(b.Size)) &&
		strings.EqualFold(strings.TrimSpace(a.RAM), strings.TrimSpace(b.RAM)) &&
		strings.EqualFold(strings.TrimSpace(a.ROM), strings.TrimSpace(b.ROM))
}

func indexOfEntry(entries []domain.CartEntry, entryID string) int {
	target := strings.TrimSpace(entryID)
	if target == "" {
		return -1
	}
	for i, entry := range entries {
		if strings.EqualFold(strings.TrimSpace(entry.ID), target) {
			return i
		}
	}
	return -1
}

func indexOfMatchingEntry(entries []domain.CartEntry, productID, variantID string, sel domain.VariantSelection) int {
	for i, entry := range entries {
		if !strings.EqualFold(strings.TrimSpace(entry.ProductID), strings.TrimSpace(productID)) {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(entry.VariantID), strings.TrimSpace(variantID)) {
			continue
		}
		if !selectionsEqual(entry.Selection, sel) {
			continue
		}
		return i
	}
	return -1
}

func entryMatchesFields(entry domain.CartEntry, productID, variantID string, sel domain.VariantSelection) bool {
	if !strings.EqualFold(strings.TrimSpace(entry.ProductID), strings.TrimSpace(productID)) {
		return false
	}
	if vid := strings.TrimSpace(variantID); vid != "" && !strings.EqualFold(strings.TrimSpace(entry.VariantID), vid) {
		return false
	}
	if size := strings.TrimSpace(sel.Size); size != "" && !strings.EqualFold(strings.TrimSpace(entry.Selection.Size), size) {
		return false
	}
	return true
}

func cloneCartEntries(entries []domain.CartEntry) []domain.CartEntry {
	if len(entries) == 0 {
		return []domain.CartEntry{}
	}
	dup := make([]domain.CartEntry, len(entries))
	copy(dup, entries)
	return dup
}

func cloneDecimalPointer(value *decimal.Decimal) *decimal.Decimal {
	if value == nil {
		return nil
	}
	dup := *value
	return &dup
}
