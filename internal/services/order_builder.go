package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/zenithcart/api/internal/domain"
)

// checkoutLine pairs a resolved variant with the quantity being purchased.
type checkoutLine struct {
	EntryID   string
	Product   domain.Product
	Variant   domain.Variant
	Selection domain.VariantSelection
	Quantity  int
}

// buildOrderItems snapshots checkout lines into immutable order items. The
// snapshot copies name, pricing and images at purchase time so later catalog
// edits never alter a placed order. Output ordering is deterministic.
func buildOrderItems(lines []checkoutLine) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		item := domain.OrderItem{
			ID:         orderItemID(line),
			ProductID:  line.Product.ID,
			VariantID:  line.Variant.ID,
			Name:       line.Product.Name,
			Selection:  normaliseSelection(line.Selection),
			Quantity:   line.Quantity,
			Price:      line.Variant.Pricing.Price,
			OfferPrice: cloneDecimalPointer(line.Variant.Pricing.OfferPrice),
			Images:     cloneStrings(line.Variant.Images),
		}
		if len(item.Images) == 0 {
			item.Images = cloneStrings(line.Product.Images)
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// orderItemID keeps the originating cart entry ID when present so cancellation
// requests can address items the client already knows. Direct checkout lines
// derive a stable key from the variant and selection instead.
func orderItemID(line checkoutLine) string {
	if id := strings.TrimSpace(line.EntryID); id != "" {
		return id
	}
	sel := normaliseSelection(line.Selection)
	key := line.Variant.ID
	if sel.Size != "" {
		key = fmt.Sprintf("%s-%s", key, slugToken(sel.Size))
	}
	return key
}

// computeSummary recalculates the order money figures over non-cancelled
// items only, so cancelling an item shrinks the totals and the difference is
// the amount owed back to the customer.
func computeSummary(items []domain.OrderItem) domain.OrderSummary {
	itemsPrice := decimal.Zero
	discount := decimal.Zero
	for _, item := range items {
		if item.Cancelled {
			continue
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		itemsPrice = itemsPrice.Add(item.Price.Mul(qty))
		discount = discount.Add(item.Price.Sub(item.UnitPrice()).Mul(qty))
	}
	return domain.OrderSummary{
		ItemsPrice:  itemsPrice,
		Discount:    discount,
		TotalAmount: itemsPrice.Sub(discount),
	}
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	dup := make([]string, len(values))
	copy(dup, values)
	return dup
}

func cloneOrderItems(items []domain.OrderItem) []domain.OrderItem {
	if len(items) == 0 {
		return nil
	}
	dup := make([]domain.OrderItem, len(items))
	for i, item := range items {
		dup[i] = item
		dup[i].OfferPrice = cloneDecimalPointer(item.OfferPrice)
		dup[i].Images = cloneStrings(item.Images)
	}
	return dup
}
