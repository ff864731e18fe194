package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/zenithcart/api/internal/domain"
)

// ErrProductNotFound indicates the product does not exist or has been removed.
var ErrProductNotFound = errors.New("catalog: product not found")

// ErrVariantNotFound indicates no variant of the product matches the selection.
var ErrVariantNotFound = errors.New("catalog: variant not found")

// ErrOutOfStock indicates the matched variant cannot cover the requested quantity.
var ErrOutOfStock = errors.New("catalog: out of stock")

// resolveVariant matches a selection against the product's variants and checks
// that the requested quantity fits the available stock. Not-found and
// out-of-stock are distinct failures: the first means the selection does not
// exist, the second that it exists but cannot be fulfilled.
func resolveVariant(product domain.Product, sel domain.VariantSelection, quantity int) (domain.Variant, int, error) {
	variant, ok := matchVariant(product, sel)
	if !ok {
		return domain.Variant{}, 0, fmt.Errorf("%w: product %s has no variant for selection", ErrVariantNotFound, product.ID)
	}
	return checkVariantStock(product, variant, sel, quantity)
}

// resolveVariantByID looks a variant up by its identifier, then validates the
// selection attributes and stock the same way resolveVariant does.
func resolveVariantByID(product domain.Product, variantID string, sel domain.VariantSelection, quantity int) (domain.Variant, int, error) {
	target := strings.TrimSpace(variantID)
	if target == "" {
		return domain.Variant{}, 0, fmt.Errorf("%w: variant id is required", ErrVariantNotFound)
	}
	for _, variant := range product.Variants {
		if strings.EqualFold(strings.TrimSpace(variant.ID), target) {
			return checkVariantStock(product, variant, sel, quantity)
		}
	}
	return domain.Variant{}, 0, fmt.Errorf("%w: product %s has no variant %s", ErrVariantNotFound, product.ID, target)
}

func matchVariant(product domain.Product, sel domain.VariantSelection) (domain.Variant, bool) {
	color := strings.TrimSpace(sel.Color)
	for _, variant := range product.Variants {
		if !strings.EqualFold(strings.TrimSpace(variant.Color), color) {
			continue
		}
		if product.Class == domain.CategoryClassConfigured {
			cfg := variant.Configured
			if cfg == nil {
				continue
			}
			if !strings.EqualFold(strings.TrimSpace(cfg.RAM), strings.TrimSpace(sel.RAM)) {
				continue
			}
			if !strings.EqualFold(strings.TrimSpace(cfg.ROM), strings.TrimSpace(sel.ROM)) {
				continue
			}
		}
		return variant, true
	}
	return domain.Variant{}, false
}

func checkVariantStock(product domain.Product, variant domain.Variant, sel domain.VariantSelection, quantity int) (domain.Variant, int, error) {
	stock, err := availableStock(product, variant, sel)
	if err != nil {
		return domain.Variant{}, 0, err
	}
	if stock <= 0 {
		return domain.Variant{}, 0, fmt.Errorf("%w: variant %s", ErrOutOfStock, variant.ID)
	}
	if quantity > 0 && quantity > stock {
		return domain.Variant{}, 0, fmt.Errorf("%w: variant %s has %d units", ErrOutOfStock, variant.ID, stock)
	}
	return variant, stock, nil
}

// availableStock returns the purchasable units for the selection. Sized
// variants require a size whose row exists in the stock table; configured
// variants carry a single pool.
func availableStock(product domain.Product, variant domain.Variant, sel domain.VariantSelection) (int, error) {
	if product.Class == domain.CategoryClassSized {
		if variant.Sized == nil {
			return 0, fmt.Errorf("%w: variant %s carries no size table", ErrVariantNotFound, variant.ID)
		}
		size := strings.TrimSpace(sel.Size)
		if size == "" {
			return 0, fmt.Errorf("%w: size is required for %s", ErrVariantNotFound, product.Category)
		}
		for _, row := range variant.Sized.Sizes {
			if strings.EqualFold(strings.TrimSpace(row.Size), size) {
				return row.Stock, nil
			}
		}
		return 0, fmt.Errorf("%w: variant %s has no size %s", ErrVariantNotFound, variant.ID, size)
	}

	if variant.Configured == nil {
		return 0, fmt.Errorf("%w: variant %s carries no configuration", ErrVariantNotFound, variant.ID)
	}
	return variant.Configured.Stock, nil
}

// deriveVariantID builds the deterministic variant identifier from the
// product ID and the variant's distinguishing attributes.
func deriveVariantID(productID string, class domain.CategoryClass, color, ram, rom string) string {
	parts := []string{strings.TrimSpace(productID), slugToken(color)}
	if class == domain.CategoryClassConfigured {
		parts = append(parts, slugToken(ram), slugToken(rom))
	}
	return strings.Join(parts, "-")
}

func slugToken(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "default"
	}
	return slug
}
