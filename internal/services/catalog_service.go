package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/repositories"
)

const (
	minRatingScore = 1
	maxRatingScore = 5
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogUnavailable indicates the catalog backend is currently unavailable.
	ErrCatalogUnavailable = errors.New("catalog service: unavailable")
	// ErrCatalogConflict indicates a concurrent modification prevented the update.
	ErrCatalogConflict = errors.New("catalog service: conflict")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string
}

type catalogService struct {
	products  repositories.ProductRepository
	now       func() time.Time
	newID     func() string
	logger    func(ctx context.Context, event string, fields map[string]any)
	sanitizer *bluemonday.Policy
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
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

	return &catalogService{
		products:  deps.Products,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

var _ CatalogService = (*catalogService)(nil)

// CreateProduct validates the payload, derives the category class and builds
// the variant set with deterministic identifiers.
func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	if s == nil || s.products == nil {
		return Product{}, ErrCatalogUnavailable
	}

	name := strings.TrimSpace(cmd.Name)
	category := strings.ToLower(strings.TrimSpace(cmd.Category))
	if name == "" || category == "" {
		return Product{}, fmt.Errorf("%w: name and category are required", ErrCatalogInvalidInput)
	}
	if len(cmd.Variants) == 0 {
		return Product{}, fmt.Errorf("%w: at least one variant is required", ErrCatalogInvalidInput)
	}

	class := domain.ClassOfCategory(category)
	productID := "prod_" + s.newID()
	variants, err := buildVariants(productID, class, cmd.Variants)
	if err != nil {
		return Product{}, err
	}

	now := s.now()
	product := domain.Product{
		ID:          productID,
		Name:        name,
		Brand:       strings.TrimSpace(cmd.Brand),
		Description: strings.TrimSpace(cmd.Description),
		Category:    category,
		Class:       class,
		Images:      cloneStrings(cmd.Images),
		Variants:    variants,
		Ratings:     []domain.Rating{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.product_created", map[string]any{
		"productID": product.ID,
		"category":  product.Category,
		"variants":  len(product.Variants),
	})
	return product, nil
}

// UpdateProduct replaces the mutable fields of an existing product. Ratings
// and timestamps survive the update; variant identifiers are re-derived so a
// colour change yields a new variant identity.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	if s == nil || s.products == nil {
		return Product{}, ErrCatalogUnavailable
	}

	product, err := s.loadProduct(ctx, cmd.ProductID)
	if err != nil {
		return Product{}, err
	}
	expected := product.UpdatedAt

	if name := strings.TrimSpace(cmd.Name); name != "" {
		product.Name = name
	}
	if brand := strings.TrimSpace(cmd.Brand); brand != "" {
		product.Brand = brand
	}
	if desc := strings.TrimSpace(cmd.Description); desc != "" {
		product.Description = desc
	}
	if category := strings.ToLower(strings.TrimSpace(cmd.Category)); category != "" {
		product.Category = category
		product.Class = domain.ClassOfCategory(category)
	}
	if len(cmd.Images) > 0 {
		product.Images = cloneStrings(cmd.Images)
	}
	if len(cmd.Variants) > 0 {
		variants, err := buildVariants(product.ID, product.Class, cmd.Variants)
		if err != nil {
			return Product{}, err
		}
		product.Variants = variants
	}

	saved, err := s.updateProduct(ctx, product, expected)
	if err != nil {
		return Product{}, err
	}
	return saved, nil
}

// GetProduct loads a single live product.
func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	if s == nil || s.products == nil {
		return Product{}, ErrCatalogUnavailable
	}
	return s.loadProduct(ctx, productID)
}

// ListProducts pages through the live catalog.
func (s *catalogService) ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[Product], error) {
	if s == nil || s.products == nil {
		return domain.CursorPage[Product]{}, ErrCatalogUnavailable
	}
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		Category:   strings.ToLower(strings.TrimSpace(query.Category)),
		Brand:      strings.TrimSpace(query.Brand),
		Search:     strings.TrimSpace(query.Search),
		Pagination: query.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Product]{}, s.translateRepoError(err)
	}
	return page, nil
}

// DeleteProduct soft deletes: the product disappears from listings and new
// carts while existing order snapshots stay intact.
func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s == nil || s.products == nil {
		return ErrCatalogUnavailable
	}

	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return err
	}
	expected := product.UpdatedAt
	product.IsDeleted = true
	if _, err := s.updateProduct(ctx, product, expected); err != nil {
		return err
	}
	s.logger(ctx, "catalog.product_deleted", map[string]any{"productID": product.ID})
	return nil
}

// AddRating appends a review and recomputes the average. Comments pass
// through an HTML sanitiser before storage.
func (s *catalogService) AddRating(ctx context.Context, cmd AddRatingCommand) (Product, error) {
	if s == nil || s.products == nil {
		return Product{}, ErrCatalogUnavailable
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		return Product{}, ErrCatalogInvalidInput
	}
	if cmd.Score < minRatingScore || cmd.Score > maxRatingScore {
		return Product{}, fmt.Errorf("%w: score must be between %d and %d", ErrCatalogInvalidInput, minRatingScore, maxRatingScore)
	}

	product, err := s.loadProduct(ctx, cmd.ProductID)
	if err != nil {
		return Product{}, err
	}
	expected := product.UpdatedAt

	rating := domain.Rating{
		UserID:    strings.TrimSpace(cmd.UserID),
		UserName:  strings.TrimSpace(cmd.UserName),
		Score:     cmd.Score,
		Comment:   strings.TrimSpace(s.sanitizer.Sanitize(cmd.Comment)),
		CreatedAt: s.now(),
	}

	// One review per user: a repeat submission replaces the earlier one.
	replaced := false
	for i := range product.Ratings {
		if strings.EqualFold(product.Ratings[i].UserID, rating.UserID) {
			product.Ratings[i] = rating
			replaced = true
			break
		}
	}
	if !replaced {
		product.Ratings = append(product.Ratings, rating)
	}
	product.AverageRating = averageRating(product.Ratings)

	return s.updateProduct(ctx, product, expected)
}

func (s *catalogService) loadProduct(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, ErrCatalogInvalidInput
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

func (s *catalogService) updateProduct(ctx context.Context, product domain.Product, expected time.Time) (domain.Product, error) {
	var precondition *time.Time
	if !expected.IsZero() {
		ts := expected.UTC()
		precondition = &ts
	}
	saved, err := s.products.Update(ctx, product, precondition)
	if err != nil {
		if isRepoConflict(err) {
			return domain.Product{}, ErrCatalogConflict
		}
		return domain.Product{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrProductNotFound
		case repoErr.IsConflict():
			return ErrCatalogConflict
		}
	}
	return ErrCatalogUnavailable
}

// buildVariants validates and materialises the variant payload for the given
// category class. Identifiers derive from the distinguishing attributes so an
// identical payload always yields identical variant IDs.
func buildVariants(productID string, class domain.CategoryClass, inputs []VariantInput) ([]domain.Variant, error) {
	variants := make([]domain.Variant, 0, len(inputs))
	seen := map[string]struct{}{}
	for _, input := range inputs {
		pricing, err := parseVariantPricing(input.Price, input.OfferPrice)
		if err != nil {
			return nil, err
		}

		variant := domain.Variant{
			Color:   strings.TrimSpace(input.Color),
			Pricing: pricing,
			Images:  cloneStrings(input.Images),
		}

		switch class {
		case domain.CategoryClassSized:
			if len(input.Sizes) == 0 {
				return nil, fmt.Errorf("%w: sized variant needs at least one size", ErrCatalogInvalidInput)
			}
			sizes := make([]domain.SizeStock, 0, len(input.Sizes))
			for _, row := range input.Sizes {
				size := strings.TrimSpace(row.Size)
				if size == "" || row.Stock < 0 {
					return nil, fmt.Errorf("%w: invalid size row", ErrCatalogInvalidInput)
				}
				sizes = append(sizes, domain.SizeStock{Size: size, Stock: row.Stock})
			}
			variant.Sized = &domain.SizedShape{Sizes: sizes}
		case domain.CategoryClassConfigured:
			ram := strings.TrimSpace(input.RAM)
			rom := strings.TrimSpace(input.ROM)
			if ram == "" || rom == "" {
				return nil, fmt.Errorf("%w: configured variant needs RAM and ROM", ErrCatalogInvalidInput)
			}
			if input.Stock < 0 {
				return nil, fmt.Errorf("%w: stock cannot be negative", ErrCatalogInvalidInput)
			}
			variant.Configured = &domain.ConfiguredShape{RAM: ram, ROM: rom, Stock: input.Stock}
		default:
			return nil, fmt.Errorf("%w: unknown category class %q", ErrCatalogInvalidInput, class)
		}

		variant.ID = deriveVariantID(productID, class, variant.Color, input.RAM, input.ROM)
		if _, dup := seen[variant.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate variant %s", ErrCatalogInvalidInput, variant.ID)
		}
		seen[variant.ID] = struct{}{}
		variants = append(variants, variant)
	}
	return variants, nil
}

func parseVariantPricing(price, offerPrice string) (domain.VariantPricing, error) {
	listPrice, err := domain.ParseAmount(price)
	if err != nil {
		return domain.VariantPricing{}, fmt.Errorf("%w: price %q", ErrCatalogInvalidInput, price)
	}
	if !listPrice.IsPositive() {
		return domain.VariantPricing{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}

	pricing := domain.VariantPricing{Price: listPrice}
	if strings.TrimSpace(offerPrice) != "" {
		offer, err := domain.ParseAmount(offerPrice)
		if err != nil {
			return domain.VariantPricing{}, fmt.Errorf("%w: offer price %q", ErrCatalogInvalidInput, offerPrice)
		}
		if offer.GreaterThan(listPrice) {
			return domain.VariantPricing{}, fmt.Errorf("%w: offer price exceeds list price", ErrCatalogInvalidInput)
		}
		pricing.OfferPrice = &offer
	}
	return pricing, nil
}

func averageRating(ratings []domain.Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	total := decimal.Zero
	for _, rating := range ratings {
		total = total.Add(decimal.NewFromInt(int64(rating.Score)))
	}
	avg, _ := total.Div(decimal.NewFromInt(int64(len(ratings)))).Round(1).Float64()
	return avg
}
