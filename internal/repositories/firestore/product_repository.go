package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/zenithcart/api/internal/domain"
	pfirestore "github.com/zenithcart/api/internal/platform/firestore"
	"github.com/zenithcart/api/internal/platform/pagination"
	"github.com/zenithcart/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalog products within Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the product document keyed by the product ID.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	_, err := r.base.Set(ctx, id, encodeProduct(product))
	return err
}

// Update replaces the stored product, optionally guarded by the document's last update time.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product, expectedUpdate *time.Time) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	doc := encodeProduct(product)

	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err := r.base.Set(ctx, id, doc)
		if err != nil {
			return domain.Product{}, err
		}
		saved := product
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	result, err := ref.Update(ctx, productUpdates(doc), firestore.LastUpdateTime(expectedUpdate.UTC()))
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.update", err)
	}
	saved := product
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// FindByID loads the product document.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime)
}

// FindByIDs loads a batch of products keyed by ID. Missing products are
// omitted from the result rather than treated as an error.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	out := make(map[string]domain.Product, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, raw := range productIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		doc, err := r.base.Get(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		product, err := decodeProduct(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime)
		if err != nil {
			return nil, err
		}
		out[id] = product
	}
	return out, nil
}

// List queries the catalog ordered by creation time descending.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if !filter.IncludeDeleted {
			query = query.Where("isDeleted", "==", false)
		}
		if category := strings.TrimSpace(filter.Category); category != "" {
			query = query.Where("category", "==", strings.ToLower(category))
		}
		if brand := strings.TrimSpace(filter.Brand); brand != "" {
			query = query.Where("brand", "==", brand)
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	items := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product, err := decodeProduct(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, err
		}
		if search != "" && !productMatchesSearch(product, search) {
			continue
		}
		items = append(items, product)
	}

	page := domain.CursorPage[domain.Product]{Items: items}
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt, last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func productMatchesSearch(product domain.Product, search string) bool {
	for _, field := range []string{product.Name, product.Brand, product.Category} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func productUpdates(doc productDocument) []firestore.Update {
	return []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "brand", Value: doc.Brand},
		{Path: "description", Value: doc.Description},
		{Path: "category", Value: doc.Category},
		{Path: "class", Value: doc.Class},
		{Path: "images", Value: doc.Images},
		{Path: "variants", Value: doc.Variants},
		{Path: "ratings", Value: doc.Ratings},
		{Path: "averageRating", Value: doc.AverageRating},
		{Path: "isDeleted", Value: doc.IsDeleted},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
}

func encodeProduct(product domain.Product) productDocument {
	doc := productDocument{
		Name:          strings.TrimSpace(product.Name),
		Brand:         strings.TrimSpace(product.Brand),
		Description:   strings.TrimSpace(product.Description),
		Category:      strings.ToLower(strings.TrimSpace(product.Category)),
		Class:         string(product.Class),
		Images:        append([]string(nil), product.Images...),
		AverageRating: product.AverageRating,
		IsDeleted:     product.IsDeleted,
		CreatedAt:     product.CreatedAt.UTC(),
		UpdatedAt:     product.UpdatedAt.UTC(),
	}
	doc.Variants = make([]variantDocument, 0, len(product.Variants))
	for _, variant := range product.Variants {
		doc.Variants = append(doc.Variants, encodeVariant(variant))
	}
	doc.Ratings = make([]ratingDocument, 0, len(product.Ratings))
	for _, rating := range product.Ratings {
		doc.Ratings = append(doc.Ratings, ratingDocument{
			UserID:    rating.UserID,
			UserName:  rating.UserName,
			Score:     rating.Score,
			Comment:   rating.Comment,
			CreatedAt: rating.CreatedAt.UTC(),
		})
	}
	return doc
}

func encodeVariant(variant domain.Variant) variantDocument {
	doc := variantDocument{
		ID:     strings.TrimSpace(variant.ID),
		Color:  strings.TrimSpace(variant.Color),
		Price:  domain.AmountString(variant.Pricing.Price),
		Images: append([]string(nil), variant.Images...),
	}
	if variant.Pricing.OfferPrice != nil {
		doc.OfferPrice = domain.AmountString(*variant.Pricing.OfferPrice)
	}
	if variant.Sized != nil {
		doc.SizeStock = make([]sizeStockDocument, 0, len(variant.Sized.Sizes))
		for _, entry := range variant.Sized.Sizes {
			doc.SizeStock = append(doc.SizeStock, sizeStockDocument{Size: entry.Size, Stock: entry.Stock})
		}
	}
	if variant.Configured != nil {
		doc.RAM = variant.Configured.RAM
		doc.ROM = variant.Configured.ROM
		stock := variant.Configured.Stock
		doc.Stock = &stock
	}
	return doc
}

func decodeProduct(id string, doc productDocument, createTime, updateTime time.Time) (domain.Product, error) {
	product := domain.Product{
		ID:            id,
		Name:          doc.Name,
		Brand:         doc.Brand,
		Description:   doc.Description,
		Category:      doc.Category,
		Class:         domain.CategoryClass(doc.Class),
		Images:        append([]string(nil), doc.Images...),
		AverageRating: doc.AverageRating,
		IsDeleted:     doc.IsDeleted,
		CreatedAt:     firstNonZeroTime(doc.CreatedAt, createTime),
		UpdatedAt:     firstNonZeroTime(updateTime, doc.UpdatedAt),
	}
	if product.Class == "" {
		product.Class = domain.ClassOfCategory(doc.Category)
	}

	product.Variants = make([]domain.Variant, 0, len(doc.Variants))
	for _, raw := range doc.Variants {
		variant, err := decodeVariant(id, raw)
		if err != nil {
			return domain.Product{}, err
		}
		product.Variants = append(product.Variants, variant)
	}

	product.Ratings = make([]domain.Rating, 0, len(doc.Ratings))
	for _, rating := range doc.Ratings {
		product.Ratings = append(product.Ratings, domain.Rating{
			UserID:    rating.UserID,
			UserName:  rating.UserName,
			Score:     rating.Score,
			Comment:   rating.Comment,
			CreatedAt: rating.CreatedAt,
		})
	}
	return product, nil
}

func decodeVariant(productID string, doc variantDocument) (domain.Variant, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(doc.Price))
	if err != nil {
		return domain.Variant{}, fmt.Errorf("products decode %s: variant %s price %q: %w", productID, doc.ID, doc.Price, err)
	}
	variant := domain.Variant{
		ID:      doc.ID,
		Color:   doc.Color,
		Pricing: domain.VariantPricing{Price: price},
		Images:  append([]string(nil), doc.Images...),
	}
	if offer := strings.TrimSpace(doc.OfferPrice); offer != "" {
		parsed, err := decimal.NewFromString(offer)
		if err != nil {
			return domain.Variant{}, fmt.Errorf("products decode %s: variant %s offer price %q: %w", productID, doc.ID, offer, err)
		}
		variant.Pricing.OfferPrice = &parsed
	}
	switch {
	case len(doc.SizeStock) > 0:
		shape := &domain.SizedShape{Sizes: make([]domain.SizeStock, 0, len(doc.SizeStock))}
		for _, entry := range doc.SizeStock {
			shape.Sizes = append(shape.Sizes, domain.SizeStock{Size: entry.Size, Stock: entry.Stock})
		}
		variant.Sized = shape
	default:
		shape := &domain.ConfiguredShape{RAM: doc.RAM, ROM: doc.ROM}
		if doc.Stock != nil {
			shape.Stock = *doc.Stock
		}
		variant.Configured = shape
	}
	return variant, nil
}

func firstNonZeroTime(values ...time.Time) time.Time {
	for _, value := range values {
		if !value.IsZero() {
			return value
		}
	}
	return time.Time{}
}

type productDocument struct {
	Name          string            `firestore:"name"`
	Brand         string            `firestore:"brand,omitempty"`
	Description   string            `firestore:"description,omitempty"`
	Category      string            `firestore:"category"`
	Class         string            `firestore:"class"`
	Images        []string          `firestore:"images,omitempty"`
	Variants      []variantDocument `firestore:"variants"`
	Ratings       []ratingDocument  `firestore:"ratings,omitempty"`
	AverageRating float64           `firestore:"averageRating"`
	IsDeleted     bool              `firestore:"isDeleted"`
	CreatedAt     time.Time         `firestore:"createdAt"`
	UpdatedAt     time.Time         `firestore:"updatedAt"`
}

type variantDocument struct {
	ID         string              `firestore:"id"`
	Color      string              `firestore:"color"`
	Price      string              `firestore:"price"`
	OfferPrice string              `firestore:"offerPrice,omitempty"`
	SizeStock  []sizeStockDocument `firestore:"sizeStock,omitempty"`
	RAM        string              `firestore:"ram,omitempty"`
	ROM        string              `firestore:"rom,omitempty"`
	Stock      *int                `firestore:"stock,omitempty"`
	Images     []string            `firestore:"images,omitempty"`
}

type sizeStockDocument struct {
	Size  string `firestore:"size"`
	Stock int    `firestore:"stock"`
}

type ratingDocument struct {
	UserID    string    `firestore:"userId"`
	UserName  string    `firestore:"userName,omitempty"`
	Score     int       `firestore:"score"`
	Comment   string    `firestore:"comment,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
