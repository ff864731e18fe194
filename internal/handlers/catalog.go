package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/platform/auth"
	"github.com/zenithcart/api/internal/platform/httpx"
	"github.com/zenithcart/api/internal/services"
)

const maxRatingBodySize = 16 * 1024

// CatalogHandlers exposes public product browsing plus authenticated reviews.
type CatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewCatalogHandlers constructs the catalog handlers.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes wires the /products endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)

	r.Group(func(private chi.Router) {
		if h.authn != nil {
			private.Use(h.authn.RequireUser())
		}
		private.Post("/{productID}/ratings", h.addRating)
	})
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := services.ProductListQuery{
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Brand:    strings.TrimSpace(r.URL.Query().Get("brand")),
		Search:   strings.TrimSpace(r.URL.Query().Get("q")),
		Pagination: services.Pagination{
			PageToken: strings.TrimSpace(r.URL.Query().Get("page_token")),
		},
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be a non-negative integer", http.StatusBadRequest))
			return
		}
		query.Pagination.PageSize = size
	}

	page, err := h.catalog.ListProducts(ctx, query)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product, false))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"products":        items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product, true)})
}

type addRatingRequest struct {
	Score    int    `json:"score"`
	Comment  string `json:"comment"`
	UserName string `json:"user_name"`
}

func (h *CatalogHandlers) addRating(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addRatingRequest
	if err := decodeJSONBody(r, maxRatingBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	product, err := h.catalog.AddRating(ctx, services.AddRatingCommand{
		ProductID: chi.URLParam(r, "productID"),
		UserID:    identity.UserID,
		UserName:  req.UserName,
		Score:     req.Score,
		Comment:   req.Comment,
	})
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"product": buildProductPayload(product, true)})
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", "product has been modified; refresh and retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	}
}

type productPayload struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Brand         string           `json:"brand,omitempty"`
	Description   string           `json:"description,omitempty"`
	Category      string           `json:"category"`
	Class         string           `json:"class"`
	Images        []string         `json:"images,omitempty"`
	Variants      []variantPayload `json:"variants"`
	AverageRating float64          `json:"average_rating"`
	Ratings       []ratingPayload  `json:"ratings,omitempty"`
	CreatedAt     string           `json:"created_at,omitempty"`
	UpdatedAt     string           `json:"updated_at,omitempty"`
}

type variantPayload struct {
	ID         string             `json:"id"`
	Color      string             `json:"color"`
	Price      string             `json:"price"`
	OfferPrice string             `json:"offer_price,omitempty"`
	Sizes      []sizeStockPayload `json:"sizes,omitempty"`
	RAM        string             `json:"ram,omitempty"`
	ROM        string             `json:"rom,omitempty"`
	Stock      *int               `json:"stock,omitempty"`
	Images     []string           `json:"images,omitempty"`
}

type sizeStockPayload struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

type ratingPayload struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	Score     int    `json:"score"`
	Comment   string `json:"comment,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func buildProductPayload(product services.Product, includeRatings bool) productPayload {
	payload := productPayload{
		ID:            product.ID,
		Name:          product.Name,
		Brand:         product.Brand,
		Description:   product.Description,
		Category:      product.Category,
		Class:         string(product.Class),
		Images:        product.Images,
		Variants:      buildVariantPayloads(product.Variants),
		AverageRating: product.AverageRating,
		CreatedAt:     formatTime(product.CreatedAt),
		UpdatedAt:     formatTime(product.UpdatedAt),
	}
	if includeRatings {
		payload.Ratings = buildRatingPayloads(product.Ratings)
	}
	return payload
}

func buildVariantPayloads(variants []domain.Variant) []variantPayload {
	out := make([]variantPayload, 0, len(variants))
	for _, variant := range variants {
		entry := variantPayload{
			ID:     variant.ID,
			Color:  variant.Color,
			Price:  domain.AmountString(variant.Pricing.Price),
			Images: variant.Images,
		}
		if variant.Pricing.OfferPrice != nil {
			entry.OfferPrice = domain.AmountString(*variant.Pricing.OfferPrice)
		}
		if variant.Sized != nil {
			entry.Sizes = make([]sizeStockPayload, 0, len(variant.Sized.Sizes))
			for _, size := range variant.Sized.Sizes {
				entry.Sizes = append(entry.Sizes, sizeStockPayload{Size: size.Size, Stock: size.Stock})
			}
		}
		if variant.Configured != nil {
			entry.RAM = variant.Configured.RAM
			entry.ROM = variant.Configured.ROM
			stock := variant.Configured.Stock
			entry.Stock = &stock
		}
		out = append(out, entry)
	}
	return out
}

func buildRatingPayloads(ratings []domain.Rating) []ratingPayload {
	if len(ratings) == 0 {
		return nil
	}
	out := make([]ratingPayload, 0, len(ratings))
	for _, rating := range ratings {
		out = append(out, ratingPayload{
			UserID:    rating.UserID,
			UserName:  rating.UserName,
			Score:     rating.Score,
			Comment:   rating.Comment,
			CreatedAt: formatTime(rating.CreatedAt),
		})
	}
	return out
}
