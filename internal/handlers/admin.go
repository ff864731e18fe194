package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/platform/auth"
	"github.com/zenithcart/api/internal/platform/httpx"
	"github.com/zenithcart/api/internal/services"
)

const maxAdminBodySize = 256 * 1024

// AdminHandlers exposes back-office catalog and order administration.
type AdminHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	orders  services.OrderService
	media   services.MediaService
}

// NewAdminHandlers constructs the admin handlers. The media service is
// optional; image uploads report unavailable when it is absent.
func NewAdminHandlers(authn *auth.Authenticator, catalog services.CatalogService, orders services.OrderService, media services.MediaService) *AdminHandlers {
	return &AdminHandlers{
		authn:   authn,
		catalog: catalog,
		orders:  orders,
		media:   media,
	}
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAdmin())
	}
	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Delete("/products/{productID}", h.deleteProduct)
	r.Post("/products/{productID}/images/sign-upload", h.signProductImageUpload)
	r.Get("/orders", h.listOrders)
	r.Patch("/orders/{orderID}/status", h.updateOrderStatus)
	r.Post("/orders/{orderID}/cancel", h.cancelOrder)
	r.Post("/orders/{orderID}/items/{itemID}/cancel", h.cancelItem)
}

type productVariantRequest struct {
	Color      string             `json:"color"`
	Price      string             `json:"price"`
	OfferPrice string             `json:"offer_price"`
	Sizes      []sizeStockPayload `json:"sizes"`
	RAM        string             `json:"ram"`
	ROM        string             `json:"rom"`
	Stock      int                `json:"stock"`
	Images     []string           `json:"images"`
}

type productRequest struct {
	Name        string                  `json:"name"`
	Brand       string                  `json:"brand"`
	Description string                  `json:"description"`
	Category    string                  `json:"category"`
	Images      []string                `json:"images"`
	Variants    []productVariantRequest `json:"variants"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type signUploadRequest struct {
	VariantID   string `json:"variant_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	ContentMD5  string `json:"content_md5"`
	SizeBytes   int64  `json:"size_bytes"`
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req productRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		Name:        req.Name,
		Brand:       req.Brand,
		Description: req.Description,
		Category:    req.Category,
		Images:      req.Images,
		Variants:    buildVariantInputs(req.Variants),
	})
	if err != nil {
		writeAdminCatalogError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"product": buildProductPayload(product, true)})
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req productRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, services.UpdateProductCommand{
		ProductID:   chi.URLParam(r, "productID"),
		Name:        req.Name,
		Brand:       req.Brand,
		Description: req.Description,
		Category:    req.Category,
		Images:      req.Images,
		Variants:    buildVariantInputs(req.Variants),
	})
	if err != nil {
		writeAdminCatalogError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product, true)})
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productID")); err != nil {
		writeAdminCatalogError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// signProductImageUpload issues a short-lived signed URL the admin client
// uploads the image to directly, keeping binaries off the API path.
func (h *AdminHandlers) signProductImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.media == nil {
		httpx.WriteError(ctx, w, httpx.NewError("media_unavailable", "media uploads are not configured", http.StatusServiceUnavailable))
		return
	}

	var req signUploadRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	upload, err := h.media.SignProductImageUpload(ctx, services.SignProductImageUploadCommand{
		ProductID:   chi.URLParam(r, "productID"),
		VariantID:   req.VariantID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		ContentMD5:  req.ContentMD5,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		writeMediaError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"upload": map[string]any{
			"url":         upload.UploadURL,
			"method":      upload.Method,
			"headers":     upload.Headers,
			"object_path": upload.ObjectPath,
			"expires_at":  upload.ExpiresAt,
		},
	})
}

func writeMediaError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product does not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrVariantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", "variant does not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrMediaInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrMediaUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("media_unavailable", "media uploads are not configured", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("media_sign_failed", "unable to sign upload", http.StatusBadGateway))
	}
}

// listOrders returns orders across all users, optionally filtered to one.
func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	filter, err := parseOrderListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.UserID = strings.TrimSpace(r.URL.Query().Get("user_id"))

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"orders":          items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateStatusRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  domain.OrderStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  readCancelReason(r),
		Admin:   true,
	})
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCancellationPayload(result))
}

func (h *AdminHandlers) cancelItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := h.orders.CancelItem(ctx, services.CancelOrderItemCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ItemID:  chi.URLParam(r, "itemID"),
		Reason:  readCancelReason(r),
		Admin:   true,
	})
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCancellationPayload(result))
}

func writeAdminCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	(&CatalogHandlers{}).writeCatalogError(r.Context(), w, err)
}

func buildVariantInputs(variants []productVariantRequest) []services.VariantInput {
	if len(variants) == 0 {
		return nil
	}
	out := make([]services.VariantInput, 0, len(variants))
	for _, variant := range variants {
		input := services.VariantInput{
			Color:      variant.Color,
			Price:      variant.Price,
			OfferPrice: variant.OfferPrice,
			RAM:        variant.RAM,
			ROM:        variant.ROM,
			Stock:      variant.Stock,
			Images:     variant.Images,
		}
		for _, size := range variant.Sizes {
			input.Sizes = append(input.Sizes, domain.SizeStock{Size: size.Size, Stock: size.Stock})
		}
		out = append(out, input)
	}
	return out
}
