package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/platform/auth"
	"github.com/zenithcart/api/internal/platform/httpx"
	"github.com/zenithcart/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireUser())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{entryID}", h.updateItem)
	r.Delete("/items/{entryID}", h.removeItem)
	r.Post("/remove", h.removeByFields)
	r.Post("/reorder", h.reorder)
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	RAM       string `json:"ram"`
	ROM       string `json:"rom"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type removeCartItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	RAM       string `json:"ram"`
	ROM       string `json:"rom"`
}

type reorderRequest struct {
	OrderID string `json:"order_id"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCart(w, r)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(ctx, identity.UserID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(view)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCart(w, r)
	if !ok {
		return
	}

	var req addCartItemRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	view, err := h.carts.AddToCart(ctx, services.AddToCartCommand{
		UserID:    identity.UserID,
		ProductID: req.ProductID,
		Selection: domain.VariantSelection{
			Color: req.Color,
			Size:  req.Size,
			RAM:   req.RAM,
			ROM:   req.ROM,
		},
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(view)})
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCart(w, r)
	if !ok {
		return
	}

	var req updateCartItemRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	view, err := h.carts.UpdateQuantity(ctx, services.UpdateCartQuantityCommand{
		UserID:   identity.UserID,
		EntryID:  chi.URLParam(r, "entryID"),
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(view)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCart(w, r)
	if !ok {
		return
	}

	view, err := h.carts.RemoveFromCart(ctx, services.RemoveFromCartCommand{
		UserID:  identity.UserID,
		EntryID: chi.URLParam(r, "entryID"),
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(view)})
}

// removeByFields removes an entry matched by its product and selection rather
// than the entry ID. Matching no entry is a no-op.
func (h *CartHandlers) removeByFields(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCart(w, r)
	if !ok {
		return
	}

	var req removeCartItemRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	view, err := h.carts.RemoveFromCart(ctx, services.RemoveFromCartCommand{
		UserID:    identity.UserID,
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Selection: domain.VariantSelection{
			Color: req.Color,
			Size:  req.Size,
			RAM:   req.RAM,
			ROM:   req.ROM,
		},
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(view)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCart(w, r)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, identity.UserID); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) reorder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireCart(w, r)
	if !ok {
		return
	}

	var req reorderRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	view, err := h.carts.Reorder(ctx, services.ReorderCommand{
		UserID:  identity.UserID,
		OrderID: req.OrderID,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(view)})
}

func (h *CartHandlers) requireCart(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	if h.carts == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return requireIdentity(w, r)
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrVariantNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("variant_not_found", "requested variant does not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrOutOfStock):
		httpx.WriteError(ctx, w, httpx.NewError("out_of_stock", "requested quantity exceeds available stock", http.StatusConflict))
	case errors.Is(err, services.ErrCartEntryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_entry_not_found", "cart entry not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

type cartPayload struct {
	UserID     string            `json:"user_id"`
	Lines      []cartLinePayload `json:"lines"`
	ItemsPrice string            `json:"items_price"`
	Discount   string            `json:"discount"`
	Total      string            `json:"total"`
	UpdatedAt  string            `json:"updated_at,omitempty"`
}

type cartLinePayload struct {
	EntryID        string           `json:"entry_id"`
	ProductID      string           `json:"product_id"`
	VariantID      string           `json:"variant_id"`
	Selection      selectionPayload `json:"selection"`
	Quantity       int              `json:"quantity"`
	Name           string           `json:"name,omitempty"`
	Brand          string           `json:"brand,omitempty"`
	Image          string           `json:"image,omitempty"`
	Price          string           `json:"price,omitempty"`
	OfferPrice     string           `json:"offer_price,omitempty"`
	LineTotal      string           `json:"line_total"`
	AvailableStock int              `json:"available_stock"`
	StockWarning   bool             `json:"stock_warning,omitempty"`
	Unavailable    bool             `json:"unavailable,omitempty"`
}

type selectionPayload struct {
	Color string `json:"color,omitempty"`
	Size  string `json:"size,omitempty"`
	RAM   string `json:"ram,omitempty"`
	ROM   string `json:"rom,omitempty"`
}

func buildCartPayload(view services.CartView) cartPayload {
	lines := make([]cartLinePayload, 0, len(view.Lines))
	for _, line := range view.Lines {
		entry := cartLinePayload{
			EntryID:        line.Entry.ID,
			ProductID:      line.Entry.ProductID,
			VariantID:      line.Entry.VariantID,
			Selection:      buildSelectionPayload(line.Entry.Selection),
			Quantity:       line.Entry.Quantity,
			Name:           line.Name,
			Brand:          line.Brand,
			Image:          line.Image,
			LineTotal:      domain.AmountString(line.LineTotal),
			AvailableStock: line.AvailableStock,
			StockWarning:   line.StockWarning,
			Unavailable:    line.Unavailable,
		}
		if !line.Unavailable {
			entry.Price = domain.AmountString(line.Price)
			if line.OfferPrice != nil {
				entry.OfferPrice = domain.AmountString(*line.OfferPrice)
			}
		}
		lines = append(lines, entry)
	}

	return cartPayload{
		UserID:     view.UserID,
		Lines:      lines,
		ItemsPrice: domain.AmountString(view.ItemsPrice),
		Discount:   domain.AmountString(view.Discount),
		Total:      domain.AmountString(view.Total),
		UpdatedAt:  formatTime(view.UpdatedAt),
	}
}

func buildSelectionPayload(sel domain.VariantSelection) selectionPayload {
	return selectionPayload{
		Color: sel.Color,
		Size:  sel.Size,
		RAM:   sel.RAM,
		ROM:   sel.ROM,
	}
}
