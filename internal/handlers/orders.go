package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/platform/auth"
	"github.com/zenithcart/api/internal/platform/httpx"
	"github.com/zenithcart/api/internal/services"
)

const maxOrderBodySize = 16 * 1024

// OrderHandlers exposes order history and cancellation endpoints for the
// current user.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs the order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireUser())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
	r.Post("/{orderID}/items/{itemID}/cancel", h.cancelItem)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireOrders(w, r)
	if !ok {
		return
	}

	filter, err := parseOrderListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.UserID = identity.UserID

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		h.writeOrderError(ctx, w, err)
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

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireOrders(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, identity.UserID, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireOrders(w, r)
	if !ok {
		return
	}

	reason := readCancelReason(r)
	result, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		UserID:  identity.UserID,
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  reason,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCancellationPayload(result))
}

func (h *OrderHandlers) cancelItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireOrders(w, r)
	if !ok {
		return
	}

	reason := readCancelReason(r)
	result, err := h.orders.CancelItem(ctx, services.CancelOrderItemCommand{
		UserID:  identity.UserID,
		OrderID: chi.URLParam(r, "orderID"),
		ItemID:  chi.URLParam(r, "itemID"),
		Reason:  reason,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCancellationPayload(result))
}

func (h *OrderHandlers) requireOrders(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return requireIdentity(w, r)
}

// readCancelReason tolerates an absent body; cancellation works without one.
func readCancelReason(r *http.Request) string {
	var req cancelRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.Reason)
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	writeOrderServiceError(ctx, w, err)
}

func writeOrderServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_item_not_found", "order item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderItemAlreadyCancelled):
		httpx.WriteError(ctx, w, httpx.NewError("item_already_cancelled", "order item is already cancelled", http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotCancellable):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_cancellable", "order can no longer be cancelled", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderRefundFailed):
		httpx.WriteError(ctx, w, httpx.NewError("refund_failed", "payment gateway rejected the refund", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	}
}

func parseOrderListFilter(r *http.Request) (services.OrderListFilter, error) {
	filter := services.OrderListFilter{
		Pagination: services.Pagination{
			PageToken: strings.TrimSpace(r.URL.Query().Get("page_token")),
		},
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			return filter, errors.New("page_size must be a non-negative integer")
		}
		filter.Pagination.PageSize = size
	}
	for _, status := range r.URL.Query()["status"] {
		if trimmed := strings.TrimSpace(status); trimmed != "" {
			filter.Status = append(filter.Status, domain.OrderStatus(trimmed))
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("placed_after")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("placed_after must be an RFC3339 timestamp")
		}
		filter.DateRange.From = &from
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("placed_before")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("placed_before must be an RFC3339 timestamp")
		}
		filter.DateRange.To = &to
	}
	return filter, nil
}

type orderPayload struct {
	ID              string             `json:"id"`
	Number          string             `json:"number"`
	UserID          string             `json:"user_id"`
	Items           []orderItemPayload `json:"items"`
	ShippingAddress checkoutAddress    `json:"shipping_address"`
	ItemsPrice      string             `json:"items_price"`
	Discount        string             `json:"discount"`
	TotalAmount     string             `json:"total_amount"`
	Status          string             `json:"status"`
	PaymentMethod   string             `json:"payment_method"`
	PaymentStatus   string             `json:"payment_status"`
	GatewayOrderID  string             `json:"gateway_order_id,omitempty"`
	Refunds         []refundPayload    `json:"refunds,omitempty"`
	PlacedAt        string             `json:"placed_at,omitempty"`
	DeliveredAt     string             `json:"delivered_at,omitempty"`
	CancelledAt     string             `json:"cancelled_at,omitempty"`
}

type orderItemPayload struct {
	ID         string           `json:"id"`
	ProductID  string           `json:"product_id"`
	VariantID  string           `json:"variant_id"`
	Name       string           `json:"name"`
	Selection  selectionPayload `json:"selection"`
	Quantity   int              `json:"quantity"`
	Price      string           `json:"price"`
	OfferPrice string           `json:"offer_price,omitempty"`
	Images     []string         `json:"images,omitempty"`
	Cancelled  bool             `json:"cancelled,omitempty"`
}

type refundPayload struct {
	RefundID  string `json:"refund_id"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		entry := orderItemPayload{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Selection: buildSelectionPayload(item.Selection),
			Quantity:  item.Quantity,
			Price:     domain.AmountString(item.Price),
			Images:    item.Images,
			Cancelled: item.Cancelled,
		}
		if item.OfferPrice != nil {
			entry.OfferPrice = domain.AmountString(*item.OfferPrice)
		}
		items = append(items, entry)
	}

	refunds := make([]refundPayload, 0, len(order.Refunds))
	for _, refund := range order.Refunds {
		refunds = append(refunds, refundPayload{
			RefundID:  refund.RefundID,
			Amount:    domain.AmountString(refund.Amount),
			Reason:    refund.Reason,
			Status:    string(refund.Status),
			CreatedAt: formatTime(refund.CreatedAt),
		})
	}

	payload := orderPayload{
		ID:     order.ID,
		Number: order.Number,
		UserID: order.UserID,
		Items:  items,
		ShippingAddress: checkoutAddress{
			Line1:   order.ShippingAddress.Line1,
			City:    order.ShippingAddress.City,
			State:   order.ShippingAddress.State,
			Pincode: order.ShippingAddress.Pincode,
			Phone:   order.ShippingAddress.Phone,
		},
		ItemsPrice:     domain.AmountString(order.Summary.ItemsPrice),
		Discount:       domain.AmountString(order.Summary.Discount),
		TotalAmount:    domain.AmountString(order.Summary.TotalAmount),
		Status:         string(order.Status),
		PaymentMethod:  string(order.PaymentMethod),
		PaymentStatus:  string(order.PaymentStatus),
		GatewayOrderID: order.Gateway.OrderID,
		Refunds:        refunds,
		PlacedAt:       formatTime(order.PlacedAt),
	}
	if order.DeliveredAt != nil {
		payload.DeliveredAt = formatTime(*order.DeliveredAt)
	}
	if order.CancelledAt != nil {
		payload.CancelledAt = formatTime(*order.CancelledAt)
	}
	return payload
}

func buildCancellationPayload(result services.CancellationResult) map[string]any {
	return map[string]any{
		"order":         buildOrderPayload(result.Order),
		"refund_amount": domain.AmountString(result.RefundAmount),
		"refund_issued": result.RefundIssued,
	}
}
