package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/services"
)

func newAdminRouter(catalog services.CatalogService, orders services.OrderService) http.Handler {
	r := chi.NewRouter()
	r.Route("/admin", NewAdminHandlers(testAuthenticator(), catalog, orders, nil).Routes)
	return r
}

func newAdminMediaRouter(media services.MediaService) http.Handler {
	r := chi.NewRouter()
	r.Route("/admin", NewAdminHandlers(testAuthenticator(), &stubCatalogService{}, &stubOrderService{}, media).Routes)
	return r
}

func TestAdminRejectsCustomerToken(t *testing.T) {
	rec := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, &stubOrderService{}).
		ServeHTTP(rec, authedRequest(http.MethodGet, "/admin/orders", customerToken, ""))
	assertStatus(t, rec, http.StatusForbidden)
}

func TestAdminRejectsAnonymous(t *testing.T) {
	rec := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, &stubOrderService{}).
		ServeHTTP(rec, authedRequest(http.MethodGet, "/admin/orders", "", ""))
	assertStatus(t, rec, http.StatusUnauthorized)
}

func TestAdminCreateProduct(t *testing.T) {
	var gotCmd services.CreateProductCommand
	catalog := &stubCatalogService{
		create: func(_ context.Context, cmd services.CreateProductCommand) (services.Product, error) {
			gotCmd = cmd
			return services.Product{ID: "prod-1", Name: cmd.Name, Category: cmd.Category}, nil
		},
	}

	body := `{
		"name": "Graphic Tee",
		"brand": "Acme",
		"category": "clothing",
		"variants": [
			{"color": "Black", "price": "999.00", "offer_price": "899.00", "sizes": [{"size": "M", "stock": 5}, {"size": "L", "stock": 2}]}
		]
	}`
	rec := httptest.NewRecorder()
	newAdminRouter(catalog, &stubOrderService{}).
		ServeHTTP(rec, authedRequest(http.MethodPost, "/admin/products", adminToken, body))

	assertStatus(t, rec, http.StatusCreated)
	assertBodyContains(t, rec, `"id":"prod-1"`)
	if gotCmd.Name != "Graphic Tee" || len(gotCmd.Variants) != 1 {
		t.Fatalf("unexpected command: %+v", gotCmd)
	}
	variant := gotCmd.Variants[0]
	if variant.Price != "999.00" || variant.OfferPrice != "899.00" {
		t.Fatalf("unexpected variant pricing: %+v", variant)
	}
	if len(variant.Sizes) != 2 || variant.Sizes[0].Size != "M" || variant.Sizes[0].Stock != 5 {
		t.Fatalf("unexpected sizes: %+v", variant.Sizes)
	}
}

func TestAdminUpdateProductNotFound(t *testing.T) {
	catalog := &stubCatalogService{
		update: func(context.Context, services.UpdateProductCommand) (services.Product, error) {
			return services.Product{}, services.ErrProductNotFound
		},
	}

	rec := httptest.NewRecorder()
	newAdminRouter(catalog, &stubOrderService{}).
		ServeHTTP(rec, authedRequest(http.MethodPut, "/admin/products/missing", adminToken, `{"name":"x"}`))

	assertStatus(t, rec, http.StatusNotFound)
	assertBodyContains(t, rec, "product_not_found")
}

func TestAdminDeleteProduct(t *testing.T) {
	var gotID string
	catalog := &stubCatalogService{
		del: func(_ context.Context, productID string) error {
			gotID = productID
			return nil
		},
	}

	rec := httptest.NewRecorder()
	newAdminRouter(catalog, &stubOrderService{}).
		ServeHTTP(rec, authedRequest(http.MethodDelete, "/admin/products/prod-1", adminToken, ""))

	assertStatus(t, rec, http.StatusNoContent)
	if gotID != "prod-1" {
		t.Fatalf("expected delete for prod-1, got %q", gotID)
	}
}

func TestAdminListOrdersAcrossUsers(t *testing.T) {
	var gotFilter services.OrderListFilter
	orders := &stubOrderService{
		listOrders: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			gotFilter = filter
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder("user-7")}}, nil
		},
	}

	rec := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, orders).
		ServeHTTP(rec, authedRequest(http.MethodGet, "/admin/orders", adminToken, ""))

	assertStatus(t, rec, http.StatusOK)
	if gotFilter.UserID != "" {
		t.Fatalf("admin listing must not default to the caller, got %q", gotFilter.UserID)
	}
}

func TestAdminListOrdersFiltersByUser(t *testing.T) {
	var gotFilter services.OrderListFilter
	orders := &stubOrderService{
		listOrders: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			gotFilter = filter
			return domain.CursorPage[services.Order]{}, nil
		},
	}

	rec := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, orders).
		ServeHTTP(rec, authedRequest(http.MethodGet, "/admin/orders?user_id=user-7", adminToken, ""))

	assertStatus(t, rec, http.StatusOK)
	if gotFilter.UserID != "user-7" {
		t.Fatalf("expected user-7 filter, got %q", gotFilter.UserID)
	}
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	var gotCmd services.UpdateOrderStatusCommand
	orders := &stubOrderService{
		updateStatus: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			gotCmd = cmd
			order := sampleOrder("user-1")
			order.Status = cmd.Status
			return order, nil
		},
	}

	rec := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, orders).
		ServeHTTP(rec, authedRequest(http.MethodPatch, "/admin/orders/order-1/status", adminToken, `{"status":"Shipped"}`))

	assertStatus(t, rec, http.StatusOK)
	assertBodyContains(t, rec, `"status":"Shipped"`)
	if gotCmd.OrderID != "order-1" || gotCmd.Status != domain.OrderStatusShipped {
		t.Fatalf("unexpected command: %+v", gotCmd)
	}
}

func TestAdminUpdateOrderStatusInvalidTransition(t *testing.T) {
	orders := &stubOrderService{
		updateStatus: func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidStatus
		},
	}

	rec := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, orders).
		ServeHTTP(rec, authedRequest(http.MethodPatch, "/admin/orders/order-1/status", adminToken, `{"status":"Placed"}`))

	assertStatus(t, rec, http.StatusBadRequest)
	assertBodyContains(t, rec, "invalid_status_transition")
}

func TestAdminCancelSetsAdminFlag(t *testing.T) {
	var gotCmd services.CancelOrderCommand
	orders := &stubOrderService{
		cancelOrder: func(_ context.Context, cmd services.CancelOrderCommand) (services.CancellationResult, error) {
			gotCmd = cmd
			return services.CancellationResult{Order: sampleOrder("user-1")}, nil
		},
	}

	rec := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, orders).
		ServeHTTP(rec, authedRequest(http.MethodPost, "/admin/orders/order-1/cancel", adminToken, `{"reason":"fraud review"}`))

	assertStatus(t, rec, http.StatusOK)
	if !gotCmd.Admin {
		t.Fatal("admin cancellation must set the admin flag")
	}
	if gotCmd.Reason != "fraud review" {
		t.Fatalf("expected reason forwarded, got %q", gotCmd.Reason)
	}
}

func TestAdminSignImageUpload(t *testing.T) {
	var gotCmd services.SignProductImageUploadCommand
	media := &stubMediaService{
		sign: func(_ context.Context, cmd services.SignProductImageUploadCommand) (services.SignedImageUpload, error) {
			gotCmd = cmd
			return services.SignedImageUpload{
				UploadURL:  "https://storage.googleapis.com/zc-media/media/products/prod-1/images/u1-front.png?sig=abc",
				Method:     "PUT",
				Headers:    map[string]string{"Content-Type": "image/png"},
				ObjectPath: "media/products/prod-1/images/u1-front.png",
			}, nil
		},
	}

	body := `{"file_name":"front.png","content_type":"image/png","size_bytes":2048}`
	rec := httptest.NewRecorder()
	newAdminMediaRouter(media).
		ServeHTTP(rec, authedRequest(http.MethodPost, "/admin/products/prod-1/images/sign-upload", adminToken, body))

	assertStatus(t, rec, http.StatusCreated)
	assertBodyContains(t, rec, `"method":"PUT"`, `"object_path":"media/products/prod-1/images/u1-front.png"`)
	if gotCmd.ProductID != "prod-1" || gotCmd.FileName != "front.png" || gotCmd.SizeBytes != 2048 {
		t.Fatalf("unexpected command: %+v", gotCmd)
	}
}

func TestAdminSignImageUploadUnconfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, &stubOrderService{}).
		ServeHTTP(rec, authedRequest(http.MethodPost, "/admin/products/prod-1/images/sign-upload", adminToken, `{"file_name":"x.png","content_type":"image/png"}`))

	assertStatus(t, rec, http.StatusServiceUnavailable)
	assertBodyContains(t, rec, "media_unavailable")
}

func TestAdminSignImageUploadUnknownProduct(t *testing.T) {
	media := &stubMediaService{
		sign: func(context.Context, services.SignProductImageUploadCommand) (services.SignedImageUpload, error) {
			return services.SignedImageUpload{}, services.ErrProductNotFound
		},
	}

	rec := httptest.NewRecorder()
	newAdminMediaRouter(media).
		ServeHTTP(rec, authedRequest(http.MethodPost, "/admin/products/ghost/images/sign-upload", adminToken, `{"file_name":"x.png","content_type":"image/png"}`))

	assertStatus(t, rec, http.StatusNotFound)
	assertBodyContains(t, rec, "product_not_found")
}

func TestAdminCancelItemSetsAdminFlag(t *testing.T) {
	var gotCmd services.CancelOrderItemCommand
	orders := &stubOrderService{
		cancelItem: func(_ context.Context, cmd services.CancelOrderItemCommand) (services.CancellationResult, error) {
			gotCmd = cmd
			return services.CancellationResult{Order: sampleOrder("user-1")}, nil
		},
	}

	rec := httptest.NewRecorder()
	newAdminRouter(&stubCatalogService{}, orders).
		ServeHTTP(rec, authedRequest(http.MethodPost, "/admin/orders/order-1/items/item-1/cancel", adminToken, ""))

	assertStatus(t, rec, http.StatusOK)
	if !gotCmd.Admin || gotCmd.ItemID != "item-1" {
		t.Fatalf("unexpected command: %+v", gotCmd)
	}
}
