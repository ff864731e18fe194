package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/platform/auth"
	"github.com/zenithcart/api/internal/services"
)

const (
	customerToken = "customer-token"
	adminToken    = "admin-token"
)

type stubTokenParser struct{}

func (stubTokenParser) Parse(token string) (*auth.Identity, error) {
	switch token {
	case customerToken:
		return &auth.Identity{UserID: "user-1", Email: "asha@example.com", Role: auth.RoleCustomer}, nil
	case adminToken:
		return &auth.Identity{UserID: "admin-1", Email: "ops@example.com", Role: auth.RoleAdmin}, nil
	default:
		return nil, auth.ErrTokenInvalid
	}
}

func testAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(stubTokenParser{})
}

func authedRequest(method, target, token string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

type stubCartService struct {
	getCart        func(ctx context.Context, userID string) (services.CartView, error)
	addToCart      func(ctx context.Context, cmd services.AddToCartCommand) (services.CartView, error)
	updateQuantity func(ctx context.Context, cmd services.UpdateCartQuantityCommand) (services.CartView, error)
	removeFromCart func(ctx context.Context, cmd services.RemoveFromCartCommand) (services.CartView, error)
	clearCart      func(ctx context.Context, userID string) error
	reorder        func(ctx context.Context, cmd services.ReorderCommand) (services.CartView, error)
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.CartView, error) {
	if s.getCart == nil {
		return services.CartView{UserID: userID}, nil
	}
	return s.getCart(ctx, userID)
}

func (s *stubCartService) AddToCart(ctx context.Context, cmd services.AddToCartCommand) (services.CartView, error) {
	if s.addToCart == nil {
		return services.CartView{}, errors.New("unexpected AddToCart")
	}
	return s.addToCart(ctx, cmd)
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, cmd services.UpdateCartQuantityCommand) (services.CartView, error) {
	if s.updateQuantity == nil {
		return services.CartView{}, errors.New("unexpected UpdateQuantity")
	}
	return s.updateQuantity(ctx, cmd)
}

func (s *stubCartService) RemoveFromCart(ctx context.Context, cmd services.RemoveFromCartCommand) (services.CartView, error) {
	if s.removeFromCart == nil {
		return services.CartView{}, errors.New("unexpected RemoveFromCart")
	}
	return s.removeFromCart(ctx, cmd)
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearCart == nil {
		return nil
	}
	return s.clearCart(ctx, userID)
}

func (s *stubCartService) Reorder(ctx context.Context, cmd services.ReorderCommand) (services.CartView, error) {
	if s.reorder == nil {
		return services.CartView{}, errors.New("unexpected Reorder")
	}
	return s.reorder(ctx, cmd)
}

type stubCheckoutService struct {
	checkout func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error)
	verify   func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	if s.checkout == nil {
		return services.CheckoutResult{}, errors.New("unexpected Checkout")
	}
	return s.checkout(ctx, cmd)
}

func (s *stubCheckoutService) VerifyAndPlaceOrder(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
	if s.verify == nil {
		return services.Order{}, errors.New("unexpected VerifyAndPlaceOrder")
	}
	return s.verify(ctx, cmd)
}

type stubOrderService struct {
	getOrder        func(ctx context.Context, userID, orderID string) (services.Order, error)
	listOrders      func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	updateStatus    func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error)
	cancelOrder     func(ctx context.Context, cmd services.CancelOrderCommand) (services.CancellationResult, error)
	cancelItem      func(ctx context.Context, cmd services.CancelOrderItemCommand) (services.CancellationResult, error)
	paymentCaptured func(ctx context.Context, gatewayOrderID, paymentID string) error
	refundEvent     func(ctx context.Context, refundID string, status domain.RefundStatus) error
}

func (s *stubOrderService) GetOrder(ctx context.Context, userID, orderID string) (services.Order, error) {
	if s.getOrder == nil {
		return services.Order{}, errors.New("unexpected GetOrder")
	}
	return s.getOrder(ctx, userID, orderID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listOrders == nil {
		return domain.CursorPage[services.Order]{}, errors.New("unexpected ListOrders")
	}
	return s.listOrders(ctx, filter)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateStatus == nil {
		return services.Order{}, errors.New("unexpected UpdateStatus")
	}
	return s.updateStatus(ctx, cmd)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.CancellationResult, error) {
	if s.cancelOrder == nil {
		return services.CancellationResult{}, errors.New("unexpected CancelOrder")
	}
	return s.cancelOrder(ctx, cmd)
}

func (s *stubOrderService) CancelItem(ctx context.Context, cmd services.CancelOrderItemCommand) (services.CancellationResult, error) {
	if s.cancelItem == nil {
		return services.CancellationResult{}, errors.New("unexpected CancelItem")
	}
	return s.cancelItem(ctx, cmd)
}

func (s *stubOrderService) HandlePaymentCaptured(ctx context.Context, gatewayOrderID, paymentID string) error {
	if s.paymentCaptured == nil {
		return errors.New("unexpected HandlePaymentCaptured")
	}
	return s.paymentCaptured(ctx, gatewayOrderID, paymentID)
}

func (s *stubOrderService) HandleRefundEvent(ctx context.Context, refundID string, status domain.RefundStatus) error {
	if s.refundEvent == nil {
		return errors.New("unexpected HandleRefundEvent")
	}
	return s.refundEvent(ctx, refundID, status)
}

type stubCatalogService struct {
	create func(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error)
	update func(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error)
	get    func(ctx context.Context, productID string) (services.Product, error)
	list   func(ctx context.Context, query services.ProductListQuery) (domain.CursorPage[services.Product], error)
	del    func(ctx context.Context, productID string) error
	rate   func(ctx context.Context, cmd services.AddRatingCommand) (services.Product, error)
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	if s.create == nil {
		return services.Product{}, errors.New("unexpected CreateProduct")
	}
	return s.create(ctx, cmd)
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	if s.update == nil {
		return services.Product{}, errors.New("unexpected UpdateProduct")
	}
	return s.update(ctx, cmd)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.get == nil {
		return services.Product{}, errors.New("unexpected GetProduct")
	}
	return s.get(ctx, productID)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, query services.ProductListQuery) (domain.CursorPage[services.Product], error) {
	if s.list == nil {
		return domain.CursorPage[services.Product]{}, errors.New("unexpected ListProducts")
	}
	return s.list(ctx, query)
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s.del == nil {
		return errors.New("unexpected DeleteProduct")
	}
	return s.del(ctx, productID)
}

func (s *stubCatalogService) AddRating(ctx context.Context, cmd services.AddRatingCommand) (services.Product, error) {
	if s.rate == nil {
		return services.Product{}, errors.New("unexpected AddRating")
	}
	return s.rate(ctx, cmd)
}

type stubUserService struct {
	register func(ctx context.Context, cmd services.RegisterCommand) (services.AuthSession, error)
	login    func(ctx context.Context, cmd services.LoginCommand) (services.AuthSession, error)
	profile  func(ctx context.Context, userID string) (services.User, error)
}

func (s *stubUserService) Register(ctx context.Context, cmd services.RegisterCommand) (services.AuthSession, error) {
	if s.register == nil {
		return services.AuthSession{}, errors.New("unexpected Register")
	}
	return s.register(ctx, cmd)
}

func (s *stubUserService) Login(ctx context.Context, cmd services.LoginCommand) (services.AuthSession, error) {
	if s.login == nil {
		return services.AuthSession{}, errors.New("unexpected Login")
	}
	return s.login(ctx, cmd)
}

func (s *stubUserService) GetProfile(ctx context.Context, userID string) (services.User, error) {
	if s.profile == nil {
		return services.User{}, errors.New("unexpected GetProfile")
	}
	return s.profile(ctx, userID)
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func assertBodyContains(t *testing.T, rec *httptest.ResponseRecorder, fragments ...string) {
	t.Helper()
	body := rec.Body.String()
	for _, fragment := range fragments {
		if !strings.Contains(body, fragment) {
			t.Fatalf("expected body to contain %q:\n%s", fragment, body)
		}
	}
}

type stubMediaService struct {
	sign func(ctx context.Context, cmd services.SignProductImageUploadCommand) (services.SignedImageUpload, error)
}

func (s *stubMediaService) SignProductImageUpload(ctx context.Context, cmd services.SignProductImageUploadCommand) (services.SignedImageUpload, error) {
	if s.sign == nil {
		return services.SignedImageUpload{}, errors.New("unexpected SignProductImageUpload")
	}
	return s.sign(ctx, cmd)
}
