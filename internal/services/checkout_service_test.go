package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/payments"
	"github.com/zenithcart/api/internal/repositories"
)

const testKeySecret = "test_key_secret"

type fakeUserRepo struct {
	users map[string]domain.User
}

func newFakeUserRepo(users ...domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[string]domain.User{}}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *fakeUserRepo) Insert(_ context.Context, user domain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user domain.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return errFakeNotFound
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, userID string) (domain.User, error) {
	user, ok := r.users[userID]
	if !ok {
		return domain.User{}, errFakeNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (domain.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, errFakeNotFound
}

type fakeCounterRepo struct {
	next int64
	fail bool
}

func (r *fakeCounterRepo) Next(_ context.Context, _ string, step int64) (int64, error) {
	if r.fail {
		return 0, errFakeConflict
	}
	r.next += step
	return r.next, nil
}

func (r *fakeCounterRepo) Configure(_ context.Context, _ string, _ repositories.CounterConfig) error {
	return nil
}

type fakeGateway struct {
	orders      []payments.CreateOrderRequest
	refunds     []payments.RefundRequest
	failOrders  bool
	failRefunds bool
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payments.CreateOrderRequest) (payments.GatewayOrder, error) {
	if g.failOrders {
		return payments.GatewayOrder{}, payments.ErrGatewayUnavailable
	}
	g.orders = append(g.orders, req)
	return payments.GatewayOrder{
		ID:          "order_rzp_1",
		AmountPaise: req.AmountPaise,
		Currency:    req.Currency,
		Receipt:     req.Receipt,
		Status:      payments.StatusCreated,
	}, nil
}

func (g *fakeGateway) Refund(_ context.Context, req payments.RefundRequest) (payments.RefundResult, error) {
	if g.failRefunds {
		return payments.RefundResult{}, payments.ErrGatewayUnavailable
	}
	g.refunds = append(g.refunds, req)
	return payments.RefundResult{
		RefundID:    "rfnd_1",
		AmountPaise: req.AmountPaise,
		Status:      payments.StatusCreated,
	}, nil
}

type fakeEvents struct {
	events []OrderEvent
}

func (p *fakeEvents) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	p.events = append(p.events, event)
	return "msg-1", nil
}

type fakeMailer struct {
	confirmations []OrderNotification
	statusUpdates []OrderNotification
	refundUpdates []RefundNotification
	welcomes      []string
}

func (m *fakeMailer) SendOrderConfirmation(_ context.Context, note OrderNotification) error {
	m.confirmations = append(m.confirmations, note)
	return nil
}

func (m *fakeMailer) SendOrderStatusUpdate(_ context.Context, note OrderNotification) error {
	m.statusUpdates = append(m.statusUpdates, note)
	return nil
}

func (m *fakeMailer) SendRefundUpdate(_ context.Context, note RefundNotification) error {
	m.refundUpdates = append(m.refundUpdates, note)
	return nil
}

func (m *fakeMailer) SendWelcome(_ context.Context, email string, _ string) error {
	m.welcomes = append(m.welcomes, email)
	return nil
}

type checkoutFixture struct {
	carts    *fakeCartRepo
	products *fakeProductRepo
	orders   *fakeOrderRepo
	users    *fakeUserRepo
	gateway  *fakeGateway
	events   *fakeEvents
	mailer   *fakeMailer
	svc      CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	f := &checkoutFixture{
		carts:    newFakeCartRepo(),
		products: newFakeProductRepo(sizedProduct(), configuredProduct()),
		orders:   newFakeOrderRepo(),
		users:    newFakeUserRepo(domain.User{ID: "user-1", FullName: "Asha Rao", Email: "asha@example.com"}),
		gateway:  &fakeGateway{},
		events:   &fakeEvents{},
		mailer:   &fakeMailer{},
	}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:            f.carts,
		Products:         f.products,
		Orders:           f.orders,
		Users:            f.users,
		Counters:         &fakeCounterRepo{},
		Gateway:          f.gateway,
		Events:           f.events,
		Mailer:           f.mailer,
		Clock:            testClock(),
		IDGenerator:      sequentialIDs("01TEST"),
		GatewayKeyID:     "rzp_test_key",
		GatewayKeySecret: testKeySecret,
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	f.svc = svc
	return f
}

func testAddress() domain.Address {
	return domain.Address{
		Line1:   "12 MG Road",
		City:    "Bengaluru",
		State:   "KA",
		Pincode: "560001",
		Phone:   "9999988888",
	}
}

func (f *checkoutFixture) seedCart(t *testing.T, entries ...domain.CartEntry) {
	t.Helper()
	if _, err := f.carts.ReplaceEntries(context.Background(), "user-1", entries, nil); err != nil {
		t.Fatalf("seed cart: %v", err)
	}
}

func teeEntry(qty int) domain.CartEntry {
	return domain.CartEntry{
		ID:        "entry-tee",
		ProductID: "prod-tee",
		VariantID: "prod-tee-black",
		Selection: domain.VariantSelection{Color: "Black", Size: "M"},
		Quantity:  qty,
	}
}

func phoneEntry(qty int) domain.CartEntry {
	return domain.CartEntry{
		ID:        "entry-phone",
		ProductID: "prod-phone",
		VariantID: "prod-phone-blue-8gb-128gb",
		Selection: domain.VariantSelection{Color: "Blue", RAM: "8GB", ROM: "128GB"},
		Quantity:  qty,
	}
}

func TestCheckoutCODPlacesOrderFromCart(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t, teeEntry(2), phoneEntry(1))

	result, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID:          "user-1",
		Method:          domain.PaymentMethodCOD,
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	order := result.Order

	if result.Gateway != nil {
		t.Fatal("COD checkout must not return gateway details")
	}
	if order.Status != domain.OrderStatusPlaced {
		t.Fatalf("expected Placed, got %s", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", order.PaymentStatus)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	// tee 2x499 + phone list 11999 offer 10999.
	if got := order.Summary.ItemsPrice.StringFixed(2); got != "12997.00" {
		t.Fatalf("expected items price 12997.00, got %s", got)
	}
	if got := order.Summary.TotalAmount.StringFixed(2); got != "11997.00" {
		t.Fatalf("expected total 11997.00, got %s", got)
	}
	if order.Number != "ORD-000001" {
		t.Fatalf("unexpected order number %s", order.Number)
	}
	if order.UserEmail != "asha@example.com" {
		t.Fatalf("unexpected email %s", order.UserEmail)
	}

	if _, ok := f.carts.carts["user-1"]; ok {
		t.Fatal("expected cart cleared after COD checkout")
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != OrderEventCreated {
		t.Fatalf("expected order.created event, got %+v", f.events.events)
	}
	if len(f.mailer.confirmations) != 1 {
		t.Fatalf("expected 1 confirmation email, got %d", len(f.mailer.confirmations))
	}
}

func TestCheckoutRazorpayCreatesGatewayOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t, phoneEntry(1))

	result, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID:          "user-1",
		Method:          domain.PaymentMethodRazorpay,
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if result.Gateway == nil {
		t.Fatal("expected gateway checkout details")
	}
	if result.Gateway.GatewayOrderID != "order_rzp_1" {
		t.Fatalf("unexpected gateway order id %s", result.Gateway.GatewayOrderID)
	}
	// Offer price 10999.00 in paise.
	if result.Gateway.AmountPaise != 1099900 {
		t.Fatalf("expected 1099900 paise, got %d", result.Gateway.AmountPaise)
	}
	if result.Gateway.KeyID != "rzp_test_key" {
		t.Fatalf("unexpected key id %s", result.Gateway.KeyID)
	}
	if result.Order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", result.Order.PaymentStatus)
	}
	if result.Order.Gateway.OrderID != "order_rzp_1" {
		t.Fatal("expected gateway order id bound to order")
	}

	// Cart survives until verification.
	if _, ok := f.carts.carts["user-1"]; !ok {
		t.Fatal("expected cart retained for prepay checkout")
	}
	if len(f.events.events) != 0 {
		t.Fatal("no event until payment verified")
	}
}

func TestCheckoutDirectItemsBypassCart(t *testing.T) {
	f := newCheckoutFixture(t)

	result, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID:          "user-1",
		Method:          domain.PaymentMethodCOD,
		ShippingAddress: testAddress(),
		Items: []CheckoutItemInput{
			{ProductID: "prod-tee", Selection: domain.VariantSelection{Color: "Black", Size: "M"}, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if len(result.Order.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Order.Items))
	}
	if got := result.Order.Summary.TotalAmount.StringFixed(2); got != "499.00" {
		t.Fatalf("expected total 499.00, got %s", got)
	}
}

func TestCheckoutValidation(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t, teeEntry(1))

	cases := []struct {
		name    string
		mutate  func(*CheckoutCommand)
		wantErr error
	}{
		{name: "missing user", mutate: func(c *CheckoutCommand) { c.UserID = "" }, wantErr: ErrCheckoutInvalidInput},
		{name: "unknown method", mutate: func(c *CheckoutCommand) { c.Method = "upi" }, wantErr: ErrCheckoutInvalidInput},
		{name: "incomplete address", mutate: func(c *CheckoutCommand) { c.ShippingAddress.Pincode = "" }, wantErr: ErrCheckoutInvalidInput},
		{name: "unknown account", mutate: func(c *CheckoutCommand) { c.UserID = "user-404" }, wantErr: ErrCheckoutInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := CheckoutCommand{UserID: "user-1", Method: domain.PaymentMethodCOD, ShippingAddress: testAddress()}
			tc.mutate(&cmd)
			if _, err := f.svc.Checkout(context.Background(), cmd); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)
	if _, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID: "user-1", Method: domain.PaymentMethodCOD, ShippingAddress: testAddress(),
	}); !errors.Is(err, ErrCheckoutCartEmpty) {
		t.Fatalf("expected ErrCheckoutCartEmpty, got %v", err)
	}
}

func TestCheckoutStockViolationFailsInsteadOfClamping(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t, teeEntry(9))

	if _, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID: "user-1", Method: domain.PaymentMethodCOD, ShippingAddress: testAddress(),
	}); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	if len(f.orders.orders) != 0 {
		t.Fatal("no order must be created on stock violation")
	}
}

func TestCheckoutGatewayFailure(t *testing.T) {
	f := newCheckoutFixture(t)
	f.gateway.failOrders = true
	f.seedCart(t, teeEntry(1))

	if _, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID: "user-1", Method: domain.PaymentMethodRazorpay, ShippingAddress: testAddress(),
	}); !errors.Is(err, ErrCheckoutPaymentFailed) {
		t.Fatalf("expected ErrCheckoutPaymentFailed, got %v", err)
	}
	if len(f.orders.orders) != 0 {
		t.Fatal("no order must be persisted when the gateway order fails")
	}
}

func TestVerifyAndPlaceOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t, phoneEntry(1))

	result, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID: "user-1", Method: domain.PaymentMethodRazorpay, ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	signature := signCheckout(t, result.Gateway.GatewayOrderID, "pay_1", testKeySecret)
	order, err := f.svc.VerifyAndPlaceOrder(context.Background(), VerifyPaymentCommand{
		UserID:           "user-1",
		GatewayOrderID:   result.Gateway.GatewayOrderID,
		GatewayPaymentID: "pay_1",
		GatewaySignature: signature,
	})
	if err != nil {
		t.Fatalf("VerifyAndPlaceOrder: %v", err)
	}

	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", order.PaymentStatus)
	}
	if order.Gateway.PaymentID != "pay_1" {
		t.Fatalf("expected payment id bound, got %s", order.Gateway.PaymentID)
	}
	if _, ok := f.carts.carts["user-1"]; ok {
		t.Fatal("expected cart cleared after verification")
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != OrderEventCreated {
		t.Fatalf("expected order.created event, got %+v", f.events.events)
	}
	if len(f.mailer.confirmations) != 1 {
		t.Fatalf("expected confirmation email, got %d", len(f.mailer.confirmations))
	}

	// Replay of the same verification is idempotent.
	again, err := f.svc.VerifyAndPlaceOrder(context.Background(), VerifyPaymentCommand{
		UserID:           "user-1",
		GatewayOrderID:   result.Gateway.GatewayOrderID,
		GatewayPaymentID: "pay_1",
		GatewaySignature: signature,
	})
	if err != nil {
		t.Fatalf("replayed verification: %v", err)
	}
	if again.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid on replay, got %s", again.PaymentStatus)
	}
	if len(f.events.events) != 1 {
		t.Fatal("replay must not publish another event")
	}
}

func TestVerifyAndPlaceOrderRejectsTamperedSignature(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t, phoneEntry(1))

	result, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID: "user-1", Method: domain.PaymentMethodRazorpay, ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	// Signature signed over a different payment id.
	signature := signCheckout(t, result.Gateway.GatewayOrderID, "pay_other", testKeySecret)
	if _, err := f.svc.VerifyAndPlaceOrder(context.Background(), VerifyPaymentCommand{
		UserID:           "user-1",
		GatewayOrderID:   result.Gateway.GatewayOrderID,
		GatewayPaymentID: "pay_1",
		GatewaySignature: signature,
	}); !errors.Is(err, ErrCheckoutSignatureMismatch) {
		t.Fatalf("expected ErrCheckoutSignatureMismatch, got %v", err)
	}

	stored, err := f.orders.FindByID(context.Background(), result.Order.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.PaymentStatus != domain.PaymentStatusFailed {
		t.Fatalf("expected failed payment recorded, got %s", stored.PaymentStatus)
	}
	if _, ok := f.carts.carts["user-1"]; !ok {
		t.Fatal("cart must survive a failed verification")
	}
}

func TestVerifyAndPlaceOrderForeignUser(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t, phoneEntry(1))

	result, err := f.svc.Checkout(context.Background(), CheckoutCommand{
		UserID: "user-1", Method: domain.PaymentMethodRazorpay, ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	signature := signCheckout(t, result.Gateway.GatewayOrderID, "pay_1", testKeySecret)
	if _, err := f.svc.VerifyAndPlaceOrder(context.Background(), VerifyPaymentCommand{
		UserID:           "user-2",
		GatewayOrderID:   result.Gateway.GatewayOrderID,
		GatewayPaymentID: "pay_1",
		GatewaySignature: signature,
	}); !errors.Is(err, ErrCheckoutOrderNotFound) {
		t.Fatalf("expected ErrCheckoutOrderNotFound, got %v", err)
	}
}

func signCheckout(t *testing.T, gatewayOrderID, paymentID, secret string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
