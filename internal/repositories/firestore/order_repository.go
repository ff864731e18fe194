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

const ordersCollection = "orders"

// OrderRepository persists orders within Firestore. A flattened refundIds
// array is maintained alongside the refund list so gateway webhooks can locate
// the owning order with an array-contains query.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the order document keyed by the order ID.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Set(ctx, id, encodeOrder(order))
	return err
}

// Update replaces the stored order, optionally guarded by the document's last update time.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedUpdate *time.Time) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc := encodeOrder(order)

	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err := r.base.Set(ctx, id, doc)
		if err != nil {
			return domain.Order{}, err
		}
		saved := order
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	result, err := r.base.Update(ctx, id, orderUpdates(doc), firestore.LastUpdateTime(expectedUpdate.UTC()))
	if err != nil {
		return domain.Order{}, err
	}
	saved := order
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

func orderUpdates(doc orderDocument) []firestore.Update {
	updates := []firestore.Update{
		{Path: "items", Value: doc.Items},
		{Path: "itemsPrice", Value: doc.ItemsPrice},
		{Path: "discount", Value: doc.Discount},
		{Path: "totalAmount", Value: doc.TotalAmount},
		{Path: "status", Value: doc.Status},
		{Path: "paymentStatus", Value: doc.PaymentStatus},
		{Path: "refunds", Value: doc.Refunds},
		{Path: "refundIds", Value: doc.RefundIDs},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}

	appendStringUpdate := func(path string, value string) {
		if strings.TrimSpace(value) == "" {
			updates = append(updates, firestore.Update{Path: path, Value: firestore.Delete})
		} else {
			updates = append(updates, firestore.Update{Path: path, Value: value})
		}
	}
	appendStringUpdate("gatewayOrderId", doc.GatewayOrderID)
	appendStringUpdate("gatewayPaymentId", doc.GatewayPaymentID)
	appendStringUpdate("gatewaySignature", doc.GatewaySignature)

	if doc.DeliveredAt == nil {
		updates = append(updates, firestore.Update{Path: "deliveredAt", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "deliveredAt", Value: *doc.DeliveredAt})
	}
	if doc.CancelledAt == nil {
		updates = append(updates, firestore.Update{Path: "cancelledAt", Value: firestore.Delete})
	} else {
		updates = append(updates, firestore.Update{Path: "cancelledAt", Value: *doc.CancelledAt})
	}
	return updates
}

// FindByID loads the order document.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime)
}

// FindByGatewayOrderID locates the order bound to a gateway order reference.
func (r *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error) {
	return r.findOne(ctx, "gateway.findByGatewayOrderId", func(query firestore.Query) firestore.Query {
		return query.Where("gatewayOrderId", "==", strings.TrimSpace(gatewayOrderID)).Limit(1)
	}, gatewayOrderID)
}

// FindByRefundID locates the order owning the given refund reference.
func (r *OrderRepository) FindByRefundID(ctx context.Context, refundID string) (domain.Order, error) {
	return r.findOne(ctx, "gateway.findByRefundId", func(query firestore.Query) firestore.Query {
		return query.Where("refundIds", "array-contains", strings.TrimSpace(refundID)).Limit(1)
	}, refundID)
}

func (r *OrderRepository) findOne(ctx context.Context, op string, build pfirestore.QueryBuilder, key string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(key) == "" {
		return domain.Order{}, errors.New("order repository: lookup key is required")
	}

	docs, err := r.base.Query(ctx, build)
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NewNotFoundError(op, key)
	}
	return decodeOrder(docs[0].ID, docs[0].Data, docs[0].CreateTime, docs[0].UpdateTime)
}

// List queries orders newest first, filtered by user, status and date range.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			query = query.Where("userId", "==", uid)
		}
		if len(filter.Status) == 1 {
			query = query.Where("status", "==", string(filter.Status[0]))
		} else if len(filter.Status) > 1 {
			statuses := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				statuses = append(statuses, string(status))
			}
			query = query.Where("status", "in", statuses)
		}
		if filter.DateRange.From != nil {
			query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := decodeOrder(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		items = append(items, order)
	}

	page := domain.CursorPage[domain.Order]{Items: items}
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt, last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		Number:    strings.TrimSpace(order.Number),
		UserID:    strings.TrimSpace(order.UserID),
		UserEmail: strings.TrimSpace(order.UserEmail),
		ShippingAddress: addressDocument{
			Line1:   order.ShippingAddress.Line1,
			City:    order.ShippingAddress.City,
			State:   order.ShippingAddress.State,
			Pincode: order.ShippingAddress.Pincode,
			Phone:   order.ShippingAddress.Phone,
		},
		ItemsPrice:       domain.AmountString(order.Summary.ItemsPrice),
		Discount:         domain.AmountString(order.Summary.Discount),
		TotalAmount:      domain.AmountString(order.Summary.TotalAmount),
		Status:           string(order.Status),
		PaymentMethod:    string(order.PaymentMethod),
		PaymentStatus:    string(order.PaymentStatus),
		GatewayOrderID:   strings.TrimSpace(order.Gateway.OrderID),
		GatewayPaymentID: strings.TrimSpace(order.Gateway.PaymentID),
		GatewaySignature: strings.TrimSpace(order.Gateway.Signature),
		PlacedAt:         order.PlacedAt.UTC(),
		CreatedAt:        order.CreatedAt.UTC(),
		UpdatedAt:        order.UpdatedAt.UTC(),
	}
	if order.DeliveredAt != nil {
		ts := order.DeliveredAt.UTC()
		doc.DeliveredAt = &ts
	}
	if order.CancelledAt != nil {
		ts := order.CancelledAt.UTC()
		doc.CancelledAt = &ts
	}

	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		encoded := orderItemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Color:     item.Selection.Color,
			Size:      item.Selection.Size,
			RAM:       item.Selection.RAM,
			ROM:       item.Selection.ROM,
			Quantity:  item.Quantity,
			Price:     domain.AmountString(item.Price),
			Images:    append([]string(nil), item.Images...),
			Cancelled: item.Cancelled,
		}
		if item.OfferPrice != nil {
			encoded.OfferPrice = domain.AmountString(*item.OfferPrice)
		}
		doc.Items = append(doc.Items, encoded)
	}

	doc.Refunds = make([]refundDocument, 0, len(order.Refunds))
	doc.RefundIDs = make([]string, 0, len(order.Refunds))
	for _, refund := range order.Refunds {
		doc.Refunds = append(doc.Refunds, refundDocument{
			RefundID:  refund.RefundID,
			Amount:    domain.AmountString(refund.Amount),
			Reason:    refund.Reason,
			Status:    string(refund.Status),
			CreatedAt: refund.CreatedAt.UTC(),
		})
		if id := strings.TrimSpace(refund.RefundID); id != "" {
			doc.RefundIDs = append(doc.RefundIDs, id)
		}
	}
	return doc
}

func decodeOrder(id string, doc orderDocument, createTime, updateTime time.Time) (domain.Order, error) {
	itemsPrice, err := parseOrderAmount(id, "itemsPrice", doc.ItemsPrice)
	if err != nil {
		return domain.Order{}, err
	}
	discount, err := parseOrderAmount(id, "discount", doc.Discount)
	if err != nil {
		return domain.Order{}, err
	}
	total, err := parseOrderAmount(id, "totalAmount", doc.TotalAmount)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:        id,
		Number:    doc.Number,
		UserID:    doc.UserID,
		UserEmail: doc.UserEmail,
		ShippingAddress: domain.Address{
			Line1:   doc.ShippingAddress.Line1,
			City:    doc.ShippingAddress.City,
			State:   doc.ShippingAddress.State,
			Pincode: doc.ShippingAddress.Pincode,
			Phone:   doc.ShippingAddress.Phone,
		},
		Summary: domain.OrderSummary{
			ItemsPrice:  itemsPrice,
			Discount:    discount,
			TotalAmount: total,
		},
		Status:        domain.OrderStatus(doc.Status),
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		PaymentStatus: domain.PaymentStatus(doc.PaymentStatus),
		Gateway: domain.GatewayRef{
			OrderID:   doc.GatewayOrderID,
			PaymentID: doc.GatewayPaymentID,
			Signature: doc.GatewaySignature,
		},
		PlacedAt:    doc.PlacedAt,
		DeliveredAt: doc.DeliveredAt,
		CancelledAt: doc.CancelledAt,
		CreatedAt:   firstNonZeroTime(doc.CreatedAt, createTime),
		UpdatedAt:   firstNonZeroTime(updateTime, doc.UpdatedAt),
	}

	order.Items = make([]domain.OrderItem, 0, len(doc.Items))
	for _, raw := range doc.Items {
		price, err := parseOrderAmount(id, "item price", raw.Price)
		if err != nil {
			return domain.Order{}, err
		}
		item := domain.OrderItem{
			ID:        raw.ID,
			ProductID: raw.ProductID,
			VariantID: raw.VariantID,
			Name:      raw.Name,
			Selection: domain.VariantSelection{
				Color: raw.Color,
				Size:  raw.Size,
				RAM:   raw.RAM,
				ROM:   raw.ROM,
			},
			Quantity:  raw.Quantity,
			Price:     price,
			Images:    append([]string(nil), raw.Images...),
			Cancelled: raw.Cancelled,
		}
		if offer := strings.TrimSpace(raw.OfferPrice); offer != "" {
			parsed, err := parseOrderAmount(id, "item offer price", offer)
			if err != nil {
				return domain.Order{}, err
			}
			item.OfferPrice = &parsed
		}
		order.Items = append(order.Items, item)
	}

	order.Refunds = make([]domain.Refund, 0, len(doc.Refunds))
	for _, raw := range doc.Refunds {
		amount, err := parseOrderAmount(id, "refund amount", raw.Amount)
		if err != nil {
			return domain.Order{}, err
		}
		order.Refunds = append(order.Refunds, domain.Refund{
			RefundID:  raw.RefundID,
			Amount:    amount,
			Reason:    raw.Reason,
			Status:    domain.RefundStatus(raw.Status),
			CreatedAt: raw.CreatedAt,
		})
	}
	return order, nil
}

func parseOrderAmount(orderID, field, value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("orders decode %s: %s %q: %w", orderID, field, value, err)
	}
	return amount, nil
}

type orderDocument struct {
	Number           string              `firestore:"number,omitempty"`
	UserID           string              `firestore:"userId"`
	UserEmail        string              `firestore:"userEmail,omitempty"`
	Items            []orderItemDocument `firestore:"items"`
	ShippingAddress  addressDocument     `firestore:"shippingAddress"`
	ItemsPrice       string              `firestore:"itemsPrice"`
	Discount         string              `firestore:"discount"`
	TotalAmount      string              `firestore:"totalAmount"`
	Status           string              `firestore:"status"`
	PaymentMethod    string              `firestore:"paymentMethod"`
	PaymentStatus    string              `firestore:"paymentStatus"`
	GatewayOrderID   string              `firestore:"gatewayOrderId,omitempty"`
	GatewayPaymentID string              `firestore:"gatewayPaymentId,omitempty"`
	GatewaySignature string              `firestore:"gatewaySignature,omitempty"`
	Refunds          []refundDocument    `firestore:"refunds,omitempty"`
	RefundIDs        []string            `firestore:"refundIds,omitempty"`
	PlacedAt         time.Time           `firestore:"placedAt"`
	DeliveredAt      *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt      *time.Time          `firestore:"cancelledAt,omitempty"`
	CreatedAt        time.Time           `firestore:"createdAt"`
	UpdatedAt        time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ID         string   `firestore:"id"`
	ProductID  string   `firestore:"productId"`
	VariantID  string   `firestore:"variantId"`
	Name       string   `firestore:"name"`
	Color      string   `firestore:"color,omitempty"`
	Size       string   `firestore:"size,omitempty"`
	RAM        string   `firestore:"ram,omitempty"`
	ROM        string   `firestore:"rom,omitempty"`
	Quantity   int      `firestore:"quantity"`
	Price      string   `firestore:"price"`
	OfferPrice string   `firestore:"offerPrice,omitempty"`
	Images     []string `firestore:"images,omitempty"`
	Cancelled  bool     `firestore:"cancelled"`
}

type refundDocument struct {
	RefundID  string    `firestore:"refundId"`
	Amount    string    `firestore:"amount"`
	Reason    string    `firestore:"reason,omitempty"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type addressDocument struct {
	Line1   string `firestore:"line1"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	Pincode string `firestore:"pincode"`
	Phone   string `firestore:"phone,omitempty"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
