package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/zenithcart/api/internal/domain"
	pfirestore "github.com/zenithcart/api/internal/platform/firestore"
	"github.com/zenithcart/api/internal/repositories"
)

const cartsCollection = "carts"

// CartRepository persists one cart document per user within Firestore.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// GetCart loads the cart document for the given user ID.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		ID:      doc.ID,
		UserID:  doc.ID,
		Entries: make([]domain.CartEntry, 0, len(doc.Data.Entries)),
		CreatedAt: func() time.Time {
			if !doc.Data.CreatedAt.IsZero() {
				return doc.Data.CreatedAt
			}
			return doc.CreateTime
		}(),
		UpdatedAt: func() time.Time {
			if !doc.UpdateTime.IsZero() {
				return doc.UpdateTime
			}
			return doc.Data.UpdatedAt
		}(),
	}
	for _, entry := range doc.Data.Entries {
		cart.Entries = append(cart.Entries, decodeCartEntry(entry))
	}
	return cart, nil
}

// ReplaceEntries overwrites the cart's entry list. A non-nil expectedUpdate
// enforces the Firestore last-update-time precondition; nil upserts blindly.
func (r *CartRepository) ReplaceEntries(ctx context.Context, userID string, entries []domain.CartEntry, expectedUpdate *time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := time.Now().UTC()
	encoded := make([]cartEntryDocument, 0, len(entries))
	for _, entry := range entries {
		encoded = append(encoded, encodeCartEntry(entry))
	}

	saved := domain.Cart{
		ID:      uid,
		UserID:  uid,
		Entries: append([]domain.CartEntry(nil), entries...),
	}

	if expectedUpdate == nil || expectedUpdate.IsZero() {
		doc := cartDocument{
			Entries:   encoded,
			CreatedAt: now,
			UpdatedAt: now,
		}
		result, err := r.base.Set(ctx, uid, doc)
		if err != nil {
			return domain.Cart{}, err
		}
		saved.CreatedAt = doc.CreatedAt
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	updates := []firestore.Update{
		{Path: "entries", Value: encoded},
		{Path: "updatedAt", Value: now},
	}
	result, err := r.base.Update(ctx, uid, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
	if err != nil {
		return domain.Cart{}, err
	}
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// ClearCart removes every entry from the user's cart. Clearing an absent cart
// is a no-op.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	_, err := r.ReplaceEntries(ctx, uid, nil, nil)
	return err
}

func encodeCartEntry(entry domain.CartEntry) cartEntryDocument {
	return cartEntryDocument{
		ID:        strings.TrimSpace(entry.ID),
		ProductID: strings.TrimSpace(entry.ProductID),
		VariantID: strings.TrimSpace(entry.VariantID),
		Color:     strings.TrimSpace(entry.Selection.Color),
		Size:      strings.TrimSpace(entry.Selection.Size),
		RAM:       strings.TrimSpace(entry.Selection.RAM),
		ROM:       strings.TrimSpace(entry.Selection.ROM),
		Quantity:  entry.Quantity,
		AddedAt:   entry.AddedAt.UTC(),
		UpdatedAt: entry.UpdatedAt.UTC(),
	}
}

func decodeCartEntry(doc cartEntryDocument) domain.CartEntry {
	return domain.CartEntry{
		ID:        doc.ID,
		ProductID: doc.ProductID,
		VariantID: doc.VariantID,
		Selection: domain.VariantSelection{
			Color: doc.Color,
			Size:  doc.Size,
			RAM:   doc.RAM,
			ROM:   doc.ROM,
		},
		Quantity:  doc.Quantity,
		AddedAt:   doc.AddedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

type cartDocument struct {
	Entries   []cartEntryDocument `firestore:"entries"`
	CreatedAt time.Time           `firestore:"createdAt"`
	UpdatedAt time.Time           `firestore:"updatedAt"`
}

type cartEntryDocument struct {
	ID        string    `firestore:"id"`
	ProductID string    `firestore:"productId"`
	VariantID string    `firestore:"variantId"`
	Color     string    `firestore:"color,omitempty"`
	Size      string    `firestore:"size,omitempty"`
	RAM       string    `firestore:"ram,omitempty"`
	ROM       string    `firestore:"rom,omitempty"`
	Quantity  int       `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
