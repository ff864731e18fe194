package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/zenithcart/api/internal/domain"
)

func newTestCatalogService(t *testing.T, products *fakeProductRepo) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    products,
		Clock:       testClock(),
		IDGenerator: sequentialIDs("01CAT"),
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

func sizedCreateCommand() CreateProductCommand {
	return CreateProductCommand{
		Name:     "Crew Neck Tee",
		Brand:    "Northline",
		Category: "Clothing",
		Variants: []VariantInput{
			{
				Color: "Black",
				Price: "499.00",
				Sizes: []domain.SizeStock{{Size: "S", Stock: 3}, {Size: "M", Stock: 4}},
			},
		},
	}
}

func configuredCreateCommand() CreateProductCommand {
	return CreateProductCommand{
		Name:     "Nova 5G",
		Brand:    "Vertex",
		Category: "Mobiles",
		Variants: []VariantInput{
			{
				Color:      "Blue",
				Price:      "11999.00",
				OfferPrice: "10999.00",
				RAM:        "8GB",
				ROM:        "128GB",
				Stock:      7,
			},
		},
	}
}

func TestCreateProductSized(t *testing.T) {
	products := newFakeProductRepo()
	svc := newTestCatalogService(t, products)

	product, err := svc.CreateProduct(context.Background(), sizedCreateCommand())
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	if product.Class != domain.CategoryClassSized {
		t.Fatalf("expected sized class, got %s", product.Class)
	}
	if product.Category != "clothing" {
		t.Fatalf("expected lowercased category, got %s", product.Category)
	}
	if len(product.Variants) != 1 {
		t.Fatalf("expected 1 variant, got %d", len(product.Variants))
	}
	variant := product.Variants[0]
	if variant.Sized == nil || variant.Configured != nil {
		t.Fatalf("expected sized shape, got %+v", variant)
	}
	if !strings.HasSuffix(variant.ID, "-black") {
		t.Fatalf("expected colour-derived variant id, got %s", variant.ID)
	}
	if _, ok := products.products[product.ID]; !ok {
		t.Fatal("expected product persisted")
	}
}

func TestCreateProductConfigured(t *testing.T) {
	svc := newTestCatalogService(t, newFakeProductRepo())

	product, err := svc.CreateProduct(context.Background(), configuredCreateCommand())
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if product.Class != domain.CategoryClassConfigured {
		t.Fatalf("expected configured class, got %s", product.Class)
	}
	variant := product.Variants[0]
	if variant.Configured == nil || variant.Configured.Stock != 7 {
		t.Fatalf("expected configured shape with stock 7, got %+v", variant.Configured)
	}
	if variant.Pricing.OfferPrice == nil || variant.Pricing.OfferPrice.StringFixed(2) != "10999.00" {
		t.Fatalf("expected offer price 10999.00, got %+v", variant.Pricing.OfferPrice)
	}
	if !strings.HasSuffix(variant.ID, "-blue-8gb-128gb") {
		t.Fatalf("expected attribute-derived variant id, got %s", variant.ID)
	}
}

func TestCreateProductValidation(t *testing.T) {
	svc := newTestCatalogService(t, newFakeProductRepo())

	cases := []struct {
		name   string
		mutate func(*CreateProductCommand)
	}{
		{name: "missing name", mutate: func(c *CreateProductCommand) { c.Name = "" }},
		{name: "no variants", mutate: func(c *CreateProductCommand) { c.Variants = nil }},
		{name: "bad price", mutate: func(c *CreateProductCommand) { c.Variants[0].Price = "free" }},
		{name: "negative price", mutate: func(c *CreateProductCommand) { c.Variants[0].Price = "-1.00" }},
		{name: "offer above price", mutate: func(c *CreateProductCommand) { c.Variants[0].Price = "100.00"; c.Variants[0].OfferPrice = "150.00" }},
		{name: "sized without sizes", mutate: func(c *CreateProductCommand) { c.Variants[0].Sizes = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := sizedCreateCommand()
			tc.mutate(&cmd)
			if _, err := svc.CreateProduct(context.Background(), cmd); !errors.Is(err, ErrCatalogInvalidInput) {
				t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
			}
		})
	}

	t.Run("configured without ram", func(t *testing.T) {
		cmd := configuredCreateCommand()
		cmd.Variants[0].RAM = ""
		if _, err := svc.CreateProduct(context.Background(), cmd); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
		}
	})

	t.Run("duplicate variant attributes", func(t *testing.T) {
		cmd := sizedCreateCommand()
		cmd.Variants = append(cmd.Variants, cmd.Variants[0])
		if _, err := svc.CreateProduct(context.Background(), cmd); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
		}
	})
}

func TestUpdateProductReplacesMutableFields(t *testing.T) {
	products := newFakeProductRepo()
	svc := newTestCatalogService(t, products)

	created, err := svc.CreateProduct(context.Background(), sizedCreateCommand())
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	updated, err := svc.UpdateProduct(context.Background(), UpdateProductCommand{
		ProductID: created.ID,
		Name:      "Crew Neck Tee v2",
		Variants: []VariantInput{
			{Color: "White", Price: "549.00", Sizes: []domain.SizeStock{{Size: "M", Stock: 2}}},
		},
	})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if updated.Name != "Crew Neck Tee v2" {
		t.Fatalf("expected renamed product, got %s", updated.Name)
	}
	if len(updated.Variants) != 1 || !strings.HasSuffix(updated.Variants[0].ID, "-white") {
		t.Fatalf("expected rebuilt variants, got %+v", updated.Variants)
	}
	// Untouched fields survive.
	if updated.Brand != "Northline" {
		t.Fatalf("expected brand preserved, got %s", updated.Brand)
	}

	if _, err := svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: "prod-404", Name: "x"}); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestDeleteProductSoftDeletes(t *testing.T) {
	products := newFakeProductRepo()
	svc := newTestCatalogService(t, products)

	created, err := svc.CreateProduct(context.Background(), sizedCreateCommand())
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if err := svc.DeleteProduct(context.Background(), created.ID); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}

	stored := products.products[created.ID]
	if !stored.IsDeleted {
		t.Fatal("expected soft delete flag set")
	}
	if _, err := svc.GetProduct(context.Background(), created.ID); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected deleted product hidden, got %v", err)
	}
}

func TestAddRating(t *testing.T) {
	products := newFakeProductRepo()
	svc := newTestCatalogService(t, products)

	created, err := svc.CreateProduct(context.Background(), sizedCreateCommand())
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	product, err := svc.AddRating(context.Background(), AddRatingCommand{
		ProductID: created.ID,
		UserID:    "user-1",
		UserName:  "Asha",
		Score:     5,
		Comment:   `Great fit <script>alert("x")</script>`,
	})
	if err != nil {
		t.Fatalf("AddRating: %v", err)
	}
	if len(product.Ratings) != 1 {
		t.Fatalf("expected 1 rating, got %d", len(product.Ratings))
	}
	if strings.Contains(product.Ratings[0].Comment, "<script>") {
		t.Fatalf("expected sanitised comment, got %q", product.Ratings[0].Comment)
	}
	if product.AverageRating != 5 {
		t.Fatalf("expected average 5, got %v", product.AverageRating)
	}

	product, err = svc.AddRating(context.Background(), AddRatingCommand{
		ProductID: created.ID, UserID: "user-2", Score: 2,
	})
	if err != nil {
		t.Fatalf("second AddRating: %v", err)
	}
	if product.AverageRating != 3.5 {
		t.Fatalf("expected average 3.5, got %v", product.AverageRating)
	}

	// A repeat review by the same user replaces the first.
	product, err = svc.AddRating(context.Background(), AddRatingCommand{
		ProductID: created.ID, UserID: "user-2", Score: 4,
	})
	if err != nil {
		t.Fatalf("replacement AddRating: %v", err)
	}
	if len(product.Ratings) != 2 {
		t.Fatalf("expected 2 ratings after replacement, got %d", len(product.Ratings))
	}
	if product.AverageRating != 4.5 {
		t.Fatalf("expected average 4.5, got %v", product.AverageRating)
	}

	if _, err := svc.AddRating(context.Background(), AddRatingCommand{ProductID: created.ID, UserID: "user-3", Score: 6}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for score 6, got %v", err)
	}
}
