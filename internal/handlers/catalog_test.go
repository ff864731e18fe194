package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/zenithcart/api/internal/domain"
	"github.com/zenithcart/api/internal/services"
)

func newCatalogRouter(catalog services.CatalogService) http.Handler {
	r := chi.NewRouter()
	r.Route("/products", NewCatalogHandlers(testAuthenticator(), catalog).Routes)
	return r
}

func sampleProduct() services.Product {
	offer := decimal.RequireFromString("899.00")
	stock := 4
	return services.Product{
		ID:       "prod-1",
		Name:     "Graphic Tee",
		Brand:    "Acme",
		Category: "clothing",
		Class:    domain.CategoryClassSized,
		Variants: []domain.Variant{
			{
				ID:    "var-1",
				Color: "Black",
				Sized: &domain.SizedShape{Sizes: []domain.SizeStock{{Size: "M", Stock: 5}}},
				Pricing: domain.VariantPricing{
					Price:      decimal.RequireFromString("999.00"),
					OfferPrice: &offer,
				},
			},
			{
				ID:         "var-2",
				Color:      "Silver",
				Configured: &domain.ConfiguredShape{RAM: "8GB", ROM: "128GB", Stock: stock},
				Pricing:    domain.VariantPricing{Price: decimal.RequireFromString("15999.00")},
			},
		},
		AverageRating: 4.5,
		Ratings: []domain.Rating{
			{UserID: "user-9", UserName: "Ravi", Score: 5, Comment: "great fit"},
		},
	}
}

func TestListProductsParsesQuery(t *testing.T) {
	var gotQuery services.ProductListQuery
	catalog := &stubCatalogService{
		list: func(_ context.Context, query services.ProductListQuery) (domain.CursorPage[services.Product], error) {
			gotQuery = query
			return domain.CursorPage[services.Product]{
				Items:         []services.Product{sampleProduct()},
				NextPageToken: "tok-2",
			}, nil
		},
	}

	rec := httptest.NewRecorder()
	target := "/products?category=clothing&brand=Acme&q=tee&page_size=20&page_token=tok-1"
	newCatalogRouter(catalog).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	assertStatus(t, rec, http.StatusOK)
	assertBodyContains(t, rec, `"next_page_token":"tok-2"`, `"name":"Graphic Tee"`)
	if gotQuery.Category != "clothing" || gotQuery.Brand != "Acme" || gotQuery.Search != "tee" {
		t.Fatalf("unexpected query: %+v", gotQuery)
	}
	if gotQuery.Pagination.PageSize != 20 || gotQuery.Pagination.PageToken != "tok-1" {
		t.Fatalf("unexpected pagination: %+v", gotQuery.Pagination)
	}
	// Listing omits per-product ratings; the detail endpoint carries them.
	if strings.Contains(rec.Body.String(), `"ratings"`) {
		t.Fatal("listing must not include ratings")
	}
}

func TestGetProductIncludesVariantShapes(t *testing.T) {
	catalog := &stubCatalogService{
		get: func(_ context.Context, productID string) (services.Product, error) {
			if productID != "prod-1" {
				return services.Product{}, services.ErrProductNotFound
			}
			return sampleProduct(), nil
		},
	}

	rec := httptest.NewRecorder()
	newCatalogRouter(catalog).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/prod-1", nil))

	assertStatus(t, rec, http.StatusOK)
	assertBodyContains(t, rec,
		`"offer_price":"899.00"`,
		`"sizes":[{"size":"M","stock":5}]`,
		`"ram":"8GB"`,
		`"stock":4`,
		`"comment":"great fit"`,
	)
}

func TestGetProductNotFound(t *testing.T) {
	catalog := &stubCatalogService{
		get: func(context.Context, string) (services.Product, error) {
			return services.Product{}, services.ErrProductNotFound
		},
	}

	rec := httptest.NewRecorder()
	newCatalogRouter(catalog).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/missing", nil))

	assertStatus(t, rec, http.StatusNotFound)
	assertBodyContains(t, rec, "product_not_found")
}

func TestListProductsRejectsBadPageSize(t *testing.T) {
	rec := httptest.NewRecorder()
	newCatalogRouter(&stubCatalogService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products?page_size=-1", nil))
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestAddRatingRequiresAuth(t *testing.T) {
	rec := httptest.NewRecorder()
	newCatalogRouter(&stubCatalogService{}).
		ServeHTTP(rec, authedRequest(http.MethodPost, "/products/prod-1/ratings", "", `{"score":5}`))
	assertStatus(t, rec, http.StatusUnauthorized)
}

func TestAddRatingForwardsIdentity(t *testing.T) {
	var gotCmd services.AddRatingCommand
	catalog := &stubCatalogService{
		rate: func(_ context.Context, cmd services.AddRatingCommand) (services.Product, error) {
			gotCmd = cmd
			return sampleProduct(), nil
		},
	}

	body := `{"score":5,"comment":"great fit","user_name":"Asha"}`
	rec := httptest.NewRecorder()
	newCatalogRouter(catalog).
		ServeHTTP(rec, authedRequest(http.MethodPost, "/products/prod-1/ratings", customerToken, body))

	assertStatus(t, rec, http.StatusCreated)
	if gotCmd.UserID != "user-1" || gotCmd.ProductID != "prod-1" {
		t.Fatalf("unexpected command: %+v", gotCmd)
	}
	if gotCmd.Score != 5 || gotCmd.Comment != "great fit" {
		t.Fatalf("unexpected rating: %+v", gotCmd)
	}
}
