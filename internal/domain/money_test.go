package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain integer", input: "499", want: "499.00"},
		{name: "two decimals", input: "499.50", want: "499.50"},
		{name: "whitespace", input: "  10.5 ", want: "10.50"},
		{name: "zero", input: "0", want: "0.00"},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "ten rupees", wantErr: true},
		{name: "negative", input: "-1.00", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount, err := ParseAmount(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("expected ErrInvalidAmount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := AmountString(amount); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestPaiseConversion(t *testing.T) {
	amount := decimal.RequireFromString("199.99")
	if got := ToPaise(amount); got != 19999 {
		t.Fatalf("expected 19999 paise, got %d", got)
	}
	if got := AmountString(FromPaise(19999)); got != "199.99" {
		t.Fatalf("expected 199.99, got %s", got)
	}
	if got := ToPaise(decimal.Zero); got != 0 {
		t.Fatalf("expected 0 paise, got %d", got)
	}
}

func TestUnitPriceFallsBackToListPrice(t *testing.T) {
	price := decimal.RequireFromString("100.00")
	offer := decimal.RequireFromString("90.00")

	item := OrderItem{Price: price}
	if !item.UnitPrice().Equal(price) {
		t.Fatalf("expected list price, got %s", item.UnitPrice())
	}

	item.OfferPrice = &offer
	if !item.UnitPrice().Equal(offer) {
		t.Fatalf("expected offer price, got %s", item.UnitPrice())
	}
}
