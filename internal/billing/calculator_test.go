package billing

import (
	"errors"
	"testing"

	"billgen/backend/internal/domain"
)

func TestComputeScenarios(t *testing.T) {
	cases := []struct {
		name     string
		items    []domain.LineItem
		discount float64
		taxRate  float64
		want     domain.Totals
	}{
		{
			name:    "empty cart",
			items:   nil,
			taxRate: 18,
			want:    domain.Totals{},
		},
		{
			name: "single item no discount",
			items: []domain.LineItem{
				{ProductName: "Khari Biscuit", Quantity: 2, UnitPrice: 50},
			},
			taxRate: 18,
			want:    domain.Totals{Subtotal: 100, Taxable: 100, Tax: 18, Total: 118},
		},
		{
			name: "discount exceeding subtotal clamps taxable",
			items: []domain.LineItem{
				{ProductName: "Toast", Quantity: 1, UnitPrice: 30},
			},
			discount: 50,
			taxRate:  12,
			want:     domain.Totals{Subtotal: 30, Taxable: 0, Tax: 0, Total: 0},
		},
		{
			name: "multiple items with discount",
			items: []domain.LineItem{
				{ProductName: "Cream Roll", Quantity: 3, UnitPrice: 25},
				{ProductName: "Rusk", Quantity: 2, UnitPrice: 40},
			},
			discount: 15,
			taxRate:  5,
			want:     domain.Totals{Subtotal: 155, Taxable: 140, Tax: 7, Total: 147},
		},
		{
			name: "zero tax rate",
			items: []domain.LineItem{
				{ProductName: "Bread", Quantity: 1, UnitPrice: 45},
			},
			taxRate: 0,
			want:    domain.Totals{Subtotal: 45, Taxable: 45, Tax: 0, Total: 45},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Compute(tc.items, tc.discount, tc.taxRate)
			if err != nil {
				t.Fatalf("compute failed: %v", err)
			}
			rounded := got.Rounded()
			if rounded != tc.want {
				t.Fatalf("got %+v, want %+v", rounded, tc.want)
			}
		})
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	items := []domain.LineItem{
		{ProductName: "Khari Biscuit", Quantity: 7, UnitPrice: 33.33},
		{ProductName: "Cream Roll", Quantity: 2, UnitPrice: 19.99},
	}

	first, err := Compute(items, 12.5, 18)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := Compute(items, 12.5, 18)
		if err != nil {
			t.Fatalf("compute failed on iteration %d: %v", i, err)
		}
		if again != first {
			t.Fatalf("iteration %d: got %+v, want %+v", i, again, first)
		}
	}
}

func TestComputeAdditivity(t *testing.T) {
	items := []domain.LineItem{
		{ProductName: "Rusk", Quantity: 3, UnitPrice: 41.75},
		{ProductName: "Bread", Quantity: 1, UnitPrice: 52.40},
	}

	totals, err := Compute(items, 20, 12)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if totals.Total != totals.Taxable+totals.Tax {
		t.Fatalf("total %v != taxable %v + tax %v", totals.Total, totals.Taxable, totals.Tax)
	}
	if totals.Taxable < 0 {
		t.Fatalf("taxable went negative: %v", totals.Taxable)
	}
}

func TestComputeRoundsOnceAtTheEnd(t *testing.T) {
	// 3 * 33.335 = 100.005. Rounding taxable and tax at intermediate steps
	// would yield 100.00 + 18.00 = 118.00; full precision gives 118.0059,
	// which rounds to 118.01.
	items := []domain.LineItem{
		{ProductName: "Khari Biscuit", Quantity: 3, UnitPrice: 33.335},
	}

	totals, err := Compute(items, 0, 18)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	rounded := totals.Rounded()
	if rounded.Tax != 18.00 {
		t.Fatalf("expected tax 18.00 from full-precision base, got %v", rounded.Tax)
	}
	if rounded.Total != 118.01 {
		t.Fatalf("expected total 118.01, got %v", rounded.Total)
	}
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name     string
		items    []domain.LineItem
		discount float64
		taxRate  float64
	}{
		{"negative quantity", []domain.LineItem{{ProductName: "x", Quantity: -1, UnitPrice: 10}}, 0, 18},
		{"zero quantity", []domain.LineItem{{ProductName: "x", Quantity: 0, UnitPrice: 10}}, 0, 18},
		{"negative price", []domain.LineItem{{ProductName: "x", Quantity: 1, UnitPrice: -5}}, 0, 18},
		{"negative discount", []domain.LineItem{{ProductName: "x", Quantity: 1, UnitPrice: 10}}, -1, 18},
		{"negative tax rate", []domain.LineItem{{ProductName: "x", Quantity: 1, UnitPrice: 10}}, 0, -18},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Compute(tc.items, tc.discount, tc.taxRate); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestResolveDiscount(t *testing.T) {
	amount, err := ResolveDiscount(domain.Discount{Kind: domain.DiscountAmount, Value: 25}, 200)
	if err != nil || amount != 25 {
		t.Fatalf("amount discount: got %v, %v", amount, err)
	}

	percent, err := ResolveDiscount(domain.Discount{Kind: domain.DiscountPercent, Value: 10}, 200)
	if err != nil || percent != 20 {
		t.Fatalf("percent discount: got %v, %v", percent, err)
	}

	// Empty kind defaults to absolute amount.
	def, err := ResolveDiscount(domain.Discount{Value: 5}, 200)
	if err != nil || def != 5 {
		t.Fatalf("default kind: got %v, %v", def, err)
	}

	if _, err := ResolveDiscount(domain.Discount{Kind: "half-off", Value: 1}, 200); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown kind, got %v", err)
	}
	if _, err := ResolveDiscount(domain.Discount{Kind: domain.DiscountPercent, Value: 150}, 200); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for >100%%, got %v", err)
	}
}

func TestSplitTaxConsistency(t *testing.T) {
	for _, tax := range []float64{0, 0.01, 18, 37.53, 1234.567} {
		intra := SplitTax(tax, false)
		if intra.CGST+intra.SGST != tax {
			t.Fatalf("intra-state split does not sum: cgst=%v sgst=%v tax=%v", intra.CGST, intra.SGST, tax)
		}
		if intra.IGST != 0 {
			t.Fatalf("intra-state split leaked IGST: %v", intra.IGST)
		}

		inter := SplitTax(tax, true)
		if inter.IGST != tax || inter.CGST != 0 || inter.SGST != 0 {
			t.Fatalf("inter-state split wrong: %+v for tax %v", inter, tax)
		}
	}
}
