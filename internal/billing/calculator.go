package billing

import (
	"errors"

	"billgen/backend/internal/domain"
)

// ErrInvalidInput is returned when a caller hands the calculator input that
// should have been rejected at the boundary (negative quantity, price,
// discount, or tax rate). Failing fast here beats silently clamping.
var ErrInvalidInput = errors.New("invalid billing input")

// Compute derives a bill's monetary totals from its line items, an absolute
// discount, and a tax rate percentage. The computation runs in fixed order:
// subtotal, then taxable (clamped at zero when the discount exceeds the
// subtotal), then tax, then total. All arithmetic stays at full precision;
// rounding happens once, at display or persistence, via Totals.Rounded.
func Compute(items []domain.LineItem, discount float64, taxRate float64) (domain.Totals, error) {
	if discount < 0 || taxRate < 0 {
		return domain.Totals{}, ErrInvalidInput
	}

	subtotal := 0.0
	for _, item := range items {
		if item.Quantity < 1 || item.UnitPrice < 0 {
			return domain.Totals{}, ErrInvalidInput
		}
		subtotal += item.LineTotal()
	}

	taxable := subtotal - discount
	if taxable < 0 {
		taxable = 0
	}
	tax := taxable * taxRate / 100
	total := taxable + tax

	return domain.Totals{
		Subtotal: subtotal,
		Taxable:  taxable,
		Tax:      tax,
		Total:    total,
	}, nil
}

// ResolveDiscount converts a tagged discount into an absolute amount against
// the given subtotal. Percent discounts are evaluated here, before Compute,
// so the calculator only ever sees absolute amounts.
func ResolveDiscount(d domain.Discount, subtotal float64) (float64, error) {
	if d.Value < 0 {
		return 0, ErrInvalidInput
	}
	switch d.Kind {
	case "", domain.DiscountAmount:
		return d.Value, nil
	case domain.DiscountPercent:
		if d.Value > 100 {
			return 0, ErrInvalidInput
		}
		return subtotal * d.Value / 100, nil
	default:
		return 0, ErrInvalidInput
	}
}

// SplitTax produces the GST presentation split for a computed tax amount.
// Intra-state sales split the tax evenly into CGST and SGST; inter-state
// sales attribute the whole amount to IGST. Either way the parts sum to the
// tax exactly, since this is a derivative of the already-computed amount and
// not a second computation path.
func SplitTax(tax float64, interstate bool) domain.TaxSplit {
	if interstate {
		return domain.TaxSplit{IGST: tax}
	}
	half := tax / 2
	return domain.TaxSplit{CGST: half, SGST: tax - half}
}
