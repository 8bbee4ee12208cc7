package configurator

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/printshop/internal/domain/catalog"
)

// CentPlaces is the number of decimal places kept for stored and displayed
// amounts.
const CentPlaces = 2

// Round rounds an amount to cents, halves away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(CentPlaces)
}

// ComputePrice prices one unit of p configured by rs.
//
// Modifiers are read from the live product, summed at full precision and
// rounded once. The total is not clamped: a negative modifier may take it
// below zero. A resolved selection belonging to another product, or one
// referencing values the product no longer has, yields *InvalidSelectionError.
func ComputePrice(p *catalog.Product, rs ResolvedSelection) (PricedResult, error) {
	if rs.productID != p.ID || len(rs.choices) != len(p.Groups) {
		return PricedResult{}, &InvalidSelectionError{ProductID: p.ID}
	}

	sum := p.BasePrice
	lines := make([]PricedLine, len(rs.choices))
	for i, c := range rs.choices {
		g := &p.Groups[i]
		if g.ID != c.GroupID {
			return PricedResult{}, &InvalidSelectionError{ProductID: p.ID, GroupID: c.GroupID}
		}
		v, ok := g.Value(c.ValueID)
		if !ok {
			return PricedResult{}, &InvalidSelectionError{ProductID: p.ID, GroupID: g.ID, ValueID: c.ValueID}
		}

		sum = sum.Add(v.PriceModifier)
		lines[i] = PricedLine{
			GroupID:   g.ID,
			GroupName: g.Name,
			ValueID:   v.ID,
			ValueName: v.Name,
			Modifier:  v.PriceModifier,
		}
	}

	return PricedResult{
		ProductID:   p.ID,
		ProductName: p.Name,
		BasePrice:   p.BasePrice,
		Lines:       lines,
		Total:       Round(sum),
	}, nil
}

// Quote validates sel and prices the result in one step.
func Quote(p *catalog.Product, sel Selection) (PricedResult, error) {
	rs, err := ValidateSelection(p, sel)
	if err != nil {
		return PricedResult{}, err
	}
	return ComputePrice(p, rs)
}
