// Package configurator prices configurable products.
//
// A product carries a base price and ordered option groups; the shopper picks
// exactly one value per group and each value adds a signed modifier. The
// package validates a proposed selection against the live product definition,
// computes the total with decimal arithmetic, and freezes the priced
// breakdown into a snapshot suitable for storing on an order line.
//
// Every function is pure: no I/O, no shared state, safe for concurrent use.
package configurator

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidSelection is returned when a selection references a group or
	// value that does not exist on the product. Callers recover by reloading
	// the product and asking the shopper again.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrEmptyOptionGroup is returned when the product definition itself is
	// malformed: a group has no values and cannot be satisfied. This is a
	// catalog integrity fault, not a caller error.
	ErrEmptyOptionGroup = errors.New("empty option group")
)

// InvalidSelectionError describes which reference in a selection could not be
// resolved. It matches ErrInvalidSelection with errors.Is.
type InvalidSelectionError struct {
	ProductID string
	GroupID   string
	ValueID   string
}

func (e *InvalidSelectionError) Error() string {
	if e.ValueID == "" {
		return fmt.Sprintf("invalid selection: product %s has no option group %s", e.ProductID, e.GroupID)
	}
	return fmt.Sprintf("invalid selection: option group %s of product %s has no value %s",
		e.GroupID, e.ProductID, e.ValueID)
}

func (e *InvalidSelectionError) Unwrap() error { return ErrInvalidSelection }

// EmptyOptionGroupError identifies the malformed group. It matches
// ErrEmptyOptionGroup with errors.Is.
type EmptyOptionGroupError struct {
	ProductID string
	GroupID   string
}

func (e *EmptyOptionGroupError) Error() string {
	return fmt.Sprintf("product %s: option group %s has no values", e.ProductID, e.GroupID)
}

func (e *EmptyOptionGroupError) Unwrap() error { return ErrEmptyOptionGroup }

// Selection maps option group id to the chosen option value id. Groups may be
// omitted; an empty value id counts as omitted.
type Selection map[string]string

// Choice is the value picked for one group after resolution.
type Choice struct {
	GroupID string
	ValueID string
	// Defaulted is set when the caller omitted the group and the first
	// declared value was chosen.
	Defaulted bool
}

// ResolvedSelection holds exactly one valid choice per option group of a
// single product, in the product's group order. Obtain one from
// ValidateSelection; the zero value is bound to no product and is rejected
// by ComputePrice.
type ResolvedSelection struct {
	productID string
	choices   []Choice
}

// ProductID returns the id of the product the selection was resolved against.
func (r ResolvedSelection) ProductID() string { return r.productID }

// Choices returns a copy of the resolved choices in group order.
func (r ResolvedSelection) Choices() []Choice {
	out := make([]Choice, len(r.choices))
	copy(out, r.choices)
	return out
}

// Selection converts the resolved choices back into a Selection with every
// group filled in.
func (r ResolvedSelection) Selection() Selection {
	sel := make(Selection, len(r.choices))
	for _, c := range r.choices {
		sel[c.GroupID] = c.ValueID
	}
	return sel
}

// PricedLine is the contribution of one chosen value to the total.
type PricedLine struct {
	GroupID   string
	GroupName string
	ValueID   string
	ValueName string
	Modifier  decimal.Decimal
}

// PricedResult is the price of one configured unit of a product.
type PricedResult struct {
	ProductID   string
	ProductName string
	BasePrice   decimal.Decimal
	Lines       []PricedLine
	// Total is BasePrice plus every modifier, rounded to cents once.
	Total decimal.Decimal
}
