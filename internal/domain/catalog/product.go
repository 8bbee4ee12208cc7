package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// SelectionMode is how an option group is presented to the shopper. Every
// supported mode is single choice: exactly one value is picked per group.
type SelectionMode string

const (
	// ModeSelect renders the group as a drop-down.
	ModeSelect SelectionMode = "select"
	// ModeRadio renders the group as a radio list.
	ModeRadio SelectionMode = "radio"
)

// ParseSelectionMode converts a stored mode into a SelectionMode. An empty
// string maps to ModeSelect. Multi-select and free-text groups are not
// supported and are rejected.
func ParseSelectionMode(s string) (SelectionMode, error) {
	switch SelectionMode(s) {
	case "", ModeSelect:
		return ModeSelect, nil
	case ModeRadio:
		return ModeRadio, nil
	default:
		return "", errors.Errorf("unsupported selection mode %q", s)
	}
}

// Product is a configurable catalog item: a base price plus ordered option
// groups whose chosen values adjust the price.
type Product struct {
	ID          string
	Slug        string
	Name        string
	Description string
	BasePrice   decimal.Decimal
	Groups      []OptionGroup
}

// OptionGroup is one axis of customization, e.g. "Paper Stock".
type OptionGroup struct {
	ID     string
	Name   string
	Mode   SelectionMode
	Values []OptionValue
}

// OptionValue is a selectable choice within a group. PriceModifier is a
// signed delta added to the running total.
type OptionValue struct {
	ID            string
	Name          string
	PriceModifier decimal.Decimal
}

// Group returns the option group with the given id.
func (p *Product) Group(id string) (*OptionGroup, bool) {
	for i := range p.Groups {
		if p.Groups[i].ID == id {
			return &p.Groups[i], true
		}
	}
	return nil, false
}

// Value returns the option value with the given id.
func (g *OptionGroup) Value(id string) (*OptionValue, bool) {
	for i := range g.Values {
		if g.Values[i].ID == id {
			return &g.Values[i], true
		}
	}
	return nil, false
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
