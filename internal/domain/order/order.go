package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/printshop/internal/domain/configurator"
)

// ErrNotFound is returned when a requested order or order line does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of an order.
type Status string

const (
	// StatusPending is an order placed against the live store.
	StatusPending Status = "pending"
	// StatusSandbox is an order placed while the store runs in sandbox mode.
	StatusSandbox Status = "sandbox"
)

// Order is a placed customer order. Each line carries the frozen
// configuration it was priced with.
type Order struct {
	ID         string
	UserID     string
	Items      []LineItem
	Subtotal   decimal.Decimal
	Discounts  decimal.Decimal
	Total      decimal.Decimal
	CouponCode string
	Status     Status
	Sandbox    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LineItem is one configured product in an order.
type LineItem struct {
	ID            string
	ProductID     string
	Quantity      int
	UnitPrice     decimal.Decimal
	LineTotal     decimal.Decimal
	Configuration configurator.Snapshot
}

// Item returns the line with the given id.
func (o *Order) Item(id string) (*LineItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// UpdateItem stores a revised line together with the order's new totals.
	UpdateItem(ctx context.Context, order *Order, item LineItem) error
}
