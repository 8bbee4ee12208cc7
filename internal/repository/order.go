package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/printshop/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, subtotal, discounts, total, coupon_code,
		status, sandbox, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, id, position, product_id, quantity,
		unit_price, line_total, configuration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getOrderSQL = `SELECT id, user_id, subtotal, discounts, total, coupon_code,
		status, sandbox, created_at, updated_at
		FROM orders WHERE id = $1`

	listOrderItemsSQL = `SELECT id, product_id, quantity, unit_price, line_total, configuration
		FROM order_items WHERE order_id = $1 ORDER BY position`

	updateOrderTotalsSQL = `UPDATE orders SET subtotal = $2, discounts = $3, total = $4, updated_at = $5
		WHERE id = $1`

	updateOrderItemSQL = `UPDATE order_items SET quantity = $3, unit_price = $4, line_total = $5,
		configuration = $6
		WHERE order_id = $1 AND id = $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its line items in one transaction. Each
// line's configuration snapshot is serialized to JSON for the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	batch := &pgx.Batch{}
	batch.Queue(createOrderSQL,
		o.ID, o.UserID, o.Subtotal, o.Discounts, o.Total, o.CouponCode,
		string(o.Status), o.Sandbox, o.CreatedAt, o.UpdatedAt,
	)
	for i, item := range o.Items {
		configJSON, err := json.Marshal(item.Configuration)
		if err != nil {
			return fmt.Errorf("marshaling configuration of item %q: %w", item.ID, err)
		}
		batch.Queue(createOrderItemSQL,
			o.ID, item.ID, int32(i), item.ProductID, int32(item.Quantity),
			item.UnitPrice, item.LineTotal, configJSON,
		)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns an order with its line items in placement order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	rows, err = r.pool.Query(ctx, listOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", id, err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", id, err)
	}
	o.Items = items
	return &o, nil
}

// UpdateItem replaces one line and the order totals atomically.
func (r *OrderRepository) UpdateItem(ctx context.Context, o *order.Order, item order.LineItem) error {
	configJSON, err := json.Marshal(item.Configuration)
	if err != nil {
		return fmt.Errorf("marshaling configuration of item %q: %w", item.ID, err)
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateOrderItemSQL,
			o.ID, item.ID, int32(item.Quantity), item.UnitPrice, item.LineTotal, configJSON,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return order.ErrNotFound
		}
		_, err = tx.Exec(ctx, updateOrderTotalsSQL, o.ID, o.Subtotal, o.Discounts, o.Total, o.UpdatedAt)
		return err
	})
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return err
		}
		return fmt.Errorf("updating item %q of order %q: %w", item.ID, o.ID, err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                  order.Order
		status             string
		subtotal, disc     decimal.Decimal
		total              decimal.Decimal
		createdAt, updated time.Time
	)
	err := row.Scan(
		&o.ID, &o.UserID, &subtotal, &disc, &total, &o.CouponCode,
		&status, &o.Sandbox, &createdAt, &updated,
	)
	o.Subtotal = subtotal
	o.Discounts = disc
	o.Total = total
	o.Status = order.Status(status)
	o.CreatedAt = createdAt
	o.UpdatedAt = updated
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.LineItem, error) {
	var (
		item       order.LineItem
		quantity   int32
		configJSON []byte
	)
	if err := row.Scan(
		&item.ID, &item.ProductID, &quantity, &item.UnitPrice, &item.LineTotal, &configJSON,
	); err != nil {
		return item, err
	}
	item.Quantity = int(quantity)
	if err := json.Unmarshal(configJSON, &item.Configuration); err != nil {
		return item, fmt.Errorf("unmarshaling configuration of item %q: %w", item.ID, err)
	}
	return item, nil
}
