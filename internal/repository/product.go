package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/printshop/internal/domain/catalog"
)

const (
	productColumns = `id, slug, name, description, base_price`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductBySlugSQL = `SELECT ` + productColumns + ` FROM products WHERE slug = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	listGroupsSQL = `SELECT product_id, id, name, mode
		FROM option_groups WHERE product_id = ANY($1)
		ORDER BY product_id, position`

	listValuesSQL = `SELECT product_id, group_id, id, name, price_modifier
		FROM option_values WHERE product_id = ANY($1)
		ORDER BY product_id, group_id, position`

	upsertProductSQL = `INSERT INTO products (id, slug, name, description, base_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			base_price = EXCLUDED.base_price,
			updated_at = now()`

	deleteGroupsSQL = `DELETE FROM option_groups WHERE product_id = $1`

	insertGroupSQL = `INSERT INTO option_groups (product_id, id, name, mode, position)
		VALUES ($1, $2, $3, $4, $5)`

	insertValueSQL = `INSERT INTO option_values (product_id, group_id, id, name, price_modifier, position)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
// Products are always returned with their option groups and values in
// declared order.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	if err := r.loadOptions(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	return r.getOne(ctx, getProductByIDSQL, id)
}

// GetBySlug returns a single product by its URL slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	return r.getOne(ctx, getProductBySlugSQL, slug)
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	if err := r.loadOptions(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// Upsert stores a product and replaces its option groups and values in one
// transaction. Declared order is kept through the position columns.
func (r *ProductRepository) Upsert(ctx context.Context, p catalog.Product) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, p.Slug, p.Name, p.Description, p.BasePrice); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteGroupsSQL, p.ID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for gi, g := range p.Groups {
			batch.Queue(insertGroupSQL, p.ID, g.ID, g.Name, string(g.Mode), int32(gi))
			for vi, v := range g.Values {
				batch.Queue(insertValueSQL, p.ID, g.ID, v.ID, v.Name, v.PriceModifier, int32(vi))
			}
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func (r *ProductRepository) getOne(ctx context.Context, query, arg string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", arg, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", arg, err)
	}

	products := []catalog.Product{p}
	if err := r.loadOptions(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

type groupRef struct {
	product int
	group   int
}

// loadOptions attaches option groups and values to products in place.
func (r *ProductRepository) loadOptions(ctx context.Context, products []catalog.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]string, len(products))
	byID := make(map[string]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		byID[p.ID] = i
	}

	rows, err := r.pool.Query(ctx, listGroupsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing option groups: %w", err)
	}
	groups := make(map[string]groupRef)
	var productID, groupID, name, mode string
	_, err = pgx.ForEachRow(rows, []any{&productID, &groupID, &name, &mode}, func() error {
		m, err := catalog.ParseSelectionMode(mode)
		if err != nil {
			return fmt.Errorf("product %q group %q: %w", productID, groupID, err)
		}
		pi := byID[productID]
		products[pi].Groups = append(products[pi].Groups, catalog.OptionGroup{
			ID:   groupID,
			Name: name,
			Mode: m,
		})
		groups[productID+"/"+groupID] = groupRef{product: pi, group: len(products[pi].Groups) - 1}
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing option groups: %w", err)
	}

	rows, err = r.pool.Query(ctx, listValuesSQL, ids)
	if err != nil {
		return fmt.Errorf("listing option values: %w", err)
	}
	var (
		valueID  string
		modifier decimal.Decimal
	)
	_, err = pgx.ForEachRow(rows, []any{&productID, &groupID, &valueID, &name, &modifier}, func() error {
		ref, ok := groups[productID+"/"+groupID]
		if !ok {
			return nil
		}
		g := &products[ref.product].Groups[ref.group]
		g.Values = append(g.Values, catalog.OptionValue{
			ID:            valueID,
			Name:          name,
			PriceModifier: modifier,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing option values: %w", err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p     catalog.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &price)
	p.BasePrice = price
	return p, err
}
