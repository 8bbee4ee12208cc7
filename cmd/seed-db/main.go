package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/printshop/internal/domain/auth"
	"github.com/xenking/printshop/internal/domain/catalog"
	"github.com/xenking/printshop/internal/domain/coupon"
	"github.com/xenking/printshop/internal/handler"
	"github.com/xenking/printshop/internal/repository"
)

type seedFile struct {
	Products []productJSON `json:"products"`
	Coupons  []couponJSON  `json:"coupons"`
}

type productJSON struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	BasePrice    decimal.Decimal `json:"basePrice"`
	OptionGroups []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Mode   string `json:"mode"`
		Values []struct {
			ID            string          `json:"id"`
			Name          string          `json:"name"`
			PriceModifier decimal.Decimal `json:"priceModifier"`
		} `json:"values"`
	} `json:"optionGroups"`
}

type couponJSON struct {
	Code         string          `json:"code"`
	DiscountType string          `json:"discountType"`
	Value        decimal.Decimal `json:"value"`
	MinItems     int             `json:"minItems"`
	Description  string          `json:"description"`
	MaxUses      int             `json:"maxUses"`
}

type seedKey struct {
	key  string
	info auth.APIKeyInfo
}

type options struct {
	databaseURL string
	catalogFile string
	apiKey      string
	adminKey    string
	pepper      string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "customer API key to seed (or PRINTSHOP_SEED_API_KEY env)")
	flag.StringVar(&opts.adminKey, "admin-key", "", "admin API key to seed (or PRINTSHOP_SEED_ADMIN_KEY env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PRINTSHOP_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	opts.fromEnv()
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.apiKey == "" {
		lg.Fatal("API key is required: set --api-key or PRINTSHOP_SEED_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func (o *options) fromEnv() {
	if o.databaseURL == "" {
		o.databaseURL = os.Getenv("DATABASE_URL")
	}
	if o.apiKey == "" {
		o.apiKey = os.Getenv("PRINTSHOP_SEED_API_KEY")
	}
	if o.adminKey == "" {
		o.adminKey = os.Getenv("PRINTSHOP_SEED_ADMIN_KEY")
	}
	if o.pepper == "" {
		o.pepper = os.Getenv("PRINTSHOP_API_KEY_PEPPER")
	}
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Reading catalog file", zap.String("path", opts.catalogFile))
	data, err := os.ReadFile(opts.catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	products, err := toProducts(seed.Products)
	if err != nil {
		return err
	}
	if faults := catalog.CheckIntegrity(products); len(faults) > 0 {
		for _, f := range faults {
			lg.Error("Catalog integrity fault", zap.Stringer("fault", f))
		}
		return errors.Errorf("catalog file has %d integrity faults", len(faults))
	}

	lg.Info("Connecting to database")
	pool, err := repository.NewPool(ctx, opts.databaseURL, repository.PoolConfig{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, repository.NewProductRepository(pool), products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, repository.NewCouponRepository(pool), seed.Coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKeys(ctx, lg, pool, opts); err != nil {
		return errors.Wrap(err, "seed api keys")
	}
	return nil
}

func toProducts(in []productJSON) ([]catalog.Product, error) {
	out := make([]catalog.Product, 0, len(in))
	for _, p := range in {
		product := catalog.Product{
			ID:          p.ID,
			Slug:        p.Slug,
			Name:        p.Name,
			Description: p.Description,
			BasePrice:   p.BasePrice,
		}
		for _, g := range p.OptionGroups {
			mode, err := catalog.ParseSelectionMode(g.Mode)
			if err != nil {
				return nil, errors.Wrapf(err, "product %s group %s", p.ID, g.ID)
			}
			group := catalog.OptionGroup{ID: g.ID, Name: g.Name, Mode: mode}
			for _, v := range g.Values {
				group.Values = append(group.Values, catalog.OptionValue{
					ID:            v.ID,
					Name:          v.Name,
					PriceModifier: v.PriceModifier,
				})
			}
			product.Groups = append(product.Groups, group)
		}
		out = append(out, product)
	}
	return out, nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *repository.ProductRepository, products []catalog.Product) error {
	lg.Info("Upserting products", zap.Int("count", len(products)))
	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Info("Upserted product",
			zap.String("id", p.ID),
			zap.String("slug", p.Slug),
			zap.Int("groups", len(p.Groups)),
		)
	}
	return nil
}

func seedCoupons(ctx context.Context, lg *zap.Logger, repo *repository.CouponRepository, coupons []couponJSON) error {
	for _, c := range coupons {
		dt, err := coupon.ParseDiscountType(c.DiscountType)
		if err != nil {
			return errors.Wrapf(err, "coupon %s", c.Code)
		}
		if err := repo.Upsert(ctx, coupon.Rule{
			Code:         c.Code,
			DiscountType: dt,
			Value:        c.Value,
			MinItems:     c.MinItems,
			Description:  c.Description,
			MaxUses:      c.MaxUses,
		}); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("description", c.Description))
	}
	return nil
}

func seedAPIKeys(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, opts options) error {
	repo := repository.NewAPIKeyRepository(pool)
	pepper := []byte(opts.pepper)

	keys := []seedKey{
		{opts.apiKey, auth.APIKeyInfo{ID: "customer", Name: "Default customer key", Scopes: []string{auth.ScopeOrders}}},
	}
	if opts.adminKey != "" {
		keys = append(keys, seedKey{
			opts.adminKey, auth.APIKeyInfo{ID: "ops", Name: "Operations key", Scopes: []string{auth.ScopeOrders, auth.ScopeAdmin}},
		})
	}

	for _, k := range keys {
		k.info.KeyHash = handler.HashAPIKey(k.key, pepper)
		if err := repo.Upsert(ctx, k.info); err != nil {
			return errors.Wrapf(err, "upsert api key %s", k.info.ID)
		}
		lg.Info("Upserted API key", zap.String("id", k.info.ID), zap.Strings("scopes", k.info.Scopes))
	}
	return nil
}
