package order

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/printshop/internal/domain/auth"
	"github.com/xenking/printshop/internal/domain/catalog"
	"github.com/xenking/printshop/internal/domain/configurator"
	"github.com/xenking/printshop/internal/domain/coupon"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// MaxQuantity is the largest quantity a single line may carry.
const MaxQuantity = math.MaxInt32

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return catalog.ErrNotFound }

// InvalidQuantityError indicates a line item quantity outside 1..MaxQuantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity %d for product %s must be between 1 and %d", e.Quantity, e.ProductID, MaxQuantity)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// LineRequest is one configured product the shopper wants to buy.
type LineRequest struct {
	ProductID string
	Quantity  int
	Selection configurator.Selection
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID     string
	Items      []LineRequest
	CouponCode string
}

// ReviseItemRequest changes the configuration or quantity of one order line.
// A zero Quantity keeps the current quantity; a nil Selection re-prices the
// recorded choices against the live catalog.
type ReviseItemRequest struct {
	OrderID   string
	ItemID    string
	Quantity  int
	Selection configurator.Selection
}

// QuoteResult is the price of one configured unit together with the product
// definition it was computed from.
type QuoteResult struct {
	Product *catalog.Product
	Price   configurator.PricedResult
}

// Config holds non-dependency settings of the Service.
type Config struct {
	// Sandbox marks every placed order as a sandbox order.
	Sandbox bool
	// MeterProvider and TracerProvider default to the otel globals.
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service encapsulates quoting, order placement and admin revision. Prices
// always come from the configurator against the live catalog; stored orders
// only ever hold snapshots.
type Service struct {
	products catalog.Repository
	coupons  coupon.Validator
	orders   Repository
	sandbox  bool
	now      func() time.Time

	tracer           trace.Tracer
	ordersPlaced     metric.Int64Counter
	invalidSelection metric.Int64Counter
	integrityFaults  metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	cfg Config,
	products catalog.Repository,
	coupons coupon.Validator,
	orders Repository,
) (*Service, error) {
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	s := &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		sandbox:  cfg.Sandbox,
		now:      time.Now,
		tracer:   tp.Tracer("printshop/order"),
	}

	meter := mp.Meter("printshop/order")
	var err error
	if s.ordersPlaced, err = meter.Int64Counter("printshop.orders.placed",
		metric.WithDescription("Orders successfully placed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	if s.invalidSelection, err = meter.Int64Counter("printshop.configurator.invalid_selection",
		metric.WithDescription("Selections rejected for referencing unknown options"),
	); err != nil {
		return nil, errors.Wrap(err, "invalid selection counter")
	}
	if s.integrityFaults, err = meter.Int64Counter("printshop.configurator.integrity_faults",
		metric.WithDescription("Products that could not be priced because of malformed option groups"),
	); err != nil {
		return nil, errors.Wrap(err, "integrity faults counter")
	}

	return s, nil
}

// FindProduct looks a product up by slug, falling back to its id.
func (s *Service) FindProduct(ctx context.Context, ref string) (*catalog.Product, error) {
	p, err := s.products.GetBySlug(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return nil, errors.Wrap(err, "get product by slug")
	}

	p, err = s.products.GetByID(ctx, ref)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, &ProductNotFoundError{ProductID: ref}
		}
		return nil, errors.Wrap(err, "get product by id")
	}
	return p, nil
}

// Quote prices one unit of the referenced product with the given selection.
func (s *Service) Quote(ctx context.Context, ref string, sel configurator.Selection) (*QuoteResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.Quote", trace.WithAttributes(attribute.String("product.ref", ref)))
	defer span.End()

	p, err := s.FindProduct(ctx, ref)
	if err != nil {
		return nil, err
	}

	priced, err := s.price(ctx, p, sel)
	if err != nil {
		return nil, err
	}
	return &QuoteResult{Product: p, Price: priced}, nil
}

// PlaceOrder validates and prices every line against the live catalog,
// applies the coupon, persists the order with per-line snapshots and returns it.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder", trace.WithAttributes(attribute.Int("order.lines", len(req.Items))))
	defer span.End()

	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 || item.Quantity > MaxQuantity {
			return nil, &InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]*catalog.Product, len(fetched))
	for i := range fetched {
		productMap[fetched[i].ID] = &fetched[i]
	}

	items := make([]LineItem, len(req.Items))
	for i, line := range req.Items {
		p, ok := productMap[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}

		priced, err := s.price(ctx, p, line.Selection)
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
		items[i] = newLineItem(uuid.New().String(), line.Quantity, priced)
	}

	subtotal := subtotalOf(items)

	couponCode := req.CouponCode
	discount := decimal.Zero
	if couponCode != "" {
		d, err := s.coupons.Validate(ctx, couponCode, couponItems(items))
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		discount = d.Amount
	}

	now := s.now()
	o := &Order{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		Items:      items,
		Subtotal:   subtotal,
		Discounts:  discount,
		Total:      totalOf(subtotal, discount),
		CouponCode: couponCode,
		Status:     StatusPending,
		Sandbox:    s.sandbox,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.sandbox {
		o.Status = StatusSandbox
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if couponCode != "" {
		// The order is already stored; a failed counter update must not fail it.
		if err := s.coupons.Redeem(ctx, couponCode); err != nil {
			zctx.From(ctx).Warn("Coupon redemption not recorded",
				zap.String("order_id", o.ID),
				zap.String("coupon", couponCode),
				zap.Error(err),
			)
		}
	}

	s.ordersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.Bool("sandbox", o.Sandbox)))
	return o, nil
}

// GetOrder returns an order visible to the caller: its owner or an admin.
// Orders of other users are reported as not found.
func (s *Service) GetOrder(ctx context.Context, caller auth.Principal, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && o.UserID != caller.UserID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ReviseItem re-resolves one line of a placed order against the live
// catalog, replaces its snapshot and recomputes the order totals. The
// recorded discount is kept, capped at the new subtotal.
func (s *Service) ReviseItem(ctx context.Context, req ReviseItemRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.ReviseItem", trace.WithAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("order.item_id", req.ItemID),
	))
	defer span.End()

	if req.Quantity < 0 || req.Quantity > MaxQuantity {
		return nil, &InvalidQuantityError{ProductID: req.ItemID, Quantity: req.Quantity}
	}

	o, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	line, ok := o.Item(req.ItemID)
	if !ok {
		return nil, ErrNotFound
	}

	p, err := s.products.GetByID(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		return nil, errors.Wrap(err, "get product")
	}

	sel := req.Selection
	if sel == nil {
		sel = line.Configuration.Selection()
	}
	priced, err := s.price(ctx, p, sel)
	if err != nil {
		return nil, err
	}

	qty := line.Quantity
	if req.Quantity > 0 {
		qty = req.Quantity
	}
	*line = newLineItem(line.ID, qty, priced)

	o.Subtotal = subtotalOf(o.Items)
	o.Discounts = decimal.Min(o.Discounts, floorAtZero(o.Subtotal))
	o.Total = totalOf(o.Subtotal, o.Discounts)
	o.UpdatedAt = s.now()

	if err := s.orders.UpdateItem(ctx, o, *line); err != nil {
		return nil, errors.Wrap(err, "update order item")
	}
	return o, nil
}

// price runs the configurator and records selection and integrity failures.
// Integrity faults are logged here because they indicate broken catalog
// data rather than a bad request.
func (s *Service) price(ctx context.Context, p *catalog.Product, sel configurator.Selection) (configurator.PricedResult, error) {
	priced, err := configurator.Quote(p, sel)
	switch {
	case err == nil:
		return priced, nil
	case errors.Is(err, configurator.ErrInvalidSelection):
		s.invalidSelection.Add(ctx, 1, metric.WithAttributes(attribute.String("product.id", p.ID)))
	case errors.Is(err, configurator.ErrEmptyOptionGroup):
		s.integrityFaults.Add(ctx, 1, metric.WithAttributes(attribute.String("product.id", p.ID)))
		zctx.From(ctx).Error("Catalog integrity fault",
			zap.String("product_id", p.ID),
			zap.Error(err),
		)
	}
	return configurator.PricedResult{}, err
}

func newLineItem(id string, qty int, priced configurator.PricedResult) LineItem {
	return LineItem{
		ID:            id,
		ProductID:     priced.ProductID,
		Quantity:      qty,
		UnitPrice:     priced.Total,
		LineTotal:     configurator.Round(priced.Total.Mul(decimal.NewFromInt(int64(qty)))),
		Configuration: configurator.SnapshotSelection(priced),
	}
}

func couponItems(items []LineItem) []coupon.Item {
	out := make([]coupon.Item, len(items))
	for i, item := range items {
		out[i] = coupon.Item{
			LineID:    item.ID,
			ProductID: item.ProductID,
			Price:     item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return out
}

func subtotalOf(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal)
	}
	return configurator.Round(sum)
}

// totalOf subtracts the discount. A discount never takes the total below
// zero; without one, the configured prices pass through unclamped.
func totalOf(subtotal, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount)
	if discount.IsPositive() {
		total = floorAtZero(total)
	}
	return configurator.Round(total)
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
