package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/printshop/internal/domain/catalog"
	"github.com/xenking/printshop/internal/domain/configurator"
)

// LineStatus compares a stored line snapshot with the live catalog.
type LineStatus string

const (
	// LineCurrent means the live catalog still charges the recorded price.
	LineCurrent LineStatus = "current"
	// LineDrifted means the configuration still resolves but the price changed.
	LineDrifted LineStatus = "drifted"
	// LineStale means the product or one of the chosen options is gone.
	LineStale LineStatus = "stale"
)

// LineAudit is the audit outcome of one order line.
type LineAudit struct {
	ItemID            string
	ProductID         string
	Status            LineStatus
	RecordedUnitPrice decimal.Decimal
	// CurrentUnitPrice is zero for stale lines.
	CurrentUnitPrice decimal.Decimal
	Reason           string
}

// Audit reports how every line of an order compares with the live catalog.
// Snapshots are never modified by an audit.
type Audit struct {
	OrderID string
	Lines   []LineAudit
}

// Drifted reports whether any line no longer matches the live catalog.
func (a *Audit) Drifted() bool {
	for _, l := range a.Lines {
		if l.Status != LineCurrent {
			return true
		}
	}
	return false
}

// AuditOrder re-prices each recorded configuration against the live catalog
// without touching the order. Catalog integrity faults abort the audit.
func (s *Service) AuditOrder(ctx context.Context, id string) (*Audit, error) {
	ctx, span := s.tracer.Start(ctx, "order.AuditOrder")
	defer span.End()

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(o.Items))
	for i, item := range o.Items {
		ids[i] = item.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]*catalog.Product, len(fetched))
	for i := range fetched {
		productMap[fetched[i].ID] = &fetched[i]
	}

	audit := &Audit{OrderID: o.ID, Lines: make([]LineAudit, len(o.Items))}
	for i, item := range o.Items {
		la := LineAudit{
			ItemID:            item.ID,
			ProductID:         item.ProductID,
			RecordedUnitPrice: item.UnitPrice,
		}

		p, ok := productMap[item.ProductID]
		if !ok {
			la.Status = LineStale
			la.Reason = (&ProductNotFoundError{ProductID: item.ProductID}).Error()
			audit.Lines[i] = la
			continue
		}

		// Strict: an option the snapshot recorded must still exist. Groups
		// added since the order was placed resolve to their defaults.
		priced, err := configurator.Quote(p, item.Configuration.Selection())
		switch {
		case errors.Is(err, configurator.ErrInvalidSelection):
			la.Status = LineStale
			la.Reason = err.Error()
		case err != nil:
			return nil, errors.Wrapf(err, "item %s", item.ID)
		case priced.Total.Equal(item.UnitPrice):
			la.Status = LineCurrent
			la.CurrentUnitPrice = priced.Total
		default:
			la.Status = LineDrifted
			la.CurrentUnitPrice = priced.Total
		}
		audit.Lines[i] = la
	}

	return audit, nil
}
