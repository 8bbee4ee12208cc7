package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/printshop/internal/domain/catalog"
	"github.com/xenking/printshop/internal/domain/order"
)

// ReviseItem re-resolves one order line against the live catalog with the
// posted quantity and selection and returns the updated order.
func (h *Handler) ReviseItem(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	req := order.ReviseItemRequest{
		OrderID: r.PathValue("id"),
		ItemID:  r.PathValue("itemId"),
	}
	if d.Next() != jx.Invalid {
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "quantity":
				q, err := d.Int()
				req.Quantity = q
				return err
			case "selection":
				sel, err := decodeSelection(d)
				req.Selection = sel
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			badRequest(w, err)
			return
		}
	}

	o, err := h.orderService.ReviseItem(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// AuditOrder compares every line of an order with what the live catalog
// would charge now.
func (h *Handler) AuditOrder(w http.ResponseWriter, r *http.Request) {
	audit, err := h.orderService.AuditOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orderId")
		e.Str(audit.OrderID)
		e.FieldStart("drifted")
		e.Bool(audit.Drifted())
		e.FieldStart("lines")
		e.ArrStart()
		for _, l := range audit.Lines {
			e.ObjStart()
			e.FieldStart("itemId")
			e.Str(l.ItemID)
			e.FieldStart("productId")
			e.Str(l.ProductID)
			e.FieldStart("status")
			e.Str(string(l.Status))
			e.FieldStart("recordedUnitPrice")
			encodeMoney(e, l.RecordedUnitPrice)
			if l.Status != order.LineStale {
				e.FieldStart("currentUnitPrice")
				encodeMoney(e, l.CurrentUnitPrice)
			}
			if l.Reason != "" {
				e.FieldStart("reason")
				e.Str(l.Reason)
			}
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// CatalogIntegrity lists structural faults of the live catalog.
func (h *Handler) CatalogIntegrity(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list products"))
		return
	}
	faults := catalog.CheckIntegrity(products)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("products")
		e.Int(len(products))
		e.FieldStart("faults")
		e.ArrStart()
		for _, f := range faults {
			e.ObjStart()
			e.FieldStart("productId")
			e.Str(f.ProductID)
			if f.GroupID != "" {
				e.FieldStart("groupId")
				e.Str(f.GroupID)
			}
			if f.ValueID != "" {
				e.FieldStart("valueId")
				e.Str(f.ValueID)
			}
			e.FieldStart("kind")
			e.Str(f.Kind)
			e.FieldStart("message")
			e.Str(f.String())
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}
