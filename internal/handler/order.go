package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/printshop/internal/domain/auth"
	"github.com/xenking/printshop/internal/domain/configurator"
	"github.com/xenking/printshop/internal/domain/order"
)

// PlaceOrder decodes the order request, delegates to the order service and
// returns the stored order with every line's frozen configuration.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())

	d, err := readBody(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	req, err := decodeOrderRequest(d)
	if err != nil {
		badRequest(w, err)
		return
	}
	req.UserID = caller.UserID

	o, err := h.orderService.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// GetOrder returns an order owned by the caller. Admins may read any order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())

	o, err := h.orderService.GetOrder(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func decodeOrderRequest(d *jx.Decoder) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLineRequest(d)
				if err != nil {
					return errors.Wrapf(err, "item %d", len(req.Items))
				}
				req.Items = append(req.Items, line)
				return nil
			})
		case "couponCode":
			if d.Next() == jx.Null {
				return d.Null()
			}
			code, err := d.Str()
			req.CouponCode = code
			return err
		default:
			return d.Skip()
		}
	})
	return req, err
}

func decodeLineRequest(d *jx.Decoder) (order.LineRequest, error) {
	var line order.LineRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			id, err := d.Str()
			line.ProductID = id
			return err
		case "quantity":
			q, err := d.Int()
			line.Quantity = q
			return err
		case "selection":
			sel, err := decodeSelection(d)
			line.Selection = sel
			return err
		default:
			return d.Skip()
		}
	})
	return line, err
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("sandbox")
	e.Bool(o.Sandbox)
	if o.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(o.CouponCode)
	}
	e.FieldStart("items")
	e.ArrStart()
	for i := range o.Items {
		encodeLineItem(e, &o.Items[i])
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	encodeMoney(e, o.Subtotal)
	e.FieldStart("discounts")
	encodeMoney(e, o.Discounts)
	e.FieldStart("total")
	encodeMoney(e, o.Total)
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("updatedAt")
	e.Str(o.UpdatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeLineItem(e *jx.Encoder, item *order.LineItem) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(item.ID)
	e.FieldStart("productId")
	e.Str(item.ProductID)
	e.FieldStart("quantity")
	e.Int(item.Quantity)
	e.FieldStart("unitPrice")
	encodeMoney(e, item.UnitPrice)
	e.FieldStart("lineTotal")
	encodeMoney(e, item.LineTotal)
	e.FieldStart("configuration")
	encodeSnapshot(e, item.Configuration)
	e.ObjEnd()
}

func encodeSnapshot(e *jx.Encoder, s configurator.Snapshot) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(s.ProductID)
	e.FieldStart("productName")
	e.Str(s.ProductName)
	e.FieldStart("basePrice")
	encodeMoney(e, s.BasePrice)
	e.FieldStart("options")
	e.ArrStart()
	for _, o := range s.Options {
		e.ObjStart()
		e.FieldStart("groupId")
		e.Str(o.GroupID)
		e.FieldStart("groupName")
		e.Str(o.GroupName)
		e.FieldStart("valueId")
		e.Str(o.ValueID)
		e.FieldStart("valueName")
		e.Str(o.ValueName)
		e.FieldStart("modifier")
		encodeMoney(e, o.Modifier)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("unitPrice")
	encodeMoney(e, s.UnitPrice)
	e.ObjEnd()
}
