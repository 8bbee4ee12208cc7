package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/printshop/internal/domain/catalog"
	"github.com/xenking/printshop/internal/domain/configurator"
)

// ListProducts returns every product in the catalog with its option groups.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list products"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range products {
			encodeProduct(e, &products[i])
		}
		e.ArrEnd()
	})
}

// GetProduct returns a single product by slug or ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.orderService.FindProduct(r.Context(), r.PathValue("ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, p)
	})
}

// QuoteProduct prices one unit of a product for the posted selection
// without placing an order.
func (h *Handler) QuoteProduct(w http.ResponseWriter, r *http.Request) {
	d, err := readBody(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	var sel configurator.Selection
	if d.Next() != jx.Invalid {
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "selection":
				s, err := decodeSelection(d)
				sel = s
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			badRequest(w, err)
			return
		}
	}

	res, err := h.orderService.Quote(r.Context(), r.PathValue("ref"), sel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePricedResult(e, res.Price)
	})
}

func encodeProduct(e *jx.Encoder, p *catalog.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("slug")
	e.Str(p.Slug)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("basePrice")
	encodeMoney(e, p.BasePrice)
	e.FieldStart("optionGroups")
	e.ArrStart()
	for _, g := range p.Groups {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(g.ID)
		e.FieldStart("name")
		e.Str(g.Name)
		e.FieldStart("mode")
		e.Str(string(g.Mode))
		e.FieldStart("values")
		e.ArrStart()
		for _, v := range g.Values {
			e.ObjStart()
			e.FieldStart("id")
			e.Str(v.ID)
			e.FieldStart("name")
			e.Str(v.Name)
			e.FieldStart("priceModifier")
			encodeMoney(e, v.PriceModifier)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodePricedResult(e *jx.Encoder, res configurator.PricedResult) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(res.ProductID)
	e.FieldStart("productName")
	e.Str(res.ProductName)
	e.FieldStart("basePrice")
	encodeMoney(e, res.BasePrice)
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range res.Lines {
		e.ObjStart()
		e.FieldStart("groupId")
		e.Str(l.GroupID)
		e.FieldStart("groupName")
		e.Str(l.GroupName)
		e.FieldStart("valueId")
		e.Str(l.ValueID)
		e.FieldStart("valueName")
		e.Str(l.ValueName)
		e.FieldStart("modifier")
		encodeMoney(e, l.Modifier)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("total")
	encodeMoney(e, res.Total)
	e.ObjEnd()
}
