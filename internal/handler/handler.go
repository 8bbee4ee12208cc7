// Package handler exposes the catalog, quoting and order operations as a JSON
// API on net/http.
package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/printshop/internal/domain/catalog"
	"github.com/xenking/printshop/internal/domain/configurator"
	"github.com/xenking/printshop/internal/domain/coupon"
	"github.com/xenking/printshop/internal/domain/order"
	"github.com/xenking/printshop/pkg/httpmiddleware"
)

// maxBodySize limits request bodies.
const maxBodySize = 1 << 20

// Handler serves the API, delegating business logic to the order service
// and product repository.
type Handler struct {
	products     catalog.Repository
	orderService *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products catalog.Repository, orderService *order.Service) *Handler {
	return &Handler{
		products:     products,
		orderService: orderService,
	}
}

// Register adds all API routes to mux. Order routes require an API key and
// admin routes additionally require the admin scope.
func (h *Handler) Register(mux *http.ServeMux, sec *SecurityHandler) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{ref}", h.GetProduct)
	mux.HandleFunc("POST /api/products/{ref}/quote", h.QuoteProduct)

	mux.Handle("POST /api/orders", sec.Require(http.HandlerFunc(h.PlaceOrder)))
	mux.Handle("GET /api/orders/{id}", sec.Require(http.HandlerFunc(h.GetOrder)))

	mux.Handle("PUT /api/admin/orders/{id}/items/{itemId}", sec.RequireAdmin(http.HandlerFunc(h.ReviseItem)))
	mux.Handle("POST /api/admin/orders/{id}/audit", sec.RequireAdmin(http.HandlerFunc(h.AuditOrder)))
	mux.Handle("GET /api/admin/catalog/integrity", sec.RequireAdmin(http.HandlerFunc(h.CatalogIntegrity)))
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// readBody reads the whole request body into a jx decoder.
func readBody(r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(data) > maxBodySize {
		return nil, errors.New("request body too large")
	}
	return jx.DecodeBytes(data), nil
}

func badRequest(w http.ResponseWriter, err error) {
	httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
}

// writeError maps domain errors to API error responses. Unexpected errors are
// logged and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pnfErr *order.ProductNotFoundError
		iqErr  *order.InvalidQuantityError
		selErr *configurator.InvalidSelectionError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		httpmiddleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &pnfErr):
		httpmiddleware.WriteError(w, http.StatusNotFound, pnfErr.Error())
	case errors.Is(err, catalog.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, order.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "order not found")
	case errors.As(err, &iqErr):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.As(err, &selErr):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, selErr.Error())
	case errors.Is(err, coupon.ErrInvalidCoupon):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, "invalid coupon code")
	case errors.Is(err, coupon.ErrCouponExpired):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, coupon.ErrCouponExpired.Error())
	case errors.Is(err, coupon.ErrCouponUsageLimitReached):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, coupon.ErrCouponUsageLimitReached.Error())
	case errors.Is(err, configurator.ErrEmptyOptionGroup):
		// Already logged and counted by the order service.
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "product is misconfigured")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// encodeMoney writes an amount as a JSON number with two decimal places.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(configurator.CentPlaces)))
}

// decodeSelection reads a {"groupId":"valueId"} object. A null selection
// decodes to nil.
func decodeSelection(d *jx.Decoder) (configurator.Selection, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	sel := configurator.Selection{}
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		v, err := d.Str()
		if err != nil {
			return errors.Wrapf(err, "selection %q", key)
		}
		sel[key] = v
		return nil
	}); err != nil {
		return nil, err
	}
	return sel, nil
}
