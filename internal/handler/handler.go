// Package handler exposes the cart, voucher, order and favorite operations
// over HTTP.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/favorite"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/voucher"
	"github.com/xenking/storefront/internal/storage/kv"
)

// ErrVoucherNotFound is returned when a request names a voucher that is not
// in the current catalog.
var ErrVoucherNotFound = errors.New("voucher not found")

// ErrVoucherInactive is returned when a named voucher exists but is outside
// its validity window.
var ErrVoucherInactive = errors.New("voucher is not active")

const maxBodySize = 1 << 20

// Handler serves the storefront API.
type Handler struct {
	carts     *cart.Sessions
	catalog   *voucher.Catalog
	orders    *order.Service
	favorites *favorite.Service
	now       func() time.Time
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	carts *cart.Sessions,
	catalog *voucher.Catalog,
	orders *order.Service,
	favorites *favorite.Service,
) *Handler {
	return &Handler{
		carts:     carts,
		catalog:   catalog,
		orders:    orders,
		favorites: favorites,
		now:       time.Now,
	}
}

// Register mounts all API routes on mux under /api. Every route requires an
// authenticated actor.
func (h *Handler) Register(mux *http.ServeMux, sec *SecurityHandler) {
	routes := []struct {
		pattern string
		fn      http.HandlerFunc
	}{
		{"GET /api/cart", h.GetCart},
		{"POST /api/cart/items", h.AddCartItem},
		{"PUT /api/cart/items/{productId}", h.UpdateCartItem},
		{"DELETE /api/cart/items/{productId}", h.RemoveCartItem},
		{"DELETE /api/cart", h.ClearCart},
		{"POST /api/cart/quote", h.QuoteCart},
		{"GET /api/vouchers", h.ListVouchers},
		{"POST /api/orders", h.PlaceOrder},
		{"GET /api/orders", h.ListOrders},
		{"GET /api/orders/{id}", h.GetOrder},
		{"POST /api/orders/{id}/cancel", h.CancelOrder},
		{"POST /api/orders/{id}/advance", h.AdvanceOrder},
		{"GET /api/favorites", h.ListFavorites},
		{"GET /api/favorites/{productId}", h.GetFavorite},
		{"POST /api/favorites", h.ToggleFavorite},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, sec.Authenticate(rt.fn))
	}
}

// errorResponse mirrors the JSON error body of every non-2xx response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return nil
}

// actor returns the authenticated actor. Routes are always wrapped by
// SecurityHandler.Authenticate, so a missing actor is a wiring bug.
func actor(r *http.Request) order.Actor {
	a, _ := auth.ActorFromContext(r.Context())
	return a
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var lineErr *pricing.InvalidLineItemError
	switch {
	case errors.As(err, &lineErr),
		errors.Is(err, pricing.ErrVoucherNotApplicable),
		errors.Is(err, pricing.ErrDiscountTooSmall),
		errors.Is(err, ErrVoucherInactive),
		errors.Is(err, order.ErrMissingAddress),
		errors.Is(err, order.ErrMissingUser),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, product.ErrInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, ErrVoucherNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, order.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, kv.ErrStorageUnavailable),
		errors.Is(err, voucher.ErrNetworkUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		if status == http.StatusInternalServerError {
			writeError(w, status, "internal server error")
			return
		}
	}
	writeError(w, status, err.Error())
}
