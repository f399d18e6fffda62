package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/voucher"
)

type cartResponse struct {
	Items     []pricing.LineItem `json:"items"`
	Subtotal  int64              `json:"subtotal"`
	ItemCount int                `json:"itemCount"`
}

type updateCartItemRequest struct {
	Quantity *int             `json:"quantity,omitempty"`
	Variant  *pricing.Variant `json:"variant,omitempty"`
}

type quoteRequest struct {
	VoucherID string `json:"voucherId"`
}

type quoteResponse struct {
	pricing.Totals
	Voucher      *voucher.Voucher `json:"voucher,omitempty"`
	VoucherError string           `json:"voucherError,omitempty"`
}

func (h *Handler) cartFor(r *http.Request) *cart.Store {
	return h.carts.For(actor(r).UserID)
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, c *cart.Store) {
	subtotal, err := c.Total()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{
		Items:     c.Snapshot(),
		Subtotal:  subtotal,
		ItemCount: c.ItemCount(),
	})
}

// GetCart returns the caller's cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, r, h.cartFor(r))
}

// AddCartItem adds one unit of the posted product.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var p product.Product
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c := h.cartFor(r)
	if err := c.Add(p); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, c)
}

// UpdateCartItem sets the quantity and/or variant of a cart entry.
// Quantities below 1 are ignored.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := r.PathValue("productId")
	c := h.cartFor(r)
	if !containsItem(c, id) {
		writeError(w, http.StatusNotFound, "item not in cart")
		return
	}
	if req.Quantity != nil {
		c.SetQuantity(id, *req.Quantity)
	}
	if req.Variant != nil {
		c.SetVariant(id, *req.Variant)
	}
	h.writeCart(w, r, c)
}

func containsItem(c *cart.Store, productID string) bool {
	for _, item := range c.Snapshot() {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// RemoveCartItem deletes a cart entry.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c := h.cartFor(r)
	c.Remove(r.PathValue("productId"))
	h.writeCart(w, r, c)
}

// ClearCart empties the caller's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c := h.cartFor(r)
	c.Clear()
	h.writeCart(w, r, c)
}

// QuoteCart prices the cart with an optional voucher. A voucher that cannot
// be applied is reported in voucherError while the undiscounted totals are
// still returned.
func (h *Handler) QuoteCart(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := h.lookupVoucher(r.Context(), req.VoucherID)
	var voucherErr error
	switch {
	case errors.Is(err, ErrVoucherInactive):
		v, voucherErr = nil, err
	case err != nil:
		h.fail(w, r, err)
		return
	}

	totals, err := pricing.Quote(h.cartFor(r).Snapshot(), v)
	resp := quoteResponse{Totals: totals, Voucher: v}
	if voucherErr != nil {
		resp.VoucherError = voucherErr.Error()
	}
	if err != nil {
		var lineErr *pricing.InvalidLineItemError
		if errors.As(err, &lineErr) {
			h.fail(w, r, err)
			return
		}
		resp.Voucher = nil
		resp.VoucherError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// lookupVoucher resolves a voucher id against the current catalog, loading
// it first if nothing was fetched yet. An empty id means no voucher, and a
// voucher outside its validity window is rejected.
func (h *Handler) lookupVoucher(ctx context.Context, id string) (*voucher.Voucher, error) {
	if id == "" {
		return nil, nil
	}
	v, ok := h.catalog.Find(id)
	if !ok && len(h.catalog.Current()) == 0 {
		if _, err := h.catalog.FetchAvailable(ctx); err != nil {
			return nil, err
		}
		v, ok = h.catalog.Find(id)
	}
	if !ok {
		return nil, errors.Wrapf(ErrVoucherNotFound, "voucher %s", id)
	}
	if !v.Active(h.now()) {
		return nil, errors.Wrapf(ErrVoucherInactive, "voucher %s", id)
	}
	return &v, nil
}
