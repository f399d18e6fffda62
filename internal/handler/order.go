package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/voucher"
)

type placeOrderRequest struct {
	Address   *order.Address `json:"address"`
	VoucherID string         `json:"voucherId,omitempty"`
}

type ordersResponse struct {
	Orders []order.Order `json:"orders"`
}

// PlaceOrder checks out the caller's cart. The voucher discount is
// recomputed from the current cart; a voucher that no longer applies
// rejects the checkout so the client can re-quote.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a := actor(r)
	c := h.carts.For(a.UserID)

	// Checkout validation errors take precedence over voucher errors, so
	// the voucher is only resolved for an otherwise placeable order.
	var (
		v        *voucher.Voucher
		discount int64
	)
	if req.VoucherID != "" && req.Address.Complete() && c.Len() > 0 {
		var err error
		if v, err = h.lookupVoucher(r.Context(), req.VoucherID); err != nil {
			h.fail(w, r, err)
			return
		}
		totals, err := pricing.Quote(c.Snapshot(), v)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		discount = totals.Discount
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		Cart:     c,
		Address:  req.Address,
		Voucher:  v,
		Discount: discount,
		UserID:   a.UserID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// ListOrders lists the caller's orders. Sellers see orders containing their
// products unless they pass role=buyer. Storage failures degrade to an empty
// list.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	role := a.Role
	if order.Role(r.URL.Query().Get("role")) == order.RoleBuyer {
		role = order.RoleBuyer
	}

	orders, err := h.orders.ListForUser(r.Context(), a.UserID, role)
	if err != nil {
		zctx.From(r.Context()).Warn("Listing orders failed, returning empty list", zap.Error(err))
		orders = []order.Order{}
	}
	writeJSON(w, http.StatusOK, ordersResponse{Orders: orders})
}

// GetOrder returns one order visible to the caller.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	a := actor(r)
	if !o.VisibleTo(a) && !o.VisibleTo(order.Actor{UserID: a.UserID, Role: order.RoleBuyer}) {
		h.fail(w, r, order.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// CancelOrder cancels an order on behalf of the caller. Sellers cancelling
// their own purchases pass role=buyer.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	if order.Role(r.URL.Query().Get("role")) == order.RoleBuyer {
		a.Role = order.RoleBuyer
	}

	o, err := h.orders.Cancel(r.Context(), r.PathValue("id"), a)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// AdvanceOrder moves an order one step along the seller path.
func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Advance(r.Context(), r.PathValue("id"), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
