package handler

import (
	"net/http"

	"github.com/xenking/storefront/internal/domain/voucher"
)

type vouchersResponse struct {
	Vouchers []voucher.Voucher `json:"vouchers"`
	Offline  bool              `json:"offline"`
}

// ListVouchers fetches the current catalog. When the remote catalog is
// unreachable the single offline voucher is returned with offline=true.
func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.FetchAvailable(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	offline := len(list) == 1 && list[0].Fallback
	writeJSON(w, http.StatusOK, vouchersResponse{
		Vouchers: voucher.Available(list, h.now()),
		Offline:  offline,
	})
}
