package handler

import (
	"net/http"

	"github.com/xenking/storefront/internal/domain/product"
)

type favoritesResponse struct {
	Favorites []product.Product `json:"favorites"`
}

type favoriteStatusResponse struct {
	ProductID string `json:"productId"`
	Favorite  bool   `json:"favorite"`
}

// ListFavorites returns the caller's liked products.
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	list, err := h.favorites.List(r.Context(), actor(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, favoritesResponse{Favorites: list})
}

// ToggleFavorite likes or unlikes the posted product.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var p product.Product
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	liked, err := h.favorites.Toggle(r.Context(), actor(r).UserID, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, favoriteStatusResponse{ProductID: p.ID, Favorite: liked})
}

// GetFavorite reports whether the product is in the caller's favorites.
func (h *Handler) GetFavorite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("productId")
	liked, err := h.favorites.IsFavorite(r.Context(), actor(r).UserID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, favoriteStatusResponse{ProductID: id, Favorite: liked})
}
