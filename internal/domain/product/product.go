package product

import (
	"strings"

	"github.com/go-faster/errors"
)

// ErrInvalid is returned when a product snapshot cannot be added to a cart.
var ErrInvalid = errors.New("invalid product")

// Product is the catalog view of an item as the client saw it when adding it
// to the cart. Prices are in the smallest currency unit.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	SellerID string `json:"sellerId"`
	Category string `json:"category,omitempty"`
	Image    string `json:"image,omitempty"`
}

// Validate reports whether the product carries the fields a line item needs.
func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.Wrap(ErrInvalid, "id required")
	}
	if p.Price < 0 {
		return errors.Wrapf(ErrInvalid, "negative price for %s", p.ID)
	}
	return nil
}
