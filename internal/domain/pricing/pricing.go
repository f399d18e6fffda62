// Package pricing implements the cart arithmetic: subtotals, voucher
// discounts and totals. All amounts are integers in the smallest currency
// unit.
package pricing

import (
	"fmt"
	"math"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/voucher"
)

const (
	// MinDiscount is the smallest discount worth applying. Anything below is
	// rejected with ErrDiscountTooSmall.
	MinDiscount int64 = 1000
	// PercentCeiling caps every percentage voucher at this share of the
	// subtotal regardless of its configured value.
	PercentCeiling int64 = 50
)

// Sentinel errors for pricing.
var (
	ErrInvalidLineItem      = errors.New("invalid line item")
	ErrVoucherNotApplicable = errors.New("voucher not applicable")
	ErrDiscountTooSmall     = errors.New("discount too small")
)

// InvalidLineItemError identifies the offending line item.
type InvalidLineItemError struct {
	ProductID string
	Quantity  int
	UnitPrice int64
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("invalid line item %s: quantity %d, unit price %d", e.ProductID, e.Quantity, e.UnitPrice)
}

// Is makes errors.Is(err, ErrInvalidLineItem) match.
func (e *InvalidLineItemError) Is(target error) bool {
	return target == ErrInvalidLineItem
}

// Variant is the color/size selection for a line item.
type Variant struct {
	Color string `json:"color,omitempty"`
	Size  string `json:"size,omitempty"`
}

// LineItem is a product snapshot plus the quantity in the cart.
type LineItem struct {
	ProductID string   `json:"productId"`
	Name      string   `json:"name"`
	UnitPrice int64    `json:"unitPrice"`
	Quantity  int      `json:"quantity"`
	SellerID  string   `json:"sellerId"`
	Image     string   `json:"image,omitempty"`
	Variant   *Variant `json:"variant,omitempty"`
}

// Clone returns a deep copy of the item.
func (li LineItem) Clone() LineItem {
	if li.Variant != nil {
		v := *li.Variant
		li.Variant = &v
	}
	return li
}

// Validate checks quantity and price.
func (li LineItem) Validate() error {
	if li.Quantity < 1 || li.UnitPrice < 0 {
		return li.invalid()
	}
	return nil
}

func (li LineItem) invalid() *InvalidLineItemError {
	return &InvalidLineItemError{ProductID: li.ProductID, Quantity: li.Quantity, UnitPrice: li.UnitPrice}
}

// Totals is the derived pricing summary of a cart.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

// ComputeSubtotal sums unitPrice*quantity over all items. An item whose
// amount does not fit in int64, alone or added to the running sum, is
// rejected as invalid.
func ComputeSubtotal(items []LineItem) (int64, error) {
	var sum int64
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return 0, err
		}
		qty := int64(item.Quantity)
		if item.UnitPrice > math.MaxInt64/qty {
			return 0, item.invalid()
		}
		amount := item.UnitPrice * qty
		if amount > math.MaxInt64-sum {
			return 0, item.invalid()
		}
		sum += amount
	}
	return sum, nil
}

// ComputeDiscount returns the discount the voucher grants on subtotal.
//
// Percentage vouchers are clamped to [0,100], capped by MaxDiscount when set,
// and never exceed PercentCeiling percent of the subtotal. Fixed vouchers
// require MinPurchase and never exceed the subtotal. Results below
// MinDiscount are rejected.
func ComputeDiscount(subtotal int64, v *voucher.Voucher) (int64, error) {
	if v == nil {
		return 0, nil
	}

	var discount int64
	if v.IsPercent {
		pct := min(max(v.DiscountValue, 0), 100)
		base := decimal.NewFromInt(subtotal)
		discount = base.Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)).Floor().IntPart()
		if v.MaxDiscount > 0 {
			discount = min(discount, v.MaxDiscount)
		}
		ceiling := base.Mul(decimal.NewFromInt(PercentCeiling)).Div(decimal.NewFromInt(100)).Floor().IntPart()
		discount = min(discount, ceiling)
	} else {
		if subtotal < v.MinPurchase {
			return 0, errors.Wrapf(ErrVoucherNotApplicable, "subtotal %d below minimum purchase %d", subtotal, v.MinPurchase)
		}
		discount = min(max(v.DiscountValue, 0), subtotal)
	}

	if discount < MinDiscount {
		return 0, errors.Wrapf(ErrDiscountTooSmall, "discount %d below %d", discount, MinDiscount)
	}
	return discount, nil
}

// ComputeTotal returns subtotal minus discount, floored at zero.
func ComputeTotal(subtotal, discount int64) int64 {
	return max(subtotal-discount, 0)
}

// Quote prices items with an optional voucher. When the voucher cannot be
// applied the undiscounted totals are returned along with the voucher error,
// so callers can keep displaying the unchanged total.
func Quote(items []LineItem, v *voucher.Voucher) (Totals, error) {
	subtotal, err := ComputeSubtotal(items)
	if err != nil {
		return Totals{}, err
	}

	t := Totals{Subtotal: subtotal, Total: subtotal}
	discount, err := ComputeDiscount(subtotal, v)
	if err != nil {
		return t, err
	}
	t.Discount = discount
	t.Total = ComputeTotal(subtotal, discount)
	return t, nil
}
