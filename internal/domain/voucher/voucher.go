package voucher

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrNetworkUnavailable is returned by a Source when the remote catalog
// cannot be reached.
var ErrNetworkUnavailable = errors.New("network unavailable")

const (
	// FallbackCode is the identifier and code of the offline voucher.
	FallbackCode = "SHOPEE_VOUCHER"
	// FallbackValue is the fixed discount of the offline voucher.
	FallbackValue int64 = 10000
	// MaxValue bounds DiscountValue after sanitizing.
	MaxValue int64 = 500000
	// DefaultValidity applies when a record has no end date.
	DefaultValidity = 30 * 24 * time.Hour

	defaultDescription = "Storefront promotion"
	generatedIDPrefix  = "generated_"
	generatedCodeLen   = 6
)

// Voucher is a sanitized promotion offer.
type Voucher struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	IsPercent     bool      `json:"isPercent"`
	DiscountValue int64     `json:"discountValue"`
	MinPurchase   int64     `json:"minPurchase"`
	MaxDiscount   int64     `json:"maxDiscount,omitempty"`
	Description   string    `json:"description"`
	StartDate     time.Time `json:"startDate,omitzero"`
	EndDate       time.Time `json:"endDate,omitzero"`
	// Fallback marks the offline voucher served when the remote catalog is
	// unreachable.
	Fallback bool `json:"fallback,omitempty"`
}

// Expired reports whether the voucher end date has passed.
func (v Voucher) Expired(now time.Time) bool {
	return !v.EndDate.IsZero() && now.After(v.EndDate)
}

// Active reports whether the voucher has started and not expired.
func (v Voucher) Active(now time.Time) bool {
	if !v.StartDate.IsZero() && now.Before(v.StartDate) {
		return false
	}
	return !v.Expired(now)
}

// Record is a voucher as delivered by the remote catalog. Zero values mean
// the field was absent.
type Record struct {
	ID            string
	Code          string
	IsPercent     bool
	DiscountValue int64
	MinPurchase   int64
	MaxDiscount   int64
	Description   string
	StartDate     time.Time
	EndDate       time.Time
}

// Fallback returns the voucher served while offline.
func Fallback() Voucher {
	return Voucher{
		ID:            FallbackCode,
		Code:          FallbackCode,
		IsPercent:     false,
		DiscountValue: FallbackValue,
		Description:   "First order discount",
		Fallback:      true,
	}
}

// Sanitize fills in missing fields and clamps the discount value.
func Sanitize(r Record, now time.Time) Voucher {
	v := Voucher{
		ID:            strings.TrimSpace(r.ID),
		Code:          strings.TrimSpace(r.Code),
		IsPercent:     r.IsPercent,
		DiscountValue: min(max(r.DiscountValue, 0), MaxValue),
		MinPurchase:   max(r.MinPurchase, 0),
		MaxDiscount:   max(r.MaxDiscount, 0),
		Description:   strings.TrimSpace(r.Description),
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
	}
	if v.ID == "" {
		v.ID = generatedIDPrefix + uuid.NewString()
	}
	if v.Code == "" {
		v.Code = "SHOPEE_" + randomCode()
	}
	if v.Description == "" {
		v.Description = defaultDescription
	}
	if v.EndDate.IsZero() {
		v.EndDate = now.Add(DefaultValidity)
	}
	return v
}

func randomCode() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:generatedCodeLen])
}

// Sort orders vouchers percent-first, then by descending discount value.
// Ties keep their input order.
func Sort(list []Voucher) {
	slices.SortStableFunc(list, func(a, b Voucher) int {
		if a.IsPercent != b.IsPercent {
			if a.IsPercent {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.DiscountValue, a.DiscountValue)
	})
}

// SanitizeAll sanitizes and sorts a batch of records.
func SanitizeAll(records []Record, now time.Time) []Voucher {
	out := make([]Voucher, 0, len(records))
	for _, r := range records {
		out = append(out, Sanitize(r, now))
	}
	Sort(out)
	return out
}

// Available returns the vouchers active at now, preserving order.
func Available(list []Voucher, now time.Time) []Voucher {
	out := make([]Voucher, 0, len(list))
	for _, v := range list {
		if v.Active(now) {
			out = append(out, v)
		}
	}
	return out
}
