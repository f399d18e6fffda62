package voucherapi

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/voucher"
)

// DecodeRecords parses a JSON array of vouchers. Decoding is lenient: ids may
// be numbers or strings, numeric fields may be quoted, several field aliases
// used by the backend are accepted, and unknown fields or nulls are skipped.
func DecodeRecords(data []byte) ([]voucher.Record, error) {
	d := jx.DecodeBytes(data)
	var records []voucher.Record
	if err := d.Arr(func(d *jx.Decoder) error {
		r, err := decodeRecord(d)
		if err != nil {
			return err
		}
		records = append(records, r)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode array")
	}
	return records, nil
}

// DecodeRecord parses a single voucher object with the same leniency as
// DecodeRecords.
func DecodeRecord(data []byte) (voucher.Record, error) {
	r, err := decodeRecord(jx.DecodeBytes(data))
	if err != nil {
		return r, errors.Wrap(err, "decode object")
	}
	return r, nil
}

func decodeRecord(d *jx.Decoder) (voucher.Record, error) {
	var (
		r          voucher.Record
		kind       string
		percentSet bool
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		switch string(key) {
		case "id", "_id":
			r.ID, err = decodeString(d)
		case "code":
			r.Code, err = decodeString(d)
		case "description":
			r.Description, err = decodeString(d)
		case "isPercent":
			r.IsPercent, err = decodeBool(d)
			percentSet = true
		case "type":
			kind, err = decodeString(d)
		case "discountValue", "value":
			r.DiscountValue, err = decodeInt(d)
		case "minPurchase", "minOrderValue":
			r.MinPurchase, err = decodeInt(d)
		case "maxDiscount":
			r.MaxDiscount, err = decodeInt(d)
		case "startDate":
			r.StartDate, err = decodeTime(d)
		case "endDate", "expirationDate":
			r.EndDate, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return r, err
	}
	if !percentSet {
		switch strings.ToLower(kind) {
		case "percent", "percentage":
			r.IsPercent = true
		}
	}
	return r, nil
}

func decodeString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", d.Skip()
	}
}

func decodeInt(d *jx.Decoder) (int64, error) {
	switch d.Next() {
	case jx.Number:
		f, err := d.Float64()
		if err != nil {
			return 0, err
		}
		return roundInt(f), nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, nil
		}
		return roundInt(f), nil
	default:
		return 0, d.Skip()
	}
}

// roundInt rounds f to the nearest int64, saturating values outside the
// int64 range. NaN yields 0.
func roundInt(f float64) int64 {
	const limit = 1 << 63
	switch r := math.Round(f); {
	case math.IsNaN(r):
		return 0
	case r >= limit:
		return math.MaxInt64
	case r < -limit:
		return math.MinInt64
	default:
		return int64(r)
	}
}

func decodeBool(d *jx.Decoder) (bool, error) {
	switch d.Next() {
	case jx.Bool:
		return d.Bool()
	case jx.Number:
		f, err := d.Float64()
		return f != 0, err
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return false, err
		}
		b, _ := strconv.ParseBool(strings.TrimSpace(s))
		return b, nil
	default:
		return false, d.Skip()
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// decodeTime accepts RFC 3339 strings, bare dates and epoch milliseconds.
// Unparseable values are treated as absent.
func decodeTime(d *jx.Decoder) (time.Time, error) {
	switch d.Next() {
	case jx.Number:
		f, err := d.Float64()
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(roundInt(f)).UTC(), nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return time.Time{}, err
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, nil
	default:
		return time.Time{}, d.Skip()
	}
}
