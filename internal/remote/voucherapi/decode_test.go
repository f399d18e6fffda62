package voucherapi

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/voucher"
)

func TestDecodeRecord(t *testing.T) {
	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want voucher.Record
	}{
		{
			name: "canonical",
			in: `{"id":"v1","code":"SAVE","isPercent":true,"discountValue":15,"minPurchase":0,
				"maxDiscount":30000,"description":"Save","startDate":"2025-06-01T00:00:00Z","endDate":"2025-07-01T00:00:00Z"}`,
			want: voucher.Record{
				ID: "v1", Code: "SAVE", IsPercent: true, DiscountValue: 15, MaxDiscount: 30000,
				Description: "Save", StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), EndDate: end,
			},
		},
		{
			name: "aliases and type",
			in:   `{"_id":7,"value":5000,"minOrderValue":"20000","type":"percentage","expirationDate":"2025-07-01"}`,
			want: voucher.Record{ID: "7", IsPercent: true, DiscountValue: 5000, MinPurchase: 20000, EndDate: end},
		},
		{
			name: "explicit isPercent wins over type",
			in:   `{"type":"percent","isPercent":false,"discountValue":1}`,
			want: voucher.Record{DiscountValue: 1},
		},
		{
			name: "string and numeric booleans",
			in:   `{"isPercent":"true","discountValue":"12.6"}`,
			want: voucher.Record{IsPercent: true, DiscountValue: 13},
		},
		{
			name: "epoch milliseconds",
			in:   `{"endDate":1751328000000}`,
			want: voucher.Record{EndDate: end},
		},
		{
			name: "nulls and unknown fields are skipped",
			in:   `{"id":null,"code":null,"extra":{"nested":[1,2]},"discountValue":null}`,
			want: voucher.Record{},
		},
		{
			name: "out of range numbers saturate",
			in:   `{"discountValue":1e30,"minPurchase":"1e400","maxDiscount":-1e30}`,
			want: voucher.Record{DiscountValue: math.MaxInt64, MinPurchase: math.MaxInt64, MaxDiscount: math.MinInt64},
		},
		{
			name: "unparseable values treated as absent",
			in:   `{"discountValue":"lots","endDate":"someday"}`,
			want: voucher.Record{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRecord([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRecord_HugeValuesSanitized(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	rec, err := DecodeRecord([]byte(`{"id":"huge","discountValue":1e30,"minPurchase":1e30}`))
	require.NoError(t, err)

	v := voucher.Sanitize(rec, now)
	assert.Equal(t, voucher.MaxValue, v.DiscountValue)
	assert.Equal(t, int64(math.MaxInt64), v.MinPurchase, "a huge minimum stays unreachable")
}

func TestRoundInt(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{12.4, 12},
		{12.5, 13},
		{-2.5, -3},
		{math.NaN(), 0},
		{math.Inf(1), math.MaxInt64},
		{math.Inf(-1), math.MinInt64},
		{9.223372036854775807e18, math.MaxInt64},
		{-9.223372036854775808e18, math.MinInt64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, roundInt(tt.in), "roundInt(%v)", tt.in)
	}
}

func TestDecodeRecords(t *testing.T) {
	records, err := DecodeRecords([]byte(`[{"id":"a"},{"id":"b"}]`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "b", records[1].ID)

	records, err = DecodeRecords([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = DecodeRecords([]byte(`[{"id":`))
	require.Error(t, err)
}
