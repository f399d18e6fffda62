package voucherapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/voucher"
)

func TestClient_FetchAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vouchers/available", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": "v1", "code": "SAVE10", "isPercent": true, "discountValue": 10, "maxDiscount": 50000},
			{"_id": 42, "code": "FIX", "type": "fixed", "value": "20000", "minOrderValue": 100000}
		]`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/"})
	records, err := c.FetchAvailable(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, voucher.Record{ID: "v1", Code: "SAVE10", IsPercent: true, DiscountValue: 10, MaxDiscount: 50000}, records[0])
	assert.Equal(t, voucher.Record{ID: "42", Code: "FIX", DiscountValue: 20000, MinPurchase: 100000}, records[1])

	require.NoError(t, c.Ping(context.Background()))
}

func TestClient_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL})
			_, err := c.FetchAvailable(context.Background())
			require.ErrorIs(t, err, voucher.ErrNetworkUnavailable)
			require.ErrorIs(t, c.Ping(context.Background()), voucher.ErrNetworkUnavailable)
		})
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.FetchAvailable(context.Background())
	require.ErrorIs(t, err, voucher.ErrNetworkUnavailable)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.FetchAvailable(context.Background())
	require.ErrorIs(t, err, voucher.ErrNetworkUnavailable)
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not": "an array"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).FetchAvailable(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, voucher.ErrNetworkUnavailable)
}
