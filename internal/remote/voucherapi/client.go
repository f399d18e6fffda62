// Package voucherapi is the HTTP client for the remote voucher catalog.
package voucherapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/voucher"
)

const (
	availablePath   = "/vouchers/available"
	maxResponseSize = 4 << 20
	// DefaultTimeout bounds a single catalog request.
	DefaultTimeout = 10 * time.Second
)

var _ voucher.Source = (*Client)(nil)

// Config configures a Client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Client fetches vouchers from GET {BaseURL}/vouchers/available.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client with an instrumented transport.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
	}
}

// FetchAvailable returns the raw voucher records. Transport failures and
// non-2xx responses wrap voucher.ErrNetworkUnavailable.
func (c *Client) FetchAvailable(ctx context.Context) ([]voucher.Record, error) {
	resp, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", voucher.ErrNetworkUnavailable, err)
	}

	records, err := DecodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("decoding vouchers: %w", err)
	}
	return records, nil
}

// Ping reports whether the catalog endpoint answers with a 2xx status.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.get(ctx)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
	return resp.Body.Close()
}

func (c *Client) get(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+availablePath, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", voucher.ErrNetworkUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d", voucher.ErrNetworkUnavailable, resp.StatusCode)
	}
	return resp, nil
}
