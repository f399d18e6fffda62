//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	buyerKey  = "integration-buyer-key"
	sellerKey = "integration-seller-key"
	pepper    = "test-pepper-for-integration"
)

var (
	baseURL    string
	httpClient *http.Client

	// voucherAPIDown makes the fake voucher API answer 503.
	voucherAPIDown atomic.Bool
)

// Response types are defined locally to keep the tests black-box.

type healthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Degraded map[string]string `json:"degraded,omitempty"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type productRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	SellerID string `json:"sellerId"`
}

type lineItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	SellerID  string `json:"sellerId"`
}

type cartResponse struct {
	Items     []lineItem `json:"items"`
	Subtotal  int64      `json:"subtotal"`
	ItemCount int        `json:"itemCount"`
}

type voucherResponse struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Fallback bool   `json:"fallback"`
}

type vouchersResponse struct {
	Vouchers []voucherResponse `json:"vouchers"`
	Offline  bool              `json:"offline"`
}

type quoteResponse struct {
	Subtotal     int64  `json:"subtotal"`
	Discount     int64  `json:"discount"`
	Total        int64  `json:"total"`
	VoucherError string `json:"voucherError"`
}

type address struct {
	RecipientName string `json:"recipientName"`
	Phone         string `json:"phone"`
	Detail        string `json:"detail"`
}

type placeOrderRequest struct {
	Address   *address `json:"address"`
	VoucherID string   `json:"voucherId,omitempty"`
}

type orderResponse struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Items          []lineItem `json:"items"`
	Subtotal       int64      `json:"subtotal"`
	DiscountAmount int64      `json:"discountAmount"`
	TotalPrice     int64      `json:"totalPrice"`
	Status         string     `json:"status"`
}

type ordersResponse struct {
	Orders []orderResponse `json:"orders"`
}

// voucherCatalog is what the fake voucher API serves.
const voucherCatalog = `[
	{"id": "v-pct", "code": "SAVE10", "isPercent": true, "discountValue": 10, "maxDiscount": 50000,
		"description": "10% off", "endDate": "2099-01-01T00:00:00Z"},
	{"_id": "v-fix", "code": "FLAT20", "type": "fixed", "value": 20000, "minOrderValue": 100000,
		"description": "20k off", "expirationDate": "2099-01-01"}
]`

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Create coverage output directory for the instrumented binaries.
	coverDir, err := filepath.Abs("coverdir")
	if err != nil {
		log.Fatalf("coverdir path: %v", err)
	}
	if err := os.MkdirAll(coverDir, 0o777); err != nil {
		log.Fatalf("create coverdir: %v", err)
	}

	pg, databaseURL, err := startPostgres(ctx)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer func() {
		if err := pg.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	vouchers := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vouchers/available" {
			http.NotFound(w, r)
			return
		}
		if voucherAPIDown.Load() {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(voucherCatalog))
	}))
	defer vouchers.Close()

	binDir, err := os.MkdirTemp("", "storefront-it")
	if err != nil {
		log.Fatalf("bin dir: %v", err)
	}
	defer os.RemoveAll(binDir)

	apiBin := filepath.Join(binDir, "storefront-api")
	seedBin := filepath.Join(binDir, "seed-db")
	for bin, pkg := range map[string]string{apiBin: "../../cmd/storefront-api", seedBin: "../../cmd/seed-db"} {
		if out, err := exec.CommandContext(ctx, "go", "build", "-cover", "-o", bin, pkg).CombinedOutput(); err != nil {
			log.Fatalf("build %s: %v: %s", pkg, err, out)
		}
	}

	// Seed one buyer and one seller key.
	for _, key := range []struct{ id, key, user, role string }{
		{"buyer", buyerKey, "alice", "buyer"},
		{"seller", sellerKey, "s1", "seller"},
	} {
		out, err := exec.CommandContext(ctx, seedBin,
			"--database-url="+databaseURL,
			"--api-key="+key.key,
			"--api-key-pepper="+pepper,
			"--key-id="+key.id,
			"--user-id="+key.user,
			"--role="+key.role,
		).CombinedOutput()
		if err != nil {
			log.Fatalf("seed-db %s: %v: %s", key.id, err, out)
		}
	}
	log.Printf("seed-db completed")

	addr, err := freeAddr()
	if err != nil {
		log.Fatalf("free port: %v", err)
	}
	baseURL = "http://" + addr
	httpClient = &http.Client{Timeout: 10 * time.Second}

	api := exec.Command(apiBin)
	api.Env = append(os.Environ(),
		"STOREFRONT_ADDR="+addr,
		"STOREFRONT_DATABASE_URL="+databaseURL,
		"STOREFRONT_API_KEY_PEPPER="+pepper,
		"STOREFRONT_VOUCHER_API_BASE_URL="+vouchers.URL,
		"STOREFRONT_VOUCHER_API_PROBE_INTERVAL=200ms",
		"STOREFRONT_RATE_LIMIT_MAX=10000",
		"STOREFRONT_RATE_LIMIT_CHECKOUT=1000",
		"STOREFRONT_GRACEFUL_READINESS_DELAY=0s",
		"OTEL_TRACES_EXPORTER=none",
		"OTEL_METRICS_EXPORTER=none",
		"OTEL_LOGS_EXPORTER=none",
		"GOCOVERDIR="+coverDir,
	)
	api.Stdout = os.Stdout
	api.Stderr = os.Stderr
	if err := api.Start(); err != nil {
		log.Fatalf("start api: %v", err)
	}
	log.Printf("API available at %s", baseURL)

	if err := waitForReady(ctx); err != nil {
		_ = api.Process.Kill()
		log.Fatalf("wait for api: %v", err)
	}

	result := m.Run()

	// Stop the API gracefully so the coverage-instrumented binary flushes
	// coverage data to GOCOVERDIR. app.Run handles SIGINT.
	if err := api.Process.Signal(os.Interrupt); err != nil {
		log.Printf("signal api: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- api.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			log.Printf("api exited: %v", err)
		}
	case <-time.After(30 * time.Second):
		log.Printf("api did not stop, killing")
		_ = api.Process.Kill()
	}

	return result
}

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "storefront",
				"POSTGRES_PASSWORD": "storefront",
				"POSTGRES_DB":       "storefront",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start container: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		return c, "", fmt.Errorf("host: %w", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return c, "", fmt.Errorf("mapped port: %w", err)
	}
	url := fmt.Sprintf("postgres://storefront:storefront@%s:%s/storefront?sslmode=disable", host, port.Port())
	return c, url, nil
}

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.Addr().String(), nil
}

// waitForReady polls /readyz until the API reports ready.
func waitForReady(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for api (last: %s): %w", lastErr, ctx.Err())
		case <-ticker.C:
			resp, err := httpClient.Get(baseURL + "/readyz")
			if err != nil {
				lastErr = err.Error()
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Sprintf("status %d", resp.StatusCode)
		}
	}
}

// HTTP helpers.

func doGet(t *testing.T, path string) *http.Response {
	t.Helper()
	return doRequest(t, http.MethodGet, path, nil, "")
}

func doRequest(t *testing.T, method, path string, body any, apiKey string) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("api_key", apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	return resp
}

// expect performs a request, checks the status, and decodes the body.
func expect[T any](t *testing.T, method, path string, body any, apiKey string, status int) T {
	t.Helper()

	resp := doRequest(t, method, path, body, apiKey)
	defer resp.Body.Close()

	if resp.StatusCode != status {
		e := decodeJSON[errorResponse](t, resp)
		t.Fatalf("%s %s: expected %d, got %d (%s)", method, path, status, resp.StatusCode, e.Message)
	}
	return decodeJSON[T](t, resp)
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	return v
}

// resetCart empties the buyer cart and fills it with the given products.
func resetCart(t *testing.T, products ...productRequest) cartResponse {
	t.Helper()

	c := expect[cartResponse](t, http.MethodDelete, "/api/cart", nil, buyerKey, http.StatusOK)
	for _, p := range products {
		c = expect[cartResponse](t, http.MethodPost, "/api/cart/items", p, buyerKey, http.StatusOK)
	}
	return c
}
