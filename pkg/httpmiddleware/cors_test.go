package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		cfg        CORSConfig
		method     string
		origin     string
		preflight  bool
		wantOrigin string
		wantStatus int
		wantCreds  bool
	}{
		{name: "no origin header", cfg: CORSConfig{AllowOrigins: []string{"https://seller.example.com"}}, method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "wildcard", cfg: CORSConfig{}, method: http.MethodGet, origin: "https://any.example.com", wantOrigin: "*", wantStatus: http.StatusOK},
		{name: "listed origin case-insensitive", cfg: CORSConfig{AllowOrigins: []string{"https://Seller.example.com"}}, method: http.MethodGet, origin: "https://seller.example.com", wantOrigin: "https://Seller.example.com", wantStatus: http.StatusOK},
		{name: "unlisted origin", cfg: CORSConfig{AllowOrigins: []string{"https://seller.example.com"}}, method: http.MethodGet, origin: "https://evil.example.com", wantStatus: http.StatusOK},
		{name: "preflight", cfg: CORSConfig{AllowOrigins: []string{"https://seller.example.com"}, MaxAge: 600}, method: http.MethodOptions, origin: "https://seller.example.com", preflight: true, wantOrigin: "https://seller.example.com", wantStatus: http.StatusNoContent},
		{name: "subdomain wildcard", cfg: CORSConfig{AllowOrigins: []string{"https://*.shop.example"}}, method: http.MethodGet, origin: "https://Seller.shop.example", wantOrigin: "https://Seller.shop.example", wantStatus: http.StatusOK},
		{name: "subdomain wildcard excludes apex", cfg: CORSConfig{AllowOrigins: []string{"https://*.shop.example"}}, method: http.MethodGet, origin: "https://shop.example", wantStatus: http.StatusOK},
		{name: "subdomain wildcard checks scheme", cfg: CORSConfig{AllowOrigins: []string{"https://*.shop.example"}}, method: http.MethodGet, origin: "http://seller.shop.example", wantStatus: http.StatusOK},
		{name: "credentials echo origin", cfg: CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true}, method: http.MethodGet, origin: "https://buyer.example.com", wantOrigin: "https://buyer.example.com", wantStatus: http.StatusOK, wantCreds: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(tt.cfg)(okHandler())
			req := httptest.NewRequest(tt.method, "/api/vouchers", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantCreds {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
			if tt.preflight {
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), APIKeyHeader)
				assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
			}
			if tt.wantOrigin != "" && !tt.preflight {
				assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID")
			}
		})
	}
}
