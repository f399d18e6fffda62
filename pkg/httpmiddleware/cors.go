package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

var defaultExposeHeaders = []string{
	RequestIDHeader,
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"Retry-After",
}

// CORSConfig configures the CORS middleware behaviour.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to make cross-origin requests.
	// Empty or "*" allows every origin. An entry such as
	// "https://*.shop.example" allows any subdomain of shop.example.
	AllowOrigins []string

	// AllowMethods defaults to the methods the storefront API serves.
	AllowMethods []string

	// AllowHeaders defaults to Content-Type, the API key header and
	// X-Request-ID.
	AllowHeaders []string

	// ExposeHeaders defaults to the request id and rate limit headers.
	ExposeHeaders []string

	// AllowCredentials replaces the wildcard origin by the request origin.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header; a negative value sends "0".
	MaxAge int
}

// corsPolicy is CORSConfig resolved once at construction.
type corsPolicy struct {
	any         bool
	echo        bool
	exact       map[string]string // lowercase -> configured
	suffixes    []originSuffix
	credentials bool

	methods string
	headers string
	expose  string
	maxAge  string
}

type originSuffix struct {
	scheme string // "https://"
	domain string // ".shop.example"
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		any:         len(cfg.AllowOrigins) == 0,
		exact:       make(map[string]string, len(cfg.AllowOrigins)),
		credentials: cfg.AllowCredentials,
		methods:     joinOr(cfg.AllowMethods, "GET, POST, PUT, DELETE, OPTIONS"),
		headers:     joinOr(cfg.AllowHeaders, "Content-Type, "+APIKeyHeader+", "+RequestIDHeader),
		expose:      joinOr(cfg.ExposeHeaders, strings.Join(defaultExposeHeaders, ", ")),
	}
	for _, o := range cfg.AllowOrigins {
		switch scheme, rest, ok := strings.Cut(o, "://*."); {
		case o == "*":
			p.any = true
		case ok:
			p.suffixes = append(p.suffixes, originSuffix{
				scheme: strings.ToLower(scheme) + "://",
				domain: "." + strings.ToLower(rest),
			})
		default:
			p.exact[strings.ToLower(o)] = o
		}
	}
	if p.credentials && p.any {
		p.any, p.echo = false, true
	}
	switch {
	case cfg.MaxAge > 0:
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		p.maxAge = "0"
	}
	return p
}

func joinOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not allowed.
func (p *corsPolicy) allowOrigin(origin string) string {
	if p.any {
		return "*"
	}
	lower := strings.ToLower(origin)
	if configured, ok := p.exact[lower]; ok {
		return configured
	}
	for _, s := range p.suffixes {
		host, ok := strings.CutPrefix(lower, s.scheme)
		if ok && len(host) > len(s.domain) && strings.HasSuffix(host, s.domain) {
			return origin
		}
	}
	if p.echo {
		return origin
	}
	return ""
}

func (p *corsPolicy) preflight(w http.ResponseWriter, origin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	// Disallowed origins get a bare 204 without CORS headers.
	if allow := p.allowOrigin(origin); allow != "" {
		h.Set("Access-Control-Allow-Origin", allow)
		h.Set("Access-Control-Allow-Methods", p.methods)
		h.Set("Access-Control-Allow-Headers", p.headers)
		if p.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if p.maxAge != "" {
			h.Set("Access-Control-Max-Age", p.maxAge)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *corsPolicy) actual(w http.ResponseWriter, origin string) {
	h := w.Header()
	if !p.any {
		h.Add("Vary", "Origin")
	}
	if origin == "" {
		return
	}
	if allow := p.allowOrigin(origin); allow != "" {
		h.Set("Access-Control-Allow-Origin", allow)
		if p.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		h.Set("Access-Control-Expose-Headers", p.expose)
	}
}

// CORS handles Cross-Origin Resource Sharing for the buyer and seller web
// front ends. Origins match case-insensitively and are echoed in their
// configured case. Preflights are answered directly with 204.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, origin)
				return
			}
			p.actual(w, origin)
			next.ServeHTTP(w, r)
		})
	}
}
