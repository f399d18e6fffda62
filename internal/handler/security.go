package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

var errUnauthenticated = errors.New("unauthorized")

// SecurityHandler authenticates API requests via HMAC-SHA256 hashed API
// keys and attaches the bound actor to the request context.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, as stored in the
// api_keys table.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// HandleAPIKey resolves an API key to its identity, comparing hashes in
// constant time.
func (s *SecurityHandler) HandleAPIKey(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, errUnauthenticated
	}
	hexHash := HashKey(s.pepper, key)

	info, err := s.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		return nil, errors.Wrap(errUnauthenticated, err.Error())
	}

	// The lookup matched, but compare anyway in case the repository
	// returned a different row.
	computed, _ := hex.DecodeString(hexHash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, errUnauthenticated
	}
	if !info.Role.Valid() || info.UserID == "" {
		return nil, errors.Wrapf(errUnauthenticated, "key %s has no usable identity", info.ID)
	}
	return info, nil
}

// Authenticate rejects requests without a valid api_key header with 401.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := s.HandleAPIKey(r.Context(), r.Header.Get(httpmiddleware.APIKeyHeader))
		if err != nil {
			zctx.From(r.Context()).Debug("Authentication failed", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := auth.WithActor(r.Context(), info.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
