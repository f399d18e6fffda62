package auth

import (
	"context"

	"github.com/xenking/storefront/internal/domain/order"
)

// APIKeyInfo holds the identity bound to a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Role    order.Role
}

// Actor returns the order actor the key authenticates as.
func (i *APIKeyInfo) Actor() order.Actor {
	return order.Actor{UserID: i.UserID, Role: i.Role}
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type actorKey struct{}

// WithActor stores the authenticated actor in ctx.
func WithActor(ctx context.Context, a order.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (order.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(order.Actor)
	return a, ok
}
