// Package favorite keeps each user's list of liked products.
package favorite

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/xenking/storefront/internal/domain/product"
)

// Repository persists favorites per user.
type Repository interface {
	Load(ctx context.Context, userID string) ([]product.Product, error)
	Save(ctx context.Context, userID string, list []product.Product) error
}

// Service toggles and lists favorites.
type Service struct {
	repo Repository
	mu   sync.Mutex
}

// NewService creates a favorites Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Toggle adds p to the user's favorites, or removes it when already present.
// It returns whether p is a favorite afterwards.
func (s *Service) Toggle(ctx context.Context, userID string, p product.Product) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.repo.Load(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load favorites: %w", err)
	}

	idx := slices.IndexFunc(list, func(f product.Product) bool { return f.ID == p.ID })
	liked := idx < 0
	if liked {
		list = append(list, p)
	} else {
		list = slices.Delete(list, idx, idx+1)
	}

	if err := s.repo.Save(ctx, userID, list); err != nil {
		return false, fmt.Errorf("save favorites: %w", err)
	}
	return liked, nil
}

// IsFavorite reports whether productID is in the user's favorites.
func (s *Service) IsFavorite(ctx context.Context, userID, productID string) (bool, error) {
	list, err := s.repo.Load(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load favorites: %w", err)
	}
	return slices.ContainsFunc(list, func(f product.Product) bool { return f.ID == productID }), nil
}

// List returns the user's favorites in the order they were added.
func (s *Service) List(ctx context.Context, userID string) ([]product.Product, error) {
	list, err := s.repo.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	return list, nil
}
