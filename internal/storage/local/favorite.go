package local

import (
	"context"

	"github.com/xenking/storefront/internal/domain/favorite"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/kv"
)

var _ favorite.Repository = (*FavoriteRepository)(nil)

// FavoriteRepository stores each user's favorites under
// "favorites:<userID>".
type FavoriteRepository struct {
	store kv.Store
}

// NewFavoriteRepository returns a FavoriteRepository over store.
func NewFavoriteRepository(store kv.Store) *FavoriteRepository {
	return &FavoriteRepository{store: store}
}

func favoritesKey(userID string) string {
	return kv.KeyFavorites + ":" + userID
}

func (r *FavoriteRepository) Load(ctx context.Context, userID string) ([]product.Product, error) {
	list := []product.Product{}
	if _, err := loadJSON(ctx, r.store, favoritesKey(userID), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *FavoriteRepository) Save(ctx context.Context, userID string, list []product.Product) error {
	return saveJSON(ctx, r.store, favoritesKey(userID), list)
}
