package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/storage/kv"
)

const (
	getItemSQL    = `SELECT value FROM kv_items WHERE key = $1`
	setItemSQL    = `INSERT INTO kv_items (key, value, updated_at) VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	removeItemSQL = `DELETE FROM kv_items WHERE key = $1`
)

var _ kv.Store = (*KVStore)(nil)

// KVStore implements kv.Store on the kv_items table.
type KVStore struct {
	pool *pgxpool.Pool
}

// NewKVStore returns a KVStore that uses the given pool.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

// GetItem returns the value stored at key, or kv.ErrNotFound.
func (s *KVStore) GetItem(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := s.pool.QueryRow(ctx, getItemSQL, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("getting item %q: %w", key, err)
	}
	return value, nil
}

// SetItem upserts value at key.
func (s *KVStore) SetItem(ctx context.Context, key string, value []byte) error {
	if _, err := s.pool.Exec(ctx, setItemSQL, key, value); err != nil {
		return fmt.Errorf("setting item %q: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key.
func (s *KVStore) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, removeItemSQL, key); err != nil {
		return fmt.Errorf("removing item %q: %w", key, err)
	}
	return nil
}
