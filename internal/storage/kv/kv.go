// Package kv defines the key-value persistence contract shared by the local
// repositories.
package kv

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
)

// Well-known keys.
const (
	KeyOrders         = "myOrders"
	KeyCachedVouchers = "cachedVouchers"
	KeyFavorites      = "favorites"
)

// ErrStorageUnavailable is returned when the backing store cannot be read or
// written.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrNotFound is returned by GetItem for a missing key.
var ErrNotFound = errors.New("key not found")

// UnavailableError wraps a backend failure for a key.
type UnavailableError struct {
	Op  string
	Key string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s %q: storage unavailable: %v", e.Op, e.Key, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorageUnavailable) match.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// Store is an async string key-value store.
type Store interface {
	GetItem(ctx context.Context, key string) ([]byte, error)
	SetItem(ctx context.Context, key string, value []byte) error
	RemoveItem(ctx context.Context, key string) error
}

var _ Store = (*Memory)(nil)

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

// GetItem returns a copy of the stored value or ErrNotFound.
func (m *Memory) GetItem(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// SetItem stores a copy of value.
func (m *Memory) SetItem(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = append([]byte(nil), value...)
	return nil
}

// RemoveItem deletes key. Missing keys are ignored.
func (m *Memory) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
