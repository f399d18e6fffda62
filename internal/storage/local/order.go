package local

import (
	"context"
	"sync"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/storage/kv"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores all orders as one JSON array under kv.KeyOrders.
type OrderRepository struct {
	store kv.Store

	// mu serializes read-modify-write cycles on the array.
	mu sync.Mutex
}

// NewOrderRepository returns an OrderRepository over store.
func NewOrderRepository(store kv.Store) *OrderRepository {
	return &OrderRepository{store: store}
}

// LoadAll returns every stored order. A missing key yields an empty list.
func (r *OrderRepository) LoadAll(ctx context.Context) ([]order.Order, error) {
	var orders []order.Order
	if _, err := loadJSON(ctx, r.store, kv.KeyOrders, &orders); err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return orders, nil
}

// SaveAll replaces the stored collection.
func (r *OrderRepository) SaveAll(ctx context.Context, orders []order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return saveJSON(ctx, r.store, kv.KeyOrders, orders)
}

// Upsert replaces the order with the same id, or appends it.
func (r *OrderRepository) Upsert(ctx context.Context, o order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders, err := r.LoadAll(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range orders {
		if orders[i].ID == o.ID {
			orders[i] = o
			replaced = true
			break
		}
	}
	if !replaced {
		orders = append(orders, o)
	}
	return saveJSON(ctx, r.store, kv.KeyOrders, orders)
}
