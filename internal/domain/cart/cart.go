// Package cart holds the per-session shopping cart.
package cart

import (
	"slices"
	"sync"

	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// Store maps product ids to line items and remembers insertion order for
// listing. It is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	items map[string]*pricing.LineItem
	order []string
}

// NewStore returns an empty cart.
func NewStore() *Store {
	return &Store{items: make(map[string]*pricing.LineItem)}
}

// Add puts one unit of p in the cart, or increments the quantity when the
// product is already present.
func (s *Store) Add(p product.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.items[p.ID]; ok {
		item.Quantity++
		return nil
	}
	s.items[p.ID] = &pricing.LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  1,
		SellerID:  p.SellerID,
		Image:     p.Image,
	}
	s.order = append(s.order, p.ID)
	return nil
}

// Remove deletes the entry for productID. Absent ids are ignored.
func (s *Store) Remove(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[productID]; !ok {
		return
	}
	delete(s.items, productID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == productID })
}

// SetQuantity replaces the quantity of an existing entry. Quantities below 1
// and unknown ids leave the cart unchanged and return false.
func (s *Store) SetQuantity(productID string, qty int) bool {
	if qty < 1 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[productID]
	if !ok {
		return false
	}
	item.Quantity = qty
	return true
}

// SetVariant records the color/size choice for an existing entry.
func (s *Store) SetVariant(productID string, v pricing.Variant) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[productID]
	if !ok {
		return false
	}
	item.Variant = &v
	return true
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.items)
	s.order = s.order[:0]
}

// Total returns the cart subtotal.
func (s *Store) Total() (int64, error) {
	return pricing.ComputeSubtotal(s.Snapshot())
}

// ItemCount returns the sum of quantities.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, item := range s.items {
		n += item.Quantity
	}
	return n
}

// Len returns the number of distinct products.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Snapshot returns deep copies of the line items in insertion order. Later
// cart mutations do not affect the returned slice.
func (s *Store) Snapshot() []pricing.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]pricing.LineItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].Clone())
	}
	return out
}
