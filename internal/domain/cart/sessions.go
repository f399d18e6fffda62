package cart

import "sync"

// Sessions keeps one cart per user.
type Sessions struct {
	mu    sync.Mutex
	carts map[string]*Store
}

// NewSessions returns an empty registry.
func NewSessions() *Sessions {
	return &Sessions{carts: make(map[string]*Store)}
}

// For returns the cart of userID, creating it on first use.
func (s *Sessions) For(userID string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	if !ok {
		c = NewStore()
		s.carts[userID] = c
	}
	return c
}

// Drop forgets the cart of userID.
func (s *Sessions) Drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
}
