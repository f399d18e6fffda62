package favorite

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockRepo struct {
	mu      sync.Mutex
	byUser  map[string][]product.Product
	loadErr error
	saveErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{byUser: make(map[string][]product.Product)}
}

func (m *mockRepo) Load(_ context.Context, userID string) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]product.Product(nil), m.byUser[userID]...), nil
}

func (m *mockRepo) Save(_ context.Context, userID string, list []product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.byUser[userID] = list
	return nil
}

var (
	shirt = product.Product{ID: "shirt", Name: "Shirt", Price: 50000, SellerID: "s1"}
	mug   = product.Product{ID: "mug", Name: "Mug", Price: 30000, SellerID: "s2"}
)

func TestService_Toggle(t *testing.T) {
	s := NewService(newMockRepo())
	ctx := context.Background()

	liked, err := s.Toggle(ctx, "alice", shirt)
	require.NoError(t, err)
	assert.True(t, liked)

	liked, err = s.Toggle(ctx, "alice", mug)
	require.NoError(t, err)
	assert.True(t, liked)

	list, err := s.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []product.Product{shirt, mug}, list)

	liked, err = s.Toggle(ctx, "alice", shirt)
	require.NoError(t, err)
	assert.False(t, liked)

	ok, err := s.IsFavorite(ctx, "alice", shirt.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.IsFavorite(ctx, "alice", mug.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_PerUser(t *testing.T) {
	s := NewService(newMockRepo())
	ctx := context.Background()

	_, err := s.Toggle(ctx, "alice", shirt)
	require.NoError(t, err)

	list, err := s.List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_Errors(t *testing.T) {
	ctx := context.Background()
	storageErr := errors.New("storage down")

	tests := []struct {
		name    string
		repo    *mockRepo
		p       product.Product
		wantErr error
	}{
		{name: "invalid product", repo: newMockRepo(), p: product.Product{}, wantErr: product.ErrInvalid},
		{name: "load failure", repo: &mockRepo{loadErr: storageErr}, p: shirt, wantErr: storageErr},
		{name: "save failure", repo: &mockRepo{byUser: map[string][]product.Product{}, saveErr: storageErr}, p: shirt, wantErr: storageErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.repo).Toggle(ctx, "alice", tt.p)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_ConcurrentToggles(t *testing.T) {
	s := NewService(newMockRepo())
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			_, _ = s.Toggle(ctx, "alice", shirt)
		})
	}
	wg.Wait()

	// An even number of toggles leaves the product unliked.
	ok, err := s.IsFavorite(ctx, "alice", shirt.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
