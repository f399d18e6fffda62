package local

import (
	"context"

	"github.com/xenking/storefront/internal/domain/voucher"
	"github.com/xenking/storefront/internal/storage/kv"
)

var _ voucher.Cache = (*VoucherCache)(nil)

// VoucherCache keeps the last fetched voucher list under kv.KeyCachedVouchers.
type VoucherCache struct {
	store kv.Store
}

// NewVoucherCache returns a VoucherCache over store.
func NewVoucherCache(store kv.Store) *VoucherCache {
	return &VoucherCache{store: store}
}

// Load returns the cached list, empty when nothing was cached.
func (c *VoucherCache) Load(ctx context.Context) ([]voucher.Voucher, error) {
	var list []voucher.Voucher
	if _, err := loadJSON(ctx, c.store, kv.KeyCachedVouchers, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Store overwrites the cached list.
func (c *VoucherCache) Store(ctx context.Context, list []voucher.Voucher) error {
	return saveJSON(ctx, c.store, kv.KeyCachedVouchers, list)
}
