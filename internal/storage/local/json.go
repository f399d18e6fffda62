// Package local implements the domain repositories as JSON documents in a
// kv.Store.
package local

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/storage/kv"
)

// loadJSON decodes the value at key into dst. A missing key leaves dst
// untouched and reports found=false.
func loadJSON(ctx context.Context, store kv.Store, key string, dst any) (found bool, err error) {
	raw, err := store.GetItem(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, nil
		}
		return false, &kv.UnavailableError{Op: "get", Key: key, Err: err}
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

func saveJSON(ctx context.Context, store kv.Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	if err := store.SetItem(ctx, key, raw); err != nil {
		return &kv.UnavailableError{Op: "set", Key: key, Err: err}
	}
	return nil
}
