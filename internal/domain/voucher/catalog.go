package voucher

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Source fetches raw voucher records from the remote catalog.
type Source interface {
	FetchAvailable(ctx context.Context) ([]Record, error)
}

// Cache persists the last good voucher list for offline display.
type Cache interface {
	Load(ctx context.Context) ([]Voucher, error)
	Store(ctx context.Context, list []Voucher) error
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithLogger sets the catalog logger.
func WithLogger(lg *zap.Logger) CatalogOption {
	return func(c *Catalog) { c.lg = lg }
}

// WithClock overrides the time source used for sanitizing.
func WithClock(now func() time.Time) CatalogOption {
	return func(c *Catalog) { c.now = now }
}

// Catalog serves the sanitized, sorted voucher list.
//
// Every fetch takes a sequence number; a response is applied only if no
// newer fetch has already been applied, so a slow request never overwrites
// fresher data.
type Catalog struct {
	source Source
	cache  Cache
	lg     *zap.Logger
	now    func() time.Time

	seq atomic.Uint64

	mu         sync.Mutex
	applied    uint64
	current    []Voucher
	fromServer bool
	connected  bool

	// Cache writes go through a single writer at a time. A list applied
	// while a write is in flight is parked in pending and written next.
	storeMu    sync.Mutex
	writing    bool
	pending    []Voucher
	pendingSeq uint64
	stored     uint64
}

// NewCatalog creates a Catalog over the given source and cache.
func NewCatalog(source Source, cache Cache, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		source: source,
		cache:  cache,
		lg:     zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAvailable fetches, sanitizes and sorts the remote voucher list.
//
// Any source failure, or an empty server list, yields the single fallback
// voucher, which is never cached. The only error returned is the context
// error when ctx is done.
func (c *Catalog) FetchAvailable(ctx context.Context) ([]Voucher, error) {
	seq := c.seq.Add(1)

	records, err := c.source.FetchAvailable(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.lg.Warn("Voucher fetch failed, serving fallback", zap.Error(err), zap.Uint64("seq", seq))
		list, _ := c.apply(seq, []Voucher{Fallback()}, false)
		return list, nil
	}

	list := SanitizeAll(records, c.now())
	if len(list) == 0 {
		c.lg.Info("Voucher catalog empty, serving fallback", zap.Uint64("seq", seq))
		applied, _ := c.apply(seq, []Voucher{Fallback()}, false)
		return applied, nil
	}

	applied, fresh := c.apply(seq, list, true)
	if !fresh {
		c.lg.Debug("Discarding stale voucher response", zap.Uint64("seq", seq))
		return applied, nil
	}

	c.persist(ctx, seq, list)
	return applied, nil
}

// persist writes list to the cache unless a newer list was already written.
// The write for the newest list always lands last.
func (c *Catalog) persist(ctx context.Context, seq uint64, list []Voucher) {
	c.storeMu.Lock()
	if seq <= c.stored || seq < c.pendingSeq {
		c.storeMu.Unlock()
		return
	}
	c.pending, c.pendingSeq = list, seq
	if c.writing {
		c.storeMu.Unlock()
		return
	}
	c.writing = true

	for c.pending != nil {
		list, seq := c.pending, c.pendingSeq
		c.pending = nil
		c.storeMu.Unlock()

		err := c.cache.Store(ctx, list)

		c.storeMu.Lock()
		if err != nil {
			c.lg.Warn("Voucher cache write failed", zap.Error(err), zap.Uint64("seq", seq))
			continue
		}
		c.stored = max(c.stored, seq)
	}
	c.writing = false
	c.storeMu.Unlock()
}

// apply installs list as the current result unless a newer fetch already
// won. It returns the list now current and whether list was applied.
func (c *Catalog) apply(seq uint64, list []Voucher, fromServer bool) ([]Voucher, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq < c.applied {
		return slices.Clone(c.current), false
	}
	c.applied = seq
	c.current = list
	c.fromServer = fromServer
	return slices.Clone(list), true
}

// HandleConnectivity reacts to connectivity changes. When the client comes
// back online and no server list has been loaded yet, the catalog refetches.
func (c *Catalog) HandleConnectivity(ctx context.Context, connected bool) error {
	c.mu.Lock()
	reconnected := connected && !c.connected
	c.connected = connected
	needFetch := reconnected && !c.fromServer
	c.mu.Unlock()

	if !needFetch {
		return nil
	}
	c.lg.Info("Connectivity restored, refetching vouchers")
	_, err := c.FetchAvailable(ctx)
	return err
}

// Current returns the list from the most recently applied fetch.
func (c *Catalog) Current() []Voucher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.current)
}

// Cached returns the last list written to the cache.
func (c *Catalog) Cached(ctx context.Context) ([]Voucher, error) {
	return c.cache.Load(ctx)
}

// Find looks a voucher up by id in the current list.
func (c *Catalog) Find(id string) (Voucher, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.current {
		if v.ID == id {
			return v, true
		}
	}
	return Voucher{}, false
}
