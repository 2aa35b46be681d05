package search

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nimburion/storefront/pkg/repository/document"
)

type cacheKey struct {
	collection document.Collection
	term       string
	limit      int
}

// resultCache pairs the LRU with a write generation per collection. A result
// is only stored when no write to its collection finished while it was read.
type resultCache struct {
	lru  *expirable.LRU[cacheKey, []document.Record]
	mu   sync.Mutex
	gens map[document.Collection]uint64
}

// Option configures an Index.
type Option func(*Index)

// WithCache keeps up to size recent results for ttl. Writes made through the
// store returned by Index.Tracking evict the results of their collection;
// writes made elsewhere stay invisible until ttl expires. A size <= 0 leaves
// caching off.
func WithCache(size int, ttl time.Duration) Option {
	return func(i *Index) {
		if size <= 0 {
			return
		}
		i.cache = &resultCache{
			lru:  expirable.NewLRU[cacheKey, []document.Record](size, nil, ttl),
			gens: make(map[document.Collection]uint64),
		}
	}
}

// Invalidate drops the cached results of collection c.
func (i *Index) Invalidate(c document.Collection) {
	if i.cache == nil {
		return
	}
	i.cache.mu.Lock()
	defer i.cache.mu.Unlock()
	i.cache.gens[c]++
	for _, key := range i.cache.lru.Keys() {
		if key.collection == c {
			i.cache.lru.Remove(key)
		}
	}
}

// Tracking wraps store so that every write through it invalidates the
// cached results of the written collections. Without a cache store is
// returned unchanged.
func (i *Index) Tracking(store document.Store) document.Store {
	if i.cache == nil {
		return store
	}
	return &trackingStore{Store: store, index: i}
}

// generation returns the write generation of c, read before a lookup.
func (i *Index) generation(c document.Collection) uint64 {
	if i.cache == nil {
		return 0
	}
	i.cache.mu.Lock()
	defer i.cache.mu.Unlock()
	return i.cache.gens[c]
}

func (i *Index) cached(key cacheKey) ([]document.Record, bool) {
	if i.cache == nil {
		return nil, false
	}
	records, ok := i.cache.lru.Get(key)
	if !ok {
		return nil, false
	}
	return copyRecords(records), true
}

// remember stores records unless a write to their collection finished after
// gen was read.
func (i *Index) remember(key cacheKey, gen uint64, records []document.Record) {
	if i.cache == nil {
		return
	}
	i.cache.mu.Lock()
	defer i.cache.mu.Unlock()
	if i.cache.gens[key.collection] != gen {
		return
	}
	i.cache.lru.Add(key, copyRecords(records))
}

func copyRecords(records []document.Record) []document.Record {
	out := make([]document.Record, len(records))
	copy(out, records)
	return out
}

type trackingStore struct {
	document.Store
	index *Index
}

func (s *trackingStore) Create(ctx context.Context, c document.Collection, fields document.Fields) (string, error) {
	defer s.index.Invalidate(c)
	return s.Store.Create(ctx, c, fields)
}

func (s *trackingStore) Merge(ctx context.Context, c document.Collection, id string, fields document.Fields) error {
	defer s.index.Invalidate(c)
	return s.Store.Merge(ctx, c, id, fields)
}

func (s *trackingStore) Delete(ctx context.Context, c document.Collection, id string) error {
	defer s.index.Invalidate(c)
	return s.Store.Delete(ctx, c, id)
}

func (s *trackingStore) Commit(ctx context.Context, b *document.Batch) error {
	defer func() {
		seen := map[document.Collection]bool{}
		for _, u := range b.Updates() {
			if !seen[u.Collection] {
				seen[u.Collection] = true
				s.index.Invalidate(u.Collection)
			}
		}
	}()
	return s.Store.Commit(ctx, b)
}
