// Package search answers keyword lookups against the prefix keyword sets
// stored on searchable records.
package search

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nimburion/storefront/pkg/keyword"
	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/observability/metrics"
	"github.com/nimburion/storefront/pkg/observability/tracing"
	"github.com/nimburion/storefront/pkg/repository/document"
)

const (
	// DefaultLimit is used when the caller asks for no particular limit.
	DefaultLimit = 10
	// MaxLimit caps every search.
	MaxLimit = 10
)

// Index runs keyword searches over a document store.
type Index struct {
	store document.Store
	log   logger.Logger
	cache *resultCache
}

// NewIndex creates a search index over store.
//
// Cosa fa: interroga il campo keywords con array-contains.
// Cosa NON fa: non ordina per rilevanza e non combina più termini.
// Esempio minimo: idx := search.NewIndex(store, log); idx.Search(ctx, document.Products, "app", 0)
func NewIndex(store document.Store, log logger.Logger, opts ...Option) *Index {
	i := &Index{store: store, log: logger.OrNop(log)}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Search returns up to limit records of c whose keyword set contains term.
// A limit <= 0 selects DefaultLimit and larger values are clamped to MaxLimit.
// No match is an empty result, not an error.
func (i *Index) Search(ctx context.Context, c document.Collection, term string, limit int) (records []document.Record, err error) {
	ctx, span := tracing.StartCatalogSpan(ctx, tracing.SpanOperationSearch, tracing.WithCollection(string(c)))
	defer func() {
		metrics.RecordSearch(string(c), len(records), err)
		tracing.End(span, err)
	}()

	if !c.Searchable() {
		return nil, document.Errorf(document.InvalidArgument, "search", "collection %q is not searchable", c)
	}
	term = keyword.Normalize(strings.TrimSpace(term))
	if term == "" {
		return nil, document.Errorf(document.InvalidArgument, "search", "keyword is required")
	}
	limit = ClampLimit(limit)
	span.SetAttributes(attribute.Int("catalog.limit", limit))

	key := cacheKey{collection: c, term: term, limit: limit}
	if hit, ok := i.cached(key); ok {
		span.SetAttributes(attribute.Bool("catalog.cache_hit", true))
		return hit, nil
	}

	gen := i.generation(c)
	records, err = i.store.Find(ctx, c, document.Query{
		Where: []document.Condition{document.ArrayContains(keyword.Field, term)},
		Limit: limit,
	})
	if err != nil {
		i.log.WithContext(ctx).Warn("keyword search failed", "collection", c, "error", err)
		return nil, err
	}
	if records == nil {
		records = []document.Record{}
	}
	i.remember(key, gen, records)
	i.log.WithContext(ctx).Debug("keyword search", "collection", c, "keyword", term, "results", len(records))
	return records, nil
}

// ClampLimit applies the default and the cap to a requested limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
