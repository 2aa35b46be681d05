// Package catalog implements the storefront operations on top of a document
// store: users, products and their variants, stores, categories, offers,
// orders and carts.
//
// Every searchable record carries a keyword set regenerated whenever one of
// its indexed fields changes. Listings are cursor paginated and updates merge
// only whitelisted fields that are present in the request body.
package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/nimburion/storefront/pkg/auth"
	"github.com/nimburion/storefront/pkg/config"
	"github.com/nimburion/storefront/pkg/eventbus"
	"github.com/nimburion/storefront/pkg/keyword"
	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/pagination"
	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/search"
	"github.com/nimburion/storefront/pkg/variant"
)

// Common record fields.
const (
	FieldName        = "name"
	FieldCreatedAt   = "createdAt"
	FieldLastUpdated = "lastUpdated"
	FieldStatus      = "status"
	FieldPassword    = "password"
	FieldParent      = "parent"
)

// Record statuses.
const (
	StatusActive       = "ACTIVE"
	StatusAvailable    = "AVAILABLE"
	StatusNotAvailable = "NOTAVAILABLE"
	StatusRetired      = "RETIRED"
	StatusPlaced       = "PLACED"
)

// orderFields lists the field each listable collection is ordered by.
var orderFields = map[document.Collection]string{
	document.Users:            FieldCreatedAt,
	document.Orders:           FieldCreatedAt,
	document.Products:         FieldName,
	document.Stores:           FieldName,
	document.Offers:           FieldName,
	document.Categories:       FieldName,
	document.SubCategories:    FieldName,
	document.SubCategoryItems: FieldName,
}

// OrderFields returns, per collection, the fields listings order by. Store
// backends use it to create their ordering indexes.
func OrderFields() map[document.Collection][]string {
	out := make(map[document.Collection][]string, len(orderFields))
	for c, f := range orderFields {
		out[c] = []string{f}
	}
	return out
}

// OrderFieldNames returns the distinct order fields, sorted.
func OrderFieldNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, f := range orderFields {
		if !seen[f] {
			seen[f] = true
			names = append(names, f)
		}
	}
	sort.Strings(names)
	return names
}

// Config holds the catalog tunables.
type Config struct {
	Pagination  pagination.Config
	SearchLimit int
	// SearchCacheSize > 0 caches that many recent search results for
	// SearchCacheTTL.
	SearchCacheSize int
	SearchCacheTTL  time.Duration
	Variants        variant.Config
}

// DefaultConfig returns the listing sizes, search limit and variant settings
// used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Pagination:     pagination.DefaultConfig(),
		SearchLimit:    search.DefaultLimit,
		SearchCacheTTL: 30 * time.Second,
		Variants:       variant.DefaultConfig(),
	}
}

// ConfigFrom maps the application catalog section onto a Config.
func ConfigFrom(cfg config.CatalogConfig) Config {
	out := DefaultConfig()
	if cfg.DefaultPageSize > 0 {
		out.Pagination.DefaultPageSize = cfg.DefaultPageSize
	}
	if cfg.MaxPageSize > 0 {
		out.Pagination.MaxPageSize = cfg.MaxPageSize
	}
	for _, c := range document.Collections() {
		if size, ok := cfg.PageSize(string(c)); ok {
			out.Pagination.PageSizes[c] = size
		}
	}
	if cfg.SearchLimit > 0 {
		out.SearchLimit = cfg.SearchLimit
	}
	if cfg.VariantConcurrency > 0 {
		out.Variants.Concurrency = cfg.VariantConcurrency
	}
	out.SearchCacheSize = cfg.SearchCacheSize
	if cfg.SearchCacheTTL > 0 {
		out.SearchCacheTTL = cfg.SearchCacheTTL
	}
	return out
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithTokens enables token issuing on Authenticate.
func WithTokens(tokens *auth.TokenService) Option {
	return func(c *Catalog) { c.tokens = tokens }
}

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h auth.PasswordHasher) Option {
	return func(c *Catalog) { c.hasher = h }
}

// WithPublisher sends catalog events through p.
func WithPublisher(p *eventbus.Publisher) Option {
	return func(c *Catalog) { c.events = p }
}

// WithClock pins the time source used for timestamps.
func WithClock(clock document.Clock) Option {
	return func(c *Catalog) { c.clock = clock }
}

// WithVariantOptions forwards options to the variant linker.
func WithVariantOptions(opts ...variant.Option) Option {
	return func(c *Catalog) { c.variantOpts = append(c.variantOpts, opts...) }
}

// Catalog is the storefront service layer.
type Catalog struct {
	store       document.Store
	cfg         Config
	log         logger.Logger
	pages       *pagination.Resolver
	index       *search.Index
	linker      *variant.Linker
	tokens      *auth.TokenService
	hasher      auth.PasswordHasher
	events      *eventbus.Publisher
	clock       document.Clock
	variantOpts []variant.Option
}

// New creates a Catalog over store.
//
// Cosa fa: collega paginazione, ricerca per keyword e creazione varianti allo store.
// Cosa NON fa: non apre né chiude lo store, che resta di chi lo ha creato.
// Esempio minimo: cat := catalog.New(store, catalog.DefaultConfig(), log)
func New(store document.Store, cfg Config, log logger.Logger, opts ...Option) *Catalog {
	log = logger.OrNop(log)
	c := &Catalog{
		store:  store,
		cfg:    cfg,
		log:    log,
		hasher: auth.BcryptHasher{},
		clock:  document.SystemClock,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.index = search.NewIndex(store, log, search.WithCache(cfg.SearchCacheSize, cfg.SearchCacheTTL))
	c.store = c.index.Tracking(store)
	c.pages = pagination.NewResolver(c.store, cfg.Pagination, log)
	c.linker = variant.NewLinker(c.store, cfg.Variants, log, c.variantOpts...)
	return c
}

// Linker returns the variant linker, used by reconciliation tooling.
func (c *Catalog) Linker() *variant.Linker {
	return c.linker
}

// ListOptions selects a page of a listing.
type ListOptions struct {
	Cursor    string
	Direction pagination.Direction
	PageSize  int
}

func (c *Catalog) list(ctx context.Context, col document.Collection, where []document.Condition, opts ListOptions) (pagination.Page, error) {
	page, err := c.pages.Resolve(ctx, pagination.Request{
		Collection: col,
		OrderBy:    orderFields[col],
		Where:      where,
		CursorID:   opts.Cursor,
		Direction:  opts.Direction,
		PageSize:   opts.PageSize,
	})
	if err != nil {
		return pagination.Page{}, err
	}
	if col == document.Users {
		for i := range page.Records {
			page.Records[i] = publicRecord(col, page.Records[i])
		}
	}
	return page, nil
}

// exists reports whether any record of col matches every condition.
func (c *Catalog) exists(ctx context.Context, col document.Collection, where ...document.Condition) (bool, error) {
	found, err := c.store.Find(ctx, col, document.Query{Where: where, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func (c *Catalog) now() any {
	return c.clock()
}

func (c *Catalog) emit(ctx context.Context, topic string, col document.Collection, id string, payload any) {
	c.events.Emit(ctx, topic, string(col), id, payload)
}

// publicRecord drops fields callers must never see.
func publicRecord(col document.Collection, r document.Record) document.Record {
	if col != document.Users || !r.Fields.Has(FieldPassword) {
		return r
	}
	fields := r.Fields.Clone()
	delete(fields, FieldPassword)
	return document.Record{ID: r.ID, Fields: fields}
}

func keywordsOf(texts ...string) []string {
	return keyword.Index(texts...).Sorted()
}
