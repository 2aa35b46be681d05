// Package pagination implements stateless cursor paging over ordered
// collections. A cursor is the id of a boundary record plus a direction;
// the boundary is always part of the returned page.
package pagination

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/observability/metrics"
	"github.com/nimburion/storefront/pkg/observability/tracing"
	"github.com/nimburion/storefront/pkg/repository/document"
)

// Direction selects which side of the boundary record a page covers.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// ParseDirection accepts "forward", "backward" (any case) and "" for none.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case string(Forward), "next":
		return Forward, nil
	case string(Backward), "prev", "previous":
		return Backward, nil
	default:
		return "", document.Errorf(document.InvalidArgument, "pagination", "unknown direction %q", s)
	}
}

// Request describes one page.
type Request struct {
	Collection document.Collection
	OrderBy    string
	// Where narrows the listing, for instance categories of one parent.
	Where     []document.Condition
	CursorID  string
	Direction Direction
	// PageSize <= 0 selects the collection default.
	PageSize int
}

// Page is a resolved page in ascending order.
type Page struct {
	Records []document.Record
	// First and Last are the ids to use as backward and forward cursors.
	First string
	Last  string
}

// Config holds page size limits.
type Config struct {
	DefaultPageSize int
	// PageSizes overrides DefaultPageSize per collection.
	PageSizes   map[document.Collection]int
	MaxPageSize int
}

// DefaultConfig returns the listing sizes used by the catalog.
func DefaultConfig() Config {
	return Config{
		DefaultPageSize: 20,
		PageSizes: map[document.Collection]int{
			document.Users:            20,
			document.Products:         20,
			document.Stores:           20,
			document.Categories:       50,
			document.SubCategories:    50,
			document.SubCategoryItems: 50,
			document.Offers:           50,
			document.Orders:           50,
		},
		MaxPageSize: 100,
	}
}

// PageSize resolves the effective page size for c.
func (c Config) PageSize(collection document.Collection, requested int) int {
	size := requested
	if size <= 0 {
		size = c.PageSizes[collection]
	}
	if size <= 0 {
		size = c.DefaultPageSize
	}
	if size <= 0 {
		size = 20
	}
	if c.MaxPageSize > 0 && size > c.MaxPageSize {
		size = c.MaxPageSize
	}
	return size
}

// Resolver turns page requests into store range queries.
type Resolver struct {
	store document.Store
	cfg   Config
	log   logger.Logger
}

// NewResolver creates a Resolver.
func NewResolver(store document.Store, cfg Config, log logger.Logger) *Resolver {
	return &Resolver{store: store, cfg: cfg, log: logger.OrNop(log)}
}

// Resolve returns the page described by req.
//
// Without a cursor the first page is returned. A forward page starts at the
// boundary record and a backward page ends at it. A cursor id that does not
// resolve to a record of the collection is NotFound.
func (r *Resolver) Resolve(ctx context.Context, req Request) (page Page, err error) {
	ctx, span := tracing.StartCatalogSpan(ctx, tracing.SpanOperationPage,
		tracing.WithCollection(string(req.Collection)),
		tracing.WithAttributes(attribute.String("catalog.direction", string(req.Direction))),
	)
	defer func() {
		metrics.RecordPage(string(req.Collection), string(req.Direction), err)
		tracing.End(span, err)
	}()

	q, err := r.query(ctx, req)
	if err != nil {
		return Page{}, err
	}
	records, err := r.store.Find(ctx, req.Collection, q)
	if err != nil {
		return Page{}, err
	}
	page = Page{Records: records}
	if page.Records == nil {
		page.Records = []document.Record{}
	}
	if n := len(records); n > 0 {
		page.First = records[0].ID
		page.Last = records[n-1].ID
	}
	r.log.WithContext(ctx).Debug("page resolved",
		"collection", req.Collection, "direction", req.Direction, "cursor", req.CursorID, "size", len(records))
	return page, nil
}

func (r *Resolver) query(ctx context.Context, req Request) (document.Query, error) {
	if req.OrderBy == "" {
		return document.Query{}, document.Errorf(document.InvalidArgument, "pagination", "order field is required")
	}
	q := document.Query{
		Where:   req.Where,
		OrderBy: req.OrderBy,
		Limit:   r.cfg.PageSize(req.Collection, req.PageSize),
	}

	cursor := strings.TrimSpace(req.CursorID)
	if cursor == "" {
		if req.Direction != "" {
			return document.Query{}, document.Errorf(document.InvalidArgument, "pagination", "direction %q given without a cursor", req.Direction)
		}
		return q, nil
	}

	boundary, err := r.store.Get(ctx, req.Collection, cursor)
	if err != nil {
		if document.IsKind(err, document.NotFound) {
			return document.Query{}, document.Errorf(document.NotFound, "pagination", "cursor %q not found in %s", cursor, req.Collection)
		}
		return document.Query{}, err
	}
	if !boundary.Fields.Has(req.OrderBy) {
		// The record exists but is outside this ordering.
		return document.Query{}, document.Errorf(document.NotFound, "pagination", "cursor %q has no %s", cursor, req.OrderBy)
	}

	switch req.Direction {
	case Forward, "":
		q.StartAt = document.BoundaryOf(boundary, req.OrderBy)
	case Backward:
		q.EndAt = document.BoundaryOf(boundary, req.OrderBy)
		q.LimitToLast = true
	default:
		return document.Query{}, document.Errorf(document.InvalidArgument, "pagination", "unknown direction %q", req.Direction)
	}
	return q, nil
}
