package pagination

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/storefront/pkg/repository/document"
)

func seededStore(t testing.TB, names ...string) *document.MemoryStore {
	t.Helper()
	n := 0
	store := document.NewMemoryStore(document.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("p%03d", n)
	}))
	for _, name := range names {
		if _, err := store.Create(context.Background(), document.Products, document.Fields{"name": name}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}

func ids(records []document.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestResolve(t *testing.T) {
	// p001..p006 named a..f
	store := seededStore(t, "a", "b", "c", "d", "e", "f")
	if _, err := store.Create(context.Background(), document.Products, document.Fields{"price": 3}); err != nil {
		t.Fatal(err)
	}
	resolver := NewResolver(store, DefaultConfig(), nil)

	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{"first page", Request{PageSize: 3}, []string{"p001", "p002", "p003"}},
		{"forward includes boundary", Request{CursorID: "p003", Direction: Forward, PageSize: 3}, []string{"p003", "p004", "p005"}},
		{"cursor without direction is forward", Request{CursorID: "p005", PageSize: 3}, []string{"p005", "p006"}},
		{"backward ends at boundary", Request{CursorID: "p004", Direction: Backward, PageSize: 3}, []string{"p002", "p003", "p004"}},
		{"backward near start", Request{CursorID: "p002", Direction: Backward, PageSize: 3}, []string{"p001", "p002"}},
		{"default page size", Request{}, []string{"p001", "p002", "p003", "p004", "p005", "p006"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Collection = document.Products
			tt.req.OrderBy = "name"
			page, err := resolver.Resolve(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got := ids(page.Records); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Resolve() = %v, want %v", got, tt.want)
			}
			if page.First != tt.want[0] || page.Last != tt.want[len(tt.want)-1] {
				t.Fatalf("First/Last = %s/%s", page.First, page.Last)
			}
		})
	}
}

func TestResolve_TiesBrokenByID(t *testing.T) {
	store := seededStore(t, "x", "x", "x", "x")
	resolver := NewResolver(store, DefaultConfig(), nil)

	page, err := resolver.Resolve(context.Background(), Request{Collection: document.Products, OrderBy: "name", CursorID: "p002", Direction: Forward, PageSize: 2})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := ids(page.Records); !reflect.DeepEqual(got, []string{"p002", "p003"}) {
		t.Fatalf("Resolve() = %v", got)
	}
}

func TestResolve_Errors(t *testing.T) {
	store := seededStore(t, "a", "b")
	if _, err := store.Create(context.Background(), document.Products, document.Fields{"price": 1}); err != nil {
		t.Fatal(err)
	}
	resolver := NewResolver(store, DefaultConfig(), nil)

	tests := []struct {
		name string
		req  Request
		want document.Kind
	}{
		{"unknown cursor", Request{OrderBy: "name", CursorID: "missing", Direction: Forward}, document.NotFound},
		{"cursor outside ordering", Request{OrderBy: "name", CursorID: "p003", Direction: Backward}, document.NotFound},
		{"direction without cursor", Request{OrderBy: "name", Direction: Backward}, document.InvalidArgument},
		{"bad direction", Request{OrderBy: "name", CursorID: "p001", Direction: "sideways"}, document.InvalidArgument},
		{"no order field", Request{}, document.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Collection = document.Products
			page, err := resolver.Resolve(context.Background(), tt.req)
			if got := document.KindOf(err); got != tt.want {
				t.Fatalf("KindOf(%v) = %s, want %s", err, got, tt.want)
			}
			if len(page.Records) != 0 {
				t.Fatalf("expected no records on failure, got %v", ids(page.Records))
			}
		})
	}
}

func TestResolve_EmptyCollection(t *testing.T) {
	resolver := NewResolver(document.NewMemoryStore(), DefaultConfig(), nil)
	page, err := resolver.Resolve(context.Background(), Request{Collection: document.Orders, OrderBy: "createdAt"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if page.Records == nil || len(page.Records) != 0 || page.First != "" || page.Last != "" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestConfig_PageSize(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		collection document.Collection
		requested  int
		want       int
	}{
		{document.Users, 0, 20},
		{document.Products, -1, 20},
		{document.Categories, 0, 50},
		{document.Orders, 0, 50},
		{document.Carts, 0, 20},
		{document.Stores, 7, 7},
		{document.Offers, 500, 100},
	}
	for _, tt := range tests {
		if got := cfg.PageSize(tt.collection, tt.requested); got != tt.want {
			t.Errorf("PageSize(%s, %d) = %d, want %d", tt.collection, tt.requested, got, tt.want)
		}
	}
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"": "", "forward": Forward, "NEXT": Forward, "Backward": Backward, "prev": Backward} {
		got, err := ParseDirection(in)
		if err != nil || got != want {
			t.Errorf("ParseDirection(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDirection("up"); document.KindOf(err) != document.InvalidArgument {
		t.Errorf("ParseDirection(up) error = %v", err)
	}
}

func TestResolve_ForwardContinuityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 60
	properties := gopter.NewProperties(parameters)

	properties.Property("walking forward from the last id visits every record once", prop.ForAll(
		func(names []string, size int) bool {
			store := seededStore(t, names...)
			resolver := NewResolver(store, DefaultConfig(), nil)
			ctx := context.Background()

			all, err := store.Find(ctx, document.Products, document.Query{OrderBy: "name"})
			if err != nil {
				return false
			}

			var walked []string
			req := Request{Collection: document.Products, OrderBy: "name", PageSize: size}
			for {
				page, err := resolver.Resolve(ctx, req)
				if err != nil {
					return false
				}
				recs := page.Records
				if req.CursorID != "" {
					// the boundary repeats as the head of the next page
					if len(recs) == 0 || recs[0].ID != req.CursorID {
						return false
					}
					recs = recs[1:]
				}
				walked = append(walked, ids(recs)...)
				if len(page.Records) < size || len(recs) == 0 {
					break
				}
				req.CursorID, req.Direction = page.Last, Forward
			}
			return reflect.DeepEqual(walked, ids(all)) || (len(walked) == 0 && len(all) == 0)
		},
		gen.SliceOf(gen.IntRange(0, 4).Map(func(i int) string { return string(rune('a' + i)) })),
		gen.IntRange(2, 6),
	))

	properties.TestingRun(t)
}
