package search

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/storefront/pkg/keyword"
	"github.com/nimburion/storefront/pkg/repository/document"
)

func indexUser(t *testing.T, store document.Store, name string) string {
	t.Helper()
	id, err := store.Create(context.Background(), document.Users, document.Fields{
		"fullName":    name,
		keyword.Field: keyword.Generate(name).Sorted(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

func TestSearch_JohnDoe(t *testing.T) {
	store := document.NewMemoryStore()
	id := indexUser(t, store, "John Doe")
	indexUser(t, store, "Mary Major")
	idx := NewIndex(store, nil)

	got, err := idx.Search(context.Background(), document.Users, "joh", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("Search(joh) = %+v, want only %s", got, id)
	}

	got, err = idx.Search(context.Background(), document.Users, "xyz", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("Search(xyz) = %#v, want empty non-nil slice", got)
	}
}

func TestSearch_NormalizesKeyword(t *testing.T) {
	store := document.NewMemoryStore()
	id := indexUser(t, store, "John Doe")
	idx := NewIndex(store, nil)

	got, err := idx.Search(context.Background(), document.Users, "  JOHN ", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("Search = %+v", got)
	}
}

func TestSearch_Errors(t *testing.T) {
	closed := document.NewMemoryStore()
	_ = closed.Close()

	tests := []struct {
		name       string
		store      document.Store
		collection document.Collection
		keyword    string
		want       document.Kind
	}{
		{"empty keyword", document.NewMemoryStore(), document.Users, "   ", document.InvalidArgument},
		{"not searchable", document.NewMemoryStore(), document.Carts, "a", document.InvalidArgument},
		{"backend down", closed, document.Products, "a", document.BackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIndex(tt.store, nil).Search(context.Background(), tt.collection, tt.keyword, 5)
			if got := document.KindOf(err); got != tt.want {
				t.Fatalf("KindOf(%v) = %s, want %s", err, got, tt.want)
			}
		})
	}
}

func TestSearch_LimitIsCapped(t *testing.T) {
	store := document.NewMemoryStore()
	for i := 0; i < 15; i++ {
		indexUser(t, store, "Alex")
	}
	idx := NewIndex(store, nil)

	for _, tc := range []struct{ limit, want int }{{0, 10}, {-3, 10}, {4, 4}, {50, 10}} {
		got, err := idx.Search(context.Background(), document.Users, "al", tc.limit)
		if err != nil {
			t.Fatalf("Search(limit=%d) error = %v", tc.limit, err)
		}
		if len(got) != tc.want {
			t.Errorf("Search(limit=%d) returned %d records, want %d", tc.limit, len(got), tc.want)
		}
	}
}

func TestSearch_RoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("every generated prefix finds the indexed record", prop.ForAll(
		func(name string) bool {
			store := document.NewMemoryStore()
			id, err := store.Create(context.Background(), document.Products, document.Fields{
				"name":        name,
				keyword.Field: keyword.Generate(name).Sorted(),
			})
			if err != nil {
				return false
			}
			idx := NewIndex(store, nil)
			for _, prefix := range keyword.Generate(name).Sorted() {
				got, err := idx.Search(context.Background(), document.Products, prefix, 0)
				if err != nil || len(got) != 1 || got[0].ID != id {
					return false
				}
			}
			return true
		},
		gen.RegexMatch(`[A-Za-z0-9]{1,8}( [A-Za-z0-9]{1,8}){0,2}`),
	))

	properties.TestingRun(t)
}
