package store

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/nimburion/storefront/pkg/config"
	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/repository/document"
)

func TestNewDocumentStore_Memory(t *testing.T) {
	st, err := NewDocumentStore(config.DatabaseConfig{Type: "memory"}, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	id, err := st.Create(ctx, document.Products, document.Fields{"name": "tea"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.Get(ctx, document.Products, id); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := st.HealthCheck(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := st.HealthCheck(ctx); err == nil {
		t.Fatal("expected closed store to fail health check")
	}
}

func TestNewDocumentStore_UnsupportedType(t *testing.T) {
	_, err := NewDocumentStore(config.DatabaseConfig{Type: "postgres"}, nil, logger.NewNop())
	if err == nil {
		t.Fatal("expected unsupported type error")
	}
	if !strings.Contains(err.Error(), "unsupported database.type") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewDocumentStore_MongoValidation(t *testing.T) {
	_, err := NewDocumentStore(config.DatabaseConfig{Type: "mongodb"}, nil, logger.NewNop())
	if err == nil || !strings.Contains(err.Error(), "URL is required") {
		t.Fatalf("expected missing url error, got %v", err)
	}
}

func TestNewDocumentStore_DynamoValidation(t *testing.T) {
	_, err := NewDocumentStore(config.DatabaseConfig{Type: "dynamodb", Table: "t"}, nil, logger.NewNop())
	if err == nil || !strings.Contains(err.Error(), "region is required") {
		t.Fatalf("expected missing region error, got %v", err)
	}
}

func TestInitDocumentStore_Memory(t *testing.T) {
	if err := InitDocumentStore(context.Background(), config.DatabaseConfig{Type: "memory"}, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFlatten_DedupesInCollectionOrder(t *testing.T) {
	got := flatten(map[document.Collection][]string{
		document.Users:    {"createdAt"},
		document.Orders:   {"createdAt"},
		document.Products: {"name"},
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 fields, got %v", got)
	}
	seen := map[string]bool{}
	for _, f := range got {
		seen[f] = true
	}
	if !reflect.DeepEqual(seen, map[string]bool{"createdAt": true, "name": true}) {
		t.Fatalf("unexpected fields %v", got)
	}
}
