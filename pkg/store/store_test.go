package store

import (
	"context"
	"errors"
	"testing"

	"github.com/nimburion/storefront/pkg/repository/document"
)

var _ DocumentStore = (*document.MemoryStore)(nil)

type fakeAdapter struct {
	closed bool
}

func (f *fakeAdapter) HealthCheck(context.Context) error {
	if f.closed {
		return errors.New("closed")
	}
	return nil
}

func (f *fakeAdapter) Close() error {
	f.closed = true
	return nil
}

func TestManagedStore_DelegatesLifecycleToAdapter(t *testing.T) {
	a := &fakeAdapter{}
	var st DocumentStore = managedStore{Store: document.NewMemoryStore(), Adapter: a}

	if err := st.HealthCheck(context.Background()); err != nil {
		t.Fatalf("healthcheck: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !a.closed {
		t.Fatal("expected adapter to be closed")
	}
	if err := st.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail after close")
	}
}
