package health

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
)

func TestRegistry_EmptyIsHealthy(t *testing.T) {
	result := NewRegistry().Check(context.Background())
	if !result.IsHealthy() || !result.IsReady() {
		t.Fatalf("expected empty registry to be healthy, got %s", result.Status)
	}
	if len(result.Checks) != 0 {
		t.Fatalf("expected no checks, got %d", len(result.Checks))
	}
}

func TestRegistry_WorstStatusWins(t *testing.T) {
	tests := []struct {
		name      string
		checkers  []Checker
		want      Status
		wantReady bool
	}{
		{
			name:      "all healthy",
			checkers:  []Checker{NewStoreChecker(probe{}), NewEventBusChecker(probe{})},
			want:      StatusHealthy,
			wantReady: true,
		},
		{
			name:      "degraded event bus keeps readiness",
			checkers:  []Checker{NewStoreChecker(probe{}), NewEventBusChecker(probe{err: errors.New("down")})},
			want:      StatusDegraded,
			wantReady: true,
		},
		{
			name:      "store failure is unready",
			checkers:  []Checker{NewStoreChecker(probe{err: errors.New("down")}), NewEventBusChecker(probe{err: errors.New("down")})},
			want:      StatusUnhealthy,
			wantReady: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, c := range tt.checkers {
				r.Register(c)
			}
			result := r.Check(context.Background())
			if result.Status != tt.want {
				t.Fatalf("status = %s, want %s", result.Status, tt.want)
			}
			if result.IsReady() != tt.wantReady {
				t.Fatalf("IsReady() = %v, want %v", result.IsReady(), tt.wantReady)
			}
		})
	}
}

func TestRegistry_ResultsOrderedByName(t *testing.T) {
	r := NewRegistry()
	r.Register(NewStoreChecker(probe{}))
	r.Register(NewEventBusChecker(probe{}))
	r.Register(NewCustomChecker("variant_groups", func(context.Context) (Status, string, error) {
		return StatusHealthy, "OK", nil
	}))

	result := r.Check(context.Background())
	var names []string
	for _, c := range result.Checks {
		names = append(names, c.Name)
	}
	want := []string{"document_store", "event_bus", "variant_groups"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	if !reflect.DeepEqual(r.List(), want) {
		t.Fatalf("List() = %v, want %v", r.List(), want)
	}
}

func TestRegistry_RegisterReplacesAndUnregister(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry()
	r.Register(NewStoreChecker(probe{err: errors.New("old")}))
	r.Register(NewCustomChecker("document_store", func(context.Context) (Status, string, error) {
		calls.Add(1)
		return StatusHealthy, "OK", nil
	}))

	result, err := r.CheckOne(context.Background(), "document_store")
	if err != nil {
		t.Fatalf("CheckOne() error = %v", err)
	}
	if result.Status != StatusHealthy || calls.Load() != 1 {
		t.Fatalf("expected replacement checker to run, got %+v", result)
	}

	r.Unregister("document_store")
	if _, err := r.CheckOne(context.Background(), "document_store"); err == nil {
		t.Fatal("expected error for unregistered checker")
	}
}
