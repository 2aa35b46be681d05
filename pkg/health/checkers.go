package health

import (
	"context"
	"fmt"
	"time"

	"github.com/nimburion/storefront/pkg/variant"
)

// Checkable is an interface for components that support health checks
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker probes a Checkable with a timeout. A failing probe reports
// the configured failure status.
type AdapterChecker struct {
	name      string
	adapter   Checkable
	timeout   time.Duration
	onFailure Status
}

// NewAdapterChecker creates a checker reporting unhealthy when the probe fails.
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AdapterChecker{name: name, adapter: adapter, timeout: timeout, onFailure: StatusUnhealthy}
}

// NewStoreChecker checks the document store. The catalog cannot serve
// without it, so a failure makes the service unready.
func NewStoreChecker(store Checkable) *AdapterChecker {
	return NewAdapterChecker("document_store", store, 5*time.Second)
}

// NewEventBusChecker checks the event broker. Events are best effort, so a
// failure only degrades the service.
func NewEventBusChecker(bus Checkable) *AdapterChecker {
	c := NewAdapterChecker("event_bus", bus, 5*time.Second)
	c.onFailure = StatusDegraded
	return c
}

func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.adapter.HealthCheck(checkCtx)
	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Status = c.onFailure
		result.Message = ""
		result.Error = err.Error()
	}
	return result
}

func (c *AdapterChecker) Name() string {
	return c.name
}

// CustomChecker allows creating a health checker from a custom function
type CustomChecker struct {
	name      string
	checkFunc func(ctx context.Context) (Status, string, error)
}

// NewCustomChecker creates a checker from checkFunc, which returns the
// status, a message and an optional error.
func NewCustomChecker(name string, checkFunc func(ctx context.Context) (Status, string, error)) *CustomChecker {
	return &CustomChecker{name: name, checkFunc: checkFunc}
}

func (c *CustomChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	status, message, err := c.checkFunc(ctx)
	result := CheckResult{
		Name:      c.name,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func (c *CustomChecker) Name() string {
	return c.name
}

// PendingLister lists variant groups whose back-links were never committed.
type PendingLister interface {
	Pending(ctx context.Context) ([]variant.PendingGroup, error)
}

// NewVariantBacklogChecker reports degraded while variant groups wait to be
// reconciled, and unhealthy when the backlog cannot be read.
func NewVariantBacklogChecker(lister PendingLister) *CustomChecker {
	return NewCustomChecker("variant_groups", func(ctx context.Context) (Status, string, error) {
		pending, err := lister.Pending(ctx)
		if err != nil {
			return StatusUnhealthy, "", err
		}
		if len(pending) > 0 {
			return StatusDegraded, fmt.Sprintf("%d variant groups pending reconciliation", len(pending)), nil
		}
		return StatusHealthy, "OK", nil
	})
}
