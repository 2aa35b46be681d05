// Package store opens the document store backends and owns their
// connection lifecycle.
package store

import "context"

// Adapter is the lifecycle and health contract of a backend connection.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}
