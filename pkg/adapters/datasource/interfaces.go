// Package datasource provides per-type connectivity probes used to verify a
// connection descriptor before (or after) it is saved.
package datasource

import "context"

// ConnectionTester tests datasource connectivity.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection verifies the datasource is reachable with the
	// supplied credentials. Returns nil if healthy.
	TestConnection(ctx context.Context) error

	// Close releases any resources held by the tester.
	Close() error
}
