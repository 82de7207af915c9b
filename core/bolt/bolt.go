// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package bolt

import "github.com/juju/streamrouter/core/tuple"

// Collector receives tuples emitted by a bolt.
type Collector interface {
	Emit(t tuple.Tuple) error
}

// Bolt is the user logic run by a worker. A worker calls Prepare once,
// Execute for every tuple it receives, and Cleanup when it stops. The
// methods are never called concurrently.
type Bolt interface {
	Prepare(collector Collector) error
	Execute(t tuple.Tuple) error
	Cleanup() error
}

// Activator is implemented by bolts that react to pool-wide activation
// commands.
type Activator interface {
	Activate(reason string) error
}

// NewFunc creates a fresh bolt for each worker.
type NewFunc func() Bolt
