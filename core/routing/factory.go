// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package routing

import "github.com/juju/worker/v4"

// Supervisor adopts workers so that they live and die with their owner. A
// catacomb.Catacomb satisfies this interface.
type Supervisor interface {
	Add(w worker.Worker) error
}

// BindContext describes the router a WorkerFactory provisions workers for.
type BindContext struct {
	// Self is the address of the router that owns the created workers.
	Self Address

	// Supervisor adopts created workers.
	Supervisor Supervisor
}

// WorkerFactory provisions new workers on demand.
type WorkerFactory interface {
	// Bind associates the factory with the router that will call
	// CreateWorker. It is called once, before any worker is created.
	Bind(ctx BindContext) error

	// CreateWorker provisions a fresh worker and returns its address.
	// Every call yields a distinct address.
	CreateWorker() (Address, error)
}
