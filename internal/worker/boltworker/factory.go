// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package boltworker

import (
	"sync"

	"github.com/juju/errors"

	"github.com/juju/streamrouter/core/bolt"
	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/internal/mailbox"
)

// Logger represents the methods used by the workers to log details.
type Logger interface {
	Errorf(string, ...any)
	Warningf(string, ...any)
	Debugf(string, ...any)
}

// Directory registers worker inboxes and delivers their output.
type Directory interface {
	routing.Transport
	Register(routing.Address) (*mailbox.Inbox, error)
}

// Config holds the dependencies shared by every worker a Factory creates.
type Config struct {
	// NewBolt creates the logic run by each worker.
	NewBolt bolt.NewFunc

	Directory Directory

	// Outputs receive every tuple the bolts emit. It may be empty for
	// sinks.
	Outputs []routing.Address

	Logger Logger
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.NewBolt == nil {
		return errors.NotValidf("nil NewBolt")
	}
	if config.Directory == nil {
		return errors.NotValidf("nil Directory")
	}
	for _, output := range config.Outputs {
		if output == "" {
			return errors.NotValidf("empty output address")
		}
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Factory is a routing.WorkerFactory that runs a fresh bolt behind each
// address it hands out.
type Factory struct {
	config Config

	mu    sync.Mutex
	bound *routing.BindContext
}

// NewFactory returns an unbound Factory.
func NewFactory(config Config) (*Factory, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Factory{config: config}, nil
}

// Bind is part of the routing.WorkerFactory interface. A factory can only
// be bound once.
func (f *Factory) Bind(ctx routing.BindContext) error {
	if ctx.Supervisor == nil {
		return errors.NotValidf("nil Supervisor")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bound != nil {
		return errors.AlreadyExistsf("binding to %q: factory bound to %q", ctx.Self, f.bound.Self)
	}
	f.bound = &ctx
	return nil
}

// CreateWorker is part of the routing.WorkerFactory interface.
func (f *Factory) CreateWorker() (routing.Address, error) {
	f.mu.Lock()
	bound := f.bound
	f.mu.Unlock()
	if bound == nil {
		return "", errors.NotValidf("creating worker with unbound factory")
	}

	inbox, err := f.config.Directory.Register(mailbox.NewAddress("bolt"))
	if err != nil {
		return "", errors.Trace(err)
	}
	w, err := newWorker(workerConfig{
		Inbox:     inbox,
		Bolt:      f.config.NewBolt(),
		Outputs:   f.config.Outputs,
		Transport: f.config.Directory,
		Logger:    f.config.Logger,
	})
	if err != nil {
		inbox.Close()
		return "", errors.Trace(err)
	}
	if err := bound.Supervisor.Add(w); err != nil {
		// The supervisor kills what it cannot adopt.
		return "", errors.Annotatef(err, "adopting worker %s", inbox.Address())
	}
	f.config.Logger.Debugf("started worker %s for %s", inbox.Address(), bound.Self)
	return inbox.Address(), nil
}
