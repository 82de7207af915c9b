// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package boltworker

import (
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/internal/mailbox"
)

// Pool owns a fixed number of bolt workers. It serves stages that are
// addressed by range, such as sinks, where the worker addresses must be
// known before the upstream range router is built.
type Pool struct {
	catacomb  catacomb.Catacomb
	self      routing.Address
	transport routing.Transport
	workers   []routing.Address
}

// NewPool starts size workers running the configured bolt.
func NewPool(config Config, size int) (*Pool, error) {
	if size < 1 {
		return nil, errors.NotValidf("pool size %d", size)
	}
	factory, err := NewFactory(config)
	if err != nil {
		return nil, errors.Trace(err)
	}

	p := &Pool{
		self:      mailbox.NewAddress("pool"),
		transport: config.Directory,
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &p.catacomb,
		Work: p.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}

	if err := factory.Bind(routing.BindContext{
		Self:       p.self,
		Supervisor: &p.catacomb,
	}); err != nil {
		return nil, p.abort(err)
	}
	for i := 0; i < size; i++ {
		addr, err := factory.CreateWorker()
		if err != nil {
			return nil, p.abort(err)
		}
		p.workers = append(p.workers, addr)
	}
	return p, nil
}

func (p *Pool) abort(err error) error {
	p.catacomb.Kill(err)
	_ = p.catacomb.Wait()
	return errors.Trace(err)
}

// Workers returns the addresses of the pool's workers.
func (p *Pool) Workers() []routing.Address {
	result := make([]routing.Address, len(p.workers))
	copy(result, p.workers)
	return result
}

// Activate broadcasts an activation command to every worker in the pool.
// It stops at the first worker that cannot be reached.
func (p *Pool) Activate(reason string, abort <-chan struct{}) error {
	env := routing.Envelope{
		Sender:  p.self,
		Message: routing.ActivationCommand{Reason: reason},
	}
	for _, addr := range p.workers {
		if err := p.transport.Deliver(addr, env, abort); err != nil {
			return errors.Annotatef(err, "activating %s", addr)
		}
	}
	return nil
}

// Kill is part of the worker.Worker interface.
func (p *Pool) Kill() {
	p.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (p *Pool) Wait() error {
	return p.catacomb.Wait()
}

func (p *Pool) loop() error {
	<-p.catacomb.Dying()
	return p.catacomb.ErrDying()
}
