// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package boltworker

import (
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/juju/streamrouter/core/bolt"
	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/core/tuple"
	"github.com/juju/streamrouter/internal/mailbox"
)

// workerConfig holds what a single bolt worker needs once its inbox has
// been registered.
type workerConfig struct {
	Inbox     *mailbox.Inbox
	Bolt      bolt.Bolt
	Outputs   []routing.Address
	Transport routing.Transport
	Logger    Logger
}

// boltWorker runs one bolt against the envelopes arriving on its inbox.
type boltWorker struct {
	catacomb catacomb.Catacomb
	config   workerConfig
}

func newWorker(config workerConfig) (*boltWorker, error) {
	w := &boltWorker{config: config}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *boltWorker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *boltWorker) Wait() error {
	return w.catacomb.Wait()
}

func (w *boltWorker) address() routing.Address {
	return w.config.Inbox.Address()
}

func (w *boltWorker) loop() error {
	defer w.config.Inbox.Close()

	out := &collector{
		self:      w.address(),
		outputs:   w.config.Outputs,
		transport: w.config.Transport,
		abort:     w.catacomb.Dying(),
	}
	// A bolt that cannot be prepared never runs. The failure is not
	// propagated, since that would take the owning router down with it.
	if err := w.config.Bolt.Prepare(out); err != nil {
		w.config.Logger.Errorf("preparing bolt for %s: %v", w.address(), err)
		return nil
	}
	defer func() {
		// Final emissions must not be cut short by our own death.
		out.abort = nil
		if err := w.config.Bolt.Cleanup(); err != nil {
			w.config.Logger.Errorf("cleaning up bolt for %s: %v", w.address(), err)
		}
	}()

	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case env := <-w.config.Inbox.Receive():
			w.handle(env)
		}
	}
}

func (w *boltWorker) handle(env routing.Envelope) {
	switch msg := env.Message.(type) {
	case tuple.Tuple:
		if err := w.config.Bolt.Execute(msg); err != nil {
			w.config.Logger.Errorf("executing %v on %s: %v", msg, w.address(), err)
		}
	case routing.ActivationCommand:
		activator, ok := w.config.Bolt.(bolt.Activator)
		if !ok {
			w.config.Logger.Debugf("%s ignoring activation %q", w.address(), msg.Reason)
			return
		}
		if err := activator.Activate(msg.Reason); err != nil {
			w.config.Logger.Errorf("activating %s with %q: %v", w.address(), msg.Reason, err)
		}
	default:
		w.config.Logger.Warningf("%s ignoring %T from %q", w.address(), env.Message, env.Sender)
	}
}

// collector forwards emitted tuples to every output, in order.
type collector struct {
	self      routing.Address
	outputs   []routing.Address
	transport routing.Transport
	abort     <-chan struct{}
}

// Emit is part of the bolt.Collector interface.
func (c *collector) Emit(t tuple.Tuple) error {
	env := routing.Envelope{Sender: c.self, Message: t}
	for _, output := range c.outputs {
		if err := c.transport.Deliver(output, env, c.abort); err != nil {
			return errors.Annotatef(err, "emitting to %s", output)
		}
	}
	return nil
}
