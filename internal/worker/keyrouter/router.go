// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package keyrouter

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4/catacomb"

	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/core/tuple"
	"github.com/juju/streamrouter/internal/mailbox"
	"github.com/juju/streamrouter/internal/metrics"
	"github.com/juju/streamrouter/internal/worker/common"
)

// Logger represents the methods used by the worker to log details.
type Logger interface {
	Errorf(string, ...any)
	Warningf(string, ...any)
	Infof(string, ...any)
	Debugf(string, ...any)
	Tracef(string, ...any)
}

// Directory registers the router's inbox and delivers its messages.
type Directory interface {
	routing.Transport
	Register(routing.Address) (*mailbox.Inbox, error)
}

// Config holds the router's dependencies.
type Config struct {
	// Self is the router's address. A fresh one is minted if empty.
	Self routing.Address

	// Factory provisions one worker per distinct key.
	Factory routing.WorkerFactory

	Directory Directory

	// Hub receives unhandled messages. Optional.
	Hub *pubsub.SimpleHub

	// Metrics is optional.
	Metrics *metrics.Collector

	Logger Logger
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.Factory == nil {
		return errors.NotValidf("nil Factory")
	}
	if config.Directory == nil {
		return errors.NotValidf("nil Directory")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// workersRequest asks the loop for the workers created so far.
type workersRequest struct {
	reply chan []routing.Address
}

// Router forwards every tuple to the worker dedicated to its key, creating
// that worker the first time the key is seen. The key map is owned by the
// router's loop goroutine.
type Router struct {
	catacomb catacomb.Catacomb
	config   Config

	inbox *mailbox.Inbox
	keys  *KeyMap
}

// NewRouter registers the router's inbox and starts the router. The
// factory is bound to the router before the first message is processed.
// The caller takes responsibility for killing, and handling errors from,
// the returned worker.
func NewRouter(config Config) (*Router, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Self == "" {
		config.Self = mailbox.NewAddress("key-router")
	}

	inbox, err := config.Directory.Register(config.Self)
	if err != nil {
		return nil, errors.Trace(err)
	}

	r := &Router{
		config: config,
		inbox:  inbox,
		keys:   NewKeyMap(),
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &r.catacomb,
		Work: r.loop,
	}); err != nil {
		inbox.Close()
		return nil, errors.Trace(err)
	}
	return r, nil
}

// Kill is part of the worker.Worker interface.
func (r *Router) Kill() {
	r.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (r *Router) Wait() error {
	return r.catacomb.Wait()
}

// Address returns the address upstream producers send tuples to.
func (r *Router) Address() routing.Address {
	return r.config.Self
}

// Workers returns the workers created so far, in sorted order.
func (r *Router) Workers(ctx context.Context) ([]routing.Address, error) {
	reply := make(chan []routing.Address, 1)
	abort, stop := common.Abort(ctx, r.catacomb.Dying())
	defer stop()
	err := r.config.Directory.Deliver(r.config.Self, routing.Envelope{Message: workersRequest{reply: reply}}, abort)
	if err != nil {
		return nil, errors.Trace(err)
	}
	select {
	case workers := <-reply:
		return workers, nil
	case <-abort:
		return nil, errors.New("key router stopped")
	}
}

// Report is part of the dependency.Reporter interface.
func (r *Router) Report() map[string]any {
	out := map[string]any{
		"address": r.config.Self.String(),
	}
	workers, err := r.Workers(context.Background())
	if err != nil {
		out["error"] = err.Error()
		return out
	}
	out["workers"] = len(workers)
	return out
}

func (r *Router) loop() error {
	defer r.inbox.Close()
	if r.config.Metrics != nil {
		defer r.config.Metrics.Forget(r.config.Self.String())
	}

	if err := r.config.Factory.Bind(routing.BindContext{
		Self:       r.config.Self,
		Supervisor: &r.catacomb,
	}); err != nil {
		return errors.Annotate(err, "binding worker factory")
	}
	r.config.Logger.Debugf("key router %s started", r.config.Self)

	for {
		select {
		case <-r.catacomb.Dying():
			return r.catacomb.ErrDying()
		case env := <-r.inbox.Receive():
			r.handle(env)
		}
	}
}

func (r *Router) handle(env routing.Envelope) {
	switch msg := env.Message.(type) {
	case tuple.Tuple:
		r.route(env, msg)

	case routing.ActivationCommand:
		workers := r.keys.Workers()
		r.config.Logger.Debugf("relaying activation %q to %d workers", msg.Reason, len(workers))
		for _, target := range workers {
			r.deliver(target, env)
		}

	case workersRequest:
		msg.reply <- r.keys.Workers()

	case routing.PortRequest:
		r.deliver(env.Sender, routing.Envelope{
			Sender:  r.config.Self,
			Message: routing.PortReply{Address: r.config.Self},
		})

	default:
		r.unhandled(env, routing.ErrUnhandledMessage)
	}
}

func (r *Router) route(env routing.Envelope, t tuple.Tuple) {
	if err := t.Validate(); err != nil {
		r.fail(env, t, err)
		return
	}

	target, ok := r.keys.Route(t.Key)
	if !ok {
		var err error
		if target, err = r.config.Factory.CreateWorker(); err != nil {
			// The key stays unmapped, so the next tuple retries.
			r.fail(env, t, errors.Annotate(err, "creating worker"))
			return
		}
		r.keys.SetTarget(t.Key, target)
		r.config.Logger.Debugf("created worker %s for key %v", target, t.Key)
		if r.config.Metrics != nil {
			r.config.Metrics.WorkerCreated(r.config.Self.String())
			r.config.Metrics.SetKeys(r.config.Self.String(), r.keys.Len())
		}
	}

	r.config.Logger.Tracef("routing key %v to %s", t.Key, target)
	if r.deliver(target, env) && r.config.Metrics != nil {
		r.config.Metrics.TupleRouted(r.config.Self.String())
	}
}

func (r *Router) fail(env routing.Envelope, t tuple.Tuple, err error) {
	r.config.Logger.Errorf("cannot route tuple with key %v: %v", t.Key, err)
	if r.config.Metrics != nil {
		r.config.Metrics.RouteFailed(r.config.Self.String())
	}
	r.unhandled(env, err)
}

func (r *Router) unhandled(env routing.Envelope, reason error) {
	if r.config.Metrics != nil {
		r.config.Metrics.Unhandled(r.config.Self.String())
	}
	common.PublishUnhandled(r.config.Hub, r.config.Logger, r.config.Self, env, reason)
}

// deliver forwards the envelope and reports whether it was accepted.
// Failures are logged; they never stop the router.
func (r *Router) deliver(to routing.Address, env routing.Envelope) bool {
	if to == "" {
		return false
	}
	if err := r.config.Directory.Deliver(to, env, r.catacomb.Dying()); err != nil {
		r.config.Logger.Warningf("cannot deliver %T to %s: %v", env.Message, to, err)
		if r.config.Metrics != nil {
			r.config.Metrics.RouteFailed(r.config.Self.String())
		}
		return false
	}
	return true
}
