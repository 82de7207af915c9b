// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package rangerouter

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4/catacomb"

	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/core/tuple"
	"github.com/juju/streamrouter/internal/mailbox"
	"github.com/juju/streamrouter/internal/metrics"
	"github.com/juju/streamrouter/internal/partition"
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

	// Targets is the initial worker pool. The domain is bisected across
	// it, breadth first.
	Targets []routing.Address

	// Max is the upper end of the hash domain. Zero means tuple.MaxKey.
	// A narrower domain needs a Hasher bounded by it.
	Max int64

	// Hasher places keys in [0, Max]. It defaults to tuple.HashKey, which
	// only fits the full domain.
	Hasher tuple.Hasher

	Directory Directory

	// Hub receives unhandled messages. Optional.
	Hub *pubsub.SimpleHub

	// Metrics is optional.
	Metrics *metrics.Collector

	Logger Logger
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if len(config.Targets) == 0 {
		return errors.NotValidf("empty Targets")
	}
	for _, target := range config.Targets {
		if target == "" {
			return errors.NotValidf("empty target address")
		}
	}
	if config.Max < 0 {
		return errors.NotValidf("negative Max")
	}
	if config.Max != 0 && config.Max != tuple.MaxKey && config.Hasher == nil {
		return errors.NotValidf("Max without Hasher")
	}
	if config.Directory == nil {
		return errors.NotValidf("nil Directory")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// reconfigureRequest carries an in-process Reconfigure call through the
// inbox, so it is ordered with the tuples around it.
type reconfigureRequest struct {
	request routing.Reconfigure
	reply   chan routing.ReconfigureResult
}

// rangesRequest asks the loop for a snapshot of the partition tree.
type rangesRequest struct {
	reply chan []partition.Range
}

// Router forwards each tuple to the worker owning the hash range its key
// falls in. The partition tree is owned by the router's loop goroutine and
// is only touched from there.
type Router struct {
	catacomb catacomb.Catacomb
	config   Config

	inbox *mailbox.Inbox
	tree  *partition.Tree
}

// NewRouter builds the partition tree, registers the router's inbox and
// starts the router. The caller takes responsibility for killing, and
// handling errors from, the returned worker.
func NewRouter(config Config) (*Router, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Self == "" {
		config.Self = mailbox.NewAddress("range-router")
	}
	if config.Hasher == nil {
		config.Hasher = tuple.HashKey
	}

	opts := []partition.Option{partition.WithLogger(config.Logger)}
	if config.Max != 0 {
		opts = append(opts, partition.WithMax(config.Max))
	}
	tree, err := partition.NewFromTargets(config.Targets, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "building partition tree")
	}

	inbox, err := config.Directory.Register(config.Self)
	if err != nil {
		return nil, errors.Trace(err)
	}

	r := &Router{
		config: config,
		inbox:  inbox,
		tree:   tree,
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

// Reconfigure applies a routing table change and waits for its result.
// The request is queued behind any message already in the router's inbox.
// A refused change is returned as the result's error as well.
func (r *Router) Reconfigure(ctx context.Context, req routing.Reconfigure) (routing.ReconfigureResult, error) {
	reply := make(chan routing.ReconfigureResult, 1)
	if err := r.send(ctx, reconfigureRequest{request: req, reply: reply}); err != nil {
		return routing.ReconfigureResult{Request: req}, errors.Trace(err)
	}
	select {
	case result := <-reply:
		return result, errors.Trace(result.Err)
	case <-ctx.Done():
		return routing.ReconfigureResult{Request: req}, ctx.Err()
	case <-r.catacomb.Dying():
		return routing.ReconfigureResult{Request: req}, errors.New("range router stopped")
	}
}

// Ranges returns a snapshot of the router's partition tree.
func (r *Router) Ranges(ctx context.Context) ([]partition.Range, error) {
	reply := make(chan []partition.Range, 1)
	if err := r.send(ctx, rangesRequest{reply: reply}); err != nil {
		return nil, errors.Trace(err)
	}
	select {
	case ranges := <-reply:
		return ranges, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.catacomb.Dying():
		return nil, errors.New("range router stopped")
	}
}

// Report is part of the dependency.Reporter interface.
func (r *Router) Report() map[string]any {
	out := map[string]any{
		"address": r.config.Self.String(),
	}
	ranges, err := r.Ranges(context.Background())
	if err != nil {
		out["error"] = err.Error()
		return out
	}
	report := make([]string, len(ranges))
	for i, rng := range ranges {
		report[i] = rng.String()
	}
	out["ranges"] = report
	return out
}

func (r *Router) send(ctx context.Context, msg any) error {
	abort, stop := common.Abort(ctx, r.catacomb.Dying())
	defer stop()
	return r.config.Directory.Deliver(r.config.Self, routing.Envelope{Message: msg}, abort)
}

func (r *Router) loop() error {
	defer r.inbox.Close()
	if r.config.Metrics != nil {
		r.config.Metrics.SetPartitions(r.config.Self.String(), r.tree.Len())
		defer r.config.Metrics.Forget(r.config.Self.String())
	}
	r.config.Logger.Debugf("range router %s started with %d ranges", r.config.Self, r.tree.Len())

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

	case routing.Reconfigure:
		result := r.reconfigure(msg)
		if env.Sender != "" {
			r.deliver(env.Sender, routing.Envelope{Sender: r.config.Self, Message: result})
		}

	case reconfigureRequest:
		msg.reply <- r.reconfigure(msg.request)

	case rangesRequest:
		msg.reply <- r.tree.Ranges()

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
	hash, err := r.config.Hasher(t.Key)
	if err == nil {
		hash, err = tuple.CheckHash(hash)
	}
	var target routing.Address
	if err == nil {
		target, err = r.tree.Route(hash)
	}
	if err != nil {
		r.config.Logger.Errorf("cannot route tuple with key %v: %v", t.Key, err)
		if r.config.Metrics != nil {
			r.config.Metrics.RouteFailed(r.config.Self.String())
		}
		r.unhandled(env, err)
		return
	}

	r.config.Logger.Tracef("routing key %v (hash %d) to %s", t.Key, hash, target)
	if r.deliver(target, env) && r.config.Metrics != nil {
		r.config.Metrics.TupleRouted(r.config.Self.String())
	}
}

func (r *Router) reconfigure(req routing.Reconfigure) routing.ReconfigureResult {
	result := routing.ReconfigureResult{Request: req}
	result.LowerBound, result.Previous, result.Err = r.apply(req)

	if result.Err != nil {
		r.config.Logger.Warningf("%s of range %d refused: %v", req.Op, req.LowerBound, result.Err)
	} else {
		r.config.Logger.Debugf("%s of range %d applied, now %d ranges", req.Op, req.LowerBound, r.tree.Len())
	}
	if r.config.Metrics != nil {
		r.config.Metrics.Reconfigured(r.config.Self.String(), string(req.Op), result.Err)
		r.config.Metrics.SetPartitions(r.config.Self.String(), r.tree.Len())
	}
	return result
}

func (r *Router) apply(req routing.Reconfigure) (int64, routing.Address, error) {
	if err := req.Op.Validate(); err != nil {
		return 0, "", errors.Trace(err)
	}
	switch req.Op {
	case routing.OpSplit:
		if req.Target == "" {
			return 0, "", errors.NotValidf("split without target")
		}
		lowerBound, err := r.tree.Split(req.LowerBound, req.Target)
		return lowerBound, "", errors.Trace(err)

	case routing.OpMerge:
		previous, err := r.tree.Target(req.LowerBound)
		if err != nil {
			return 0, "", errors.Trace(err)
		}
		lowerBound, err := r.tree.Merge(req.LowerBound)
		if err != nil {
			return 0, "", errors.Trace(err)
		}
		return lowerBound, previous, nil

	default:
		if req.Target == "" {
			return 0, "", errors.NotValidf("swap without target")
		}
		previous, err := r.tree.SetTarget(req.LowerBound, req.Target)
		if err != nil {
			return 0, "", errors.Trace(err)
		}
		return req.LowerBound, previous, nil
	}
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
