// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package suboperator

import (
	"sort"

	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"

	"github.com/juju/streamrouter/core/bolt"
	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/core/tuple"
	"github.com/juju/streamrouter/internal/mailbox"
	"github.com/juju/streamrouter/internal/metrics"
	"github.com/juju/streamrouter/internal/worker/boltworker"
	"github.com/juju/streamrouter/internal/worker/common"
	"github.com/juju/streamrouter/internal/worker/keyrouter"
	"github.com/juju/streamrouter/internal/worker/rangerouter"
)

// Logger represents the methods used by the sub-operator and the routers
// it owns to log details.
type Logger interface {
	Errorf(string, ...any)
	Warningf(string, ...any)
	Infof(string, ...any)
	Debugf(string, ...any)
	Tracef(string, ...any)
}

// Directory registers inboxes and delivers messages.
type Directory interface {
	routing.Transport
	Register(routing.Address) (*mailbox.Inbox, error)
}

// OutputReconfigure asks the sub-operator to relay a Reconfigure to the
// output router of the named stream. The router replies to the original
// sender.
type OutputReconfigure struct {
	Stream      string
	Reconfigure routing.Reconfigure
}

// Config holds the sub-operator's dependencies.
type Config struct {
	// Self is the sub-operator's address. A fresh one is minted if empty.
	Self routing.Address

	// NewBolt creates the logic run for each distinct input key.
	NewBolt bolt.NewFunc

	// Streams maps each downstream stream to the addresses its output
	// router partitions the key space across.
	Streams map[string][]routing.Address

	// Max and Hasher configure the output routers. See rangerouter.Config.
	Max    int64
	Hasher tuple.Hasher

	Directory Directory
	Hub       *pubsub.SimpleHub
	Metrics   *metrics.Collector
	Logger    Logger
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.NewBolt == nil {
		return errors.NotValidf("nil NewBolt")
	}
	if config.Max < 0 {
		return errors.NotValidf("negative Max")
	}
	if config.Max != 0 && config.Max != tuple.MaxKey && config.Hasher == nil {
		return errors.NotValidf("Max without Hasher")
	}
	for stream, targets := range config.Streams {
		if len(targets) == 0 {
			return errors.NotValidf("stream %q without targets", stream)
		}
	}
	if config.Directory == nil {
		return errors.NotValidf("nil Directory")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// SubOperator is one instance of a bolt stage. Tuples enter through its
// exact-key input router, which runs one bolt per key; whatever the bolts
// emit goes through one range router per downstream stream.
type SubOperator struct {
	catacomb catacomb.Catacomb
	config   Config

	inbox   *mailbox.Inbox
	input   *keyrouter.Router
	outputs map[string]*rangerouter.Router
}

// NewSubOperator starts the output routers, the input router and the
// sub-operator itself.
func NewSubOperator(config Config) (_ *SubOperator, err error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Self == "" {
		config.Self = mailbox.NewAddress("sub-operator")
	}

	s := &SubOperator{
		config:  config,
		outputs: make(map[string]*rangerouter.Router),
	}
	var started []worker.Worker
	defer func() {
		if err == nil {
			return
		}
		for _, w := range started {
			w.Kill()
			_ = w.Wait()
		}
	}()

	outputs := make([]routing.Address, 0, len(config.Streams))
	for _, stream := range s.streams() {
		r, err := rangerouter.NewRouter(rangerouter.Config{
			Targets:   config.Streams[stream],
			Max:       config.Max,
			Hasher:    config.Hasher,
			Directory: config.Directory,
			Hub:       config.Hub,
			Metrics:   config.Metrics,
			Logger:    config.Logger,
		})
		if err != nil {
			return nil, errors.Annotatef(err, "starting output router for %q", stream)
		}
		started = append(started, r)
		s.outputs[stream] = r
		outputs = append(outputs, r.Address())
	}

	factory, err := boltworker.NewFactory(boltworker.Config{
		NewBolt:   config.NewBolt,
		Directory: config.Directory,
		Outputs:   outputs,
		Logger:    config.Logger,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	s.input, err = keyrouter.NewRouter(keyrouter.Config{
		Factory:   factory,
		Directory: config.Directory,
		Hub:       config.Hub,
		Metrics:   config.Metrics,
		Logger:    config.Logger,
	})
	if err != nil {
		return nil, errors.Annotate(err, "starting input router")
	}
	started = append(started, s.input)

	if s.inbox, err = config.Directory.Register(config.Self); err != nil {
		return nil, errors.Trace(err)
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &s.catacomb,
		Work: s.loop,
	}); err != nil {
		s.inbox.Close()
		return nil, errors.Trace(err)
	}
	for _, w := range started {
		if err := s.catacomb.Add(w); err != nil {
			s.Kill()
			_ = s.Wait()
			return nil, errors.Trace(err)
		}
	}
	config.Logger.Infof("sub-operator %s started with input %s and %d output streams",
		config.Self, s.input.Address(), len(s.outputs))
	return s, nil
}

// Kill is part of the worker.Worker interface.
func (s *SubOperator) Kill() {
	s.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (s *SubOperator) Wait() error {
	return s.catacomb.Wait()
}

// Address returns the sub-operator's control address.
func (s *SubOperator) Address() routing.Address {
	return s.config.Self
}

// InputAddress returns the address upstream producers send tuples to.
func (s *SubOperator) InputAddress() routing.Address {
	return s.input.Address()
}

// OutputAddress returns the address of the named stream's output router.
func (s *SubOperator) OutputAddress(stream string) (routing.Address, error) {
	r, ok := s.outputs[stream]
	if !ok {
		return "", errors.NotFoundf("stream %q", stream)
	}
	return r.Address(), nil
}

// Report is part of the dependency.Reporter interface.
func (s *SubOperator) Report() map[string]any {
	outputs := make(map[string]any, len(s.outputs))
	for stream, r := range s.outputs {
		outputs[stream] = r.Report()
	}
	return map[string]any{
		"address": s.config.Self.String(),
		"input":   s.input.Report(),
		"outputs": outputs,
	}
}

func (s *SubOperator) streams() []string {
	streams := make([]string, 0, len(s.config.Streams))
	for stream := range s.config.Streams {
		streams = append(streams, stream)
	}
	sort.Strings(streams)
	return streams
}

func (s *SubOperator) loop() error {
	defer s.inbox.Close()

	for {
		select {
		case <-s.catacomb.Dying():
			return s.catacomb.ErrDying()
		case env := <-s.inbox.Receive():
			s.handle(env)
		}
	}
}

func (s *SubOperator) handle(env routing.Envelope) {
	switch msg := env.Message.(type) {
	case routing.PortRequest:
		s.deliver(env.Sender, routing.Envelope{
			Sender:  s.config.Self,
			Message: routing.PortReply{Address: s.input.Address()},
		})

	case OutputReconfigure:
		r, ok := s.outputs[msg.Stream]
		if !ok {
			s.unhandled(env, errors.NotFoundf("stream %q", msg.Stream))
			return
		}
		s.config.Logger.Infof("relaying %s of range %d to stream %q", msg.Reconfigure.Op, msg.Reconfigure.LowerBound, msg.Stream)
		s.deliver(r.Address(), routing.Envelope{Sender: env.Sender, Message: msg.Reconfigure})

	case routing.ActivationCommand:
		s.deliver(s.input.Address(), env)

	default:
		s.unhandled(env, routing.ErrUnhandledMessage)
	}
}

func (s *SubOperator) unhandled(env routing.Envelope, reason error) {
	if s.config.Metrics != nil {
		s.config.Metrics.Unhandled(s.config.Self.String())
	}
	common.PublishUnhandled(s.config.Hub, s.config.Logger, s.config.Self, env, reason)
}

func (s *SubOperator) deliver(to routing.Address, env routing.Envelope) {
	if to == "" {
		return
	}
	if err := s.config.Directory.Deliver(to, env, s.catacomb.Dying()); err != nil {
		s.config.Logger.Warningf("cannot deliver %T to %s: %v", env.Message, to, err)
	}
}
