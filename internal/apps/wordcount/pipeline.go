// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package wordcount

import (
	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4/catacomb"

	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/core/tuple"
	"github.com/juju/streamrouter/internal/mailbox"
	"github.com/juju/streamrouter/internal/metrics"
	"github.com/juju/streamrouter/internal/worker/boltworker"
	"github.com/juju/streamrouter/internal/worker/suboperator"
)

// CountsStream names the stream from the counters to the sinks.
const CountsStream = "counts"

// Config holds the pipeline's dependencies.
type Config struct {
	// Sinks is the number of sink workers the counts are spread across.
	Sinks int

	// Threshold is passed to every WordCounter.
	Threshold int

	Directory suboperator.Directory
	Hub       *pubsub.SimpleHub
	Metrics   *metrics.Collector
	Logger    suboperator.Logger
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.Sinks < 1 {
		return errors.NotValidf("%d sinks", config.Sinks)
	}
	if config.Directory == nil {
		return errors.NotValidf("nil Directory")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Pipeline counts words: each word goes to its own counter through an
// exact-key router, and counters report to a pool of sinks through a range
// router.
type Pipeline struct {
	catacomb catacomb.Catacomb
	config   Config

	self  routing.Address
	tally *Tally
	sinks *boltworker.Pool
	op    *suboperator.SubOperator
}

// NewPipeline starts the sinks and the counting stage.
func NewPipeline(config Config) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	p := &Pipeline{
		config: config,
		self:   mailbox.NewAddress("wordcount"),
		tally:  NewTally(),
	}

	var err error
	p.sinks, err = boltworker.NewPool(boltworker.Config{
		NewBolt:   NewSink(p.tally),
		Directory: config.Directory,
		Logger:    config.Logger,
	}, config.Sinks)
	if err != nil {
		return nil, errors.Annotate(err, "starting sinks")
	}

	p.op, err = suboperator.NewSubOperator(suboperator.Config{
		NewBolt: NewWordCounter(config.Threshold),
		Streams: map[string][]routing.Address{
			CountsStream: p.sinks.Workers(),
		},
		Directory: config.Directory,
		Hub:       config.Hub,
		Metrics:   config.Metrics,
		Logger:    config.Logger,
	})
	if err != nil {
		p.sinks.Kill()
		_ = p.sinks.Wait()
		return nil, errors.Annotate(err, "starting counters")
	}

	if err := catacomb.Invoke(catacomb.Plan{
		Site: &p.catacomb,
		Work: p.loop,
	}); err != nil {
		p.op.Kill()
		p.sinks.Kill()
		_ = p.op.Wait()
		_ = p.sinks.Wait()
		return nil, errors.Trace(err)
	}
	if err := p.catacomb.Add(p.op); err != nil {
		p.sinks.Kill()
		_ = p.sinks.Wait()
		return nil, errors.Trace(err)
	}
	if err := p.catacomb.Add(p.sinks); err != nil {
		return nil, errors.Trace(err)
	}
	return p, nil
}

// Kill is part of the worker.Worker interface.
func (p *Pipeline) Kill() {
	p.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (p *Pipeline) Wait() error {
	return p.catacomb.Wait()
}

// Tally returns the counts gathered by the sinks.
func (p *Pipeline) Tally() *Tally {
	return p.tally
}

// Stage returns the counting sub-operator.
func (p *Pipeline) Stage() *suboperator.SubOperator {
	return p.op
}

// Send counts one occurrence of word.
func (p *Pipeline) Send(word string, abort <-chan struct{}) error {
	return p.deliver(p.op.InputAddress(), tuple.New(word, 1), abort)
}

// Flush asks every counter to emit what it has accumulated.
func (p *Pipeline) Flush(abort <-chan struct{}) error {
	return p.deliver(p.op.Address(), routing.ActivationCommand{Reason: FlushReason}, abort)
}

func (p *Pipeline) deliver(to routing.Address, msg any, abort <-chan struct{}) error {
	err := p.config.Directory.Deliver(to, routing.Envelope{Sender: p.self, Message: msg}, abort)
	return errors.Trace(err)
}

func (p *Pipeline) loop() error {
	<-p.catacomb.Dying()
	return p.catacomb.ErrDying()
}
