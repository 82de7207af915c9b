// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package suboperator_test

import (
	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/juju/streamrouter/core/bolt"
	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/core/tuple"
	"github.com/juju/streamrouter/internal/mailbox"
	"github.com/juju/streamrouter/internal/worker/suboperator"
	coretesting "github.com/juju/streamrouter/testing"
)

// echoBolt emits every tuple it sees, and the activation reason under
// key zero.
type echoBolt struct {
	collector bolt.Collector
}

func (b *echoBolt) Prepare(collector bolt.Collector) error {
	b.collector = collector
	return nil
}

func (b *echoBolt) Execute(t tuple.Tuple) error {
	return b.collector.Emit(t)
}

func (b *echoBolt) Activate(reason string) error {
	return b.collector.Emit(tuple.New(0, reason))
}

func (b *echoBolt) Cleanup() error {
	return nil
}

func intHasher(key any) (int64, error) {
	k, ok := key.(int)
	if !ok {
		return 0, errors.NotValidf("key %v", key)
	}
	return int64(k), nil
}

type subOperatorSuite struct {
	testing.IsolationSuite

	directory *mailbox.Directory
	hub       *pubsub.SimpleHub
	sinkA     *mailbox.Inbox
	sinkB     *mailbox.Inbox
	client    *mailbox.Inbox
}

var _ = gc.Suite(&subOperatorSuite{})

func (s *subOperatorSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)

	s.directory = coretesting.NewDirectory(c)
	s.hub = coretesting.NewHub(c)
	s.sinkA = coretesting.Register(c, s.directory, "sink-a")
	s.sinkB = coretesting.Register(c, s.directory, "sink-b")
	s.client = coretesting.Register(c, s.directory, "client")
	s.AddCleanup(func(*gc.C) {
		s.sinkA.Close()
		s.sinkB.Close()
		s.client.Close()
	})
}

func (s *subOperatorSuite) config(c *gc.C) suboperator.Config {
	return suboperator.Config{
		NewBolt: func() bolt.Bolt { return &echoBolt{} },
		Streams: map[string][]routing.Address{
			"counts": {"sink-a", "sink-b"},
		},
		Max:       100,
		Hasher:    intHasher,
		Directory: s.directory,
		Hub:       s.hub,
		Logger:    coretesting.NewCheckLogger(c),
	}
}

func (s *subOperatorSuite) newSubOperator(c *gc.C) *suboperator.SubOperator {
	op, err := suboperator.NewSubOperator(s.config(c))
	c.Assert(err, jc.ErrorIsNil)
	return op
}

func (s *subOperatorSuite) send(c *gc.C, to routing.Address, msg any) {
	err := s.directory.Deliver(to, routing.Envelope{Sender: "client", Message: msg}, nil)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *subOperatorSuite) TestValidate(c *gc.C) {
	valid := s.config(c)
	c.Check(valid.Validate(), jc.ErrorIsNil)

	cfg := valid
	cfg.NewBolt = nil
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)
	cfg = valid
	cfg.Streams = map[string][]routing.Address{"empty": nil}
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)
	cfg = valid
	cfg.Directory = nil
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)
	cfg = valid
	cfg.Logger = nil
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)
	cfg = valid
	cfg.Hasher = nil
	c.Check(cfg.Validate(), gc.ErrorMatches, "Max without Hasher not valid")
	cfg = valid
	cfg.Max = -1
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)
}

func (s *subOperatorSuite) TestPortRequest(c *gc.C) {
	op := s.newSubOperator(c)
	defer workertest.CleanKill(c, op)

	s.send(c, op.Address(), routing.PortRequest{})
	env := coretesting.ExpectEnvelope(c, s.client)
	c.Check(env, jc.DeepEquals, routing.Envelope{
		Sender:  op.Address(),
		Message: routing.PortReply{Address: op.InputAddress()},
	})
}

func (s *subOperatorSuite) TestTuplesFlowToStreams(c *gc.C) {
	op := s.newSubOperator(c)
	defer workertest.CleanKill(c, op)

	s.send(c, op.InputAddress(), tuple.New(10, "low"))
	s.send(c, op.InputAddress(), tuple.New(80, "high"))

	env := coretesting.ExpectEnvelope(c, s.sinkA)
	c.Check(env.Message, jc.DeepEquals, tuple.New(10, "low"))
	c.Check(string(env.Sender), gc.Matches, `bolt-.+`)
	env = coretesting.ExpectEnvelope(c, s.sinkB)
	c.Check(env.Message, jc.DeepEquals, tuple.New(80, "high"))
}

func (s *subOperatorSuite) TestOutputReconfigureRelayed(c *gc.C) {
	op := s.newSubOperator(c)
	defer workertest.CleanKill(c, op)

	req := routing.Reconfigure{Op: routing.OpSwap, LowerBound: 51, Target: "sink-a"}
	s.send(c, op.Address(), suboperator.OutputReconfigure{Stream: "counts", Reconfigure: req})

	output, err := op.OutputAddress("counts")
	c.Assert(err, jc.ErrorIsNil)
	env := coretesting.ExpectEnvelope(c, s.client)
	c.Check(env, jc.DeepEquals, routing.Envelope{
		Sender: output,
		Message: routing.ReconfigureResult{
			Request:    req,
			LowerBound: 51,
			Previous:   "sink-b",
		},
	})

	s.send(c, op.InputAddress(), tuple.New(80, nil))
	env = coretesting.ExpectEnvelope(c, s.sinkA)
	c.Check(env.Message, jc.DeepEquals, tuple.New(80, nil))
}

func (s *subOperatorSuite) TestUnknownStream(c *gc.C) {
	watcher := coretesting.WatchUnhandled(s.hub)
	defer watcher.Close()

	op := s.newSubOperator(c)
	defer workertest.CleanKill(c, op)

	_, err := op.OutputAddress("missing")
	c.Check(err, jc.ErrorIs, errors.NotFound)

	s.send(c, op.Address(), suboperator.OutputReconfigure{Stream: "missing"})
	report := watcher.Next(c)
	c.Check(report.Router, gc.Equals, op.Address())
	c.Check(report.Reason, jc.ErrorIs, errors.NotFound)
}

func (s *subOperatorSuite) TestUnknownMessage(c *gc.C) {
	watcher := coretesting.WatchUnhandled(s.hub)
	defer watcher.Close()

	op := s.newSubOperator(c)
	defer workertest.CleanKill(c, op)

	s.send(c, op.Address(), tuple.New(1, nil))
	report := watcher.Next(c)
	c.Check(report.Reason, jc.ErrorIs, routing.ErrUnhandledMessage)
	workertest.CheckAlive(c, op)
}

func (s *subOperatorSuite) TestActivationForwardedToBolts(c *gc.C) {
	op := s.newSubOperator(c)
	defer workertest.CleanKill(c, op)

	s.send(c, op.InputAddress(), tuple.New(5, nil))
	_ = coretesting.ExpectEnvelope(c, s.sinkA)

	s.send(c, op.Address(), routing.ActivationCommand{Reason: "flush"})
	env := coretesting.ExpectEnvelope(c, s.sinkA)
	c.Check(env.Message, jc.DeepEquals, tuple.New(0, "flush"))
}

func (s *subOperatorSuite) TestKillStopsEverything(c *gc.C) {
	op := s.newSubOperator(c)
	s.send(c, op.InputAddress(), tuple.New(5, nil))
	_ = coretesting.ExpectEnvelope(c, s.sinkA)

	workertest.CleanKill(c, op)
	c.Check(s.directory.Addresses(), jc.DeepEquals, []routing.Address{"client", "sink-a", "sink-b"})
}

func (s *subOperatorSuite) TestNoStreams(c *gc.C) {
	cfg := s.config(c)
	cfg.Streams = nil
	op, err := suboperator.NewSubOperator(cfg)
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, op)

	s.send(c, op.InputAddress(), tuple.New(5, nil))
	coretesting.ExpectNoEnvelope(c, s.sinkA)
}
