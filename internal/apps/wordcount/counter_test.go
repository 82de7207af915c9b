// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package wordcount_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/streamrouter/core/bolt"
	"github.com/juju/streamrouter/core/tuple"
	"github.com/juju/streamrouter/internal/apps/wordcount"
)

type collector struct {
	emitted []tuple.Tuple
}

func (c *collector) Emit(t tuple.Tuple) error {
	c.emitted = append(c.emitted, t)
	return nil
}

type counterSuite struct {
	testing.IsolationSuite

	collector *collector
}

var _ = gc.Suite(&counterSuite{})

func (s *counterSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.collector = &collector{}
}

func (s *counterSuite) newCounter(c *gc.C, threshold int) bolt.Bolt {
	b := wordcount.NewWordCounter(threshold)()
	c.Assert(b.Prepare(s.collector), jc.ErrorIsNil)
	return b
}

func (s *counterSuite) TestEmitsAtThreshold(c *gc.C) {
	b := s.newCounter(c, 2)

	c.Assert(b.Execute(tuple.New("cat", 1)), jc.ErrorIsNil)
	c.Check(s.collector.emitted, gc.HasLen, 0)
	c.Assert(b.Execute(tuple.New("cat", 1)), jc.ErrorIsNil)
	c.Assert(b.Execute(tuple.New("cat", 1)), jc.ErrorIsNil)
	c.Check(s.collector.emitted, jc.DeepEquals, []tuple.Tuple{tuple.New("cat", 2)})

	c.Assert(b.Cleanup(), jc.ErrorIsNil)
	c.Check(s.collector.emitted, jc.DeepEquals, []tuple.Tuple{
		tuple.New("cat", 2),
		tuple.New("cat", 1),
	})
}

func (s *counterSuite) TestFlush(c *gc.C) {
	b := s.newCounter(c, 0)
	activator, ok := b.(bolt.Activator)
	c.Assert(ok, jc.IsTrue)

	c.Assert(b.Execute(tuple.New("dog", 3)), jc.ErrorIsNil)
	c.Assert(activator.Activate("something else"), jc.ErrorIsNil)
	c.Check(s.collector.emitted, gc.HasLen, 0)

	c.Assert(activator.Activate(wordcount.FlushReason), jc.ErrorIsNil)
	c.Check(s.collector.emitted, jc.DeepEquals, []tuple.Tuple{tuple.New("dog", 3)})

	// Nothing left for cleanup.
	c.Assert(b.Cleanup(), jc.ErrorIsNil)
	c.Check(s.collector.emitted, gc.HasLen, 1)
}

func (s *counterSuite) TestRejectsOtherWords(c *gc.C) {
	b := s.newCounter(c, 0)

	c.Assert(b.Execute(tuple.New("cat", 1)), jc.ErrorIsNil)
	err := b.Execute(tuple.New("dog", 1))
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *counterSuite) TestRejectsMalformedTuples(c *gc.C) {
	b := s.newCounter(c, 0)

	c.Check(b.Execute(tuple.New(7, 1)), jc.ErrorIs, errors.NotValid)
	c.Check(b.Execute(tuple.New("cat", "one")), jc.ErrorIs, errors.NotValid)
	c.Assert(b.Cleanup(), jc.ErrorIsNil)
	c.Check(s.collector.emitted, gc.HasLen, 0)
}
