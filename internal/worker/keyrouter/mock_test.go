// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package keyrouter_test

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/core/tuple"
	"github.com/juju/streamrouter/internal/mailbox"
	"github.com/juju/streamrouter/internal/worker/keyrouter"
	coretesting "github.com/juju/streamrouter/testing"
)

type mockFactorySuite struct {
	testing.IsolationSuite

	directory *mailbox.Directory
	factory   *MockWorkerFactory
}

var _ = gc.Suite(&mockFactorySuite{})

func (s *mockFactorySuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)
	s.factory = NewMockWorkerFactory(ctrl)
	s.directory = coretesting.NewDirectory(c)
	return ctrl
}

func (s *mockFactorySuite) newRouter(c *gc.C) *keyrouter.Router {
	r, err := keyrouter.NewRouter(keyrouter.Config{
		Self:      "input",
		Factory:   s.factory,
		Directory: s.directory,
		Logger:    coretesting.NewCheckLogger(c),
	})
	c.Assert(err, jc.ErrorIsNil)
	return r
}

func (s *mockFactorySuite) TestCreateWorkerExactlyOncePerKey(c *gc.C) {
	defer s.setupMocks(c).Finish()

	cats := coretesting.Register(c, s.directory, "cats")
	defer cats.Close()
	dogs := coretesting.Register(c, s.directory, "dogs")
	defer dogs.Close()

	s.factory.EXPECT().Bind(gomock.Any()).DoAndReturn(func(ctx routing.BindContext) error {
		c.Check(ctx.Self, gc.Equals, routing.Address("input"))
		return nil
	})
	gomock.InOrder(
		s.factory.EXPECT().CreateWorker().Return(routing.Address("cats"), nil),
		s.factory.EXPECT().CreateWorker().Return(routing.Address("dogs"), nil),
	)

	r := s.newRouter(c)
	defer workertest.CleanKill(c, r)

	for _, key := range []string{"cat", "dog", "cat", "dog", "cat"} {
		err := s.directory.Deliver(r.Address(), routing.Envelope{Message: tuple.New(key, nil)}, nil)
		c.Assert(err, jc.ErrorIsNil)
	}
	workers, err := r.Workers(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(workers, jc.DeepEquals, []routing.Address{"cats", "dogs"})

	for i := 0; i < 3; i++ {
		env := coretesting.ExpectEnvelope(c, cats)
		c.Check(env.Message, jc.DeepEquals, tuple.New("cat", nil))
	}
	for i := 0; i < 2; i++ {
		env := coretesting.ExpectEnvelope(c, dogs)
		c.Check(env.Message, jc.DeepEquals, tuple.New("dog", nil))
	}
}

func (s *mockFactorySuite) TestUnreachableWorkerKeepsRouter(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.factory.EXPECT().Bind(gomock.Any()).Return(nil)
	s.factory.EXPECT().CreateWorker().Return(routing.Address("gone"), nil)

	r := s.newRouter(c)
	defer workertest.CleanKill(c, r)

	err := s.directory.Deliver(r.Address(), routing.Envelope{Message: tuple.New("cat", nil)}, nil)
	c.Assert(err, jc.ErrorIsNil)

	// The key stays bound even though the worker never registered.
	workers, err := r.Workers(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(workers, jc.DeepEquals, []routing.Address{"gone"})
	workertest.CheckAlive(c, r)
}

func (s *mockFactorySuite) TestBindError(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.factory.EXPECT().Bind(gomock.Any()).Return(errors.NotSupportedf("remote workers"))

	r := s.newRouter(c)
	err := workertest.CheckKilled(c, r)
	c.Check(err, jc.ErrorIs, errors.NotSupported)
}
