// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package tuple_test

import (
	"math"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/core/tuple"
)

type tupleSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&tupleSuite{})

type selfHashed int64

func (k selfHashed) RouteHash() int64 {
	return int64(k)
}

type point struct {
	x, y int
}

func (s *tupleSuite) TestValidate(c *gc.C) {
	c.Check(tuple.New("cat", 1).Validate(), jc.ErrorIsNil)
	c.Check(tuple.New(point{1, 2}, nil).Validate(), jc.ErrorIsNil)
	c.Check(tuple.New(nil, 1).Validate(), jc.ErrorIs, errors.NotValid)
	c.Check(tuple.New([]int{1}, 1).Validate(), jc.ErrorIs, errors.NotValid)
	c.Check(tuple.New(map[string]int{}, 1).Validate(), jc.ErrorIs, errors.NotValid)
}

type reading struct {
	sensor string
	value  float64
}

func (s *tupleSuite) TestValidateRejectsNaN(c *gc.C) {
	c.Check(tuple.New(1.5, nil).Validate(), jc.ErrorIsNil)
	c.Check(tuple.New(math.NaN(), nil).Validate(), jc.ErrorIs, errors.NotValid)
	c.Check(tuple.New(float32(math.NaN()), nil).Validate(), jc.ErrorIs, errors.NotValid)
	c.Check(tuple.New(complex(0, math.NaN()), nil).Validate(), jc.ErrorIs, errors.NotValid)
	c.Check(tuple.New(reading{"t1", math.NaN()}, nil).Validate(), jc.ErrorIs, errors.NotValid)
	c.Check(tuple.New([2]any{1, math.NaN()}, nil).Validate(), jc.ErrorIs, errors.NotValid)
}

func (s *tupleSuite) TestEqualKeysHashEqual(c *gc.C) {
	negZero := math.Copysign(0, -1)
	for i, pair := range [][2]any{
		{0.0, negZero},
		{float32(0), float32(negZero)},
		{complex(negZero, 1), complex(0, 1)},
		{reading{"t1", 0}, reading{"t1", negZero}},
		{[2]float64{negZero, 1}, [2]float64{0, 1}},
	} {
		c.Logf("test %d: %#v", i, pair)
		a, b := tuple.New(pair[0], nil), tuple.New(pair[1], nil)
		c.Assert(a.SameKey(b), jc.IsTrue)

		ha, err := a.Hash()
		c.Assert(err, jc.ErrorIsNil)
		hb, err := b.Hash()
		c.Assert(err, jc.ErrorIsNil)
		c.Check(ha, gc.Equals, hb)
	}
}

func (s *tupleSuite) TestCompositeKeysHashByValue(c *gc.C) {
	a, err := tuple.HashKey(reading{"t1", 1.5})
	c.Assert(err, jc.ErrorIsNil)
	b, err := tuple.HashKey(reading{"t1", 2.5})
	c.Assert(err, jc.ErrorIsNil)
	again, err := tuple.HashKey(reading{"t1", 1.5})
	c.Assert(err, jc.ErrorIsNil)

	c.Check(a, gc.Not(gc.Equals), b)
	c.Check(a, gc.Equals, again)
}

func (s *tupleSuite) TestSameKey(c *gc.C) {
	c.Check(tuple.New("cat", 1).SameKey(tuple.New("cat", 2)), jc.IsTrue)
	c.Check(tuple.New("cat", 1).SameKey(tuple.New("dog", 1)), jc.IsFalse)
	c.Check(tuple.New(1, nil).SameKey(tuple.New(int64(1), nil)), jc.IsFalse)
	c.Check(tuple.New([]int{1}, nil).SameKey(tuple.New([]int{1}, nil)), jc.IsFalse)
}

func (s *tupleSuite) TestString(c *gc.C) {
	c.Check(tuple.New("cat", 3).String(), gc.Equals, "(cat, 3)")
}

func (s *tupleSuite) TestHashDeterministic(c *gc.C) {
	for _, key := range []any{"cat", 42, int64(42), uint8(7), true, []byte("raw"), point{1, 2}} {
		a, err := tuple.HashKey(key)
		c.Assert(err, jc.ErrorIsNil)
		b, err := tuple.New(key, "ignored").Hash()
		c.Assert(err, jc.ErrorIsNil)
		c.Check(a, gc.Equals, b, gc.Commentf("key %#v", key))
		c.Check(a >= 0, jc.IsTrue, gc.Commentf("key %#v", key))
	}
}

func (s *tupleSuite) TestHashDistinguishesTypes(c *gc.C) {
	str, err := tuple.HashKey("1")
	c.Assert(err, jc.ErrorIsNil)
	num, err := tuple.HashKey(1)
	c.Assert(err, jc.ErrorIsNil)
	unsigned, err := tuple.HashKey(uint(1))
	c.Assert(err, jc.ErrorIsNil)

	c.Check(str, gc.Not(gc.Equals), num)
	c.Check(num, gc.Not(gc.Equals), unsigned)
}

func (s *tupleSuite) TestHashNonNegative(c *gc.C) {
	for i := 0; i < 10000; i++ {
		h, err := tuple.HashKey(i)
		c.Assert(err, jc.ErrorIsNil)
		if h < 0 || h > tuple.MaxKey {
			c.Fatalf("hash of %d out of domain: %d", i, h)
		}
	}
}

func (s *tupleSuite) TestHashNilKey(c *gc.C) {
	_, err := tuple.HashKey(nil)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *tupleSuite) TestHashable(c *gc.C) {
	h, err := tuple.HashKey(selfHashed(1234))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(h, gc.Equals, int64(1234))

	_, err = tuple.HashKey(selfHashed(-1))
	c.Check(err, jc.ErrorIs, routing.ErrNegativeKeyHash)
}

func (s *tupleSuite) TestCheckHash(c *gc.C) {
	h, err := tuple.CheckHash(0)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(h, gc.Equals, int64(0))

	_, err = tuple.CheckHash(-5)
	c.Check(err, gc.ErrorMatches, "hash -5: .*")
	c.Check(err, jc.ErrorIs, routing.ErrNegativeKeyHash)
}
