// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package partition

import (
	"fmt"
	"math/bits"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/core/tuple"
)

var logger = loggo.GetLogger("streamrouter.partition")

// Logger is the subset of loggo.Logger used by the tree.
type Logger interface {
	Warningf(string, ...any)
	Debugf(string, ...any)
}

// Range is a snapshot of one partition: every key in
// [LowerBound, UpperBound] is routed to Target.
type Range struct {
	LowerBound int64
	UpperBound int64
	Target     routing.Address
}

// Contains reports whether key lies in the range.
func (r Range) Contains(key int64) bool {
	return key >= r.LowerBound && key <= r.UpperBound
}

// IsUnit reports whether the range covers a single key.
func (r Range) IsUnit() bool {
	return r.LowerBound == r.UpperBound
}

// String implements fmt.Stringer.
func (r Range) String() string {
	return fmt.Sprintf("[%d, %d] -> %s", r.LowerBound, r.UpperBound, r.Target)
}

// node is the value stored under a range's lower bound.
type node struct {
	upper  int64
	target routing.Address

	// depth is the number of bisections between the full domain and this
	// range, and path records them: bit i is 1 when the i-th most recent
	// bisection kept the upper half.
	depth uint8
	path  uint64
}

// Tree partitions the domain [0, max] into contiguous ranges keyed by their
// lower bound. A Tree is not safe for concurrent use; it is owned by a
// single router.
type Tree struct {
	max    int64
	logger Logger

	// buddy is true when the domain size is a power of two. In that case
	// every range produced by bisection is aligned to its own length and
	// siblings are found with the XOR buddy rule. Otherwise they are found
	// by replaying the recorded bisection path.
	buddy bool

	nodes *treemap.Map
}

// Option configures a Tree.
type Option func(*Tree)

// WithMax sets the upper end of the domain. It defaults to tuple.MaxKey.
func WithMax(max int64) Option {
	return func(t *Tree) {
		t.max = max
	}
}

// WithLogger overrides the package logger.
func WithLogger(l Logger) Option {
	return func(t *Tree) {
		t.logger = l
	}
}

func newTree(opts []Option) (*Tree, error) {
	t := &Tree{
		max:    tuple.MaxKey,
		logger: logger,
		nodes:  treemap.NewWith(utils.Int64Comparator),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.max < 0 {
		return nil, errors.NotValidf("negative domain maximum %d", t.max)
	}
	if t.logger == nil {
		return nil, errors.NotValidf("nil Logger")
	}
	size := uint64(t.max) + 1
	t.buddy = size&(size-1) == 0
	return t, nil
}

// New returns a tree holding a single range that covers the whole domain
// and routes to target.
func New(target routing.Address, opts ...Option) (*Tree, error) {
	t, err := newTree(opts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	t.nodes.Put(int64(0), &node{upper: t.max, target: target})
	return t, nil
}

// NewFromTargets returns a tree pre-partitioned across the given targets.
// The first target starts out owning the whole domain; each following
// target takes the upper half of the oldest range not yet split in the
// current round, so ranges are bisected breadth first.
func NewFromTargets(targets []routing.Address, opts ...Option) (*Tree, error) {
	if len(targets) == 0 {
		return nil, errors.NotValidf("empty target list")
	}
	t, err := New(targets[0], opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	queue := []int64{0}
	for _, target := range targets[1:] {
		lowerBound := queue[0]
		queue = queue[1:]
		upper, err := t.Split(lowerBound, target)
		if err != nil {
			return nil, errors.Annotatef(err, "placing %d targets", len(targets))
		}
		queue = append(queue, lowerBound, upper)
	}
	return t, nil
}

// Max returns the upper end of the domain.
func (t *Tree) Max() int64 {
	return t.max
}

// Len returns the number of ranges.
func (t *Tree) Len() int {
	return t.nodes.Size()
}

// Ranges returns the ranges ordered by lower bound.
func (t *Tree) Ranges() []Range {
	result := make([]Range, 0, t.nodes.Size())
	it := t.nodes.Iterator()
	for it.Next() {
		n := it.Value().(*node)
		result = append(result, Range{
			LowerBound: it.Key().(int64),
			UpperBound: n.upper,
			Target:     n.target,
		})
	}
	return result
}

// Route returns the target of the range containing key.
func (t *Tree) Route(key int64) (routing.Address, error) {
	if key < 0 {
		return "", errors.Annotatef(routing.ErrNegativeKeyHash, "routing key %d", key)
	}
	if key > t.max {
		return "", errors.NotValidf("routing key %d above domain maximum %d", key, t.max)
	}
	_, value := t.nodes.Floor(key)
	if value == nil {
		// Unreachable while the ranges cover the domain.
		return "", errors.Errorf("no range covers key %d", key)
	}
	return value.(*node).target, nil
}

// Target returns the target of the range identified by lowerBound.
func (t *Tree) Target(lowerBound int64) (routing.Address, error) {
	n, err := t.get(lowerBound)
	if err != nil {
		return "", errors.Trace(err)
	}
	return n.target, nil
}

// SetTarget rebinds the range identified by lowerBound to target and
// returns the previous target. Range boundaries are untouched.
func (t *Tree) SetTarget(lowerBound int64, target routing.Address) (routing.Address, error) {
	n, err := t.get(lowerBound)
	if err != nil {
		return "", errors.Trace(err)
	}
	old := n.target
	n.target = target
	return old, nil
}

// Range returns the range identified by lowerBound.
func (t *Tree) Range(lowerBound int64) (Range, error) {
	n, err := t.get(lowerBound)
	if err != nil {
		return Range{}, errors.Trace(err)
	}
	return Range{LowerBound: lowerBound, UpperBound: n.upper, Target: n.target}, nil
}

// CanBeSplit reports whether the range identified by lowerBound covers more
// than one key.
func (t *Tree) CanBeSplit(lowerBound int64) (bool, error) {
	n, err := t.get(lowerBound)
	if err != nil {
		return false, errors.Trace(err)
	}
	return lowerBound < n.upper, nil
}

// Split bisects the range identified by lowerBound. The existing range
// keeps the lower half and its target; the upper half is bound to target.
// The lower bound of the upper half is returned.
func (t *Tree) Split(lowerBound int64, target routing.Address) (int64, error) {
	n, err := t.get(lowerBound)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if lowerBound == n.upper {
		return 0, errors.Annotatef(routing.ErrUnitRange, "range %d", lowerBound)
	}

	// Same as (lowerBound+upper)/2 for non-negative bounds, without the
	// overflow at the top of the domain.
	middle := lowerBound + (n.upper-lowerBound)/2
	upper := &node{
		upper:  n.upper,
		target: target,
		depth:  n.depth + 1,
		path:   n.path<<1 | 1,
	}
	n.upper = middle
	n.depth++
	n.path <<= 1
	t.nodes.Put(middle+1, upper)

	t.logger.Debugf("split [%d, %d] at %d, upper half to %s", lowerBound, upper.upper, middle, target)
	return middle + 1, nil
}

// IsSiblingAvailable reports whether the range identified by lowerBound can
// be merged: its sibling exists and has not been split further.
func (t *Tree) IsSiblingAvailable(lowerBound int64) (bool, error) {
	_, err := t.Sibling(lowerBound)
	if errors.Is(err, routing.ErrSiblingUnavailable) {
		return false, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}

// Sibling returns the buddy range that, together with the range identified
// by lowerBound, makes up their common parent. It fails with
// routing.ErrSiblingUnavailable if the sibling does not exist or has been
// split.
func (t *Tree) Sibling(lowerBound int64) (Range, error) {
	n, err := t.get(lowerBound)
	if err != nil {
		return Range{}, errors.Trace(err)
	}
	if n.depth == 0 {
		return Range{}, errors.Annotatef(routing.ErrSiblingUnavailable, "range %d spans the whole domain", lowerBound)
	}

	var lo, hi int64
	if t.buddy {
		lo, hi = buddyOf(lowerBound, n.upper)
	} else {
		lo, hi = replay(t.max, n.path^1, n.depth)
	}

	value, found := t.nodes.Get(lo)
	if !found {
		return Range{}, errors.Annotatef(routing.ErrSiblingUnavailable, "sibling %d of range %d does not exist", lo, lowerBound)
	}
	sibling := value.(*node)
	if sibling.upper != hi {
		return Range{}, errors.Annotatef(routing.ErrSiblingUnavailable, "sibling %d of range %d is split", lo, lowerBound)
	}
	return Range{LowerBound: lo, UpperBound: hi, Target: sibling.target}, nil
}

// Merge folds the range identified by lowerBound into its sibling. The
// target bound at lowerBound is discarded and the merged range keeps the
// sibling's target. The lower bound of the merged range is returned. If
// the sibling is unavailable the tree is left untouched.
func (t *Tree) Merge(lowerBound int64) (int64, error) {
	n, err := t.get(lowerBound)
	if err != nil {
		return 0, errors.Trace(err)
	}
	sibling, err := t.Sibling(lowerBound)
	if err != nil {
		t.logger.Warningf("cannot merge range %d: %v", lowerBound, err)
		return 0, errors.Trace(err)
	}

	value, _ := t.nodes.Get(sibling.LowerBound)
	survivor := value.(*node)
	survivor.depth--
	survivor.path >>= 1

	merged := sibling.LowerBound
	if sibling.LowerBound > lowerBound {
		// The sibling takes over this range's lower boundary.
		t.nodes.Remove(sibling.LowerBound)
		t.nodes.Put(lowerBound, survivor)
		merged = lowerBound
	} else {
		survivor.upper = n.upper
		t.nodes.Remove(lowerBound)
	}

	t.logger.Debugf("merged range %d into %d, dropped target %s", lowerBound, merged, n.target)
	return merged, nil
}

func (t *Tree) get(lowerBound int64) (*node, error) {
	value, found := t.nodes.Get(lowerBound)
	if !found {
		return nil, errors.Annotatef(routing.ErrInvalidBoundary, "lower bound %d", lowerBound)
	}
	return value.(*node), nil
}

// buddyOf applies the binary buddy rule to an aligned range [lo, hi]. If
// lo XOR (hi+1) is a power of two the range is the lower half of its parent
// and the buddy starts at hi+1; otherwise it is the upper half and the
// buddy starts at lo with its lowest set bit cleared. Both halves have the
// same length.
func buddyOf(lo, hi int64) (int64, int64) {
	x := uint64(lo) ^ (uint64(hi) + 1)
	if bits.OnesCount64(x) == 1 {
		return hi + 1, hi + (hi - lo) + 1
	}
	return lo & (lo - 1), lo - 1
}

// replay walks the bisection path from the full domain [0, max] and returns
// the range it ends on. Bit depth-1 of path is the first bisection.
func replay(max int64, path uint64, depth uint8) (int64, int64) {
	lo, hi := int64(0), max
	for i := int(depth) - 1; i >= 0; i-- {
		middle := lo + (hi-lo)/2
		if path>>uint(i)&1 == 0 {
			hi = middle
		} else {
			lo = middle + 1
		}
	}
	return lo, hi
}
