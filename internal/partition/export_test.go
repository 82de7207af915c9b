// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package partition

// SiblingBounds returns the sibling bounds of the range at lowerBound as
// computed by the buddy rule and by replaying the bisection path.
func SiblingBounds(t *Tree, lowerBound int64) (buddy, replayed [2]int64) {
	n, err := t.get(lowerBound)
	if err != nil {
		panic(err)
	}
	lo, hi := buddyOf(lowerBound, n.upper)
	buddy = [2]int64{lo, hi}
	lo, hi = replay(t.max, n.path^1, n.depth)
	replayed = [2]int64{lo, hi}
	return buddy, replayed
}

// Depth returns the bisection depth of the range at lowerBound.
func Depth(t *Tree, lowerBound int64) int {
	n, err := t.get(lowerBound)
	if err != nil {
		panic(err)
	}
	return int(n.depth)
}
