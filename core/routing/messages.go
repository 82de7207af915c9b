// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package routing

import "github.com/juju/errors"

// ReconfigureOp names a routing table mutation.
type ReconfigureOp string

const (
	// OpSplit halves a range and hands the upper half to a new target.
	OpSplit ReconfigureOp = "split"

	// OpMerge folds a range back into its sibling.
	OpMerge ReconfigureOp = "merge"

	// OpSwap replaces the target bound to a range.
	OpSwap ReconfigureOp = "swap"
)

// Validate returns an error if the op is not one of the known operations.
func (op ReconfigureOp) Validate() error {
	switch op {
	case OpSplit, OpMerge, OpSwap:
		return nil
	}
	return errors.NotValidf("reconfigure op %q", string(op))
}

// Reconfigure asks a range router to mutate its partition tree.
type Reconfigure struct {
	Op ReconfigureOp

	// LowerBound identifies the range the operation applies to.
	LowerBound int64

	// Target is the new worker for split and swap. It is ignored by merge.
	Target Address
}

// ReconfigureResult reports the outcome of a Reconfigure request back to
// its sender.
type ReconfigureResult struct {
	Request Reconfigure

	// LowerBound is the identity of the range produced by the operation:
	// the new upper half for split, the surviving range for merge and the
	// unchanged range for swap.
	LowerBound int64

	// Previous is the target that was replaced by a swap, or discarded by
	// a merge.
	Previous Address

	// Err is nil when the operation was applied.
	Err error
}

// ActivationCommand is a pool-wide lifecycle signal relayed to every known
// worker.
type ActivationCommand struct {
	Reason string
}

// PortRequest asks a router for the address upstream producers should send
// tuples to.
type PortRequest struct{}

// PortReply answers a PortRequest.
type PortReply struct {
	Address Address
}

// UnhandledTopic is the hub topic on which routers publish messages they do
// not understand.
const UnhandledTopic = "streamrouter.unhandled"

// Unhandled is the payload published on UnhandledTopic.
type Unhandled struct {
	Router   Address
	Envelope Envelope
	Reason   error
}
