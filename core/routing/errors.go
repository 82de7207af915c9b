// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package routing

import "github.com/juju/errors"

const (
	// ErrInvalidBoundary is returned when an operation references a lower
	// bound that does not identify a range in the partition tree.
	ErrInvalidBoundary = errors.ConstError("invalid range boundary")

	// ErrSiblingUnavailable is returned when a merge is requested but the
	// buddy range either does not exist or has itself been split.
	ErrSiblingUnavailable = errors.ConstError("sibling range unavailable")

	// ErrUnitRange is returned when a split is requested on a range that
	// covers a single key.
	ErrUnitRange = errors.ConstError("unit range cannot be split")

	// ErrUnhandledMessage is published when a router receives a message it
	// does not understand.
	ErrUnhandledMessage = errors.ConstError("unhandled message")

	// ErrNegativeKeyHash is returned when a routing key hashes outside the
	// non-negative partition domain.
	ErrNegativeKeyHash = errors.ConstError("negative key hash")

	// ErrUnknownAddress is returned when a message is delivered to an
	// address that has no registered mailbox.
	ErrUnknownAddress = errors.ConstError("unknown address")

	// ErrDeliveryTimeout is returned when a mailbox does not accept a
	// message in time.
	ErrDeliveryTimeout = errors.ConstError("delivery timed out")
)
