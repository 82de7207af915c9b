// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package routing

// Address identifies a worker or router mailbox. It is a plain handle: it
// can be copied and compared freely and owns nothing.
type Address string

// String returns the address as a string.
func (a Address) String() string {
	return string(a)
}

// Envelope carries a message together with the address of the party that
// originally sent it. Routers forward envelopes without rewriting the
// sender, so replies go straight back to the originator.
type Envelope struct {
	Sender  Address
	Message any
}

// Transport delivers envelopes to mailboxes.
type Transport interface {
	// Deliver hands the envelope to the mailbox registered at the given
	// address. It blocks until the mailbox accepts the envelope, the abort
	// channel is closed, or the transport gives up.
	Deliver(to Address, env Envelope, abort <-chan struct{}) error
}
