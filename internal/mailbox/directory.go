// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mailbox

import (
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/rs/xid"

	"github.com/juju/streamrouter/core/routing"
)

var logger = loggo.GetLogger("streamrouter.mailbox")

// DefaultInboxSize is the buffer size of an inbox when none is configured.
const DefaultInboxSize = 64

// Logger is the subset of loggo.Logger used by the directory.
type Logger interface {
	Tracef(string, ...any)
	Debugf(string, ...any)
}

// NewAddress mints a fresh, unique address with the given prefix.
func NewAddress(prefix string) routing.Address {
	return routing.Address(prefix + "-" + xid.New().String())
}

// Config holds the directory's dependencies.
type Config struct {
	// Clock times out deliveries.
	Clock clock.Clock

	// DeliveryTimeout bounds how long Deliver waits for a full inbox. Zero
	// means wait until aborted.
	DeliveryTimeout time.Duration

	// InboxSize is the buffer size of each inbox.
	InboxSize int

	// Logger is optional and defaults to the package logger.
	Logger Logger
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.DeliveryTimeout < 0 {
		return errors.NotValidf("negative DeliveryTimeout")
	}
	if config.InboxSize < 0 {
		return errors.NotValidf("negative InboxSize")
	}
	return nil
}

// Directory is an in-process routing.Transport. It maps addresses to inbox
// channels. Inboxes are never closed: a deregistered inbox simply stops
// receiving, and its owner stops reading it.
type Directory struct {
	config Config

	mu      sync.RWMutex
	inboxes map[routing.Address]chan routing.Envelope
}

// NewDirectory returns an empty directory.
func NewDirectory(config Config) (*Directory, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.InboxSize == 0 {
		config.InboxSize = DefaultInboxSize
	}
	if config.Logger == nil {
		config.Logger = logger
	}
	return &Directory{
		config:  config,
		inboxes: make(map[routing.Address]chan routing.Envelope),
	}, nil
}

// Register creates an inbox for the address.
func (d *Directory) Register(addr routing.Address) (*Inbox, error) {
	if addr == "" {
		return nil, errors.NotValidf("empty address")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inboxes[addr]; ok {
		return nil, errors.AlreadyExistsf("inbox %q", addr)
	}
	ch := make(chan routing.Envelope, d.config.InboxSize)
	d.inboxes[addr] = ch
	d.config.Logger.Debugf("registered inbox %s", addr)
	return &Inbox{address: addr, ch: ch, directory: d}, nil
}

// Deliver is part of the routing.Transport interface.
func (d *Directory) Deliver(to routing.Address, env routing.Envelope, abort <-chan struct{}) error {
	d.mu.RLock()
	ch, ok := d.inboxes[to]
	d.mu.RUnlock()
	if !ok {
		return errors.Annotatef(routing.ErrUnknownAddress, "delivering %T to %q", env.Message, to)
	}

	// Fast path: the inbox has room.
	select {
	case ch <- env:
		d.config.Logger.Tracef("delivered %T from %q to %q", env.Message, env.Sender, to)
		return nil
	default:
	}

	var timeout <-chan time.Time
	if d.config.DeliveryTimeout > 0 {
		timeout = d.config.Clock.After(d.config.DeliveryTimeout)
	}
	select {
	case ch <- env:
		d.config.Logger.Tracef("delivered %T from %q to %q", env.Message, env.Sender, to)
		return nil
	case <-abort:
		return errors.Errorf("delivery of %T to %q aborted", env.Message, to)
	case <-timeout:
		return errors.Annotatef(routing.ErrDeliveryTimeout, "inbox %q full after %v", to, d.config.DeliveryTimeout)
	}
}

// Addresses returns the registered addresses in sorted order.
func (d *Directory) Addresses() []routing.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]routing.Address, 0, len(d.inboxes))
	for addr := range d.inboxes {
		result = append(result, addr)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func (d *Directory) unregister(addr routing.Address) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inboxes, addr)
	d.config.Logger.Debugf("unregistered inbox %s", addr)
}

// Inbox is the receiving end of a registered address.
type Inbox struct {
	address   routing.Address
	ch        chan routing.Envelope
	directory *Directory
	once      sync.Once
}

// Address returns the address the inbox is registered under.
func (i *Inbox) Address() routing.Address {
	return i.address
}

// Receive returns the channel envelopes arrive on.
func (i *Inbox) Receive() <-chan routing.Envelope {
	return i.ch
}

// Close deregisters the inbox. Envelopes already queued are dropped.
func (i *Inbox) Close() {
	i.once.Do(func() {
		i.directory.unregister(i.address)
	})
}
