// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testing

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/pubsub/v2"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/streamrouter/core/routing"
	"github.com/juju/streamrouter/internal/mailbox"
)

const (
	// LongWait is used when something should have already happened, or
	// happens quickly, but we want to make sure we just haven't missed it.
	LongWait = 10 * time.Second

	// ShortWait is used when we are waiting for something to happen, but
	// we are not sure it will happen.
	ShortWait = 50 * time.Millisecond
)

// NewDirectory returns a directory backed by the wall clock with no
// delivery timeout.
func NewDirectory(c *gc.C) *mailbox.Directory {
	d, err := mailbox.NewDirectory(mailbox.Config{
		Clock:  clock.WallClock,
		Logger: NewCheckLogger(c),
	})
	c.Assert(err, jc.ErrorIsNil)
	return d
}

// Register registers an inbox for the address.
func Register(c *gc.C, d *mailbox.Directory, addr routing.Address) *mailbox.Inbox {
	inbox, err := d.Register(addr)
	c.Assert(err, jc.ErrorIsNil)
	return inbox
}

// ExpectEnvelope waits for the next envelope on the inbox.
func ExpectEnvelope(c *gc.C, inbox *mailbox.Inbox) routing.Envelope {
	select {
	case env := <-inbox.Receive():
		return env
	case <-time.After(LongWait):
		c.Fatalf("timed out waiting for envelope on %s", inbox.Address())
	}
	panic("unreachable")
}

// ExpectNoEnvelope checks that nothing arrives on the inbox for a short
// while.
func ExpectNoEnvelope(c *gc.C, inbox *mailbox.Inbox) {
	select {
	case env := <-inbox.Receive():
		c.Fatalf("unexpected %T from %q on %s", env.Message, env.Sender, inbox.Address())
	case <-time.After(ShortWait):
	}
}

// UnhandledWatcher collects routing.Unhandled reports published on a hub.
type UnhandledWatcher struct {
	unsubscribe func()
	ch          chan routing.Unhandled

	mu     sync.Mutex
	closed bool
}

// NewHub returns a hub that logs to the test.
func NewHub(c *gc.C) *pubsub.SimpleHub {
	return pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
		Logger: NewCheckLogger(c),
	})
}

// WatchUnhandled subscribes to routing.UnhandledTopic on the hub.
func WatchUnhandled(hub *pubsub.SimpleHub) *UnhandledWatcher {
	w := &UnhandledWatcher{ch: make(chan routing.Unhandled, 16)}
	w.unsubscribe = hub.Subscribe(routing.UnhandledTopic, func(_ string, data any) {
		report, ok := data.(routing.Unhandled)
		if !ok {
			return
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.closed {
			return
		}
		select {
		case w.ch <- report:
		default:
		}
	})
	return w
}

// Next waits for the next report.
func (w *UnhandledWatcher) Next(c *gc.C) routing.Unhandled {
	select {
	case report := <-w.ch:
		return report
	case <-time.After(LongWait):
		c.Fatalf("timed out waiting for unhandled report")
	}
	panic("unreachable")
}

// Close unsubscribes the watcher.
func (w *UnhandledWatcher) Close() {
	w.unsubscribe()
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}
