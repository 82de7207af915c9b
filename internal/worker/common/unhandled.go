// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package common

import (
	"github.com/juju/pubsub/v2"

	"github.com/juju/streamrouter/core/routing"
)

// Logger represents the methods used to log unhandled messages.
type Logger interface {
	Warningf(string, ...any)
	Debugf(string, ...any)
}

// PublishUnhandled reports a message the router could not process on the
// hub, where the supervising party listens for routing.UnhandledTopic.
// Without a hub the log is the only record, so the message is logged as a
// warning.
func PublishUnhandled(hub *pubsub.SimpleHub, logger Logger, router routing.Address, env routing.Envelope, reason error) {
	if hub == nil {
		logger.Warningf("%s dropped unhandled %T from %q: %v", router, env.Message, env.Sender, reason)
		return
	}
	logger.Debugf("unhandled %T from %q: %v", env.Message, env.Sender, reason)
	_ = hub.Publish(routing.UnhandledTopic, routing.Unhandled{
		Router:   router,
		Envelope: env,
		Reason:   reason,
	})
}
