// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package routing defines the contracts shared by the stream routers: the
// addresses and envelopes they exchange, the control messages that
// reconfigure them, the worker factory they provision workers through, and
// the errors they report.
package routing
