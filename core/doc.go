// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

/*
Package core holds the concepts shared by every stage of a stream: tuples and
their keys, the messages routers understand, and the bolt contract run by
workers.

When adding to core:

  - it's fine to import from any subpackage of
    "github.com/juju/streamrouter/core"
  - but never import from any other subpackage of
    "github.com/juju/streamrouter"
  - no goroutines, no channels owned here, no mutable global state

Routers, mailboxes and workers live under internal/ and depend on core, never
the other way around.
*/
package core
