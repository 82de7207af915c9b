// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package common

import "context"

// Abort returns a channel that is closed when either the context is done or
// dying is closed. The returned stop func must be called to release the
// goroutine watching them.
func Abort(ctx context.Context, dying <-chan struct{}) (<-chan struct{}, func()) {
	abort := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			close(abort)
		case <-dying:
			close(abort)
		case <-stop:
		}
	}()
	return abort, func() { close(stop) }
}
