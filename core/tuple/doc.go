// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package tuple holds the stream element type and the hashing rules that
// place a tuple's key in the partition domain.
package tuple
