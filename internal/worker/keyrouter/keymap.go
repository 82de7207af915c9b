// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package keyrouter

import (
	"github.com/juju/collections/set"

	"github.com/juju/streamrouter/core/routing"
)

// KeyMap remembers which worker owns each distinct key. Entries are never
// removed. A KeyMap is not safe for concurrent use.
type KeyMap struct {
	targets map[any]routing.Address
	workers set.Strings
}

// NewKeyMap returns an empty KeyMap.
func NewKeyMap() *KeyMap {
	return &KeyMap{
		targets: make(map[any]routing.Address),
		workers: set.NewStrings(),
	}
}

// Route returns the worker bound to key, if any.
func (m *KeyMap) Route(key any) (routing.Address, bool) {
	target, ok := m.targets[key]
	return target, ok
}

// IsTargetAvailable reports whether key already has a worker.
func (m *KeyMap) IsTargetAvailable(key any) bool {
	_, ok := m.targets[key]
	return ok
}

// SetTarget binds key to target.
func (m *KeyMap) SetTarget(key any, target routing.Address) {
	m.targets[key] = target
	m.workers.Add(target.String())
}

// Len returns the number of keys.
func (m *KeyMap) Len() int {
	return len(m.targets)
}

// Workers returns the distinct workers in sorted order.
func (m *KeyMap) Workers() []routing.Address {
	values := m.workers.SortedValues()
	result := make([]routing.Address, len(values))
	for i, v := range values {
		result[i] = routing.Address(v)
	}
	return result
}
