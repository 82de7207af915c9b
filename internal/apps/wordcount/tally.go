// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package wordcount

import (
	"sync"

	"github.com/juju/errors"
	"github.com/juju/naturalsort"

	"github.com/juju/streamrouter/core/bolt"
	"github.com/juju/streamrouter/core/tuple"
)

// Tally accumulates the counts received by every sink. It is safe for
// concurrent use.
type Tally struct {
	mu      sync.Mutex
	counts  map[string]int
	total   int
	changed chan struct{}
}

// NewTally returns an empty Tally.
func NewTally() *Tally {
	return &Tally{
		counts:  make(map[string]int),
		changed: make(chan struct{}),
	}
}

// Add records count more occurrences of word.
func (t *Tally) Add(word string, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[word] += count
	t.total += count
	close(t.changed)
	t.changed = make(chan struct{})
}

// Total returns the sum of all counts.
func (t *Tally) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Counts returns a copy of the per-word counts.
func (t *Tally) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make(map[string]int, len(t.counts))
	for word, count := range t.counts {
		result[word] = count
	}
	return result
}

// Words returns the counted words in natural sort order.
func (t *Tally) Words() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	words := make([]string, 0, len(t.counts))
	for word := range t.counts {
		words = append(words, word)
	}
	return naturalsort.Sort(words)
}

// Wait blocks until the total reaches at least total, or abort is closed.
func (t *Tally) Wait(total int, abort <-chan struct{}) error {
	for {
		t.mu.Lock()
		current, changed := t.total, t.changed
		t.mu.Unlock()
		if current >= total {
			return nil
		}
		select {
		case <-changed:
		case <-abort:
			return errors.Errorf("tally reached %d of %d", current, total)
		}
	}
}

// sink adds everything it receives to a shared Tally.
type sink struct {
	tally *Tally
}

// NewSink returns a bolt.NewFunc for sinks feeding the tally.
func NewSink(tally *Tally) bolt.NewFunc {
	return func() bolt.Bolt {
		return &sink{tally: tally}
	}
}

func (s *sink) Prepare(bolt.Collector) error { return nil }

func (s *sink) Execute(t tuple.Tuple) error {
	word, count, err := parse(t)
	if err != nil {
		return errors.Trace(err)
	}
	s.tally.Add(word, count)
	return nil
}

func (s *sink) Cleanup() error { return nil }
