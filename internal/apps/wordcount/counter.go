// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package wordcount

import (
	"github.com/juju/errors"

	"github.com/juju/streamrouter/core/bolt"
	"github.com/juju/streamrouter/core/tuple"
)

// FlushReason is the activation reason that makes counters emit what they
// have accumulated.
const FlushReason = "flush"

// WordCounter counts the occurrences of the single word routed to it. It
// emits (word, count) whenever the count reaches the threshold, on flush
// and on cleanup, resetting the count each time so that downstream sums
// are exact.
type WordCounter struct {
	threshold int

	collector bolt.Collector
	word      string
	count     int
}

// NewWordCounter returns a bolt.NewFunc for counters with the given
// threshold. A threshold below one means only flush and cleanup emit.
func NewWordCounter(threshold int) bolt.NewFunc {
	return func() bolt.Bolt {
		return &WordCounter{threshold: threshold}
	}
}

// Prepare is part of the bolt.Bolt interface.
func (w *WordCounter) Prepare(collector bolt.Collector) error {
	w.collector = collector
	w.count = 0
	return nil
}

// Execute is part of the bolt.Bolt interface.
func (w *WordCounter) Execute(t tuple.Tuple) error {
	word, count, err := parse(t)
	if err != nil {
		return errors.Trace(err)
	}
	if w.word == "" {
		w.word = word
	} else if word != w.word {
		return errors.NotValidf("word %q routed to counter for %q", word, w.word)
	}
	w.count += count
	if w.threshold > 0 && w.count >= w.threshold {
		return errors.Trace(w.emit())
	}
	return nil
}

// Activate is part of the bolt.Activator interface.
func (w *WordCounter) Activate(reason string) error {
	if reason != FlushReason {
		return nil
	}
	return errors.Trace(w.emit())
}

// Cleanup is part of the bolt.Bolt interface.
func (w *WordCounter) Cleanup() error {
	return errors.Trace(w.emit())
}

func (w *WordCounter) emit() error {
	if w.count == 0 {
		return nil
	}
	count := w.count
	w.count = 0
	return w.collector.Emit(tuple.New(w.word, count))
}

func parse(t tuple.Tuple) (string, int, error) {
	word, ok := t.Key.(string)
	if !ok || word == "" {
		return "", 0, errors.NotValidf("word %v", t.Key)
	}
	count, ok := t.Value.(int)
	if !ok {
		return "", 0, errors.NotValidf("count %v for %q", t.Value, word)
	}
	return word, count, nil
}
