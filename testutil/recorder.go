package testutil

import (
	"sync"

	"github.com/hupe1980/heapcore"
)

// Event kinds recorded by the reference types.
const (
	EventTraverse = "traverse"
	EventClear    = "clear"
	EventFinalize = "finalize"
	EventCallback = "callback"
)

// Event is one recorded callback.
type Event struct {
	Kind string
	Ref  heapcore.Ref
}

// Recorder logs callbacks in the order they happen.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	skip   map[string]bool
}

// NewRecorder creates an empty Recorder. Traverse events are not recorded
// unless requested with RecordTraverse.
func NewRecorder() *Recorder {
	return &Recorder{skip: map[string]bool{EventTraverse: true}}
}

// RecordTraverse toggles recording of traverse events.
func (r *Recorder) RecordTraverse(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skip[EventTraverse] = !enabled
}

// Record appends an event. A nil Recorder ignores it.
func (r *Recorder) Record(kind string, ref heapcore.Ref) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skip[kind] {
		return
	}
	r.events = append(r.events, Event{Kind: kind, Ref: ref})
}

// Callback returns a weak reference callback that records EventCallback.
func (r *Recorder) Callback() func(*heapcore.WeakRef) {
	return func(w *heapcore.WeakRef) {
		r.Record(EventCallback, w.Target())
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how often kind was recorded for ref.
func (r *Recorder) Count(kind string, ref heapcore.Ref) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && e.Ref == ref {
			n++
		}
	}
	return n
}

// Total returns how often kind was recorded.
func (r *Recorder) Total(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Kinds returns the kinds recorded for ref in order.
func (r *Recorder) Kinds(ref heapcore.Ref) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Ref == ref {
			out = append(out, e.Kind)
		}
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
