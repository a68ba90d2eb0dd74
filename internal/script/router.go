package script

import (
	"slices"
	"weak"
)

// Router flushes the Events registered with it once per frame. It observes
// Events without owning them.
type Router struct {
	events []weak.Pointer[Event]
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Add registers e for flushing. Adding the same Event twice is a no-op.
func (r *Router) Add(e *Event) {
	w := weak.Make(e)
	if slices.Contains(r.events, w) {
		return
	}
	r.events = append(r.events, w)
}

// Len returns the number of Events still tracked, including ones that will be
// pruned on the next Update.
func (r *Router) Len() int {
	return len(r.events)
}

// Update prunes collected and closed Events, then flushes the rest in
// registration order. Events added during the pass wait for the next frame.
func (r *Router) Update() {
	r.events = slices.DeleteFunc(r.events, func(w weak.Pointer[Event]) bool {
		e := w.Value()
		return e == nil || e.closed
	})

	for _, w := range slices.Clone(r.events) {
		if e := w.Value(); e != nil && !e.closed {
			e.Flush()
		}
	}
}
