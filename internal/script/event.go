package script

import (
	"slices"
	"weak"

	"go.uber.org/zap"

	"github.com/dshills/isocore/internal/messenger"
	"github.com/dshills/isocore/internal/payload"
)

// Option configures an Event.
type Option func(*Event)

// WithSubscriber files the Event's messenger subscription under subscriber,
// so closing subscriber removes it.
func WithSubscriber(subscriber *messenger.Messenger) Option {
	return func(e *Event) {
		e.subscriber = subscriber
	}
}

// WithRouter registers the Event with r for per-frame flushing.
func WithRouter(r *Router) Option {
	return func(e *Event) {
		e.router = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Event) {
		if l != nil {
			e.log = l
		}
	}
}

// Event buffers the payloads of one messenger event and republishes them to
// script listeners once per frame.
type Event struct {
	name       messenger.Topic
	tag        payload.Tag
	source     *messenger.Messenger
	subscriber *messenger.Messenger
	subID      messenger.SubscriptionID
	router     *Router
	caller     Caller

	listeners []weak.Pointer[Listener]
	buffer    payload.Batch
	closed    bool

	rejected uint64
	log      *zap.Logger
}

// NewEvent subscribes to name on source. Only payloads tagged tag are
// buffered; a zero tag accepts any payload.
func NewEvent(source *messenger.Messenger, name messenger.Topic, tag payload.Tag, caller Caller, opts ...Option) *Event {
	if caller == nil {
		panic("script: nil caller for event " + string(name))
	}

	e := &Event{
		name:   name,
		tag:    tag,
		source: source,
		caller: caller,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("script").With(
		zap.String("event", string(name)),
		zap.String("owner", source.Owner()),
	)

	// The subscription must not keep the Event alive.
	self := weak.Make(e)
	subscriber := e.subscriber
	var id messenger.SubscriptionID
	id = source.Subscribe(subscriber, name, func(p payload.Payload) {
		ev := self.Value()
		if ev == nil {
			source.Unsubscribe(subscriber, name, id)
			return
		}
		ev.Post(p)
	})
	e.subID = id

	if e.router != nil {
		e.router.Add(e)
	}
	return e
}

// Name returns the event name.
func (e *Event) Name() messenger.Topic {
	return e.name
}

// Tag returns the accepted payload tag.
func (e *Event) Tag() payload.Tag {
	return e.tag
}

// Closed reports whether Close has been called.
func (e *Event) Closed() bool {
	return e.closed
}

// Pending returns the number of buffered payloads.
func (e *Event) Pending() int {
	return len(e.buffer)
}

// Rejected returns how many payloads were dropped for carrying the wrong tag.
func (e *Event) Rejected() uint64 {
	return e.rejected
}

// ListenerCount returns the number of listeners still alive and connected.
func (e *Event) ListenerCount() int {
	n := 0
	for _, w := range e.listeners {
		if w.Value() != nil {
			n++
		}
	}
	return n
}

// Connect registers fn and returns the Listener that owns the connection.
// Dropping the Listener disconnects it; so does calling Disconnect.
func (e *Event) Connect(fn Function) *Listener {
	if fn == nil {
		panic("script: nil function for event " + string(e.name))
	}
	l := &Listener{fn: fn}
	if e.closed {
		return l
	}
	l.event = e
	e.listeners = append(e.listeners, weak.Make(l))
	return l
}

// Post buffers p for the next flush.
func (e *Event) Post(p payload.Payload) {
	if e.closed {
		return
	}
	if !e.tag.IsZero() && p.Tag() != e.tag {
		e.rejected++
		e.log.Warn("payload type mismatch",
			zap.Stringer("want", e.tag),
			zap.Stringer("got", p.Tag()),
		)
		return
	}
	e.buffer = append(e.buffer, p)
}

// Flush prunes dead listeners, then calls every live one with the buffered
// batch and empties the buffer. Nothing is called when the buffer is empty.
// Payloads posted while the flush runs are kept for the next one.
func (e *Event) Flush() {
	e.prune()
	if len(e.buffer) == 0 {
		return
	}

	batch := e.buffer
	e.buffer = nil
	arg := payload.New(batch)

	for _, w := range slices.Clone(e.listeners) {
		l := w.Value()
		if l == nil || l.event != e {
			continue
		}
		if err := e.caller.Call(l.fn, arg); err != nil {
			e.log.Error("script listener failed",
				zap.String("function", l.fn.Name()),
				zap.Int("batch", len(batch)),
				zap.Error(err),
			)
		}
	}
}

// prune drops expired listener pointers.
func (e *Event) prune() {
	e.listeners = slices.DeleteFunc(e.listeners, func(w weak.Pointer[Listener]) bool {
		return w.Value() == nil
	})
}

// detach removes l from the listener list.
func (e *Event) detach(l *Listener) {
	target := weak.Make(l)
	e.listeners = slices.DeleteFunc(e.listeners, func(w weak.Pointer[Listener]) bool {
		return w == target || w.Value() == nil
	})
}

// Close unsubscribes from the source messenger and drops the buffer and all
// listeners. Listeners still held elsewhere become disconnected no-ops.
func (e *Event) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.source.Unsubscribe(e.subscriber, e.name, e.subID)
	for _, w := range e.listeners {
		if l := w.Value(); l != nil {
			l.event = nil
		}
	}
	e.listeners = nil
	e.buffer = nil
}

// Listener is one script function connected to an Event.
type Listener struct {
	event *Event
	fn    Function
}

// Function returns the connected script function.
func (l *Listener) Function() Function {
	return l.fn
}

// Connected reports whether the listener still receives flushes.
func (l *Listener) Connected() bool {
	return l.event != nil
}

// Disconnect removes the listener from its Event. It is idempotent and safe
// after the Event has been closed.
func (l *Listener) Disconnect() {
	if l.event == nil {
		return
	}
	l.event.detach(l)
	l.event = nil
}
