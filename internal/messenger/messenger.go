package messenger

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/dshills/isocore/internal/payload"
)

// Topic names an event or a request.
type Topic string

// Callback receives a posted payload. The payload must not be retained.
type Callback func(p payload.Payload)

// Provider answers a request by filling the slot.
type Provider func(slot *payload.Slot)

// RequestToken identifies one SetupRequest registration.
type RequestToken uint64

// provider is a registered Provider with its token.
type provider struct {
	fn    Provider
	token RequestToken
}

// entry is one subscription.
type entry struct {
	id         SubscriptionID
	subscriber *Messenger
	cb         Callback
	active     bool
}

// Stats contains messenger counters.
type Stats struct {
	// Posts is the number of Post calls that reached at least one subscriber.
	Posts uint64

	// Deliveries is the number of callback invocations.
	Deliveries uint64

	// Requests is the number of answered requests.
	Requests uint64

	// RequestMisses is the number of requests with no provider.
	RequestMisses uint64

	// Subscriptions is the current number of live subscriptions.
	Subscriptions int

	// Providers is the current number of registered request providers.
	Providers int
}

// Option configures a Messenger.
type Option func(*Messenger)

// WithOwner labels the messenger in logs and errors.
func WithOwner(owner string) Option {
	return func(m *Messenger) {
		m.owner = owner
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Messenger) {
		if l != nil {
			m.log = l
		}
	}
}

// Messenger is a synchronous event and request bus owned by one entity.
type Messenger struct {
	ids   *IDGenerator
	owner string
	log   *zap.Logger

	subs     map[Topic][]*entry
	requests map[Topic]provider
	tokens   RequestToken

	// publishers counts this messenger's live entries on other buses.
	publishers map[*Messenger]int

	closed bool
	stats  Stats
}

// New creates a messenger drawing subscription ids from ids.
func New(ids *IDGenerator, opts ...Option) *Messenger {
	if ids == nil {
		panic("messenger: nil IDGenerator")
	}
	m := &Messenger{
		ids:        ids,
		owner:      "standalone",
		log:        zap.NewNop(),
		subs:       make(map[Topic][]*entry),
		requests:   make(map[Topic]provider),
		publishers: make(map[*Messenger]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("messenger").With(zap.String("owner", m.owner))
	return m
}

// Owner returns the owner label.
func (m *Messenger) Owner() string {
	return m.owner
}

// IDs returns the generator the messenger draws subscription ids from.
func (m *Messenger) IDs() *IDGenerator {
	return m.ids
}

// IsClosed reports whether Close has been called.
func (m *Messenger) IsClosed() bool {
	return m.closed
}

// Subscribe registers cb to run whenever event is posted on m. subscriber is
// the identity the subscription is filed under; nil files it anonymously.
// Returns 0 if m or subscriber is closed.
func (m *Messenger) Subscribe(subscriber *Messenger, event Topic, cb Callback) SubscriptionID {
	if cb == nil {
		panic("messenger: nil callback for " + string(event))
	}
	if m.closed {
		m.log.Warn("subscribe on closed messenger", zap.String("event", string(event)))
		return 0
	}
	if subscriber != nil && subscriber.closed {
		m.log.Warn("subscribe with closed subscriber",
			zap.String("event", string(event)),
			zap.String("subscriber", subscriber.owner),
		)
		return 0
	}

	e := &entry{
		id:         m.ids.Next(),
		subscriber: subscriber,
		cb:         cb,
		active:     true,
	}
	m.subs[event] = append(m.subs[event], e)
	m.stats.Subscriptions++
	if subscriber != nil {
		subscriber.publishers[m]++
	}
	return e.id
}

// Unsubscribe removes the subscription id that subscriber holds on event.
// It reports whether anything was removed; a miss is not an error.
func (m *Messenger) Unsubscribe(subscriber *Messenger, event Topic, id SubscriptionID) bool {
	return m.remove(event, func(e *entry) bool {
		return e.subscriber == subscriber && e.id == id
	}) > 0
}

// UnsubscribeAll removes every subscription subscriber holds on event and
// returns how many were removed.
func (m *Messenger) UnsubscribeAll(subscriber *Messenger, event Topic) int {
	return m.remove(event, func(e *entry) bool {
		return e.subscriber == subscriber
	})
}

// remove drops matching entries of one event.
func (m *Messenger) remove(event Topic, match func(*entry) bool) int {
	list, ok := m.subs[event]
	if !ok {
		return 0
	}

	removed := 0
	list = slices.DeleteFunc(list, func(e *entry) bool {
		if !match(e) {
			return false
		}
		m.deactivate(e)
		removed++
		return true
	})

	if len(list) == 0 {
		delete(m.subs, event)
	} else {
		m.subs[event] = list
	}
	return removed
}

// removeSubscriber drops every entry filed under subscriber, on all events.
func (m *Messenger) removeSubscriber(subscriber *Messenger) int {
	removed := 0
	for event := range m.subs {
		removed += m.UnsubscribeAll(subscriber, event)
	}
	return removed
}

// deactivate marks e dead and releases its subscriber bookkeeping.
func (m *Messenger) deactivate(e *entry) {
	if !e.active {
		return
	}
	e.active = false
	m.stats.Subscriptions--
	if s := e.subscriber; s != nil {
		if s.publishers[m]--; s.publishers[m] <= 0 {
			delete(s.publishers, m)
		}
	}
}

// SetupRequest registers the provider for name, replacing any earlier one.
// The returned token identifies this registration for DisconnectRequestIf;
// it is 0 when m is closed.
func (m *Messenger) SetupRequest(name Topic, p Provider) RequestToken {
	if p == nil {
		panic("messenger: nil provider for " + string(name))
	}
	if m.closed {
		m.log.Warn("setup request on closed messenger", zap.String("request", string(name)))
		return 0
	}
	if _, exists := m.requests[name]; exists {
		m.log.Debug("request provider replaced", zap.String("request", string(name)))
	}
	m.tokens++
	m.requests[name] = provider{fn: p, token: m.tokens}
	m.stats.Providers = len(m.requests)
	return m.tokens
}

// DisconnectRequest removes the provider for name and reports whether one existed.
func (m *Messenger) DisconnectRequest(name Topic) bool {
	if _, exists := m.requests[name]; !exists {
		return false
	}
	delete(m.requests, name)
	m.stats.Providers = len(m.requests)
	return true
}

// DisconnectRequestIf removes the provider for name only if it is still the
// registration identified by token.
func (m *Messenger) DisconnectRequestIf(name Topic, token RequestToken) bool {
	if p, exists := m.requests[name]; !exists || p.token != token {
		return false
	}
	return m.DisconnectRequest(name)
}

// HasRequest reports whether a provider is registered for name.
func (m *Messenger) HasRequest(name Topic) bool {
	_, ok := m.requests[name]
	return ok
}

// Post synchronously delivers p to every callback subscribed to event, in
// subscription order. Callbacks removed while the post is running are skipped
// if not yet reached; callbacks added during the post wait for the next one.
func (m *Messenger) Post(event Topic, p payload.Payload) {
	if m.closed {
		return
	}
	list := m.subs[event]
	if len(list) == 0 {
		return
	}

	m.stats.Posts++
	snapshot := slices.Clone(list)
	for _, e := range snapshot {
		if !e.active {
			continue
		}
		e.cb(p)
		m.stats.Deliveries++
	}
}

// RequestPayload invokes the provider for name and returns what it filled.
// An unfilled slot yields the empty payload.
func (m *Messenger) RequestPayload(name Topic) (payload.Payload, error) {
	p, ok := m.requests[name]
	if !ok {
		m.stats.RequestMisses++
		err := &RequestError{Owner: m.owner, Name: name}
		m.log.Debug("request has no provider", zap.String("request", string(name)))
		return payload.Empty(), err
	}

	var slot payload.Slot
	p.fn(&slot)
	m.stats.Requests++
	return slot.Payload(), nil
}

// Request invokes the provider for name on m and extracts its answer as T.
// It fails with ErrRequestNotFound when nothing provides name and with
// payload.ErrTypeMismatch when the provider filled another type.
func Request[T any](m *Messenger, name Topic) (T, error) {
	var zero T
	p, err := m.RequestPayload(name)
	if err != nil {
		return zero, err
	}
	v, err := payload.As[T](p)
	if err != nil {
		m.log.Warn("request answered with wrong type",
			zap.String("request", string(name)),
			zap.Stringer("want", payload.TagOf[T]()),
			zap.Stringer("got", p.Tag()),
		)
		return zero, fmt.Errorf("request %s on %s: %w", name, m.owner, err)
	}
	return v, nil
}

// Emit posts v wrapped in a payload.
func Emit[T any](m *Messenger, event Topic, v T) {
	m.Post(event, payload.New(v))
}

// SubscriberCount returns the number of live subscriptions on event.
func (m *Messenger) SubscriberCount(event Topic) int {
	return len(m.subs[event])
}

// Events returns the events that currently have subscribers.
func (m *Messenger) Events() []Topic {
	events := make([]Topic, 0, len(m.subs))
	for t := range m.subs {
		events = append(events, t)
	}
	slices.Sort(events)
	return events
}

// Stats returns current counters.
func (m *Messenger) Stats() Stats {
	return m.stats
}

// Clear drops all subscriptions and request providers.
func (m *Messenger) Clear() {
	for _, list := range m.subs {
		for _, e := range list {
			m.deactivate(e)
		}
	}
	m.subs = make(map[Topic][]*entry)
	m.requests = make(map[Topic]provider)
	m.stats.Providers = 0
}

// Close detaches m from every messenger it subscribed on, drops its own
// subscriptions and providers, and makes further posts no-ops. It is
// idempotent.
func (m *Messenger) Close() {
	if m.closed {
		return
	}

	publishers := make([]*Messenger, 0, len(m.publishers))
	for pub := range m.publishers {
		publishers = append(publishers, pub)
	}
	for _, pub := range publishers {
		pub.removeSubscriber(m)
	}

	m.Clear()
	m.closed = true
	m.log.Debug("messenger closed")
}
