// Package script bridges messenger events into the scripting environment.
//
// An Event subscribes to one event on an entity's Messenger and buffers every
// payload posted there during a frame. Once per frame the Router flushes each
// Event, which hands the buffered Batch to every connected Listener through
// the scripting collaborator's Caller.
//
// # Ownership
//
// Events are owned by whoever declared them, usually an entity. Listeners are
// owned by the script-side consumer that connected them. Neither the Router
// nor an Event keeps anything alive: the Router holds weak pointers to Events
// and an Event holds weak pointers to its Listeners. A Listener that is
// dropped without Disconnect is pruned on the next flush, and an Event that
// nothing references any more is pruned by the next Router update.
//
// A Listener holds a strong reference to its Event, so an Event stays
// reachable while any of its Listeners is.
package script
