package messenger

import "sync/atomic"

// SubscriptionID identifies one subscription. Zero is never issued.
type SubscriptionID uint64

// IDGenerator issues subscription ids. One generator is created per scene at
// startup and shared by all of its messengers; ids are never reused.
type IDGenerator struct {
	last atomic.Uint64
}

// NewIDGenerator creates a generator whose first id is 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns a fresh id.
func (g *IDGenerator) Next() SubscriptionID {
	return SubscriptionID(g.last.Add(1))
}

// Last returns the most recently issued id, or 0.
func (g *IDGenerator) Last() SubscriptionID {
	return SubscriptionID(g.last.Load())
}
