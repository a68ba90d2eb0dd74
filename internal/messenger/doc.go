// Package messenger provides the per-owner publish/subscribe and
// request/response bus.
//
// Every entity owns one Messenger. Other messengers subscribe to its events by
// passing themselves as the subscriber identity, which lets a subscriber's
// teardown remove its entries from every bus it touched:
//
//	ids := messenger.NewIDGenerator()
//	hero := messenger.New(ids, messenger.WithOwner("hero"))
//	hud := messenger.New(ids, messenger.WithOwner("hud"))
//
//	hero.Subscribe(hud, "HealthChanged", func(p payload.Payload) { ... })
//	hero.Post("HealthChanged", payload.New(42))
//
//	hud.Close() // hero no longer knows about hud
//
// # Ordering
//
// Callbacks for one event fire in the order their subscriptions were created,
// across all subscriber identities. Subscription ids come from an IDGenerator
// shared by every messenger of a scene, so they are unique and increasing.
//
// # Requests
//
// A request is a named pull-style query with a single provider:
//
//	hero.SetupRequest("Position", func(s *payload.Slot) { payload.Fill(s, pos) })
//	pos, err := messenger.Request[Vec2](hero, "Position")
//
// # Threading
//
// A Messenger is not safe for concurrent use. All calls happen on the frame
// goroutine; callbacks may reenter the bus they are called from.
package messenger
