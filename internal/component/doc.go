// Package component provides components, their per-type registries and the
// scope that owns the registries.
//
// A Registry exists once per component type name inside a Scope. Every
// Component registers with the registry of its own type when it is created and
// deregisters before it is released. Each frame the registry drives its live
// set in three steps:
//
//	for each live component: owner.Messenger().Post("<Type>PreUpdate", dt)
//	native update (once)
//	for each live component: owner.Messenger().Post("<Type>Update", dt)
//
// Script behaviors subscribe to those two events, which is how native per-type
// logic and script logic interleave every frame. The delta time is carried as
// float64 seconds.
package component
