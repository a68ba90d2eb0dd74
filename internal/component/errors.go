package component

import (
	"errors"

	"github.com/dshills/isocore/internal/payload"
)

// Sentinel errors for components and registries.
var (
	// ErrRegistryDuplication is returned when a second registry is created for
	// a type name.
	ErrRegistryDuplication = errors.New("registry already exists")

	// ErrRegistryNotFound is returned when no registry exists for a type name.
	ErrRegistryNotFound = errors.New("registry not found")

	// ErrNoBehavior is returned by a ScriptLoader when a component has no
	// behavior script. It is not fatal for component construction.
	ErrNoBehavior = errors.New("no behavior script defined")

	// ErrNilOwner is returned when a component is created without an owner.
	ErrNilOwner = errors.New("component owner cannot be nil")
)

// RegistrationError reports a component registered against a registry of a
// different type name. It matches payload.ErrTypeMismatch.
type RegistrationError struct {
	// Component is the component's type name.
	Component string

	// Registry is the registry's type name.
	Registry string

	// Owner identifies the component's owner.
	Owner string
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	return "component of type " + e.Component + " (owner " + e.Owner +
		") cannot register with registry " + e.Registry
}

// Is allows errors.Is to match RegistrationError with payload.ErrTypeMismatch.
func (e *RegistrationError) Is(target error) bool {
	return target == payload.ErrTypeMismatch
}
