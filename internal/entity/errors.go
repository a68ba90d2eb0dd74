package entity

import "errors"

// Sentinel errors for scene operations.
var (
	// ErrEntityDestroyed indicates an operation on a destroyed entity.
	ErrEntityDestroyed = errors.New("entity destroyed")

	// ErrComponentExists indicates the entity already has a component of the type.
	ErrComponentExists = errors.New("component already exists")

	// ErrDependencyCycle indicates component dependencies that require each other.
	ErrDependencyCycle = errors.New("component dependency cycle")

	// ErrArchetypeNotFound indicates an unknown archetype name.
	ErrArchetypeNotFound = errors.New("archetype not found")

	// ErrDuplicateArchetype indicates two archetypes with the same name.
	ErrDuplicateArchetype = errors.New("duplicate archetype")

	// ErrInvalidArchetype indicates a malformed archetype definition.
	ErrInvalidArchetype = errors.New("invalid archetype")

	// ErrEventDeclared indicates an event declared twice with different tags.
	ErrEventDeclared = errors.New("event already declared")

	// ErrNoCaller indicates a scene without a script caller was asked to
	// declare a script event.
	ErrNoCaller = errors.New("scene has no script caller")
)
