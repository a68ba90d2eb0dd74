package entity

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/isocore/internal/component"
	"github.com/dshills/isocore/internal/messenger"
	"github.com/dshills/isocore/internal/payload"
	"github.com/dshills/isocore/internal/script"
)

// Entity owns a messenger, a set of components and the script events it
// declared.
type Entity struct {
	id        uuid.UUID
	name      string
	archetype string
	scene     *Scene
	bus       *messenger.Messenger

	components []*component.Component
	byType     map[string]*component.Component

	events     map[messenger.Topic]*script.Event
	eventOrder []messenger.Topic

	alive bool
}

func newEntity(s *Scene, name string) *Entity {
	id := uuid.New()
	if name == "" {
		name = id.String()[:8]
	}
	e := &Entity{
		id:     id,
		name:   name,
		scene:  s,
		byType: make(map[string]*component.Component),
		events: make(map[messenger.Topic]*script.Event),
		alive:  true,
	}
	e.bus = messenger.New(s.ids,
		messenger.WithOwner(name),
		messenger.WithLogger(s.root),
	)
	return e
}

// ID returns the entity id as a string.
func (e *Entity) ID() string {
	return e.id.String()
}

// UUID returns the entity id.
func (e *Entity) UUID() uuid.UUID {
	return e.id
}

// Name returns the display name.
func (e *Entity) Name() string {
	return e.name
}

// Archetype returns the archetype the entity was spawned from, if any.
func (e *Entity) Archetype() string {
	return e.archetype
}

// Messenger returns the entity's event bus.
func (e *Entity) Messenger() *messenger.Messenger {
	return e.bus
}

// Scene returns the owning scene.
func (e *Entity) Scene() *Scene {
	return e.scene
}

// Alive reports whether the entity has not been destroyed.
func (e *Entity) Alive() bool {
	return e.alive
}

// Component returns the component of typeName.
func (e *Entity) Component(typeName string) (*component.Component, bool) {
	c, ok := e.byType[typeName]
	return c, ok
}

// Components returns the components in instantiation order.
func (e *Entity) Components() []*component.Component {
	return slices.Clone(e.components)
}

// AddComponent instantiates a component of typeName on e, together with any
// dependency it is missing.
func (e *Entity) AddComponent(typeName string, spec ...ComponentSpec) (*component.Component, error) {
	return e.scene.InstantiateComponent(e, typeName, spec...)
}

// DeclareEvent creates the script event name on e's messenger. Declaring the
// same event again with the same tag returns the existing one.
func (e *Entity) DeclareEvent(name messenger.Topic, tag payload.Tag) (*script.Event, error) {
	if !e.alive {
		return nil, fmt.Errorf("declaring %s on %s: %w", name, e.name, ErrEntityDestroyed)
	}
	if ev, ok := e.events[name]; ok {
		if ev.Tag() != tag {
			return nil, fmt.Errorf("declaring %s on %s as %s: %w (was %s)", name, e.name, tag, ErrEventDeclared, ev.Tag())
		}
		return ev, nil
	}
	if e.scene.caller == nil {
		return nil, ErrNoCaller
	}

	ev := script.NewEvent(e.bus, name, tag, e.scene.caller,
		script.WithRouter(e.scene.router),
		script.WithLogger(e.scene.root),
	)
	e.events[name] = ev
	e.eventOrder = append(e.eventOrder, name)
	return ev, nil
}

// Event returns the declared script event name.
func (e *Entity) Event(name messenger.Topic) (*script.Event, bool) {
	ev, ok := e.events[name]
	return ev, ok
}

// Events returns the declared event names in declaration order.
func (e *Entity) Events() []messenger.Topic {
	return slices.Clone(e.eventOrder)
}

func (e *Entity) attach(c *component.Component) {
	e.components = append(e.components, c)
	e.byType[c.Type()] = c
}

// teardown destroys components in reverse order, closes events, then closes
// the messenger.
func (e *Entity) teardown(log *zap.Logger) {
	for i := len(e.components) - 1; i >= 0; i-- {
		e.components[i].Destroy()
	}
	for _, name := range e.eventOrder {
		e.events[name].Close()
	}
	e.bus.Close()

	log.Debug("entity destroyed",
		zap.String("entity", e.name),
		zap.String("id", e.ID()),
		zap.Int("components", len(e.components)),
	)
	e.components = nil
	clear(e.byType)
	clear(e.events)
	e.eventOrder = nil
}
