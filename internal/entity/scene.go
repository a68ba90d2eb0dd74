package entity

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/isocore/internal/component"
	"github.com/dshills/isocore/internal/messenger"
	"github.com/dshills/isocore/internal/payload"
	"github.com/dshills/isocore/internal/script"
)

// Option configures a Scene.
type Option func(*Scene)

// WithIDGenerator shares an id generator with other scenes.
func WithIDGenerator(ids *messenger.IDGenerator) Option {
	return func(s *Scene) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithLoader sets the behavior script loader used for new components.
func WithLoader(l component.ScriptLoader) Option {
	return func(s *Scene) {
		s.loader = l
	}
}

// WithCaller sets the script caller used by declared events.
func WithCaller(c script.Caller) Option {
	return func(s *Scene) {
		s.caller = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scene) {
		if l != nil {
			s.log = l
		}
	}
}

// Scene owns entities, the component scope and the script event router.
type Scene struct {
	ids    *messenger.IDGenerator
	scope  *component.Scope
	router *script.Router

	loader component.ScriptLoader
	caller script.Caller

	archetypes map[string]Archetype
	entities   map[uuid.UUID]*Entity
	order      []*Entity

	frames uint64
	root   *zap.Logger
	log    *zap.Logger
}

// NewScene creates an empty scene.
func NewScene(opts ...Option) *Scene {
	s := &Scene{
		router:     script.NewRouter(),
		archetypes: make(map[string]Archetype),
		entities:   make(map[uuid.UUID]*Entity),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		s.ids = messenger.NewIDGenerator()
	}
	s.root = s.log
	s.scope = component.NewScope(component.WithScopeLogger(s.root))
	s.log = s.root.Named("scene")
	return s
}

// Scope returns the component scope.
func (s *Scene) Scope() *component.Scope {
	return s.scope
}

// Router returns the script event router.
func (s *Scene) Router() *script.Router {
	return s.router
}

// IDs returns the subscription id generator.
func (s *Scene) IDs() *messenger.IDGenerator {
	return s.ids
}

// Frames returns the number of completed ticks.
func (s *Scene) Frames() uint64 {
	return s.frames
}

// LookupRegistry returns the registry for typeName.
func (s *Scene) LookupRegistry(typeName string) (*component.Registry, error) {
	return s.scope.Lookup(typeName)
}

// AddArchetype makes a available to SpawnArchetype.
func (s *Scene) AddArchetype(a Archetype) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if _, exists := s.archetypes[a.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateArchetype, a.Name)
	}
	s.archetypes[a.Name] = a.clone()
	return nil
}

// Archetype returns the archetype called name.
func (s *Scene) Archetype(name string) (Archetype, bool) {
	a, ok := s.archetypes[name]
	return a, ok
}

// Spawn creates an entity with no components.
func (s *Scene) Spawn(name string) *Entity {
	e := newEntity(s, name)
	s.entities[e.id] = e
	s.order = append(s.order, e)
	s.log.Debug("entity spawned", zap.String("entity", e.name), zap.String("id", e.ID()))
	return e
}

// SpawnArchetype creates an entity from the named archetype. If any component
// fails the entity is destroyed and the error returned.
func (s *Scene) SpawnArchetype(archetype, name string) (*Entity, error) {
	a, ok := s.archetypes[archetype]
	if !ok {
		return nil, fmt.Errorf("spawning %s: %w", archetype, ErrArchetypeNotFound)
	}

	e := s.Spawn(name)
	e.archetype = a.Name

	for _, ev := range a.Events {
		if _, err := e.DeclareEvent(messenger.Topic(ev), payload.Tag{}); err != nil {
			s.Destroy(e)
			return nil, fmt.Errorf("spawning %s: %w", archetype, err)
		}
	}

	for _, spec := range a.Components {
		if _, exists := e.byType[spec.Type]; exists {
			// Already pulled in as a dependency.
			continue
		}
		if _, err := s.resolve(e, spec.Type, a.Spec, nil); err != nil {
			s.Destroy(e)
			return nil, fmt.Errorf("spawning %s: %w", archetype, err)
		}
	}
	return e, nil
}

// InstantiateComponent creates a component of typeName on e. Missing
// dependencies are instantiated first, bare. spec, if given, supplies the
// behavior script and property overrides.
func (s *Scene) InstantiateComponent(e *Entity, typeName string, spec ...ComponentSpec) (*component.Component, error) {
	if !e.alive {
		return nil, fmt.Errorf("instantiating %s on %s: %w", typeName, e.name, ErrEntityDestroyed)
	}
	if _, exists := e.byType[typeName]; exists {
		return nil, fmt.Errorf("instantiating %s on %s: %w", typeName, e.name, ErrComponentExists)
	}

	lookup := func(t string) (ComponentSpec, bool) {
		if t == typeName && len(spec) > 0 {
			return spec[0], true
		}
		return ComponentSpec{}, false
	}
	n := len(e.components)
	c, err := s.resolve(e, typeName, lookup, nil)
	if err != nil {
		s.rollback(e, n)
		return nil, err
	}
	return c, nil
}

// rollback destroys the components attached to e after the first n, newest
// first.
func (s *Scene) rollback(e *Entity, n int) {
	if len(e.components) <= n {
		return
	}
	created := e.components[n:]
	for i := len(created) - 1; i >= 0; i-- {
		c := created[i]
		delete(e.byType, c.Type())
		c.Destroy()
		s.log.Debug("rolled back dependency",
			zap.String("entity", e.name),
			zap.String("type", c.Type()),
		)
	}
	clear(created)
	e.components = e.components[:n]
}

// resolve instantiates typeName after its missing dependencies. path holds the
// types currently being resolved.
func (s *Scene) resolve(e *Entity, typeName string, specs func(string) (ComponentSpec, bool), path []string) (*component.Component, error) {
	if slices.Contains(path, typeName) {
		cycle := strings.Join(append(path, typeName), " -> ")
		s.log.Error("component dependency cycle", zap.String("entity", e.name), zap.String("cycle", cycle))
		return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, cycle)
	}

	reg, err := s.scope.Lookup(typeName)
	if err != nil {
		s.log.Error("cannot instantiate component",
			zap.String("entity", e.name),
			zap.String("type", typeName),
			zap.Error(err),
		)
		return nil, err
	}

	path = append(path, typeName)
	for _, dep := range reg.Dependencies() {
		if _, exists := e.byType[dep]; exists {
			continue
		}
		if _, err := s.resolve(e, dep, specs, path); err != nil {
			return nil, fmt.Errorf("dependency of %s: %w", typeName, err)
		}
	}

	opts := []component.Option{
		component.WithLoader(s.loader),
		component.WithLogger(s.root),
	}
	if spec, ok := specs(typeName); ok {
		opts = append(opts,
			component.WithScript(spec.Script),
			component.WithProperties(spec.Properties),
		)
	}

	c, err := component.New(s.scope, e, typeName, opts...)
	if err != nil {
		return nil, err
	}
	e.attach(c)
	return c, nil
}

// Destroy tears e down and removes it from the scene. Destroying an entity
// twice is a no-op.
func (s *Scene) Destroy(e *Entity) {
	if !e.alive {
		return
	}
	e.alive = false
	e.teardown(s.log)

	delete(s.entities, e.id)
	s.order = slices.DeleteFunc(s.order, func(o *Entity) bool { return o == e })
}

// Entity returns the live entity with id.
func (s *Scene) Entity(id uuid.UUID) (*Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// Entities returns the live entities in spawn order.
func (s *Scene) Entities() []*Entity {
	return slices.Clone(s.order)
}

// Len returns the number of live entities.
func (s *Scene) Len() int {
	return len(s.order)
}

// SetPaused pauses or resumes pausable registries.
func (s *Scene) SetPaused(paused bool) {
	s.scope.SetPaused(paused)
}

// Paused reports whether the scene is paused.
func (s *Scene) Paused() bool {
	return s.scope.Paused()
}

// Tick runs one frame: every registry's update, then the script flush.
func (s *Scene) Tick(dt time.Duration) {
	s.scope.Update(dt)
	s.router.Update()
	s.frames++
}

// Close destroys every entity, newest first.
func (s *Scene) Close() {
	for i := len(s.order) - 1; i >= 0; i-- {
		s.Destroy(s.order[i])
	}
}
