package component

import (
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/isocore/internal/messenger"
	"github.com/dshills/isocore/internal/payload"
)

// TypeID is the interned identifier of a component type, assigned by the Scope
// when the registry is created.
type TypeID uint32

// UpdateFunc is a registry's native per-frame logic. It runs once per Update,
// between the PreUpdate and Update broadcasts.
type UpdateFunc func(r *Registry, dt time.Duration)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// Pausable marks the registry as skipped while its scope is paused.
func Pausable() RegistryOption {
	return func(r *Registry) {
		r.pausable = true
	}
}

// DependsOn declares the component types this one requires.
func DependsOn(types ...string) RegistryOption {
	return func(r *Registry) {
		r.deps = append(r.deps, types...)
	}
}

// NativeUpdate sets the registry's native update logic.
func NativeUpdate(fn UpdateFunc) RegistryOption {
	return func(r *Registry) {
		r.update = fn
	}
}

// Registry holds the live components of one type and drives their update.
type Registry struct {
	id       TypeID
	name     string
	pausable bool
	deps     []string
	update   UpdateFunc

	live  []*Component
	index map[*Component]int

	preUpdate messenger.Topic
	onUpdate  messenger.Topic

	log *zap.Logger
}

// newRegistry creates a registry; Scope.CreateRegistry is the public entry.
func newRegistry(id TypeID, name string, log *zap.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		id:        id,
		name:      name,
		index:     make(map[*Component]int),
		preUpdate: messenger.Topic(name + "PreUpdate"),
		onUpdate:  messenger.Topic(name + "Update"),
		log:       log.With(zap.String("type", name)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the interned type id.
func (r *Registry) ID() TypeID {
	return r.id
}

// Name returns the component type name.
func (r *Registry) Name() string {
	return r.name
}

// IsPausable reports whether the owning scope skips this registry while paused.
func (r *Registry) IsPausable() bool {
	return r.pausable
}

// Dependencies returns the component types this one requires.
func (r *Registry) Dependencies() []string {
	return slices.Clone(r.deps)
}

// PreUpdateTopic returns the event posted before native update.
func (r *Registry) PreUpdateTopic() messenger.Topic {
	return r.preUpdate
}

// UpdateTopic returns the event posted after native update.
func (r *Registry) UpdateTopic() messenger.Topic {
	return r.onUpdate
}

// Len returns the number of live components.
func (r *Registry) Len() int {
	return len(r.live)
}

// Components returns a snapshot of the live set. Order is unspecified.
func (r *Registry) Components() []*Component {
	return slices.Clone(r.live)
}

// Contains reports whether c is registered.
func (r *Registry) Contains(c *Component) bool {
	_, ok := r.index[c]
	return ok
}

// Register adds c to the live set. A component whose type name differs from
// the registry's fails with a *RegistrationError and is not added.
// Registering an already registered component is a no-op.
func (r *Registry) Register(c *Component) error {
	if c.typeName != r.name {
		err := &RegistrationError{Component: c.typeName, Registry: r.name, Owner: c.ownerID()}
		r.log.Error("component registered with mismatched registry",
			zap.String("component_type", c.typeName),
			zap.String("registry_type", r.name),
			zap.String("owner", c.ownerID()),
		)
		return err
	}
	if _, exists := r.index[c]; exists {
		return nil
	}
	r.index[c] = len(r.live)
	r.live = append(r.live, c)
	return nil
}

// Deregister removes c by swapping it with the last live component. It returns
// false if c was not registered.
func (r *Registry) Deregister(c *Component) bool {
	i, ok := r.index[c]
	if !ok {
		return false
	}

	last := len(r.live) - 1
	if i != last {
		moved := r.live[last]
		r.live[i] = moved
		r.index[moved] = i
	}
	r.live[last] = nil
	r.live = r.live[:last]
	delete(r.index, c)
	return true
}

// Update runs one frame: PreUpdate broadcast, native update, Update broadcast.
// Components deregistered mid-frame are skipped in the remaining steps.
func (r *Registry) Update(dt time.Duration) {
	p := payload.New(dt.Seconds())

	r.broadcast(r.preUpdate, p)
	if r.update != nil {
		r.update(r, dt)
	}
	r.broadcast(r.onUpdate, p)
}

// broadcast posts p on every live component's owner messenger.
func (r *Registry) broadcast(event messenger.Topic, p payload.Payload) {
	if len(r.live) == 0 {
		return
	}
	for _, c := range slices.Clone(r.live) {
		if !r.Contains(c) {
			continue
		}
		c.owner.Messenger().Post(event, p)
	}
}
