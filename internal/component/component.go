package component

import (
	"errors"
	"maps"

	"go.uber.org/zap"

	"github.com/dshills/isocore/internal/messenger"
)

// Owner is the entity a component is attached to.
type Owner interface {
	// ID returns the owner's unique identifier.
	ID() string

	// Messenger returns the owner's event bus.
	Messenger() *messenger.Messenger
}

// Behavior is a loaded behavior script bound to one component.
type Behavior interface {
	// Destroy unbinds the script. It is called once, after the component has
	// left its registry.
	Destroy()
}

// ScriptLoader loads behavior scripts. path is the supplied script path, or
// empty to let the loader pick the type's default script. A loader returns an
// error matching ErrNoBehavior when there is no script to load.
type ScriptLoader interface {
	LoadBehavior(c *Component, path string) (Behavior, error)
}

// Option configures a Component.
type Option func(*Component)

// WithScript supplies the behavior script path.
func WithScript(path string) Option {
	return func(c *Component) {
		c.scriptPath = path
	}
}

// WithProperties supplies property overrides, typically from an archetype.
func WithProperties(props map[string]any) Option {
	return func(c *Component) {
		for k, v := range props {
			c.props[k] = v
		}
	}
}

// WithLoader sets the behavior script loader.
func WithLoader(l ScriptLoader) Option {
	return func(c *Component) {
		c.loader = l
	}
}

// WithLogger sets the component's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Component) {
		if l != nil {
			c.log = l
		}
	}
}

// Component is a named behavior unit attached to an owner.
type Component struct {
	typeName   string
	owner      Owner
	registry   *Registry
	scriptPath string
	props      map[string]any
	loader     ScriptLoader
	behavior   Behavior
	alive      bool
	log        *zap.Logger
}

// New creates a component of typeName for owner and registers it with the
// matching registry in scope. A missing registry aborts construction with
// ErrRegistryNotFound. A missing behavior script does not.
func New(scope *Scope, owner Owner, typeName string, opts ...Option) (*Component, error) {
	if owner == nil {
		return nil, ErrNilOwner
	}

	c := &Component{
		typeName: typeName,
		owner:    owner,
		props:    make(map[string]any),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("component").With(
		zap.String("type", typeName),
		zap.String("owner", owner.ID()),
	)

	reg, err := scope.Lookup(typeName)
	if err != nil {
		c.log.Error("cannot create component without registry", zap.Error(err))
		return nil, err
	}
	c.registry = reg

	c.loadBehavior()

	if err := reg.Register(c); err != nil {
		c.releaseBehavior()
		return nil, err
	}
	c.alive = true
	return c, nil
}

// loadBehavior asks the loader for a behavior script. Failures leave the
// component without one.
func (c *Component) loadBehavior() {
	if c.loader == nil {
		return
	}
	b, err := c.loader.LoadBehavior(c, c.scriptPath)
	switch {
	case errors.Is(err, ErrNoBehavior):
		c.log.Debug("no behavior script defined", zap.String("script", c.scriptPath))
	case err != nil:
		c.log.Error("behavior script failed to load", zap.String("script", c.scriptPath), zap.Error(err))
	default:
		c.behavior = b
	}
}

// releaseBehavior destroys the behavior, if any.
func (c *Component) releaseBehavior() {
	if c.behavior == nil {
		return
	}
	b := c.behavior
	c.behavior = nil
	b.Destroy()
}

// Destroy deregisters the component and then releases its behavior.
// Calling it again is a no-op.
func (c *Component) Destroy() {
	if !c.alive {
		return
	}
	c.alive = false
	if !c.registry.Deregister(c) {
		c.log.Warn("component was not in its registry at destroy")
	}
	c.releaseBehavior()
}

// Type returns the component type name.
func (c *Component) Type() string {
	return c.typeName
}

// Owner returns the owning entity.
func (c *Component) Owner() Owner {
	return c.owner
}

// Registry returns the registry the component belongs to.
func (c *Component) Registry() *Registry {
	return c.registry
}

// Dependencies returns the component types this component's type requires.
func (c *Component) Dependencies() []string {
	return c.registry.Dependencies()
}

// ScriptPath returns the supplied behavior script path, possibly empty.
func (c *Component) ScriptPath() string {
	return c.scriptPath
}

// HasBehavior reports whether a behavior script is bound.
func (c *Component) HasBehavior() bool {
	return c.behavior != nil
}

// Alive reports whether the component is registered and not destroyed.
func (c *Component) Alive() bool {
	return c.alive
}

// Properties returns a copy of the property overrides.
func (c *Component) Properties() map[string]any {
	return maps.Clone(c.props)
}

// Property returns one property override.
func (c *Component) Property(key string) (any, bool) {
	v, ok := c.props[key]
	return v, ok
}

// SetProperty sets a property.
func (c *Component) SetProperty(key string, value any) {
	c.props[key] = value
}

// ownerID is the owner id for diagnostics.
func (c *Component) ownerID() string {
	if c.owner == nil {
		return "<none>"
	}
	return c.owner.ID()
}
