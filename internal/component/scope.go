package component

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithScopeLogger sets the scope's logger. Registries inherit it.
func WithScopeLogger(l *zap.Logger) ScopeOption {
	return func(s *Scope) {
		if l != nil {
			s.log = l
		}
	}
}

// Scope owns one registry per component type name.
type Scope struct {
	registries map[string]*Registry
	order      []*Registry
	paused     bool
	log        *zap.Logger
}

// NewScope creates an empty scope.
func NewScope(opts ...ScopeOption) *Scope {
	s := &Scope{
		registries: make(map[string]*Registry),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("component")
	return s
}

// CreateRegistry creates the registry for name. A second registry for the same
// name fails with ErrRegistryDuplication.
func (s *Scope) CreateRegistry(name string, opts ...RegistryOption) (*Registry, error) {
	if name == "" {
		return nil, fmt.Errorf("creating registry: empty type name")
	}
	if _, exists := s.registries[name]; exists {
		s.log.Error("duplicate registry", zap.String("type", name))
		return nil, fmt.Errorf("creating registry %s: %w", name, ErrRegistryDuplication)
	}

	r := newRegistry(TypeID(len(s.order)+1), name, s.log, opts...)
	s.registries[name] = r
	s.order = append(s.order, r)
	s.log.Debug("registry created",
		zap.String("type", name),
		zap.Uint32("type_id", uint32(r.id)),
		zap.Strings("dependencies", r.deps),
		zap.Bool("pausable", r.pausable),
	)
	return r, nil
}

// MustCreateRegistry is CreateRegistry for startup code; it panics on error.
func (s *Scope) MustCreateRegistry(name string, opts ...RegistryOption) *Registry {
	r, err := s.CreateRegistry(name, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the registry for name, or ErrRegistryNotFound.
func (s *Scope) Lookup(name string) (*Registry, error) {
	r, ok := s.registries[name]
	if !ok {
		return nil, fmt.Errorf("looking up %s: %w", name, ErrRegistryNotFound)
	}
	return r, nil
}

// Has reports whether a registry exists for name.
func (s *Scope) Has(name string) bool {
	_, ok := s.registries[name]
	return ok
}

// Registries returns the registries in creation order.
func (s *Scope) Registries() []*Registry {
	out := make([]*Registry, len(s.order))
	copy(out, s.order)
	return out
}

// SetPaused pauses or resumes the pausable registries.
func (s *Scope) SetPaused(paused bool) {
	s.paused = paused
}

// Paused reports whether the scope is paused.
func (s *Scope) Paused() bool {
	return s.paused
}

// Update runs every registry once, in creation order. Pausable registries are
// skipped while the scope is paused.
func (s *Scope) Update(dt time.Duration) {
	for _, r := range s.order {
		if s.paused && r.pausable {
			continue
		}
		r.Update(dt)
	}
}
