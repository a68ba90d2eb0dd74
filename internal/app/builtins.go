package app

import (
	"time"

	"github.com/dshills/isocore/internal/component"
	"github.com/dshills/isocore/internal/entity"
	"github.com/dshills/isocore/internal/messenger"
)

// Built-in component types.
const (
	TransformType = "Transform"
	HealthType    = "Health"
)

// Topics posted by the built-in registries.
const (
	TopicDied messenger.Topic = "Died"
)

// registerBuiltins creates the registries every scene has.
func registerBuiltins(scope *component.Scope) error {
	if _, err := scope.CreateRegistry(TransformType, component.Pausable(), component.NativeUpdate(updateTransforms)); err != nil {
		return err
	}
	if _, err := scope.CreateRegistry(HealthType, component.Pausable(), component.NativeUpdate(updateHealth)); err != nil {
		return err
	}
	return nil
}

// registerArchetypeTypes creates a plain pausable registry for every component
// type an archetype references that has none yet.
func registerArchetypeTypes(scope *component.Scope, archetypes []entity.Archetype) error {
	for _, a := range archetypes {
		for _, typeName := range a.Types() {
			if scope.Has(typeName) {
				continue
			}
			if _, err := scope.CreateRegistry(typeName, component.Pausable()); err != nil {
				return err
			}
		}
	}
	return nil
}

// updateTransforms integrates velocity into position: x += vx*dt, y += vy*dt.
func updateTransforms(r *component.Registry, dt time.Duration) {
	step := dt.Seconds()
	for _, c := range r.Components() {
		vx, vy := number(c, "vx"), number(c, "vy")
		if vx == 0 && vy == 0 {
			continue
		}
		c.SetProperty("x", number(c, "x")+vx*step)
		c.SetProperty("y", number(c, "y")+vy*step)
	}
}

// updateHealth applies regen up to max and posts Died on the owner the first
// frame hp reaches zero. Components without an hp property are skipped.
func updateHealth(r *component.Registry, dt time.Duration) {
	for _, c := range r.Components() {
		if dead, _ := c.Property("dead"); dead == true {
			continue
		}
		v, ok := c.Property("hp")
		if !ok {
			continue
		}
		hp := toFloat(v)
		if regen := number(c, "regen"); regen != 0 {
			hp += regen * dt.Seconds()
			if limit, ok := c.Property("max"); ok {
				hp = min(hp, toFloat(limit))
			}
			c.SetProperty("hp", hp)
		}
		if hp <= 0 {
			c.SetProperty("dead", true)
			messenger.Emit(c.Owner().Messenger(), TopicDied, c.Owner().ID())
		}
	}
}

func number(c *component.Component, key string) float64 {
	v, _ := c.Property(key)
	return toFloat(v)
}

// toFloat converts the numeric property values YAML and scripts produce.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return 0
	}
}
