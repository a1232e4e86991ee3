package state

import (
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
)

// Property is a typed accessor for one top level property of a BotState.
// Values read back from storage arrive as generic JSON and are converted to T
// on first access; the converted value replaces the raw one in the cache so
// later mutations are persisted.
type Property[T any] struct {
	state *BotState
	name  string
}

// NewProperty creates an accessor for property name of state.
func NewProperty[T any](state *BotState, name string) *Property[T] {
	return &Property[T]{state: state, name: name}
}

// Name returns the property name.
func (p *Property[T]) Name() string { return p.name }

// Get returns the property. When absent and defaultFn is non-nil, the
// default is stored and returned. Absent without a default yields the zero value.
func (p *Property[T]) Get(tc *core.TurnContext, defaultFn func() T) (T, error) {
	var zero T
	if err := p.state.Load(tc, false); err != nil {
		return zero, err
	}
	raw, ok, err := p.state.GetPropertyValue(tc, p.name)
	if err != nil {
		return zero, err
	}
	if !ok || raw == nil {
		if defaultFn == nil {
			return zero, nil
		}
		v := defaultFn()
		return v, p.state.SetPropertyValue(tc, p.name, v)
	}
	if v, ok := raw.(T); ok {
		return v, nil
	}
	v, err := util.Convert[T](raw)
	if err != nil {
		return zero, fmt.Errorf("property %s: %w", p.name, err)
	}
	return v, p.state.SetPropertyValue(tc, p.name, v)
}

// Set stores the property.
func (p *Property[T]) Set(tc *core.TurnContext, v T) error {
	if err := p.state.Load(tc, false); err != nil {
		return err
	}
	return p.state.SetPropertyValue(tc, p.name, v)
}

// Delete removes the property.
func (p *Property[T]) Delete(tc *core.TurnContext) error {
	if err := p.state.Load(tc, false); err != nil {
		return err
	}
	return p.state.DeletePropertyValue(tc, p.name)
}
