package memory

import (
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
	"github.com/hupe1980/dialogmesh/state"
)

// TurnMemoryKey is the turn state key holding the "turn" scope's map.
const TurnMemoryKey = "turn"

// BotStateScope exposes a state.BotState registered in turn state under
// the bag's name. User and conversation scopes are BotStateScopes.
type BotStateScope struct {
	scopeBase
	stateName string
}

// NewBotStateScope creates a scope called name backed by the bag registered as stateName.
func NewBotStateScope(name, stateName string) *BotStateScope {
	return &BotStateScope{scopeBase: scopeBase{name: name, includeInSnapshot: true}, stateName: stateName}
}

// NewUserScope creates the "user" scope.
func NewUserScope() *BotStateScope { return NewBotStateScope(ScopeUser, state.UserStateName) }

// NewConversationScope creates the "conversation" scope.
func NewConversationScope() *BotStateScope {
	return NewBotStateScope(ScopeConversation, state.ConversationStateName)
}

func (s *BotStateScope) botState(dc Context) (*state.BotState, error) {
	bs, ok := state.FromTurn(dc.TurnContext(), s.stateName)
	if !ok {
		return nil, fmt.Errorf("%s: %w", s.name, ErrScopeNotAttached)
	}
	return bs, nil
}

// GetMemory returns the loaded bag, loading it on first access.
func (s *BotStateScope) GetMemory(dc Context) (any, error) {
	bs, err := s.botState(dc)
	if err != nil {
		return nil, err
	}
	tc := dc.TurnContext()
	if m := bs.Get(tc); m != nil {
		return m, nil
	}
	if err := bs.Load(tc, false); err != nil {
		return nil, err
	}
	return bs.Get(tc), nil
}

// SetMemory replaces the bag. memory must be a map.
func (s *BotStateScope) SetMemory(dc Context, memory any) error {
	bs, err := s.botState(dc)
	if err != nil {
		return err
	}
	m, ok := util.ToMap(memory)
	if !ok && memory != nil {
		return fmt.Errorf("%w: %s memory must be an object, got %T", ErrInvalidPath, s.name, memory)
	}
	if err := bs.Load(dc.TurnContext(), false); err != nil {
		return err
	}
	return bs.Set(dc.TurnContext(), m)
}

// Load reads the bag from storage.
func (s *BotStateScope) Load(dc Context, force bool) error {
	bs, err := s.botState(dc)
	if err != nil {
		return err
	}
	return bs.Load(dc.TurnContext(), force)
}

// SaveChanges writes the bag when it changed.
func (s *BotStateScope) SaveChanges(dc Context, force bool) error {
	bs, err := s.botState(dc)
	if err != nil {
		return err
	}
	return bs.SaveChanges(dc.TurnContext(), force)
}

// Delete removes the bag from storage.
func (s *BotStateScope) Delete(dc Context) error {
	bs, err := s.botState(dc)
	if err != nil {
		return err
	}
	return bs.Delete(dc.TurnContext())
}

// TurnScope is a per-turn scratch map. It starts with "activity" set to the
// inbound activity.
type TurnScope struct{ scopeBase }

// NewTurnScope creates the "turn" scope.
func NewTurnScope() *TurnScope {
	return &TurnScope{scopeBase{name: ScopeTurn}}
}

// GetMemory returns the turn map, creating it on first access.
func (s *TurnScope) GetMemory(dc Context) (any, error) {
	ts := dc.TurnContext().TurnState()
	if m, ok := core.TurnValue[map[string]any](ts, TurnMemoryKey); ok {
		return m, nil
	}
	m := map[string]any{"activity": dc.TurnContext().Activity}
	ts.Set(TurnMemoryKey, m)
	return m, nil
}

// SetMemory replaces the turn map.
func (s *TurnScope) SetMemory(dc Context, memory any) error {
	m, ok := util.ToMap(memory)
	if !ok && memory != nil {
		return fmt.Errorf("%w: turn memory must be an object, got %T", ErrInvalidPath, memory)
	}
	if m == nil {
		m = map[string]any{}
	}
	dc.TurnContext().TurnState().Set(TurnMemoryKey, m)
	return nil
}

// SettingsScope exposes host settings read-only.
type SettingsScope struct {
	scopeBase
	settings map[string]any
}

// NewSettingsScope creates the "settings" scope over settings.
func NewSettingsScope(settings map[string]any) *SettingsScope {
	if settings == nil {
		settings = map[string]any{}
	}
	return &SettingsScope{scopeBase: scopeBase{name: ScopeSettings, readOnly: true}, settings: settings}
}

// GetMemory returns the settings map.
func (s *SettingsScope) GetMemory(Context) (any, error) { return s.settings, nil }

// SetMemory always fails.
func (s *SettingsScope) SetMemory(Context, any) error {
	return fmt.Errorf("%s: %w", s.name, ErrReadOnlyScope)
}

// instanceScope binds to one dialog instance's State.
type instanceScope struct {
	scopeBase
	instance func(dc Context) *core.DialogInstance
}

func (s *instanceScope) GetMemory(dc Context) (any, error) {
	inst := s.instance(dc)
	if inst == nil {
		return nil, nil
	}
	if inst.State == nil {
		inst.State = map[string]any{}
	}
	return inst.State, nil
}

func (s *instanceScope) SetMemory(dc Context, memory any) error {
	inst := s.instance(dc)
	if inst == nil {
		return fmt.Errorf("%s: %w", s.name, ErrNoActiveDialog)
	}
	m, ok := util.ToMap(memory)
	if !ok && memory != nil {
		return fmt.Errorf("%w: %s memory must be an object, got %T", ErrInvalidPath, s.name, memory)
	}
	if m == nil {
		m = map[string]any{}
	}
	inst.State = m
	return nil
}

// NewDialogScope creates the "dialog" scope bound to the nearest container
// dialog's instance.
func NewDialogScope() Scope {
	return &instanceScope{
		scopeBase: scopeBase{name: ScopeDialog, includeInSnapshot: true},
		instance:  func(dc Context) *core.DialogInstance { return dc.DialogScopeInstance() },
	}
}

// NewThisScope creates the "this" scope bound to the active instance.
func NewThisScope() Scope {
	return &instanceScope{
		scopeBase: scopeBase{name: ScopeThis, includeInSnapshot: true},
		instance:  func(dc Context) *core.DialogInstance { return dc.ActiveDialogInstance() },
	}
}

// ClassMemoryProvider lets a dialog choose what the "class" scope exposes.
type ClassMemoryProvider interface {
	ClassMemory() map[string]any
}

// ClassScope exposes the active dialog's static configuration read-only.
type ClassScope struct{ scopeBase }

// NewClassScope creates the "class" scope.
func NewClassScope() *ClassScope {
	return &ClassScope{scopeBase{name: ScopeClass, includeInSnapshot: true, readOnly: true}}
}

// GetMemory returns the dialog's ClassMemory, or {"id": ID()} for dialogs
// that do not provide one.
func (s *ClassScope) GetMemory(dc Context) (any, error) {
	d := dc.ActiveDialogClass()
	switch v := d.(type) {
	case nil:
		return nil, nil
	case ClassMemoryProvider:
		return v.ClassMemory(), nil
	case interface{ ID() string }:
		return map[string]any{"id": v.ID()}, nil
	default:
		return nil, nil
	}
}

// SetMemory always fails.
func (s *ClassScope) SetMemory(Context, any) error {
	return fmt.Errorf("%s: %w", s.name, ErrReadOnlyScope)
}
