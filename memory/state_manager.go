package memory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
)

// ConfigurationKey is the turn state key a host uses to register the memory
// configuration for the turn.
const ConfigurationKey = "DialogStateManagerConfiguration"

// Configuration lists the scopes and resolvers available to a StateManager.
type Configuration struct {
	Scopes    []Scope
	Resolvers []PathResolver
}

// DefaultConfiguration registers every built-in scope and resolver.
func DefaultConfiguration(settings map[string]any) *Configuration {
	return &Configuration{
		Scopes: []Scope{
			NewTurnScope(),
			NewSettingsScope(settings),
			NewDialogScope(),
			NewThisScope(),
			NewClassScope(),
			NewConversationScope(),
			NewUserScope(),
		},
		Resolvers: DefaultResolvers(),
	}
}

// Scope returns the scope called name (case-insensitive) or nil.
func (c *Configuration) Scope(name string) Scope {
	for _, s := range c.Scopes {
		if strings.EqualFold(s.Name(), name) {
			return s
		}
	}
	return nil
}

// Register stores c in turn state for StateManagers created during the turn.
func (c *Configuration) Register(tc *core.TurnContext) {
	tc.TurnState().Set(ConfigurationKey, c)
}

// StateManager reads and writes memory paths for one dialog context.
type StateManager struct {
	dc     Context
	config *Configuration
}

// NewStateManager binds a manager to dc. A nil config falls back to the
// configuration registered in turn state, then to DefaultConfiguration(nil).
func NewStateManager(dc Context, config *Configuration) *StateManager {
	if config == nil {
		if c, ok := core.TurnValue[*Configuration](dc.TurnContext().TurnState(), ConfigurationKey); ok {
			config = c
		} else {
			config = DefaultConfiguration(nil)
		}
	}
	return &StateManager{dc: dc, config: config}
}

// Configuration returns the manager's configuration.
func (m *StateManager) Configuration() *Configuration { return m.config }

// TransformPath expands aliases in path.
func (m *StateManager) TransformPath(path string) string {
	return resolvePath(m.config.Resolvers, path)
}

func (m *StateManager) resolve(path string) (Scope, []segment, error) {
	segs, err := parsePath(m.TransformPath(path))
	if err != nil {
		return nil, nil, err
	}
	scope := m.config.Scope(segs[0].key)
	if scope == nil {
		return nil, nil, fmt.Errorf("%w %q in path %q", ErrUnknownScope, segs[0].key, path)
	}
	return scope, segs[1:], nil
}

// GetValue reads path. A missing value yields (nil, false, nil); errors are
// reserved for malformed paths, unknown scopes and unattached backing stores.
func (m *StateManager) GetValue(path string) (any, bool, error) {
	scope, rest, err := m.resolve(path)
	if err != nil {
		return nil, false, err
	}
	mem, err := scope.GetMemory(m.dc)
	if err != nil {
		return nil, false, err
	}
	if mem == nil {
		return nil, false, nil
	}
	if len(rest) == 0 {
		return normalize(mem), true, nil
	}
	v, ok := getPath(mem, rest)
	return v, ok, nil
}

// GetValue reads path and converts the value to T.
func GetValue[T any](m *StateManager, path string) (T, bool, error) {
	var zero T
	v, ok, err := m.GetValue(path)
	if err != nil || !ok {
		return zero, ok, err
	}
	out, err := util.Convert[T](v)
	if err != nil {
		return zero, false, fmt.Errorf("get %q: %w", path, err)
	}
	return out, true, nil
}

// SetValue writes value at path, creating intermediate maps.
func (m *StateManager) SetValue(path string, value any) error {
	scope, rest, err := m.resolve(path)
	if err != nil {
		return err
	}
	if scope.ReadOnly() {
		return fmt.Errorf("set %q: %w", path, ErrReadOnlyScope)
	}
	if len(rest) == 0 {
		return scope.SetMemory(m.dc, value)
	}
	mem, err := scope.GetMemory(m.dc)
	if err != nil {
		return err
	}
	if mem == nil {
		return fmt.Errorf("set %q: %w", path, ErrNoActiveDialog)
	}
	updated, err := setPath(mem, rest, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}
	return scope.SetMemory(m.dc, updated)
}

// RemoveValue deletes path. Removing a missing path is a no-op.
func (m *StateManager) RemoveValue(path string) error {
	scope, rest, err := m.resolve(path)
	if err != nil {
		return err
	}
	if scope.ReadOnly() {
		return fmt.Errorf("remove %q: %w", path, ErrReadOnlyScope)
	}
	if len(rest) == 0 {
		return fmt.Errorf("%w: cannot remove scope %q", ErrInvalidPath, scope.Name())
	}
	mem, err := scope.GetMemory(m.dc)
	if err != nil || mem == nil {
		return err
	}
	removePath(mem, rest)
	return nil
}

// GetMemorySnapshot returns the memory of every snapshot scope keyed by
// scope name. Scopes without a backing store are skipped.
func (m *StateManager) GetMemorySnapshot() (map[string]any, error) {
	out := map[string]any{}
	for _, s := range m.config.Scopes {
		if !s.IncludeInSnapshot() {
			continue
		}
		mem, err := s.GetMemory(m.dc)
		if errors.Is(err, ErrScopeNotAttached) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[s.Name()] = mem
	}
	return out, nil
}

// LoadAllScopes loads every scope with a backing store.
func (m *StateManager) LoadAllScopes() error {
	for _, s := range m.config.Scopes {
		if err := s.Load(m.dc, false); err != nil && !errors.Is(err, ErrScopeNotAttached) {
			return fmt.Errorf("load scope %s: %w", s.Name(), err)
		}
	}
	return nil
}

// SaveAllChanges saves every scope with a backing store.
func (m *StateManager) SaveAllChanges() error {
	for _, s := range m.config.Scopes {
		if err := s.SaveChanges(m.dc, false); err != nil && !errors.Is(err, ErrScopeNotAttached) {
			return fmt.Errorf("save scope %s: %w", s.Name(), err)
		}
	}
	return nil
}

// DeleteScopesMemory deletes the backing store of the named scope.
func (m *StateManager) DeleteScopesMemory(name string) error {
	s := m.config.Scope(name)
	if s == nil {
		return fmt.Errorf("%w %q", ErrUnknownScope, name)
	}
	return s.Delete(m.dc)
}
