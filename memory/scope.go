package memory

import (
	"errors"

	"github.com/hupe1980/dialogmesh/core"
)

var (
	// ErrScopeNotAttached means the backing store of a scope was not
	// registered for the turn. It is a configuration error, not absence.
	ErrScopeNotAttached = errors.New("memory scope has no backing store for this turn")
	// ErrUnknownScope is returned for a path whose first segment names no scope.
	ErrUnknownScope = errors.New("unknown memory scope")
	// ErrReadOnlyScope is returned when writing to a read-only scope.
	ErrReadOnlyScope = errors.New("memory scope is read-only")
	// ErrInvalidPath is returned for malformed paths or impossible writes.
	ErrInvalidPath = errors.New("invalid memory path")
	// ErrNoActiveDialog is returned when writing to a dialog scope with an empty stack.
	ErrNoActiveDialog = errors.New("no active dialog")
)

// Scope names.
const (
	ScopeUser         = "user"
	ScopeConversation = "conversation"
	ScopeTurn         = "turn"
	ScopeDialog       = "dialog"
	ScopeThis         = "this"
	ScopeClass        = "class"
	ScopeSettings     = "settings"
)

// Context is the view of a dialog context that scopes resolve against.
type Context interface {
	TurnContext() *core.TurnContext
	// ActiveDialogInstance is the instance handling the turn ("this").
	ActiveDialogInstance() *core.DialogInstance
	// DialogScopeInstance is the instance the "dialog" scope binds to: the
	// nearest container dialog when inside one, else the active instance.
	DialogScopeInstance() *core.DialogInstance
	// ActiveDialogClass is the dialog object of the active instance, or nil.
	ActiveDialogClass() any
}

// Scope is a named, addressable view over a state bag.
type Scope interface {
	Name() string
	IncludeInSnapshot() bool
	ReadOnly() bool
	GetMemory(dc Context) (any, error)
	SetMemory(dc Context, memory any) error
	Load(dc Context, force bool) error
	SaveChanges(dc Context, force bool) error
	Delete(dc Context) error
}

// scopeBase supplies identity and no-op lifecycle for scopes that are not persisted.
type scopeBase struct {
	name              string
	includeInSnapshot bool
	readOnly          bool
}

func (s scopeBase) Name() string { return s.name }
func (s scopeBase) IncludeInSnapshot() bool { return s.includeInSnapshot }
func (s scopeBase) ReadOnly() bool { return s.readOnly }
func (s scopeBase) Load(Context, bool) error { return nil }
func (s scopeBase) SaveChanges(Context, bool) error { return nil }
func (s scopeBase) Delete(Context) error { return nil }
