package dialogs

import (
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/state"
)

// DialogSet is an explicit registry of dialogs addressable by id.
//
// A set created with a dialog state property can create root contexts for
// a turn. Sets owned by containers have no property; their contexts are
// created by the container from its instance state.
type DialogSet struct {
	dialogs     map[string]Dialog
	order       []string
	dialogState *state.Property[*core.DialogState]
}

// NewDialogSet creates a registry. dialogState may be nil for sets that
// are only used inside containers.
func NewDialogSet(dialogState *state.Property[*core.DialogState]) *DialogSet {
	return &DialogSet{
		dialogs:     map[string]Dialog{},
		dialogState: dialogState,
	}
}

// Add registers d. Ids must be non-empty and unique within the set.
func (s *DialogSet) Add(d Dialog) error {
	if d == nil || d.ID() == "" {
		return ErrMissingDialogID
	}
	if _, ok := s.dialogs[d.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDialog, d.ID())
	}
	s.dialogs[d.ID()] = d
	s.order = append(s.order, d.ID())
	return nil
}

// Find returns the dialog registered under id or nil.
func (s *DialogSet) Find(id string) Dialog {
	return s.dialogs[id]
}

// Dialogs returns the registered dialogs in registration order.
func (s *DialogSet) Dialogs() []Dialog {
	out := make([]Dialog, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.dialogs[id])
	}
	return out
}

// CreateContext loads the conversation's dialog state and returns a root
// context over it.
func (s *DialogSet) CreateContext(tc *core.TurnContext) (*DialogContext, error) {
	if s.dialogState == nil {
		return nil, ErrNoDialogState
	}
	ds, err := s.dialogState.Get(tc, core.NewDialogState)
	if err != nil {
		return nil, fmt.Errorf("load dialog state: %w", err)
	}
	return NewDialogContext(s, tc, ds), nil
}
