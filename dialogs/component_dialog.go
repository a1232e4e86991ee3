package dialogs

import (
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
)

// componentStateKey is where a component keeps its child stack in its own
// instance state.
const componentStateKey = "dialogs"

// ComponentDialog is a container with its own DialogSet. Beginning it
// begins InitialDialogID on a child stack; the component ends when the
// child stack completes, with the child's result.
type ComponentDialog struct {
	BaseDialog
	dialogs         *DialogSet
	InitialDialogID string
}

var _ DialogContainer = (*ComponentDialog)(nil)

// NewComponentDialog creates an empty component.
func NewComponentDialog(id string) (*ComponentDialog, error) {
	if id == "" {
		return nil, ErrMissingDialogID
	}
	return &ComponentDialog{
		BaseDialog: NewBaseDialog(id),
		dialogs:    NewDialogSet(nil),
	}, nil
}

// AddDialog registers d in the component's set. The first dialog added
// becomes the initial dialog unless InitialDialogID is already set.
func (c *ComponentDialog) AddDialog(d Dialog) error {
	if err := c.dialogs.Add(d); err != nil {
		return err
	}
	if c.InitialDialogID == "" {
		c.InitialDialogID = d.ID()
	}
	return nil
}

// Dialogs returns the component's registry.
func (c *ComponentDialog) Dialogs() *DialogSet { return c.dialogs }

// ClassMemory exposes the component's configuration to the "class" scope.
func (c *ComponentDialog) ClassMemory() map[string]any {
	return map[string]any{"id": c.ID(), "initialDialogId": c.InitialDialogID}
}

// CreateChildContext returns a context over the child stack stored in the
// active instance of outer.
func (c *ComponentDialog) CreateChildContext(outer *DialogContext) *DialogContext {
	return NewDialogContext(c.dialogs, outer.TurnContext(), childState(outer.ActiveDialog())).WithParent(outer)
}

// BeginDialog starts the initial dialog on a fresh child stack.
func (c *ComponentDialog) BeginDialog(outer *DialogContext, options any) (DialogTurnResult, error) {
	outer.ActiveDialog().State[componentStateKey] = core.NewDialogState()

	inner := c.CreateChildContext(outer)
	res, err := inner.BeginDialog(c.InitialDialogID, options)
	if err != nil {
		return DialogTurnResult{}, err
	}
	return c.afterInnerTurn(outer, res)
}

// ContinueDialog hands the turn to the child stack.
func (c *ComponentDialog) ContinueDialog(outer *DialogContext) (DialogTurnResult, error) {
	res, err := c.CreateChildContext(outer).ContinueDialog()
	if err != nil {
		return DialogTurnResult{}, err
	}
	return c.afterInnerTurn(outer, res)
}

// ResumeDialog runs when a dialog pushed on top of the component (on the
// outer stack) ends. The component keeps waiting and re-prompts its child.
func (c *ComponentDialog) ResumeDialog(outer *DialogContext, _ DialogReason, _ any) (DialogTurnResult, error) {
	if err := c.RepromptDialog(outer.TurnContext(), outer.ActiveDialog()); err != nil {
		return DialogTurnResult{}, err
	}
	return EndOfTurn, nil
}

// RepromptDialog re-prompts the active child.
func (c *ComponentDialog) RepromptDialog(tc *core.TurnContext, instance *core.DialogInstance) error {
	return NewDialogContext(c.dialogs, tc, childState(instance)).RepromptDialog()
}

// EndDialog cancels the child stack when the component is cancelled.
func (c *ComponentDialog) EndDialog(tc *core.TurnContext, instance *core.DialogInstance, reason DialogReason) error {
	if reason != CancelCalled {
		return nil
	}
	_, err := NewDialogContext(c.dialogs, tc, childState(instance)).CancelAllDialogs()
	return err
}

func (c *ComponentDialog) afterInnerTurn(outer *DialogContext, res DialogTurnResult) (DialogTurnResult, error) {
	if res.Status == StatusWaiting {
		return EndOfTurn, nil
	}
	return outer.EndDialog(res.Result)
}

// childState returns the child stack stored in instance, converting the
// generic form read back from storage in place.
func childState(instance *core.DialogInstance) *core.DialogState {
	if instance == nil {
		return core.NewDialogState()
	}
	if instance.State == nil {
		instance.State = map[string]any{}
	}
	if ds, ok := instance.State[componentStateKey].(*core.DialogState); ok {
		return ds
	}
	ds, err := util.Convert[*core.DialogState](instance.State[componentStateKey])
	if err != nil || ds == nil {
		ds = core.NewDialogState()
	}
	instance.State[componentStateKey] = ds
	return ds
}
