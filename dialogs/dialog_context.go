package dialogs

import (
	"context"
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/memory"
)

// DialogContext binds a dialog registry and a dialog stack to one turn.
// Every stack operation of the package goes through it.
type DialogContext struct {
	dialogs *DialogSet
	tc      *core.TurnContext
	stack   *core.DialogState
	parent  *DialogContext
	state   *memory.StateManager
}

var _ memory.Context = (*DialogContext)(nil)

// NewDialogContext creates a context over stack. A nil stack starts empty.
func NewDialogContext(dialogs *DialogSet, tc *core.TurnContext, stack *core.DialogState) *DialogContext {
	if stack == nil {
		stack = core.NewDialogState()
	}
	return &DialogContext{dialogs: dialogs, tc: tc, stack: stack}
}

// WithParent sets the context that created this one (a container's outer
// context) and returns dc.
func (dc *DialogContext) WithParent(parent *DialogContext) *DialogContext {
	dc.parent = parent
	return dc
}

// Parent returns the outer context, or nil for a root context.
func (dc *DialogContext) Parent() *DialogContext { return dc.parent }

// Dialogs returns the registry this context resolves ids against first.
func (dc *DialogContext) Dialogs() *DialogSet { return dc.dialogs }

// TurnContext returns the turn being processed.
func (dc *DialogContext) TurnContext() *core.TurnContext { return dc.tc }

// Context returns the turn's context.Context.
func (dc *DialogContext) Context() context.Context { return dc.tc.Context }

// Stack returns the dialog stack, active dialog last.
func (dc *DialogContext) Stack() []*core.DialogInstance { return dc.stack.DialogStack }

// ActiveDialog returns the instance on top of the stack or nil.
func (dc *DialogContext) ActiveDialog() *core.DialogInstance { return dc.stack.Top() }

// Child returns the context of the active dialog's child stack when the
// active dialog is a container, else nil.
func (dc *DialogContext) Child() *DialogContext {
	inst := dc.ActiveDialog()
	if inst == nil {
		return nil
	}
	if c, ok := dc.FindDialog(inst.ID).(DialogContainer); ok {
		return c.CreateChildContext(dc)
	}
	return nil
}

// FindDialog looks id up in this context's registry, then in each parent's.
func (dc *DialogContext) FindDialog(id string) Dialog {
	for c := dc; c != nil; c = c.parent {
		if c.dialogs == nil {
			continue
		}
		if d := c.dialogs.Find(id); d != nil {
			return d
		}
	}
	return nil
}

// State returns the memory manager bound to this context.
func (dc *DialogContext) State() *memory.StateManager {
	if dc.state == nil {
		dc.state = memory.NewStateManager(dc, nil)
	}
	return dc.state
}

// ActiveDialogInstance implements memory.Context ("this").
func (dc *DialogContext) ActiveDialogInstance() *core.DialogInstance { return dc.ActiveDialog() }

// DialogScopeInstance implements memory.Context ("dialog"). A container on
// top of the stack owns the scope; otherwise the scope is the parent
// context's active instance, falling back to the active instance.
func (dc *DialogContext) DialogScopeInstance() *core.DialogInstance {
	inst := dc.ActiveDialog()
	if inst != nil {
		if _, ok := dc.FindDialog(inst.ID).(DialogContainer); ok {
			return inst
		}
	}
	if dc.parent != nil {
		if p := dc.parent.ActiveDialog(); p != nil {
			return p
		}
	}
	return inst
}

// ActiveDialogClass implements memory.Context ("class").
func (dc *DialogContext) ActiveDialogClass() any {
	inst := dc.ActiveDialog()
	if inst == nil {
		return nil
	}
	if d := dc.FindDialog(inst.ID); d != nil {
		return d
	}
	return nil
}

// BeginDialog pushes a new instance of dialog id and starts it. The same id
// may appear on the stack more than once.
func (dc *DialogContext) BeginDialog(id string, options any) (DialogTurnResult, error) {
	if id == "" {
		return DialogTurnResult{}, ErrMissingDialogID
	}
	d := dc.FindDialog(id)
	if d == nil {
		return DialogTurnResult{}, fmt.Errorf("begin dialog: %w: %s", ErrDialogNotFound, id)
	}

	dc.stack.DialogStack = append(dc.stack.DialogStack, core.NewDialogInstance(id))
	dc.tc.LogDebug("dialog.begin", "dialog_id", id, "depth", len(dc.stack.DialogStack))

	return d.BeginDialog(dc, options)
}

// Prompt begins dialog id with prompt options. It is BeginDialog under a
// name that reads better at call sites.
func (dc *DialogContext) Prompt(id string, options any) (DialogTurnResult, error) {
	return dc.BeginDialog(id, options)
}

// ContinueDialog hands the turn to the active dialog. An empty stack yields
// StatusEmpty and changes nothing.
func (dc *DialogContext) ContinueDialog() (DialogTurnResult, error) {
	inst := dc.ActiveDialog()
	if inst == nil {
		return DialogTurnResult{Status: StatusEmpty}, nil
	}
	d := dc.FindDialog(inst.ID)
	if d == nil {
		return DialogTurnResult{}, fmt.Errorf("continue dialog: %w: %s", ErrDialogNotFound, inst.ID)
	}
	return d.ContinueDialog(dc)
}

// EndDialog pops the active dialog and resumes its parent with result. When
// the stack becomes empty the result is returned as StatusComplete.
func (dc *DialogContext) EndDialog(result any) (DialogTurnResult, error) {
	if err := dc.endActiveDialog(EndCalled); err != nil {
		return DialogTurnResult{}, err
	}

	inst := dc.ActiveDialog()
	if inst == nil {
		return DialogTurnResult{Status: StatusComplete, Result: result, ParentEnded: true}, nil
	}
	d := dc.FindDialog(inst.ID)
	if d == nil {
		return DialogTurnResult{}, fmt.Errorf("resume dialog: %w: %s", ErrDialogNotFound, inst.ID)
	}
	return d.ResumeDialog(dc, EndCalled, result)
}

// ReplaceDialog ends the active dialog and begins id in its place. The
// parent is not resumed.
func (dc *DialogContext) ReplaceDialog(id string, options any) (DialogTurnResult, error) {
	if err := dc.endActiveDialog(ReplaceCalled); err != nil {
		return DialogTurnResult{}, err
	}
	return dc.BeginDialog(id, options)
}

// CancelAllDialogs ends every dialog on the stack from the top down, giving
// each a CancelCalled notification before it is removed.
func (dc *DialogContext) CancelAllDialogs() (DialogTurnResult, error) {
	if len(dc.stack.DialogStack) == 0 {
		return DialogTurnResult{Status: StatusEmpty}, nil
	}
	for len(dc.stack.DialogStack) > 0 {
		if err := dc.endActiveDialog(CancelCalled); err != nil {
			return DialogTurnResult{}, err
		}
	}
	return DialogTurnResult{Status: StatusCancelled}, nil
}

// RepromptDialog asks the active dialog to re-prompt the user.
func (dc *DialogContext) RepromptDialog() error {
	inst := dc.ActiveDialog()
	if inst == nil {
		return nil
	}
	d := dc.FindDialog(inst.ID)
	if d == nil {
		return fmt.Errorf("reprompt dialog: %w: %s", ErrDialogNotFound, inst.ID)
	}
	return d.RepromptDialog(dc.tc, inst)
}

func (dc *DialogContext) endActiveDialog(reason DialogReason) error {
	inst := dc.ActiveDialog()
	if inst == nil {
		return nil
	}
	if d := dc.FindDialog(inst.ID); d != nil {
		if err := d.EndDialog(dc.tc, inst, reason); err != nil {
			return fmt.Errorf("end dialog %s: %w", inst.ID, err)
		}
	}
	dc.stack.DialogStack = dc.stack.DialogStack[:len(dc.stack.DialogStack)-1]
	dc.tc.LogDebug("dialog.end", "dialog_id", inst.ID, "reason", reason.String())
	return nil
}
