package dialogs

import (
	"errors"

	"github.com/hupe1980/dialogmesh/core"
)

var (
	// ErrMissingDialogID is returned when a dialog is created or begun without an id.
	ErrMissingDialogID = errors.New("dialog id is required")
	// ErrDialogNotFound is returned when no reachable registry knows a dialog id.
	ErrDialogNotFound = errors.New("dialog not found")
	// ErrDuplicateDialog is returned when an id is registered twice in one set.
	ErrDuplicateDialog = errors.New("dialog id already registered")
	// ErrNoDialogState is returned by DialogSet.CreateContext when the set
	// was built without a dialog state accessor.
	ErrNoDialogState = errors.New("dialog set has no dialog state property")
)

// DialogTurnStatus is the outcome of a stack operation.
type DialogTurnStatus int

const (
	// StatusEmpty means the stack was empty and nothing ran.
	StatusEmpty DialogTurnStatus = iota
	// StatusWaiting means the active dialog is waiting for the next turn.
	StatusWaiting
	// StatusComplete means the last dialog on the stack ended.
	StatusComplete
	// StatusCancelled means the stack was cancelled.
	StatusCancelled
)

// String returns the lower case status name.
func (s DialogTurnStatus) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusWaiting:
		return "waiting"
	case StatusComplete:
		return "complete"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DialogReason tells a dialog why it is being resumed or ended.
type DialogReason int

const (
	// BeginCalled means the dialog was started.
	BeginCalled DialogReason = iota
	// ContinueCalled means the dialog is handling a new turn.
	ContinueCalled
	// EndCalled means the dialog (or its child) ended normally.
	EndCalled
	// ReplaceCalled means the dialog is being replaced on the stack.
	ReplaceCalled
	// CancelCalled means the stack is being cancelled.
	CancelCalled
	// NextCalled means a waterfall step skipped ahead.
	NextCalled
)

// String returns the reason name.
func (r DialogReason) String() string {
	switch r {
	case BeginCalled:
		return "beginCalled"
	case ContinueCalled:
		return "continueCalled"
	case EndCalled:
		return "endCalled"
	case ReplaceCalled:
		return "replaceCalled"
	case CancelCalled:
		return "cancelCalled"
	case NextCalled:
		return "nextCalled"
	default:
		return "unknown"
	}
}

// DialogTurnResult is returned by every stack operation.
type DialogTurnResult struct {
	Status DialogTurnStatus
	Result any
	// ParentEnded is set when the dialog that produced the result was the
	// last one on its stack.
	ParentEnded bool
}

// EndOfTurn is the result a dialog returns while it waits for input.
var EndOfTurn = DialogTurnResult{Status: StatusWaiting}

// Dialog is the contract every dialog implements. Methods receiving a
// DialogContext run while the dialog's instance is on top of that context's
// stack; RepromptDialog and EndDialog receive the instance directly because
// they may run outside a turn's normal flow.
type Dialog interface {
	ID() string
	BeginDialog(dc *DialogContext, options any) (DialogTurnResult, error)
	ContinueDialog(dc *DialogContext) (DialogTurnResult, error)
	ResumeDialog(dc *DialogContext, reason DialogReason, result any) (DialogTurnResult, error)
	RepromptDialog(tc *core.TurnContext, instance *core.DialogInstance) error
	EndDialog(tc *core.TurnContext, instance *core.DialogInstance, reason DialogReason) error
}

// DialogContainer is a dialog that owns a child registry and stack.
type DialogContainer interface {
	Dialog
	Dialogs() *DialogSet
	CreateChildContext(dc *DialogContext) *DialogContext
}

// BaseDialog carries the dialog id and default behaviour for the optional
// parts of the Dialog contract. Embed it and supply BeginDialog.
//
// The defaults end the dialog when it is continued or resumed (passing the
// child's result through), and do nothing on reprompt or end.
type BaseDialog struct {
	id string
}

// NewBaseDialog constructs a BaseDialog.
func NewBaseDialog(id string) BaseDialog {
	return BaseDialog{id: id}
}

// ID returns the dialog id.
func (b *BaseDialog) ID() string { return b.id }

// ContinueDialog ends the dialog.
func (b *BaseDialog) ContinueDialog(dc *DialogContext) (DialogTurnResult, error) {
	return dc.EndDialog(nil)
}

// ResumeDialog ends the dialog with the child's result.
func (b *BaseDialog) ResumeDialog(dc *DialogContext, _ DialogReason, result any) (DialogTurnResult, error) {
	return dc.EndDialog(result)
}

// RepromptDialog does nothing.
func (b *BaseDialog) RepromptDialog(*core.TurnContext, *core.DialogInstance) error { return nil }

// EndDialog does nothing.
func (b *BaseDialog) EndDialog(*core.TurnContext, *core.DialogInstance, DialogReason) error {
	return nil
}
