package dialogs

import (
	"errors"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
)

// Instance state keys of a waterfall.
const (
	waterfallOptionsKey = "options"
	waterfallValuesKey  = "values"
	waterfallIndexKey   = "stepIndex"
)

// ErrNextAlreadyCalled is returned when a step calls Next twice.
var ErrNextAlreadyCalled = errors.New("waterfall step already called next")

// WaterfallStep is one step of a WaterfallDialog. A step usually begins a
// prompt or child dialog and returns its result; the child's result is
// delivered to the following step.
type WaterfallStep func(step *WaterfallStepContext) (DialogTurnResult, error)

// WaterfallStepContext is the DialogContext a step runs with, plus the
// step's position and the value handed over by the previous step.
type WaterfallStepContext struct {
	*DialogContext

	Index   int
	Options any
	Reason  DialogReason
	// Result is the previous step's child result, or the message text when
	// the waterfall was continued directly.
	Result any
	// Values is a bag persisted across the waterfall's steps.
	Values map[string]any

	waterfall  *WaterfallDialog
	nextCalled bool
}

// Next skips to the following step, handing it result.
func (s *WaterfallStepContext) Next(result any) (DialogTurnResult, error) {
	if s.nextCalled {
		return DialogTurnResult{}, ErrNextAlreadyCalled
	}
	s.nextCalled = true
	return s.waterfall.ResumeDialog(s.DialogContext, NextCalled, result)
}

// WaterfallDialog runs its steps in order, one step per resumption. After
// the last step the dialog ends with that step's result.
type WaterfallDialog struct {
	BaseDialog
	steps []WaterfallStep
}

// NewWaterfallDialog creates a waterfall over steps.
func NewWaterfallDialog(id string, steps ...WaterfallStep) (*WaterfallDialog, error) {
	if id == "" {
		return nil, ErrMissingDialogID
	}
	return &WaterfallDialog{BaseDialog: NewBaseDialog(id), steps: steps}, nil
}

// AddStep appends a step.
func (w *WaterfallDialog) AddStep(step WaterfallStep) *WaterfallDialog {
	w.steps = append(w.steps, step)
	return w
}

// ClassMemory exposes the waterfall's shape to the "class" scope.
func (w *WaterfallDialog) ClassMemory() map[string]any {
	return map[string]any{"id": w.ID(), "steps": len(w.steps)}
}

// BeginDialog stores the options and runs the first step.
func (w *WaterfallDialog) BeginDialog(dc *DialogContext, options any) (DialogTurnResult, error) {
	st := dc.ActiveDialog().State
	st[waterfallOptionsKey] = options
	st[waterfallValuesKey] = map[string]any{}
	return w.runStep(dc, 0, BeginCalled, nil)
}

// ContinueDialog resumes with the incoming message text. Other activity
// types leave the waterfall waiting.
func (w *WaterfallDialog) ContinueDialog(dc *DialogContext) (DialogTurnResult, error) {
	if !dc.TurnContext().Activity.IsActivity(core.ActivityTypeMessage) {
		return EndOfTurn, nil
	}
	return w.ResumeDialog(dc, ContinueCalled, dc.TurnContext().Activity.Text)
}

// ResumeDialog runs the step after the current one.
func (w *WaterfallDialog) ResumeDialog(dc *DialogContext, reason DialogReason, result any) (DialogTurnResult, error) {
	idx, _ := util.ToInt(dc.ActiveDialog().State[waterfallIndexKey])
	return w.runStep(dc, idx+1, reason, result)
}

func (w *WaterfallDialog) runStep(dc *DialogContext, index int, reason DialogReason, result any) (DialogTurnResult, error) {
	if index >= len(w.steps) {
		return dc.EndDialog(result)
	}

	st := dc.ActiveDialog().State
	st[waterfallIndexKey] = index

	values, ok := st[waterfallValuesKey].(map[string]any)
	if !ok {
		values = map[string]any{}
		st[waterfallValuesKey] = values
	}

	return w.steps[index](&WaterfallStepContext{
		DialogContext: dc,
		Index:         index,
		Options:       st[waterfallOptionsKey],
		Reason:        reason,
		Result:        result,
		Values:        values,
		waterfall:     w,
	})
}
