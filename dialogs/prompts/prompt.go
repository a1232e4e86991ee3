package prompts

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialogs"
	"github.com/hupe1980/dialogmesh/internal/metrics"
)

// Recognizer turns the inbound activity into a typed value and renders the
// prompt for a Prompt.
type Recognizer[T any] interface {
	OnPrompt(tc *core.TurnContext, state map[string]any, options *PromptOptions, isRetry bool) error
	OnRecognize(tc *core.TurnContext, state map[string]any, options *PromptOptions) (PromptRecognizerResult[T], error)
}

// Prompt is the generic prompt dialog. It sends the prompt on begin,
// recognizes and validates each message, ends with the value once valid
// and otherwise sends the retry prompt and keeps waiting.
type Prompt[T any] struct {
	dialogs.BaseDialog
	kind       string
	recognizer Recognizer[T]
	validator  PromptValidator[T]
}

// NewPrompt creates a prompt. kind labels the prompt in metrics. A nil
// validator accepts every recognized value.
func NewPrompt[T any](id, kind string, recognizer Recognizer[T], validator PromptValidator[T]) (*Prompt[T], error) {
	if id == "" {
		return nil, dialogs.ErrMissingDialogID
	}
	if recognizer == nil {
		return nil, errors.New("prompt recognizer is required")
	}
	return &Prompt[T]{BaseDialog: dialogs.NewBaseDialog(id), kind: kind, recognizer: recognizer, validator: validator}, nil
}

// BeginDialog stores the options, resets the attempt count and sends the prompt.
func (p *Prompt[T]) BeginDialog(dc *dialogs.DialogContext, options any) (dialogs.DialogTurnResult, error) {
	opts, err := toPromptOptions(options)
	if err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	if opts, err = renderOptions(dc, opts); err != nil {
		return dialogs.DialogTurnResult{}, err
	}

	inst := dc.ActiveDialog()
	inst.State[optionsKey] = opts
	st := map[string]any{attemptCountKey: 0}
	inst.State[stateKey] = st

	if err := p.recognizer.OnPrompt(dc.TurnContext(), st, opts, false); err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	return dialogs.EndOfTurn, nil
}

// ContinueDialog recognizes and validates a message. Other activity types
// are ignored.
func (p *Prompt[T]) ContinueDialog(dc *dialogs.DialogContext) (dialogs.DialogTurnResult, error) {
	tc := dc.TurnContext()
	if !tc.Activity.IsActivity(core.ActivityTypeMessage) {
		return dialogs.EndOfTurn, nil
	}

	inst := dc.ActiveDialog()
	opts, err := instanceOptions(inst)
	if err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	st := instanceState(inst)

	rec, err := p.recognizer.OnRecognize(tc, st, opts)
	if err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	attempt := incrementAttempt(st)

	valid := false
	if rec.Succeeded {
		if p.validator == nil {
			valid = true
		} else if valid, err = p.validator(&PromptValidatorContext[T]{
			Context:      tc,
			Recognized:   rec,
			State:        st,
			Options:      opts,
			AttemptCount: attempt,
		}); err != nil {
			return dialogs.DialogTurnResult{}, err
		}
	}
	metrics.FromTurn(tc).RecordPrompt(p.kind, valid)

	if valid {
		return dc.EndDialog(rec.Value)
	}
	if !tc.Responded() {
		if err := p.recognizer.OnPrompt(tc, st, opts, true); err != nil {
			return dialogs.DialogTurnResult{}, err
		}
	}
	return dialogs.EndOfTurn, nil
}

// ResumeDialog re-sends the original prompt when a dialog pushed on top of
// the prompt ends. The result of that dialog is ignored.
func (p *Prompt[T]) ResumeDialog(dc *dialogs.DialogContext, _ dialogs.DialogReason, _ any) (dialogs.DialogTurnResult, error) {
	if err := p.RepromptDialog(dc.TurnContext(), dc.ActiveDialog()); err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	return dialogs.EndOfTurn, nil
}

// RepromptDialog re-sends the original prompt.
func (p *Prompt[T]) RepromptDialog(tc *core.TurnContext, instance *core.DialogInstance) error {
	opts, err := instanceOptions(instance)
	if err != nil {
		return err
	}
	return p.recognizer.OnPrompt(tc, instanceState(instance), opts, false)
}

// sendPrompt sends the retry prompt on retries when there is one, else
// the prompt. Nothing is sent when neither is set.
func sendPrompt(tc *core.TurnContext, options *PromptOptions, isRetry bool) error {
	a := options.Prompt
	if isRetry && options.RetryPrompt != nil {
		a = options.RetryPrompt
	}
	if a == nil {
		return nil
	}
	out := a.Clone()
	if out.InputHint == "" {
		out.InputHint = core.InputHintExpectingInput
	}
	_, err := tc.SendActivity(out)
	return err
}

// TextPrompt asks for a non-empty text.
type TextPrompt = Prompt[string]

type textRecognizer struct{}

func (textRecognizer) OnPrompt(tc *core.TurnContext, _ map[string]any, options *PromptOptions, isRetry bool) error {
	return sendPrompt(tc, options, isRetry)
}

func (textRecognizer) OnRecognize(tc *core.TurnContext, _ map[string]any, _ *PromptOptions) (PromptRecognizerResult[string], error) {
	text := tc.Activity.Text
	return PromptRecognizerResult[string]{Succeeded: strings.TrimSpace(text) != "", Value: text}, nil
}

// NewTextPrompt creates a text prompt.
func NewTextPrompt(id string, validator PromptValidator[string]) (*TextPrompt, error) {
	return NewPrompt[string](id, "text", textRecognizer{}, validator)
}

// NumberPrompt asks for a number.
type NumberPrompt = Prompt[float64]

type numberRecognizer struct{}

func (numberRecognizer) OnPrompt(tc *core.TurnContext, _ map[string]any, options *PromptOptions, isRetry bool) error {
	return sendPrompt(tc, options, isRetry)
}

func (numberRecognizer) OnRecognize(tc *core.TurnContext, _ map[string]any, _ *PromptOptions) (PromptRecognizerResult[float64], error) {
	text := strings.ReplaceAll(strings.TrimSpace(tc.Activity.Text), ",", "")
	n, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return PromptRecognizerResult[float64]{}, nil
	}
	return PromptRecognizerResult[float64]{Succeeded: true, Value: n}, nil
}

// NewNumberPrompt creates a number prompt. Thousands separators are ignored.
func NewNumberPrompt(id string, validator PromptValidator[float64]) (*NumberPrompt, error) {
	return NewPrompt[float64](id, "number", numberRecognizer{}, validator)
}
