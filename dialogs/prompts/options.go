package prompts

import (
	"fmt"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialogs"
	"github.com/hupe1980/dialogmesh/internal/util"
)

// Instance state keys shared by all prompts.
const (
	optionsKey      = "options"
	stateKey        = "state"
	attemptCountKey = "attemptCount"
)

// PromptOptions configures one prompt invocation.
type PromptOptions struct {
	Prompt      *core.Activity `json:"prompt,omitempty"`
	RetryPrompt *core.Activity `json:"retryPrompt,omitempty"`
	// Validations is opaque data for custom validators.
	Validations any `json:"validations,omitempty"`
}

// PromptRecognizerResult is the outcome of recognizing user input.
type PromptRecognizerResult[T any] struct {
	Succeeded bool
	Value     T
}

// PromptValidatorContext is handed to validators.
type PromptValidatorContext[T any] struct {
	Context    *core.TurnContext
	Recognized PromptRecognizerResult[T]
	// State is the prompt's private state bag.
	State   map[string]any
	Options *PromptOptions
	// AttemptCount is the number of recognition attempts including this one.
	AttemptCount int
}

// PromptValidator decides whether a recognized value is acceptable. A
// validator may send its own feedback; the prompt then skips its retry prompt.
type PromptValidator[T any] func(pc *PromptValidatorContext[T]) (bool, error)

// toPromptOptions accepts *PromptOptions, PromptOptions, nil or a generic
// map read back from storage.
func toPromptOptions(v any) (*PromptOptions, error) {
	switch o := v.(type) {
	case nil:
		return &PromptOptions{}, nil
	case *PromptOptions:
		if o == nil {
			return &PromptOptions{}, nil
		}
		return o, nil
	case PromptOptions:
		return &o, nil
	default:
		opts, err := util.Convert[*PromptOptions](v)
		if err != nil {
			return nil, fmt.Errorf("prompt options: %w", err)
		}
		if opts == nil {
			opts = &PromptOptions{}
		}
		return opts, nil
	}
}

// renderOptions copies opts with prompt texts expanded against the memory
// snapshot of dc.
func renderOptions(dc *dialogs.DialogContext, opts *PromptOptions) (*PromptOptions, error) {
	if !needsRender(opts.Prompt) && !needsRender(opts.RetryPrompt) {
		return opts, nil
	}
	snapshot, err := dc.State().GetMemorySnapshot()
	if err != nil {
		return nil, err
	}

	out := *opts
	for _, a := range []**core.Activity{&out.Prompt, &out.RetryPrompt} {
		if !needsRender(*a) {
			continue
		}
		c := (*a).Clone()
		if c.Text, err = util.RenderTemplate(c.Text, snapshot); err != nil {
			return nil, err
		}
		if c.Speak, err = util.RenderTemplate(c.Speak, snapshot); err != nil {
			return nil, err
		}
		*a = c
	}
	return &out, nil
}

func needsRender(a *core.Activity) bool {
	return a != nil && (containsMarker(a.Text) || containsMarker(a.Speak))
}

func containsMarker(s string) bool { return strings.Contains(s, "{{") }

// instanceOptions returns the options stored in instance, converting the
// stored form in place.
func instanceOptions(instance *core.DialogInstance) (*PromptOptions, error) {
	opts, err := toPromptOptions(instance.State[optionsKey])
	if err != nil {
		return nil, err
	}
	instance.State[optionsKey] = opts
	return opts, nil
}

// instanceState returns the prompt's private state bag.
func instanceState(instance *core.DialogInstance) map[string]any {
	st, ok := instance.State[stateKey].(map[string]any)
	if !ok {
		st = map[string]any{attemptCountKey: 0}
		instance.State[stateKey] = st
	}
	return st
}

// incrementAttempt bumps the attempt counter and returns the new value.
func incrementAttempt(st map[string]any) int {
	n, _ := util.ToInt(st[attemptCountKey])
	n++
	st[attemptCountKey] = n
	return n
}
