package prompts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialogs"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/state"
	"github.com/hupe1980/dialogmesh/storage"
	"github.com/hupe1980/dialogmesh/usertoken"
)

// bot runs a root waterfall that begins a prompt and ends with its result.
type bot struct {
	t       *testing.T
	manager *dialogs.DialogManager
	tokens  *usertoken.InMemoryClient
}

func newBot(t *testing.T, prompt dialogs.Dialog, options any, before ...dialogs.WaterfallStep) *bot {
	t.Helper()
	steps := append([]dialogs.WaterfallStep{}, before...)
	steps = append(steps,
		func(step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return step.Prompt(prompt.ID(), options)
		},
		func(step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return step.EndDialog(step.Result)
		},
	)
	root, err := dialogs.NewWaterfallDialog("root", steps...)
	require.NoError(t, err)

	store := storage.NewMemoryStorage()
	m, err := dialogs.NewDialogManager(root, func(o *dialogs.ManagerOptions) {
		o.ConversationState = state.NewConversationState(store)
		o.UserState = state.NewUserState(store)
	})
	require.NoError(t, err)
	require.NoError(t, m.Dialogs().Add(prompt))

	return &bot{t: t, manager: m, tokens: usertoken.NewInMemoryClient()}
}

func (b *bot) turn(activity *core.Activity, prepare ...func(tc *core.TurnContext)) (dialogs.DialogTurnResult, *testutil.RecordingSender, *core.TurnContext) {
	b.t.Helper()
	tc, sender := testutil.NewTurn(activity)
	tc.TurnState().Set(core.UserTokenClientKey, b.tokens)
	for _, fn := range prepare {
		fn(tc)
	}
	res, err := b.manager.OnTurn(tc)
	require.NoError(b.t, err)
	return res, sender, tc
}

func (b *bot) say(text string) (dialogs.DialogTurnResult, *testutil.RecordingSender) {
	b.t.Helper()
	res, sender, _ := b.turn(testutil.NewActivityBuilder().Message(text).Build())
	return res, sender
}

func textOptions(prompt, retry string) *PromptOptions {
	opts := &PromptOptions{Prompt: core.NewMessageActivity(prompt)}
	if retry != "" {
		opts.RetryPrompt = core.NewMessageActivity(retry)
	}
	return opts
}
