package skills

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialogs"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/state"
	"github.com/hupe1980/dialogmesh/storage"
	"github.com/hupe1980/dialogmesh/usertoken"
)

// parent is a bot whose root waterfall hands the first activity to a
// SkillDialog and ends with the skill's result.
type parent struct {
	t       *testing.T
	manager *dialogs.DialogManager
	client  *testutil.SkillClient
	factory *StorageConversationIDFactory
	counted *countingFactory
	tokens  *usertoken.InMemoryClient
}

func newParent(t *testing.T, optFns ...func(o *SkillDialogOptions)) *parent {
	t.Helper()
	store := storage.NewMemoryStorage()
	p := &parent{
		t:       t,
		client:  &testutil.SkillClient{},
		factory: NewStorageConversationIDFactory(store),
		tokens:  usertoken.NewInMemoryClient(),
	}
	p.counted = &countingFactory{ConversationIDFactory: p.factory}

	opts := SkillDialogOptions{
		BotID:                 "parent-bot",
		SkillClient:           p.client,
		SkillHostEndpoint:     "https://parent.test/api/skills",
		Skill:                 testSkill,
		ConversationIDFactory: p.counted,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	skill, err := NewSkillDialog("skill", opts)
	require.NoError(t, err)

	root, err := dialogs.NewWaterfallDialog("root",
		func(step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return step.BeginDialog("skill", &BeginSkillDialogOptions{Activity: step.TurnContext().Activity})
		},
		func(step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return step.EndDialog(step.Result)
		},
	)
	require.NoError(t, err)

	m, err := dialogs.NewDialogManager(root, func(o *dialogs.ManagerOptions) {
		o.ConversationState = state.NewConversationState(store)
	})
	require.NoError(t, err)
	require.NoError(t, m.Dialogs().Add(skill))
	p.manager = m
	return p
}

func (p *parent) turn(activity *core.Activity) (dialogs.DialogTurnResult, *testutil.RecordingSender, error) {
	p.t.Helper()
	tc, sender := testutil.NewTurn(activity)
	tc.TurnState().Set(core.UserTokenClientKey, p.tokens)
	res, err := p.manager.OnTurn(tc)
	return res, sender, err
}

func (p *parent) say(text string) (dialogs.DialogTurnResult, *testutil.RecordingSender) {
	p.t.Helper()
	res, sender, err := p.turn(testutil.NewActivityBuilder().Message(text).Build())
	require.NoError(p.t, err)
	return res, sender
}

// respondInOrder answers successive skill calls with the given responses,
// falling back to a plain 200 once they run out.
func respondInOrder(responses ...func() (*core.InvokeResponse, error)) func(testutil.SkillCall) (*core.InvokeResponse, error) {
	i := 0
	return func(testutil.SkillCall) (*core.InvokeResponse, error) {
		if i >= len(responses) {
			return &core.InvokeResponse{Status: 200}, nil
		}
		fn := responses[i]
		i++
		return fn()
	}
}

func oauthCardReply(text, uri string) *core.Activity {
	reply := core.NewMessageActivity(text)
	reply.Attachments = []core.Attachment{core.OAuthCardAttachment(&core.OAuthCard{
		Text:           "Sign in",
		ConnectionName: "skill-conn",
		TokenExchangeResource: &core.TokenExchangeResource{
			ID:  "ter-1",
			URI: uri,
		},
	})}
	return reply
}

// countingFactory counts mapping creations and deletions.
type countingFactory struct {
	ConversationIDFactory
	creates, deletes int
}

func (f *countingFactory) CreateSkillConversationID(ctx context.Context, opts SkillConversationIDFactoryOptions) (string, error) {
	f.creates++
	return f.ConversationIDFactory.CreateSkillConversationID(ctx, opts)
}

func (f *countingFactory) DeleteConversationReference(ctx context.Context, skillConversationID string) error {
	f.deletes++
	return f.ConversationIDFactory.DeleteConversationReference(ctx, skillConversationID)
}
