package httpchannel

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialogs"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/skills"
	"github.com/hupe1980/dialogmesh/state"
	"github.com/hupe1980/dialogmesh/storage"
)

// newCitySkill is a skill that asks for a city and ends with the answer.
func newCitySkill(t *testing.T) core.TurnHandler {
	t.Helper()
	root, err := dialogs.NewWaterfallDialog("city",
		func(step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			if _, err := step.TurnContext().SendText("Which city?"); err != nil {
				return dialogs.DialogTurnResult{}, err
			}
			return dialogs.EndOfTurn, nil
		},
		func(step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return step.EndDialog(step.Result)
		},
	)
	require.NoError(t, err)
	m, err := dialogs.NewDialogManager(root)
	require.NoError(t, err)
	return func(tc *core.TurnContext) error {
		_, err := m.OnTurn(tc)
		return err
	}
}

type parentBot struct {
	t       *testing.T
	manager *dialogs.DialogManager
	factory *skills.StorageConversationIDFactory
}

func newParentBot(t *testing.T, factory *skills.StorageConversationIDFactory, skillURL, hostURL string) *parentBot {
	t.Helper()
	store := storage.NewMemoryStorage()
	if factory == nil {
		factory = skills.NewStorageConversationIDFactory(store)
	}

	skill, err := skills.NewSkillDialog("city-skill", skills.SkillDialogOptions{
		BotID:                 "parent-app",
		SkillClient:           NewClient(testSecret),
		SkillHostEndpoint:     hostURL,
		Skill:                 skills.BotFrameworkSkill{ID: "city", AppID: "skill-app", SkillEndpoint: skillURL},
		ConversationIDFactory: factory,
	})
	require.NoError(t, err)

	root, err := dialogs.NewWaterfallDialog("root",
		func(step *dialogs.WaterfallStepContext) (dialogs.DialogTurnResult, error) {
			return step.BeginDialog("city-skill", &skills.BeginSkillDialogOptions{Activity: step.TurnContext().Activity})
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
	return &parentBot{t: t, manager: m, factory: factory}
}

func (p *parentBot) turn(activity *core.Activity) (dialogs.DialogTurnResult, *testutil.RecordingSender) {
	p.t.Helper()
	tc, sender := testutil.NewTurn(activity)
	res, err := p.manager.OnTurn(tc)
	require.NoError(p.t, err)
	return res, sender
}

func TestChannel_ExpectRepliesRoundTrip(t *testing.T) {
	skillSrv := httptest.NewServer(NewBotHandler(newCitySkill(t), func(o *BotHandlerOptions) {
		o.Authenticator = NewAuthenticator(testSecret, func(o *AuthenticatorOptions) { o.Audience = "skill-app" })
	}))
	defer skillSrv.Close()

	p := newParentBot(t, nil, skillSrv.URL, "https://parent.test/api/skills")

	res, sender := p.turn(testutil.NewActivityBuilder().Message("weather").DeliveryMode(core.DeliveryModeExpectReplies).Build())
	assert.Equal(t, dialogs.StatusWaiting, res.Status)
	assert.Equal(t, []string{"Which city?"}, sender.Texts())
	assert.Equal(t, "conv-1", sender.Last().ConversationID())

	res, sender = p.turn(testutil.NewActivityBuilder().Message("Berlin").Build())
	assert.Equal(t, dialogs.StatusComplete, res.Status)
	assert.Equal(t, "Berlin", res.Result)
	assert.Empty(t, sender.Texts())
}

func TestChannel_RepliesThroughSkillHost(t *testing.T) {
	factory := skills.NewStorageConversationIDFactory(storage.NewMemoryStorage())
	continuer := &testutil.Continuer{}
	handler, err := skills.NewHandler(func(*core.TurnContext) error {
		t.Error("bot must not run for plain messages")
		return nil
	}, factory, continuer)
	require.NoError(t, err)

	hostSrv := httptest.NewServer(NewSkillHostHandler(handler, func(o *SkillHostOptions) {
		o.Authenticator = NewAuthenticator(testSecret, func(o *AuthenticatorOptions) { o.Audience = "parent-app" })
	}))
	defer hostSrv.Close()

	skillSrv := httptest.NewServer(NewBotHandler(newCitySkill(t), func(o *BotHandlerOptions) {
		o.Authenticator = NewAuthenticator(testSecret, func(o *AuthenticatorOptions) { o.Audience = "skill-app" })
		o.Client = NewClient(testSecret)
	}))
	defer skillSrv.Close()

	p := newParentBot(t, factory, skillSrv.URL, hostSrv.URL)

	res, sender := p.turn(testutil.NewActivityBuilder().Message("weather").Build())
	assert.Equal(t, dialogs.StatusWaiting, res.Status)
	assert.Empty(t, sender.Activities())

	assert.Equal(t, []string{"Which city?"}, continuer.Sender.Texts())
	last := continuer.Sender.Last()
	require.NotNil(t, last)
	assert.Equal(t, "conv-1", last.ConversationID())
}

func TestSkillHostHandler_UnknownConversation(t *testing.T) {
	handler, err := skills.NewHandler(func(*core.TurnContext) error { return nil },
		skills.NewStorageConversationIDFactory(storage.NewMemoryStorage()), &testutil.Continuer{})
	require.NoError(t, err)
	host := NewSkillHostHandler(handler)

	payload, err := json.Marshal(core.NewMessageActivity("x"))
	require.NoError(t, err)
	w := httptest.NewRecorder()
	host.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v3/conversations/missing/activities", bytes.NewReader(payload)))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	host.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v3/conversations/missing/activities", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
