package prompts

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialogs"
	"github.com/hupe1980/dialogmesh/internal/testutil"
)

const connection = "graph"

func newOAuthBot(t *testing.T, settings OAuthPromptSettings, options any) (*bot, *OAuthPrompt) {
	t.Helper()
	settings.ConnectionName = connection
	if settings.Title == "" {
		settings.Title = "Sign in"
	}
	if settings.Text == "" {
		settings.Text = "Please sign in"
	}
	p, err := NewOAuthPrompt("login", settings, nil)
	require.NoError(t, err)
	return newBot(t, p, options), p
}

func oauthCard(t *testing.T, a *core.Activity) *core.OAuthCard {
	t.Helper()
	require.NotNil(t, a)
	require.Len(t, a.Attachments, 1)
	card, ok := a.Attachments[0].AsOAuthCard()
	require.True(t, ok)
	return card
}

func asSkillCaller(tc *core.TurnContext) {
	tc.TurnState().Set(core.BotIdentityKey, core.NewClaimsIdentity(jwt.MapClaims{
		"ver": "1.0", "appid": "parent-app", "aud": "skill-app",
	}))
}

func TestNewOAuthPrompt_Validation(t *testing.T) {
	_, err := NewOAuthPrompt("login", OAuthPromptSettings{}, nil)
	assert.ErrorIs(t, err, ErrMissingConnectionName)
	_, err = NewOAuthPrompt("", OAuthPromptSettings{ConnectionName: connection}, nil)
	assert.ErrorIs(t, err, dialogs.ErrMissingDialogID)

	p, err := NewOAuthPrompt("login", OAuthPromptSettings{ConnectionName: connection}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOAuthTimeout, p.settings.Timeout)
	assert.Equal(t, connection, p.ClassMemory()["connectionName"])
}

func TestOAuthPrompt_CachedTokenCompletesWithoutCard(t *testing.T) {
	b, _ := newOAuthBot(t, OAuthPromptSettings{}, nil)
	b.tokens.AddUserToken(connection, "test", "user-1", "cached", "")

	res, sender := b.say("hi")
	assert.Equal(t, dialogs.StatusComplete, res.Status)
	tok, ok := res.Result.(*core.TokenResponse)
	require.True(t, ok)
	assert.Equal(t, "cached", tok.Token)
	assert.Empty(t, sender.Activities())
}

func TestOAuthPrompt_CardShapes(t *testing.T) {
	yes := true

	t.Run("default channel drops the link", func(t *testing.T) {
		b, _ := newOAuthBot(t, OAuthPromptSettings{}, nil)
		_, sender := b.say("hi")
		card := oauthCard(t, sender.Last())
		assert.Equal(t, connection, card.ConnectionName)
		require.Len(t, card.Buttons, 1)
		assert.Equal(t, core.ActionTypeSignIn, card.Buttons[0].Type)
		assert.Nil(t, card.Buttons[0].Value)
		require.NotNil(t, card.TokenExchangeResource)
		assert.NotEmpty(t, card.TokenExchangeResource.URI)
		assert.NotNil(t, card.TokenPostResource)
		assert.Equal(t, core.InputHintExpectingInput, sender.Last().InputHint)
	})

	t.Run("teams keeps the link", func(t *testing.T) {
		b, _ := newOAuthBot(t, OAuthPromptSettings{}, nil)
		_, sender, _ := b.turn(testutil.NewActivityBuilder().Channel(core.ChannelMSTeams).Message("hi").Build())
		card := oauthCard(t, sender.Last())
		assert.NotEmpty(t, card.Buttons[0].Value)
	})

	t.Run("forced link", func(t *testing.T) {
		b, _ := newOAuthBot(t, OAuthPromptSettings{ShowSignInLink: &yes}, nil)
		_, sender := b.say("hi")
		assert.NotEmpty(t, oauthCard(t, sender.Last()).Buttons[0].Value)
	})

	t.Run("channel without oauth cards gets a signin card", func(t *testing.T) {
		b, _ := newOAuthBot(t, OAuthPromptSettings{}, nil)
		_, sender, _ := b.turn(testutil.NewActivityBuilder().Channel(core.ChannelSkype).Message("hi").Build())
		a := sender.Last()
		require.Len(t, a.Attachments, 1)
		assert.Equal(t, core.ContentTypeSigninCard, a.Attachments[0].ContentType)
		card, ok := a.Attachments[0].Content.(*core.SigninCard)
		require.True(t, ok)
		assert.Equal(t, "Please sign in", card.Text)
		assert.NotEmpty(t, card.Buttons[0].Value)
	})

	t.Run("emulator skill caller uses open url", func(t *testing.T) {
		b, _ := newOAuthBot(t, OAuthPromptSettings{}, nil)
		_, sender, _ := b.turn(testutil.NewActivityBuilder().Channel(core.ChannelEmulator).Message("hi").Build(), asSkillCaller)
		card := oauthCard(t, sender.Last())
		assert.Equal(t, core.ActionTypeOpenURL, card.Buttons[0].Type)
		assert.NotEmpty(t, card.Buttons[0].Value)
	})

	t.Run("prompt activity carries the card", func(t *testing.T) {
		b, _ := newOAuthBot(t, OAuthPromptSettings{}, textOptions("Sign in to continue", ""))
		_, sender := b.say("hi")
		assert.Equal(t, "Sign in to continue", sender.Last().Text)
		oauthCard(t, sender.Last())
	})
}

func TestOAuthPrompt_MagicCode(t *testing.T) {
	b, _ := newOAuthBot(t, OAuthPromptSettings{}, nil)
	b.tokens.AddUserToken(connection, "test", "user-1", "from-code", "123456")

	b.say("hi")
	res, _ := b.say("my code is 123456")
	assert.Equal(t, dialogs.StatusComplete, res.Status)
	assert.Equal(t, "from-code", res.Result.(*core.TokenResponse).Token)
}

func TestOAuthPrompt_InvalidMessageRetries(t *testing.T) {
	b, _ := newOAuthBot(t, OAuthPromptSettings{}, textOptions("Sign in", "That was not a code"))

	b.say("hi")
	res, sender := b.say("hello?")
	assert.Equal(t, dialogs.StatusWaiting, res.Status)
	assert.Equal(t, []string{"That was not a code"}, sender.Texts())
}

func TestOAuthPrompt_EndOnInvalidMessage(t *testing.T) {
	b, _ := newOAuthBot(t, OAuthPromptSettings{EndOnInvalidMessage: true}, nil)

	b.say("hi")
	res, _ := b.say("nope")
	assert.Equal(t, dialogs.StatusComplete, res.Status)
	assert.Nil(t, res.Result)
}

func TestOAuthPrompt_ExpiryCompletesWithNil(t *testing.T) {
	b, p := newOAuthBot(t, OAuthPromptSettings{Timeout: time.Minute}, nil)
	b.tokens.AddUserToken(connection, "test", "user-1", "late", "123456")
	start := time.Now()
	p.now = func() time.Time { return start }

	b.say("hi")
	p.now = func() time.Time { return start.Add(2 * time.Minute) }

	res, sender := b.say("123456")
	assert.Equal(t, dialogs.StatusComplete, res.Status)
	assert.Nil(t, res.Result)
	assert.Empty(t, sender.Activities())
}

func TestOAuthPrompt_TokenResponseEvent(t *testing.T) {
	b, _ := newOAuthBot(t, OAuthPromptSettings{}, nil)
	b.say("hi")

	res, _, _ := b.turn(testutil.NewActivityBuilder().Event(core.EventTokenResponse, map[string]any{
		"connectionName": connection, "token": "evt-token",
	}).Build())
	assert.Equal(t, dialogs.StatusComplete, res.Status)
	assert.Equal(t, "evt-token", res.Result.(*core.TokenResponse).Token)
}

func TestOAuthPrompt_TokenResponseEventFromSkillCaller(t *testing.T) {
	b, _ := newOAuthBot(t, OAuthPromptSettings{}, nil)
	b.turn(testutil.NewActivityBuilder().Message("hi").Build(), asSkillCaller)

	_, _, tc := b.turn(testutil.NewActivityBuilder().Event(core.EventTokenResponse, map[string]any{"token": "evt"}).Build(), asSkillCaller)
	assert.Equal(t, "parent-app", tc.TurnState().Get(core.OAuthScopeKey))
}

func TestOAuthPrompt_VerifyState(t *testing.T) {
	b, _ := newOAuthBot(t, OAuthPromptSettings{}, nil)
	b.tokens.AddUserToken(connection, "test", "user-1", "verified", "654321")
	b.say("hi")

	res, _, tc := b.turn(testutil.NewActivityBuilder().Invoke(core.InvokeSignInVerifyState, map[string]any{"state": "000000"}).Build())
	assert.Equal(t, dialogs.StatusWaiting, res.Status)
	require.NotNil(t, tc.InvokeResponse())
	assert.Equal(t, http.StatusNotFound, tc.InvokeResponse().Status)

	res, _, tc = b.turn(testutil.NewActivityBuilder().Invoke(core.InvokeSignInVerifyState, map[string]any{"state": "654321"}).Build())
	assert.Equal(t, dialogs.StatusComplete, res.Status)
	assert.Equal(t, http.StatusOK, tc.InvokeResponse().Status)
	assert.Equal(t, "verified", res.Result.(*core.TokenResponse).Token)
}

func TestOAuthPrompt_TokenExchangeInvoke(t *testing.T) {
	invoke := func(value any) *core.Activity {
		return testutil.NewActivityBuilder().Invoke(core.InvokeSignInTokenExchange, value).Build()
	}
	body := func(t *testing.T, tc *core.TurnContext) *core.TokenExchangeInvokeResponse {
		t.Helper()
		resp := tc.InvokeResponse()
		require.NotNil(t, resp)
		b, ok := resp.Body.(*core.TokenExchangeInvokeResponse)
		require.True(t, ok)
		return b
	}

	b, _ := newOAuthBot(t, OAuthPromptSettings{}, nil)
	b.tokens.AddExchangeableToken(connection, "test", "user-1", "sso", "exchanged")
	b.tokens.ThrowOnExchangeRequest(connection, "test", "user-1", "broken")
	b.say("hi")

	res, _, tc := b.turn(invoke(nil))
	assert.Equal(t, dialogs.StatusWaiting, res.Status)
	assert.Equal(t, http.StatusBadRequest, tc.InvokeResponse().Status)

	_, _, tc = b.turn(invoke(map[string]any{"id": "x1", "connectionName": "other", "token": "sso"}))
	assert.Equal(t, http.StatusBadRequest, tc.InvokeResponse().Status)
	assert.Equal(t, "x1", body(t, tc).ID)

	_, _, tc = b.turn(invoke(map[string]any{"id": "x2", "connectionName": connection, "token": "broken"}))
	assert.Equal(t, http.StatusPreconditionFailed, tc.InvokeResponse().Status)
	assert.NotEmpty(t, body(t, tc).FailureDetail)

	_, _, tc = b.turn(invoke(map[string]any{"id": "x3", "connectionName": connection, "token": "unknown"}))
	assert.Equal(t, http.StatusPreconditionFailed, tc.InvokeResponse().Status)

	res, _, tc = b.turn(invoke(map[string]any{"id": "x4", "connectionName": connection, "token": "sso"}))
	assert.Equal(t, dialogs.StatusComplete, res.Status)
	assert.Equal(t, http.StatusOK, tc.InvokeResponse().Status)
	assert.Equal(t, &core.TokenExchangeInvokeResponse{ID: "x4", ConnectionName: connection}, body(t, tc))
	assert.Equal(t, "exchanged", res.Result.(*core.TokenResponse).Token)
}

func TestOAuthPrompt_SignOutAndGetToken(t *testing.T) {
	p, err := NewOAuthPrompt("login", OAuthPromptSettings{ConnectionName: connection}, nil)
	require.NoError(t, err)
	tc, _ := testutil.NewTurn(testutil.NewActivityBuilder().Message("hi").Build())

	_, err = p.GetUserToken(tc)
	assert.ErrorIs(t, err, ErrNoUserTokenClient)

	b := newBot(t, p, nil)
	b.tokens.AddUserToken(connection, "test", "user-1", "tok", "")
	tc.TurnState().Set(core.UserTokenClientKey, b.tokens)

	tok, err := p.GetUserToken(tc)
	require.NoError(t, err)
	require.NotNil(t, tok)

	require.NoError(t, p.SignOutUser(tc))
	tok, err = p.GetUserToken(tc)
	require.NoError(t, err)
	assert.Nil(t, tok)
}
