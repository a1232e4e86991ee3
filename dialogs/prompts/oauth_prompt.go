package prompts

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialogs"
	"github.com/hupe1980/dialogmesh/internal/metrics"
	"github.com/hupe1980/dialogmesh/internal/util"
)

// DefaultOAuthTimeout is how long an OAuthPrompt waits for sign-in.
const DefaultOAuthTimeout = 15 * time.Minute

// OAuthPrompt instance state keys.
const (
	expiresKey = "expires"
	callerKey  = "caller"
)

var (
	// ErrMissingConnectionName is returned when an OAuthPrompt has no connection.
	ErrMissingConnectionName = errors.New("oauth prompt connection name is required")
	// ErrNoUserTokenClient is returned when neither the settings nor the turn
	// provide a core.UserTokenClient.
	ErrNoUserTokenClient = errors.New("no user token client available")
)

var magicCodePattern = regexp.MustCompile(`(\d{6})`)

// OAuthPromptSettings configures an OAuthPrompt.
type OAuthPromptSettings struct {
	ConnectionName string
	Title          string
	Text           string
	// Timeout bounds the whole sign-in; after it the prompt completes
	// with no token. Defaults to DefaultOAuthTimeout.
	Timeout time.Duration
	// EndOnInvalidMessage completes the prompt with no token when the user
	// sends a message that is not a valid magic code.
	EndOnInvalidMessage bool
	// ShowSignInLink forces (true) or suppresses (false) the sign-in link on
	// OAuth cards. When nil only channels that require it get the link.
	ShowSignInLink *bool
	// UserTokenClient overrides the client registered in turn state.
	UserTokenClient core.UserTokenClient
}

// CallerInfo remembers which parent bot started a prompt running in a skill.
type CallerInfo struct {
	CallerServiceURL string `json:"callerServiceUrl,omitempty"`
	Scope            string `json:"scope,omitempty"`
}

// OAuthPrompt obtains a user token for a connection. It completes
// immediately when a token is cached, otherwise sends a sign-in card and
// waits for a magic code, a token response event, a verify-state invoke or
// an SSO token exchange invoke. After the timeout it completes with nil.
type OAuthPrompt struct {
	dialogs.BaseDialog
	settings  OAuthPromptSettings
	validator PromptValidator[*core.TokenResponse]
	now       func() time.Time
}

// NewOAuthPrompt creates an OAuthPrompt. A nil validator accepts any token.
func NewOAuthPrompt(id string, settings OAuthPromptSettings, validator PromptValidator[*core.TokenResponse]) (*OAuthPrompt, error) {
	if id == "" {
		return nil, dialogs.ErrMissingDialogID
	}
	if settings.ConnectionName == "" {
		return nil, ErrMissingConnectionName
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultOAuthTimeout
	}
	return &OAuthPrompt{
		BaseDialog: dialogs.NewBaseDialog(id),
		settings:   settings,
		validator:  validator,
		now:        time.Now,
	}, nil
}

// ClassMemory exposes the prompt's settings to the "class" scope.
func (p *OAuthPrompt) ClassMemory() map[string]any {
	return map[string]any{
		"id":             p.ID(),
		"connectionName": p.settings.ConnectionName,
		"title":          p.settings.Title,
		"timeout":        p.settings.Timeout.String(),
	}
}

// BeginDialog completes with a cached token or sends the sign-in card.
func (p *OAuthPrompt) BeginDialog(dc *dialogs.DialogContext, options any) (dialogs.DialogTurnResult, error) {
	tc := dc.TurnContext()
	opts, err := toPromptOptions(options)
	if err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	if opts, err = renderOptions(dc, opts); err != nil {
		return dialogs.DialogTurnResult{}, err
	}

	inst := dc.ActiveDialog()
	inst.State[optionsKey] = opts
	inst.State[stateKey] = map[string]any{attemptCountKey: 0}
	inst.State[expiresKey] = p.now().UTC().Add(p.settings.Timeout)
	if id := tc.Identity(); id.IsSkillClaim() {
		inst.State[callerKey] = &CallerInfo{CallerServiceURL: tc.Activity.ServiceURL, Scope: id.AppID()}
	}

	token, err := p.GetUserToken(tc)
	if err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	if token != nil {
		metrics.FromTurn(tc).RecordTokenFlow("oauth", "cached")
		return dc.EndDialog(token)
	}

	if err := p.sendOAuthCard(tc, opts.Prompt); err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	return dialogs.EndOfTurn, nil
}

// ContinueDialog handles sign-in input. Once the prompt has expired it
// completes with nil regardless of the input.
func (p *OAuthPrompt) ContinueDialog(dc *dialogs.DialogContext) (dialogs.DialogTurnResult, error) {
	tc := dc.TurnContext()
	inst := dc.ActiveDialog()
	col := metrics.FromTurn(tc)

	if p.expired(inst) {
		tc.LogDebug("oauth.prompt.expired", "dialog_id", p.ID())
		col.RecordTokenFlow("oauth", "timeout")
		return dc.EndDialog(nil)
	}

	opts, err := instanceOptions(inst)
	if err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	st := instanceState(inst)
	isMessage := tc.Activity.IsActivity(core.ActivityTypeMessage)

	rec, err := p.recognizeToken(tc, inst)
	if err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	attempt := incrementAttempt(st)

	valid := false
	if rec.Succeeded {
		if p.validator == nil {
			valid = true
		} else if valid, err = p.validator(&PromptValidatorContext[*core.TokenResponse]{
			Context:      tc,
			Recognized:   rec,
			State:        st,
			Options:      opts,
			AttemptCount: attempt,
		}); err != nil {
			return dialogs.DialogTurnResult{}, err
		}
	}

	if valid {
		col.RecordTokenFlow("oauth", "token")
		return dc.EndDialog(rec.Value)
	}
	if isMessage && p.settings.EndOnInvalidMessage {
		col.RecordTokenFlow("oauth", "invalid")
		return dc.EndDialog(nil)
	}

	col.RecordTokenFlow("oauth", "retry")
	if !tc.Responded() && isMessage && opts.RetryPrompt != nil {
		if _, err := tc.SendActivity(opts.RetryPrompt.Clone()); err != nil {
			return dialogs.DialogTurnResult{}, err
		}
	}
	return dialogs.EndOfTurn, nil
}

// RepromptDialog re-sends the sign-in card.
func (p *OAuthPrompt) RepromptDialog(tc *core.TurnContext, instance *core.DialogInstance) error {
	opts, err := instanceOptions(instance)
	if err != nil {
		return err
	}
	return p.sendOAuthCard(tc, opts.Prompt)
}

// ResumeDialog re-sends the sign-in card after an interruption.
func (p *OAuthPrompt) ResumeDialog(dc *dialogs.DialogContext, _ dialogs.DialogReason, _ any) (dialogs.DialogTurnResult, error) {
	if err := p.RepromptDialog(dc.TurnContext(), dc.ActiveDialog()); err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	return dialogs.EndOfTurn, nil
}

// GetUserToken returns the cached token for the turn's user, or nil.
func (p *OAuthPrompt) GetUserToken(tc *core.TurnContext) (*core.TokenResponse, error) {
	client, err := p.client(tc)
	if err != nil {
		return nil, err
	}
	return client.GetUserToken(tc.Context, tc.Activity.FromID(), p.settings.ConnectionName, tc.Activity.ChannelID, "")
}

// SignOutUser signs the turn's user out of the connection. It does not
// touch the dialog stack.
func (p *OAuthPrompt) SignOutUser(tc *core.TurnContext) error {
	client, err := p.client(tc)
	if err != nil {
		return err
	}
	return client.SignOutUser(tc.Context, tc.Activity.FromID(), p.settings.ConnectionName, tc.Activity.ChannelID)
}

func (p *OAuthPrompt) client(tc *core.TurnContext) (core.UserTokenClient, error) {
	if p.settings.UserTokenClient != nil {
		return p.settings.UserTokenClient, nil
	}
	if c, ok := core.TurnValue[core.UserTokenClient](tc.TurnState(), core.UserTokenClientKey); ok && c != nil {
		return c, nil
	}
	return nil, ErrNoUserTokenClient
}

func (p *OAuthPrompt) expired(instance *core.DialogInstance) bool {
	var expires time.Time
	switch v := instance.State[expiresKey].(type) {
	case time.Time:
		expires = v
	default:
		t, err := util.Convert[time.Time](v)
		if err != nil {
			return true
		}
		expires = t
		instance.State[expiresKey] = t
	}
	return p.now().UTC().After(expires)
}

// sendOAuthCard sends prompt (or an empty message) with a sign-in card
// attached unless it already carries one.
func (p *OAuthPrompt) sendOAuthCard(tc *core.TurnContext, prompt *core.Activity) error {
	client, err := p.client(tc)
	if err != nil {
		return err
	}

	msg := core.NewMessageActivity("")
	if prompt != nil {
		msg = prompt.Clone()
	}

	if !channelSupportsOAuthCard(tc.Activity.ChannelID) {
		if !hasAttachment(msg, core.ContentTypeSigninCard) {
			res, err := client.GetSignInResource(tc.Context, p.settings.ConnectionName, tc.Activity, "")
			if err != nil {
				return fmt.Errorf("get sign-in resource: %w", err)
			}
			msg.Attachments = append(msg.Attachments, core.SigninCardAttachment(&core.SigninCard{
				Text: p.settings.Text,
				Buttons: []core.CardAction{{
					Type:  core.ActionTypeSignIn,
					Title: p.settings.Title,
					Value: res.SignInLink,
				}},
			}))
		}
	} else if !hasAttachment(msg, core.ContentTypeOAuthCard) {
		res, err := client.GetSignInResource(tc.Context, p.settings.ConnectionName, tc.Activity, "")
		if err != nil {
			return fmt.Errorf("get sign-in resource: %w", err)
		}

		actionType := core.ActionTypeSignIn
		var link any = res.SignInLink
		if tc.Identity().IsSkillClaim() {
			if tc.Activity.ChannelID == core.ChannelEmulator {
				actionType = core.ActionTypeOpenURL
			}
		} else if !p.showSignInLink(tc.Activity.ChannelID) {
			link = nil
		}

		msg.Attachments = append(msg.Attachments, core.OAuthCardAttachment(&core.OAuthCard{
			Text:           p.settings.Text,
			ConnectionName: p.settings.ConnectionName,
			Buttons: []core.CardAction{{
				Type:  actionType,
				Title: p.settings.Title,
				Text:  p.settings.Text,
				Value: link,
			}},
			TokenExchangeResource: res.TokenExchangeResource,
			TokenPostResource:     res.TokenPostResource,
		}))
	}

	if msg.InputHint == "" {
		msg.InputHint = core.InputHintExpectingInput
	}
	_, err = tc.SendActivity(msg)
	return err
}

func (p *OAuthPrompt) showSignInLink(channelID string) bool {
	if p.settings.ShowSignInLink != nil {
		return *p.settings.ShowSignInLink
	}
	return channelRequiresSignInLink(channelID)
}

// recognizeToken extracts a token from the turn. Invoke activities are
// always answered with an invoke response.
func (p *OAuthPrompt) recognizeToken(tc *core.TurnContext, inst *core.DialogInstance) (PromptRecognizerResult[*core.TokenResponse], error) {
	var none PromptRecognizerResult[*core.TokenResponse]
	a := tc.Activity

	switch {
	case a.IsActivity(core.ActivityTypeEvent) && a.Name == core.EventTokenResponse:
		token, err := util.Convert[*core.TokenResponse](a.Value)
		if err != nil || token == nil || token.Token == "" {
			return none, nil
		}
		if caller, err := util.Convert[*CallerInfo](inst.State[callerKey]); err == nil && caller != nil {
			tc.TurnState().Set(core.OAuthScopeKey, caller.Scope)
		}
		return PromptRecognizerResult[*core.TokenResponse]{Succeeded: true, Value: token}, nil

	case a.IsActivity(core.ActivityTypeInvoke) && a.Name == core.InvokeSignInVerifyState:
		return p.verifyState(tc)

	case a.IsActivity(core.ActivityTypeInvoke) && a.Name == core.InvokeSignInTokenExchange:
		return p.exchangeToken(tc)

	case a.IsActivity(core.ActivityTypeMessage):
		code := magicCodePattern.FindString(a.Text)
		if code == "" {
			return none, nil
		}
		client, err := p.client(tc)
		if err != nil {
			return none, err
		}
		token, err := client.GetUserToken(tc.Context, a.FromID(), p.settings.ConnectionName, a.ChannelID, code)
		if err != nil {
			return none, err
		}
		if token == nil {
			return none, nil
		}
		return PromptRecognizerResult[*core.TokenResponse]{Succeeded: true, Value: token}, nil
	}
	return none, nil
}

func (p *OAuthPrompt) verifyState(tc *core.TurnContext) (PromptRecognizerResult[*core.TokenResponse], error) {
	var none PromptRecognizerResult[*core.TokenResponse]

	client, err := p.client(tc)
	if err != nil {
		return none, err
	}
	value, _ := util.ToMap(tc.Activity.Value)
	code, _ := value["state"].(string)

	token, err := client.GetUserToken(tc.Context, tc.Activity.FromID(), p.settings.ConnectionName, tc.Activity.ChannelID, code)
	if err != nil {
		tc.LogWarn("oauth.verify_state.failed", "error", err)
		return none, sendInvokeResponse(tc, http.StatusInternalServerError, nil)
	}
	if token == nil {
		return none, sendInvokeResponse(tc, http.StatusNotFound, nil)
	}
	if err := sendInvokeResponse(tc, http.StatusOK, nil); err != nil {
		return none, err
	}
	return PromptRecognizerResult[*core.TokenResponse]{Succeeded: true, Value: token}, nil
}

func (p *OAuthPrompt) exchangeToken(tc *core.TurnContext) (PromptRecognizerResult[*core.TokenResponse], error) {
	var none PromptRecognizerResult[*core.TokenResponse]
	col := metrics.FromTurn(tc)

	req, err := util.Convert[*core.TokenExchangeInvokeRequest](tc.Activity.Value)
	if err != nil || req == nil {
		return none, sendInvokeResponse(tc, http.StatusBadRequest, &core.TokenExchangeInvokeResponse{
			ConnectionName: p.settings.ConnectionName,
			FailureDetail:  "The bot received an invoke activity that is missing a token exchange request value.",
		})
	}
	if req.ConnectionName != p.settings.ConnectionName {
		return none, sendInvokeResponse(tc, http.StatusBadRequest, &core.TokenExchangeInvokeResponse{
			ID:             req.ID,
			ConnectionName: p.settings.ConnectionName,
			FailureDetail:  "The connection name of the token exchange request does not match the connection name of the active oauth prompt.",
		})
	}

	client, err := p.client(tc)
	if err != nil {
		return none, err
	}
	token, err := client.ExchangeToken(tc.Context, tc.Activity.FromID(), p.settings.ConnectionName, tc.Activity.ChannelID, core.TokenExchangeRequest{Token: req.Token})
	if err != nil || token == nil || token.Token == "" {
		tc.LogDebug("oauth.token_exchange.failed", "connection_name", p.settings.ConnectionName, "error", err)
		col.RecordTokenFlow("sso", "precondition_failed")
		return none, sendInvokeResponse(tc, http.StatusPreconditionFailed, &core.TokenExchangeInvokeResponse{
			ID:             req.ID,
			ConnectionName: p.settings.ConnectionName,
			FailureDetail:  "The bot is unable to exchange token. Proceed with regular login.",
		})
	}

	col.RecordTokenFlow("sso", "exchanged")
	if err := sendInvokeResponse(tc, http.StatusOK, &core.TokenExchangeInvokeResponse{
		ID:             req.ID,
		ConnectionName: p.settings.ConnectionName,
	}); err != nil {
		return none, err
	}
	return PromptRecognizerResult[*core.TokenResponse]{Succeeded: true, Value: &core.TokenResponse{
		ChannelID:      token.ChannelID,
		ConnectionName: token.ConnectionName,
		Token:          token.Token,
		Expiration:     token.Expiration,
	}}, nil
}

func sendInvokeResponse(tc *core.TurnContext, status int, body any) error {
	_, err := tc.SendActivity(core.NewInvokeResponseActivity(status, body))
	return err
}

func hasAttachment(a *core.Activity, contentType string) bool {
	for _, att := range a.Attachments {
		if att.ContentType == contentType {
			return true
		}
	}
	return false
}

func channelSupportsOAuthCard(channelID string) bool {
	switch channelID {
	case core.ChannelCortana, core.ChannelSkype, core.ChannelSkypeForBusiness:
		return false
	default:
		return true
	}
}

func channelRequiresSignInLink(channelID string) bool {
	return channelID == core.ChannelMSTeams
}
