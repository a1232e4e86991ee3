package skills

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/dialogs"
	"github.com/hupe1980/dialogmesh/internal/metrics"
	"github.com/hupe1980/dialogmesh/internal/util"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/state"
)

// DefaultSkillDialogID is used when NewSkillDialog is given no id.
const DefaultSkillDialogID = "SkillDialog"

const instrumentationName = "github.com/hupe1980/dialogmesh/skills"

// SkillDialog instance state keys.
const (
	deliveryModeKey        = "deliverymode"
	skillConversationIDKey = "skillConversationId"
)

var (
	// ErrMissingBotID is returned when SkillDialogOptions has no BotID.
	ErrMissingBotID = errors.New("skill dialog bot id is required")
	// ErrMissingSkillClient is returned when SkillDialogOptions has no SkillClient.
	ErrMissingSkillClient = errors.New("skill dialog skill client is required")
	// ErrMissingSkill is returned when SkillDialogOptions names no skill endpoint.
	ErrMissingSkill = errors.New("skill dialog skill is required")
	// ErrMissingConversationIDFactory is returned when SkillDialogOptions has no factory.
	ErrMissingConversationIDFactory = errors.New("skill dialog conversation id factory is required")
	// ErrMissingActivity is returned when a SkillDialog is begun without an activity.
	ErrMissingActivity = errors.New("begin skill dialog options must carry an activity")
	// ErrSkillRequestFailed is returned when a skill answers with a non-2xx status.
	ErrSkillRequestFailed = errors.New("skill request failed")
)

// SkillDialogOptions configures a SkillDialog.
type SkillDialogOptions struct {
	// BotID is the app id of this (parent) bot.
	BotID       string
	SkillClient core.SkillClient
	// SkillHostEndpoint is where the skill sends out-of-band replies.
	SkillHostEndpoint     string
	Skill                 BotFrameworkSkill
	ConversationIDFactory ConversationIDFactory
	// ConversationState is saved before every post so a reply racing the
	// post observes the updated dialog stack. Defaults to the bag registered
	// in turn state.
	ConversationState *state.BotState
	// ConnectionName enables SSO interception of the skill's OAuth cards.
	ConnectionName string
	// UserTokenClient overrides the client registered in turn state.
	UserTokenClient core.UserTokenClient
	Tracer          trace.Tracer
}

// BeginSkillDialogOptions is the options value SkillDialog.BeginDialog expects.
type BeginSkillDialogOptions struct {
	Activity *core.Activity `json:"activity"`
}

// SkillDialog proxies a remote skill as a dialog.
type SkillDialog struct {
	dialogs.BaseDialog
	opts SkillDialogOptions
}

// NewSkillDialog validates opts and creates the dialog.
func NewSkillDialog(id string, opts SkillDialogOptions) (*SkillDialog, error) {
	if id == "" {
		id = DefaultSkillDialogID
	}
	switch {
	case opts.BotID == "":
		return nil, ErrMissingBotID
	case opts.SkillClient == nil:
		return nil, ErrMissingSkillClient
	case opts.Skill.SkillEndpoint == "":
		return nil, ErrMissingSkill
	case opts.ConversationIDFactory == nil:
		return nil, ErrMissingConversationIDFactory
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(instrumentationName)
	}
	return &SkillDialog{BaseDialog: dialogs.NewBaseDialog(id), opts: opts}, nil
}

// ClassMemory exposes the skill this dialog talks to.
func (d *SkillDialog) ClassMemory() map[string]any {
	return map[string]any{"id": d.ID(), "skillId": d.opts.Skill.ID, "skillEndpoint": d.opts.Skill.SkillEndpoint}
}

// BeginDialog creates the skill conversation and sends the initial activity.
func (d *SkillDialog) BeginDialog(dc *dialogs.DialogContext, options any) (dialogs.DialogTurnResult, error) {
	begin, err := toBeginOptions(options)
	if err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	tc := dc.TurnContext()

	skillActivity := begin.Activity.Clone()
	skillActivity.ApplyConversationReference(tc.Activity.GetConversationReference(), true)

	inst := dc.ActiveDialog()
	inst.State[deliveryModeKey] = skillActivity.DeliveryMode

	convID, err := d.opts.ConversationIDFactory.CreateSkillConversationID(tc.Context, SkillConversationIDFactoryOptions{
		FromBotOAuthScope: oauthScope(tc),
		FromBotID:         d.opts.BotID,
		Activity:          tc.Activity,
		Skill:             d.opts.Skill,
	})
	if err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	inst.State[skillConversationIDKey] = convID

	eoc, err := d.sendToSkill(tc, skillActivity, convID)
	if err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	if eoc != nil {
		return dc.EndDialog(eoc.Value)
	}
	return dialogs.EndOfTurn, nil
}

// ContinueDialog ends on an end of conversation from the skill and
// otherwise forwards the turn to the skill.
func (d *SkillDialog) ContinueDialog(dc *dialogs.DialogContext) (dialogs.DialogTurnResult, error) {
	tc := dc.TurnContext()
	if tc.Activity.IsActivity(core.ActivityTypeEndOfConversation) {
		tc.LogDebug("skill.dialog.ended", "skill_id", d.opts.Skill.ID, "code", tc.Activity.Code)
		return dc.EndDialog(tc.Activity.Value)
	}

	inst := dc.ActiveDialog()
	skillActivity := tc.Activity.Clone()
	if mode, _ := inst.State[deliveryModeKey].(string); mode != "" {
		skillActivity.DeliveryMode = mode
	}

	eoc, err := d.sendToSkill(tc, skillActivity, conversationID(inst))
	if err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	if eoc != nil {
		return dc.EndDialog(eoc.Value)
	}
	return dialogs.EndOfTurn, nil
}

// RepromptDialog sends a repromptDialog event to the skill.
func (d *SkillDialog) RepromptDialog(tc *core.TurnContext, instance *core.DialogInstance) error {
	event := core.NewEventActivity(core.EventRepromptDialog, nil)
	event.ApplyConversationReference(tc.Activity.GetConversationReference(), true)
	_, err := d.sendToSkill(tc, event, conversationID(instance))
	return err
}

// ResumeDialog re-prompts the skill after an interruption.
func (d *SkillDialog) ResumeDialog(dc *dialogs.DialogContext, _ dialogs.DialogReason, _ any) (dialogs.DialogTurnResult, error) {
	if err := d.RepromptDialog(dc.TurnContext(), dc.ActiveDialog()); err != nil {
		return dialogs.DialogTurnResult{}, err
	}
	return dialogs.EndOfTurn, nil
}

// EndDialog tells the skill the conversation is over when the dialog is
// cancelled or replaced, then forgets the skill conversation.
func (d *SkillDialog) EndDialog(tc *core.TurnContext, instance *core.DialogInstance, reason dialogs.DialogReason) error {
	if reason != dialogs.CancelCalled && reason != dialogs.ReplaceCalled {
		return nil
	}
	convID := conversationID(instance)

	eoc := core.NewEndOfConversationActivity("")
	eoc.ApplyConversationReference(tc.Activity.GetConversationReference(), true)
	eoc.ChannelData = tc.Activity.ChannelData
	if _, err := d.sendToSkill(tc, eoc, convID); err != nil {
		return err
	}
	return d.opts.ConversationIDFactory.DeleteConversationReference(tc.Context, convID)
}

// sendToSkill posts activity and, for expectReplies, relays the buffered
// replies. It returns the skill's end of conversation when the batch ends
// with one.
func (d *SkillDialog) sendToSkill(tc *core.TurnContext, activity *core.Activity, convID string) (*core.Activity, error) {
	if activity.IsActivity(core.ActivityTypeInvoke) {
		activity.DeliveryMode = core.DeliveryModeExpectReplies
	}
	convState := d.opts.ConversationState
	if convState == nil {
		convState, _ = state.FromTurn(tc, state.ConversationStateName)
	}
	if convState != nil {
		if err := convState.SaveChanges(tc, true); err != nil {
			return nil, err
		}
	}

	resp, err := d.post(tc, convID, activity)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccessStatusCode() {
		return nil, fmt.Errorf("%w: skill %s at %s returned status %d", ErrSkillRequestFailed, d.opts.Skill.ID, d.opts.Skill.SkillEndpoint, resp.Status)
	}
	if activity.DeliveryMode != core.DeliveryModeExpectReplies || resp.Body == nil {
		return nil, nil
	}

	replies, err := toExpectedReplies(resp.Body)
	if err != nil {
		return nil, err
	}

	// Only the last activity of the batch can end the dialog.
	last := len(replies.Activities) - 1
	var sentInvokeResponse bool
	for i, reply := range replies.Activities {
		if reply == nil {
			continue
		}
		if i == last && reply.IsActivity(core.ActivityTypeEndOfConversation) {
			if err := d.opts.ConversationIDFactory.DeleteConversationReference(tc.Context, convID); err != nil {
				return nil, err
			}
			return reply, nil
		}
		if err := d.relay(tc, reply, convID, &sentInvokeResponse); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// relay forwards one batched reply to the user. At most one invoke response
// per batch reaches the user, and an intercepted OAuth card counts as one.
func (d *SkillDialog) relay(tc *core.TurnContext, reply *core.Activity, convID string, sentInvokeResponse *bool) error {
	switch {
	case !*sentInvokeResponse && d.interceptOAuthCards(tc, reply, convID):
		*sentInvokeResponse = true
		if !reply.HasContent() {
			return nil
		}
	case reply.Type == core.ActivityTypeInvokeResponse:
		if *sentInvokeResponse {
			return nil
		}
		*sentInvokeResponse = true
	}
	_, err := tc.SendActivity(reply)
	return err
}

func (d *SkillDialog) post(tc *core.TurnContext, convID string, activity *core.Activity) (*core.InvokeResponse, error) {
	ctx, span := d.opts.Tracer.Start(tc.Context, "skill.post",
		trace.WithAttributes(
			attribute.String("skill.id", d.opts.Skill.ID),
			attribute.String("skill.endpoint", d.opts.Skill.SkillEndpoint),
			attribute.String("activity.type", activity.Type),
			attribute.String("skill.conversation_id", convID),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := d.opts.SkillClient.PostActivity(ctx, d.opts.BotID, d.opts.Skill.AppID, d.opts.Skill.SkillEndpoint, d.opts.SkillHostEndpoint, convID, activity)
	dur := time.Since(start)

	status := "error"
	code := 0
	if resp != nil {
		code = resp.Status
		status = strconv.Itoa(resp.Status)
	}
	metrics.FromTurn(tc).RecordSkillCall(d.opts.Skill.ID, status, dur)
	if dl, ok := tc.Logger().(*logging.DialogLogger); ok {
		dl.WithComponent("skill_dialog").LogSkillCall(d.opts.Skill.ID, code, dur, err)
	} else {
		tc.LogDebug("skill.call", "skill_id", d.opts.Skill.ID, "status_code", code, "duration", dur, "error", err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("post to skill %s: %w", d.opts.Skill.ID, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", code))
	if resp == nil {
		resp = &core.InvokeResponse{Status: 200}
	}
	return resp, nil
}

// interceptOAuthCards answers an SSO OAuth card from the skill with a
// silent token exchange. It reports whether the card was handled; every
// failure falls back to showing the card.
func (d *SkillDialog) interceptOAuthCards(tc *core.TurnContext, reply *core.Activity, convID string) bool {
	if d.opts.ConnectionName == "" {
		return false
	}

	index := -1
	var card *core.OAuthCard
	for i, att := range reply.Attachments {
		if c, ok := att.AsOAuthCard(); ok {
			if card != nil {
				return false
			}
			index, card = i, c
		}
	}
	if card == nil || card.TokenExchangeResource == nil || card.TokenExchangeResource.URI == "" {
		return false
	}

	client := d.opts.UserTokenClient
	if client == nil {
		c, ok := core.TurnValue[core.UserTokenClient](tc.TurnState(), core.UserTokenClientKey)
		if !ok || c == nil {
			return false
		}
		client = c
	}

	col := metrics.FromTurn(tc)
	token, err := client.ExchangeToken(tc.Context, tc.Activity.FromID(), d.opts.ConnectionName, tc.Activity.ChannelID,
		core.TokenExchangeRequest{URI: card.TokenExchangeResource.URI})
	if err != nil || token == nil || token.Token == "" {
		tc.LogDebug("skill.sso.fallback", "skill_id", d.opts.Skill.ID, "reason", "exchange", "error", err)
		col.RecordTokenFlow("sso", "fallback")
		return false
	}

	invoke := reply.CreateInvoke(core.InvokeSignInTokenExchange, &core.TokenExchangeInvokeRequest{
		ID:             card.TokenExchangeResource.ID,
		ConnectionName: card.ConnectionName,
		Token:          token.Token,
	})

	resp, err := d.post(tc, convID, invoke)
	if err != nil || !resp.IsSuccessStatusCode() {
		status := 0
		if resp != nil {
			status = resp.Status
		}
		tc.LogDebug("skill.sso.fallback", "skill_id", d.opts.Skill.ID, "reason", "invoke", "status_code", status, "error", err)
		col.RecordTokenFlow("sso", "fallback")
		return false
	}

	col.RecordTokenFlow("sso", "exchanged")
	reply.Attachments = append(reply.Attachments[:index:index], reply.Attachments[index+1:]...)
	return true
}

func toBeginOptions(options any) (*BeginSkillDialogOptions, error) {
	var begin *BeginSkillDialogOptions
	switch o := options.(type) {
	case *BeginSkillDialogOptions:
		begin = o
	case BeginSkillDialogOptions:
		begin = &o
	case nil:
	default:
		b, err := util.Convert[*BeginSkillDialogOptions](o)
		if err != nil {
			return nil, fmt.Errorf("begin skill dialog options: %w", err)
		}
		begin = b
	}
	if begin == nil || begin.Activity == nil {
		return nil, ErrMissingActivity
	}
	return begin, nil
}

func toExpectedReplies(body any) (*core.ExpectedReplies, error) {
	switch b := body.(type) {
	case *core.ExpectedReplies:
		return b, nil
	case core.ExpectedReplies:
		return &b, nil
	case []*core.Activity:
		return &core.ExpectedReplies{Activities: b}, nil
	}
	replies, err := util.Convert[*core.ExpectedReplies](body)
	if err != nil {
		return nil, fmt.Errorf("decode expected replies: %w", err)
	}
	if replies == nil {
		replies = &core.ExpectedReplies{}
	}
	return replies, nil
}

func conversationID(instance *core.DialogInstance) string {
	if instance == nil {
		return ""
	}
	id, _ := instance.State[skillConversationIDKey].(string)
	return id
}

func oauthScope(tc *core.TurnContext) string {
	scope, _ := core.TurnValue[string](tc.TurnState(), core.OAuthScopeKey)
	return scope
}
