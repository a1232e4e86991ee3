package skills

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

var (
	// ErrMissingBot is returned by NewHandler when no bot handler is given.
	ErrMissingBot = errors.New("skill handler bot is required")
	// ErrMissingContinuer is returned by NewHandler when no continuer is given.
	ErrMissingContinuer = errors.New("skill handler conversation continuer is required")
)

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Logger logging.Logger
}

// Handler receives activities a skill sends back to this bot outside an
// expectReplies batch and routes them into the original conversation.
type Handler struct {
	bot       core.TurnHandler
	factory   ConversationIDFactory
	continuer core.ConversationContinuer
	opts      HandlerOptions
}

// NewHandler creates a Handler. bot is run for end of conversation and
// event activities; everything else is relayed to the user.
func NewHandler(bot core.TurnHandler, factory ConversationIDFactory, continuer core.ConversationContinuer, optFns ...func(o *HandlerOptions)) (*Handler, error) {
	switch {
	case bot == nil:
		return nil, ErrMissingBot
	case factory == nil:
		return nil, ErrMissingConversationIDFactory
	case continuer == nil:
		return nil, ErrMissingContinuer
	}

	opts := HandlerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Handler{bot: bot, factory: factory, continuer: continuer, opts: opts}, nil
}

// OnSendToConversation handles an activity the skill sent to the conversation.
func (h *Handler) OnSendToConversation(ctx context.Context, claims *core.ClaimsIdentity, conversationID string, activity *core.Activity) (*core.ResourceResponse, error) {
	return h.process(ctx, claims, conversationID, "", activity)
}

// OnReplyToActivity handles an activity the skill sent as a reply to activityID.
func (h *Handler) OnReplyToActivity(ctx context.Context, claims *core.ClaimsIdentity, conversationID, activityID string, activity *core.Activity) (*core.ResourceResponse, error) {
	return h.process(ctx, claims, conversationID, activityID, activity)
}

func (h *Handler) process(ctx context.Context, claims *core.ClaimsIdentity, conversationID, replyToActivityID string, activity *core.Activity) (*core.ResourceResponse, error) {
	if activity == nil {
		return nil, ErrMissingActivity
	}
	ref, err := h.factory.GetSkillConversationReference(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: %s", ErrSkillConversationNotFound, conversationID)
	}

	h.opts.Logger.Debug("skill.handler.activity",
		"skill_conversation_id", conversationID,
		"activity_type", activity.Type,
		"conversation_id", refConversationID(ref.ConversationReference),
	)

	resp := &core.ResourceResponse{}
	callback := func(tc *core.TurnContext) error {
		tc.TurnState().Set(SkillConversationReferenceKey, ref)
		if ref.OAuthScope != "" {
			tc.TurnState().Set(core.OAuthScopeKey, ref.OAuthScope)
		}
		activity.ApplyConversationReference(ref.ConversationReference, false)
		tc.Activity.ID = replyToActivityID
		if claims != nil {
			tc.Activity.CallerID = core.SkillCallerIDPrefix + claims.AppID()
		}

		switch {
		case activity.IsActivity(core.ActivityTypeEndOfConversation):
			if err := h.factory.DeleteConversationReference(tc.Context, conversationID); err != nil {
				return err
			}
			applyActivityToTurn(tc, activity)
			return h.bot(tc)
		case activity.IsActivity(core.ActivityTypeEvent):
			applyActivityToTurn(tc, activity)
			return h.bot(tc)
		default:
			r, err := tc.SendActivity(activity)
			if err != nil {
				return err
			}
			resp = r
			return nil
		}
	}

	if err := h.continuer.ContinueConversation(ctx, claims, ref.ConversationReference, callback); err != nil {
		return nil, err
	}
	return resp, nil
}

// SkillConversationReferenceKey is the turn state key under which the
// Handler exposes the resolved mapping to the bot.
const SkillConversationReferenceKey = core.SkillConversationReferenceKey

// applyActivityToTurn copies the payload of a skill activity onto the
// continuation activity while keeping its routing.
func applyActivityToTurn(tc *core.TurnContext, activity *core.Activity) {
	a := tc.Activity
	a.Type = activity.Type
	a.Name = activity.Name
	a.Text = activity.Text
	a.Code = activity.Code
	a.Value = activity.Value
	a.ValueType = activity.ValueType
	a.ChannelData = activity.ChannelData
	a.RelatesTo = activity.RelatesTo
	a.ReplyToID = activity.ReplyToID
	if activity.Locale != "" {
		a.Locale = activity.Locale
	}
	if !activity.Timestamp.IsZero() {
		a.Timestamp = activity.Timestamp
	}
}

func refConversationID(ref core.ConversationReference) string {
	if ref.Conversation == nil {
		return ""
	}
	return ref.Conversation.ID
}
