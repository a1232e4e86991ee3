package core

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/dialogmesh/logging"
)

// Turn state keys shared between the host and dialogs.
const (
	BotIdentityKey                = "BotIdentity"
	InvokeResponseKey             = "InvokeResponse"
	UserTokenClientKey            = "UserTokenClient"
	OAuthScopeKey                 = "OAuthScope"
	SkillConversationReferenceKey = "SkillConversationReference"
)

// TurnState is the per-turn cache. It is discarded when the turn ends.
type TurnState map[string]any

// Get returns the value for key or nil.
func (s TurnState) Get(key string) any { return s[key] }

// Set stores value under key.
func (s TurnState) Set(key string, value any) { s[key] = value }

// Delete removes key.
func (s TurnState) Delete(key string) { delete(s, key) }

// TurnValue returns the value stored under key when it has type T.
func TurnValue[T any](s TurnState, key string) (T, bool) {
	v, ok := s[key].(T)
	return v, ok
}

// TurnContext is the ambient object of a single turn: the inbound activity,
// the outbound send path and the per-turn cache.
type TurnContext struct {
	Context  context.Context
	Activity *Activity

	sender    ActivitySender
	state     TurnState
	responded bool

	*turnLogger
}

// NewTurnContext constructs a TurnContext for an inbound activity.
func NewTurnContext(ctx context.Context, sender ActivitySender, activity *Activity, logger logging.Logger) *TurnContext {
	if ctx == nil {
		ctx = context.Background()
	}
	tc := &TurnContext{
		Context:  ctx,
		Activity: activity,
		sender:   sender,
		state:    TurnState{},
	}
	tc.turnLogger = newTurnLogger(logger, tc.logFields)
	return tc
}

func (tc *TurnContext) logFields() []any {
	if tc.Activity == nil {
		return nil
	}
	return []any{"channel_id", tc.Activity.ChannelID, "conversation_id", tc.Activity.ConversationID()}
}

// TurnState returns the per-turn cache.
func (tc *TurnContext) TurnState() TurnState { return tc.state }

// Responded reports whether a user visible activity was sent this turn.
func (tc *TurnContext) Responded() bool { return tc.responded }

// Identity returns the caller identity registered for this turn, if any.
func (tc *TurnContext) Identity() *ClaimsIdentity {
	id, _ := TurnValue[*ClaimsIdentity](tc.state, BotIdentityKey)
	return id
}

// InvokeResponse returns the invoke response recorded this turn, if any.
func (tc *TurnContext) InvokeResponse() *InvokeResponse {
	a, ok := TurnValue[*Activity](tc.state, InvokeResponseKey)
	if !ok {
		return nil
	}
	resp, _ := a.Value.(*InvokeResponse)
	return resp
}

// SendText sends a plain message.
func (tc *TurnContext) SendText(text string) (*ResourceResponse, error) {
	return tc.SendActivity(NewMessageActivity(text))
}

// SendActivity addresses the activity as a reply to the inbound activity and
// delivers it. Invoke responses are recorded in turn state instead of being
// sent; the host returns them as the synchronous answer.
func (tc *TurnContext) SendActivity(activity *Activity) (*ResourceResponse, error) {
	if activity == nil {
		return nil, fmt.Errorf("send activity: activity is nil")
	}
	if tc.Activity != nil {
		activity.ApplyConversationReference(tc.Activity.GetConversationReference(), false)
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now().UTC()
	}
	if activity.Type == "" {
		activity.Type = ActivityTypeMessage
	}

	if activity.Type == ActivityTypeInvokeResponse {
		tc.state[InvokeResponseKey] = activity
		return &ResourceResponse{}, nil
	}
	if tc.sender == nil {
		return nil, fmt.Errorf("send activity: no sender configured")
	}

	resp, err := tc.sender.SendActivity(tc.Context, activity)
	if err != nil {
		return nil, fmt.Errorf("send activity: %w", err)
	}
	if activity.Type != ActivityTypeTrace {
		tc.responded = true
	}
	if resp == nil {
		resp = &ResourceResponse{}
	}
	return resp, nil
}

// SendActivities sends each activity in order, stopping at the first error.
func (tc *TurnContext) SendActivities(activities ...*Activity) ([]*ResourceResponse, error) {
	out := make([]*ResourceResponse, 0, len(activities))
	for _, a := range activities {
		r, err := tc.SendActivity(a)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}
