package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// RecordingSender captures every activity sent through a TurnContext.
type RecordingSender struct {
	mu   sync.Mutex
	sent []*core.Activity
}

// SendActivity records a copy of the activity.
func (s *RecordingSender) SendActivity(_ context.Context, a *core.Activity) (*core.ResourceResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, a.Clone())
	return &core.ResourceResponse{ID: a.ID}, nil
}

// Activities returns the recorded activities.
func (s *RecordingSender) Activities() []*core.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.Activity(nil), s.sent...)
}

// Texts returns the text of every recorded message.
func (s *RecordingSender) Texts() []string {
	var out []string
	for _, a := range s.Activities() {
		if a.Type == core.ActivityTypeMessage {
			out = append(out, a.Text)
		}
	}
	return out
}

// Last returns the most recent activity or nil.
func (s *RecordingSender) Last() *core.Activity {
	all := s.Activities()
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// Reset clears the recording.
func (s *RecordingSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

// NewTurn creates a TurnContext over activity with a fresh RecordingSender.
func NewTurn(activity *core.Activity) (*core.TurnContext, *RecordingSender) {
	sender := &RecordingSender{}
	return core.NewTurnContext(context.Background(), sender, activity, logging.NoOpLogger{}), sender
}

// SkillCall is one recorded PostActivity invocation.
type SkillCall struct {
	FromBotID, ToBotID, ToURL, ServiceURL, ConversationID string
	Activity                                              *core.Activity
}

// SkillClient is a core.SkillClient fake. Respond decides the answer for each
// call; when nil every call succeeds with 200 and no body.
type SkillClient struct {
	mu      sync.Mutex
	calls   []SkillCall
	Respond func(call SkillCall) (*core.InvokeResponse, error)
}

// PostActivity records the call and answers through Respond.
func (c *SkillClient) PostActivity(_ context.Context, fromBotID, toBotID, toURL, serviceURL, conversationID string, activity *core.Activity) (*core.InvokeResponse, error) {
	call := SkillCall{FromBotID: fromBotID, ToBotID: toBotID, ToURL: toURL, ServiceURL: serviceURL, ConversationID: conversationID, Activity: activity.Clone()}
	c.mu.Lock()
	c.calls = append(c.calls, call)
	respond := c.Respond
	c.mu.Unlock()
	if respond == nil {
		return &core.InvokeResponse{Status: 200}, nil
	}
	return respond(call)
}

// Calls returns the recorded calls.
func (c *SkillClient) Calls() []SkillCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SkillCall(nil), c.calls...)
}

// ExpectReplies builds a 200 response carrying the activities as an expectReplies batch.
func ExpectReplies(activities ...*core.Activity) *core.InvokeResponse {
	return &core.InvokeResponse{Status: 200, Body: &core.ExpectedReplies{Activities: activities}}
}

// Continuer is a core.ConversationContinuer that runs the handler on a new
// TurnContext addressed per the reference, recording outbound activities.
type Continuer struct {
	Sender RecordingSender
	Turns  []*core.TurnContext
}

// ContinueConversation runs handler with a continuation activity.
func (c *Continuer) ContinueConversation(ctx context.Context, claims *core.ClaimsIdentity, ref core.ConversationReference, handler core.TurnHandler) error {
	a := (&core.Activity{Type: core.ActivityTypeEvent, Name: "ContinueConversation"}).ApplyConversationReference(ref, true)
	tc := core.NewTurnContext(ctx, &c.Sender, a, logging.NoOpLogger{})
	if claims != nil {
		tc.TurnState().Set(core.BotIdentityKey, claims)
	}
	c.Turns = append(c.Turns, tc)
	return handler(tc)
}
