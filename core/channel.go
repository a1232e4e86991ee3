package core

import (
	"context"
	"net/http"
)

// InvokeResponse is the synchronous answer to an invoke or expectReplies
// activity.
type InvokeResponse struct {
	Status int `json:"status"`
	Body   any `json:"body,omitempty"`
}

// IsSuccessStatusCode reports a 2xx status.
func (r *InvokeResponse) IsSuccessStatusCode() bool {
	return r != nil && r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}

// ExpectedReplies is the body of a response to an expectReplies activity.
type ExpectedReplies struct {
	Activities []*Activity `json:"activities"`
}

// ResourceResponse identifies a sent activity.
type ResourceResponse struct {
	ID string `json:"id,omitempty"`
}

// ActivitySender delivers outbound activities for a turn.
type ActivitySender interface {
	SendActivity(ctx context.Context, activity *Activity) (*ResourceResponse, error)
}

// SkillClient posts activities to a remote skill.
type SkillClient interface {
	PostActivity(ctx context.Context, fromBotID, toBotID, toURL, serviceURL, conversationID string, activity *Activity) (*InvokeResponse, error)
}

// TurnHandler processes one turn.
type TurnHandler func(tc *TurnContext) error

// ConversationContinuer resumes an existing conversation proactively, running
// handler with a TurnContext whose activity is addressed per ref.
type ConversationContinuer interface {
	ContinueConversation(ctx context.Context, claims *ClaimsIdentity, ref ConversationReference, handler TurnHandler) error
}
