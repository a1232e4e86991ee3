package testutil

import (
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
)

// ActivityBuilder helps construct inbound activities with fluent chaining.
// Example:
//
//	a := NewActivityBuilder().Conversation("conv-2").Message("hi").Build()
//
// Unset routing fields default to channel "test", user "user-1", bot "bot-1"
// and conversation "conv-1".
type ActivityBuilder struct {
	a core.Activity
}

// NewActivityBuilder creates a builder for a message activity with default routing.
func NewActivityBuilder() *ActivityBuilder {
	return &ActivityBuilder{a: core.Activity{
		Type:         core.ActivityTypeMessage,
		ChannelID:    core.ChannelTest,
		ServiceURL:   "https://test.service",
		From:         &core.ChannelAccount{ID: "user-1", Name: "User"},
		Recipient:    &core.ChannelAccount{ID: "bot-1", Name: "Bot"},
		Conversation: &core.ConversationAccount{ID: "conv-1"},
		Locale:       "en-US",
	}}
}

// Channel sets the channel id (chainable).
func (b *ActivityBuilder) Channel(id string) *ActivityBuilder { b.a.ChannelID = id; return b }

// Conversation sets the conversation id (chainable).
func (b *ActivityBuilder) Conversation(id string) *ActivityBuilder {
	b.a.Conversation = &core.ConversationAccount{ID: id}
	return b
}

// From sets the sender id (chainable).
func (b *ActivityBuilder) From(id string) *ActivityBuilder {
	b.a.From = &core.ChannelAccount{ID: id}
	return b
}

// Recipient sets the recipient id (chainable).
func (b *ActivityBuilder) Recipient(id string) *ActivityBuilder {
	b.a.Recipient = &core.ChannelAccount{ID: id}
	return b
}

// ServiceURL sets the service url (chainable).
func (b *ActivityBuilder) ServiceURL(u string) *ActivityBuilder { b.a.ServiceURL = u; return b }

// Message makes the activity a message with text (chainable).
func (b *ActivityBuilder) Message(text string) *ActivityBuilder {
	b.a.Type = core.ActivityTypeMessage
	b.a.Text = text
	return b
}

// Event makes the activity a named event (chainable).
func (b *ActivityBuilder) Event(name string, value any) *ActivityBuilder {
	b.a.Type = core.ActivityTypeEvent
	b.a.Name = name
	b.a.Value = value
	return b
}

// Invoke makes the activity a named invoke (chainable).
func (b *ActivityBuilder) Invoke(name string, value any) *ActivityBuilder {
	b.a.Type = core.ActivityTypeInvoke
	b.a.Name = name
	b.a.Value = value
	return b
}

// EndOfConversation makes the activity an end-of-conversation (chainable).
func (b *ActivityBuilder) EndOfConversation(code string, value any) *ActivityBuilder {
	b.a.Type = core.ActivityTypeEndOfConversation
	b.a.Code = code
	b.a.Value = value
	return b
}

// Type overrides the activity type (chainable).
func (b *ActivityBuilder) Type(t string) *ActivityBuilder { b.a.Type = t; return b }

// DeliveryMode sets the delivery mode (chainable).
func (b *ActivityBuilder) DeliveryMode(m string) *ActivityBuilder { b.a.DeliveryMode = m; return b }

// Attach appends an attachment (chainable).
func (b *ActivityBuilder) Attach(att core.Attachment) *ActivityBuilder {
	b.a.Attachments = append(b.a.Attachments, att)
	return b
}

// Build returns a fresh activity with a generated id.
func (b *ActivityBuilder) Build() *core.Activity {
	a := b.a.Clone()
	if a.ID == "" {
		a.ID = util.NewID()
	}
	return a
}
