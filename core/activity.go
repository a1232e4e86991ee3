package core

import (
	"strings"
	"time"

	"github.com/hupe1980/dialogmesh/internal/util"
)

// Activity types.
const (
	ActivityTypeMessage            = "message"
	ActivityTypeEvent              = "event"
	ActivityTypeInvoke             = "invoke"
	ActivityTypeInvokeResponse     = "invokeResponse"
	ActivityTypeEndOfConversation  = "endOfConversation"
	ActivityTypeConversationUpdate = "conversationUpdate"
	ActivityTypeTyping             = "typing"
	ActivityTypeTrace              = "trace"
)

// Delivery modes.
const (
	DeliveryModeNormal        = "normal"
	DeliveryModeExpectReplies = "expectReplies"
)

// Input hints.
const (
	InputHintAcceptingInput = "acceptingInput"
	InputHintExpectingInput = "expectingInput"
	InputHintIgnoringInput  = "ignoringInput"
)

// End of conversation codes.
const (
	EndOfConversationCompletedSuccessfully = "completedSuccessfully"
	EndOfConversationUserCancelled         = "userCancelled"
	EndOfConversationBotTimedOut           = "botTimedOut"
	EndOfConversationUnknown               = "unknown"
)

// Well known event and invoke names.
const (
	EventTokenResponse        = "tokens/response"
	EventRepromptDialog       = "repromptDialog"
	InvokeSignInVerifyState   = "signin/verifyState"
	InvokeSignInTokenExchange = "signin/tokenExchange"
)

// Channel identifiers with behavior specific to sign-in.
const (
	ChannelMSTeams          = "msteams"
	ChannelEmulator         = "emulator"
	ChannelCortana          = "cortana"
	ChannelSkype            = "skype"
	ChannelSkypeForBusiness = "skypeforbusiness"
	ChannelTest             = "test"
	ChannelDirectLine       = "directline"
	ChannelWebChat          = "webchat"
)

// ChannelAccount identifies a participant on a channel.
type ChannelAccount struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	AadObjectID string `json:"aadObjectId,omitempty"`
	Role        string `json:"role,omitempty"`
}

// ConversationAccount identifies a conversation on a channel.
type ConversationAccount struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}

// ConversationReference points at a specific place in a conversation so a
// bot can route replies or resume it proactively.
type ConversationReference struct {
	ActivityID   string               `json:"activityId,omitempty"`
	User         *ChannelAccount      `json:"user,omitempty"`
	Bot          *ChannelAccount      `json:"bot,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	Locale       string               `json:"locale,omitempty"`
}

// Activity is the single record type exchanged between users, bots and
// skills. Which fields are meaningful depends on Type.
type Activity struct {
	Type         string                 `json:"type"`
	ID           string                 `json:"id,omitempty"`
	Timestamp    time.Time              `json:"timestamp,omitempty"`
	ServiceURL   string                 `json:"serviceUrl,omitempty"`
	ChannelID    string                 `json:"channelId,omitempty"`
	From         *ChannelAccount        `json:"from,omitempty"`
	Recipient    *ChannelAccount        `json:"recipient,omitempty"`
	Conversation *ConversationAccount   `json:"conversation,omitempty"`
	ReplyToID    string                 `json:"replyToId,omitempty"`
	Text         string                 `json:"text,omitempty"`
	Speak        string                 `json:"speak,omitempty"`
	InputHint    string                 `json:"inputHint,omitempty"`
	Locale       string                 `json:"locale,omitempty"`
	Name         string                 `json:"name,omitempty"`
	Value        any                    `json:"value,omitempty"`
	ValueType    string                 `json:"valueType,omitempty"`
	Code         string                 `json:"code,omitempty"`
	Attachments  []Attachment           `json:"attachments,omitempty"`
	ChannelData  any                    `json:"channelData,omitempty"`
	DeliveryMode string                 `json:"deliveryMode,omitempty"`
	RelatesTo    *ConversationReference `json:"relatesTo,omitempty"`
	CallerID     string                 `json:"callerId,omitempty"`
}

// NewMessageActivity creates a message activity with the given text.
func NewMessageActivity(text string) *Activity {
	return &Activity{Type: ActivityTypeMessage, Text: text}
}

// NewEventActivity creates a named event activity.
func NewEventActivity(name string, value any) *Activity {
	return &Activity{Type: ActivityTypeEvent, Name: name, Value: value}
}

// NewInvokeActivity creates a named invoke activity.
func NewInvokeActivity(name string, value any) *Activity {
	return &Activity{Type: ActivityTypeInvoke, Name: name, Value: value}
}

// NewEndOfConversationActivity creates an end-of-conversation activity.
func NewEndOfConversationActivity(code string) *Activity {
	return &Activity{Type: ActivityTypeEndOfConversation, Code: code}
}

// NewInvokeResponseActivity wraps an invoke response so it can be "sent"
// through a TurnContext.
func NewInvokeResponseActivity(status int, body any) *Activity {
	return &Activity{Type: ActivityTypeInvokeResponse, Value: &InvokeResponse{Status: status, Body: body}}
}

// IsActivity reports whether the activity has the given type. A type with a
// "/" suffix (e.g. "message/foo") matches its base type; "messageFoo" does not.
func (a *Activity) IsActivity(activityType string) bool {
	if a == nil {
		return false
	}
	return IsActivityType(a.Type, activityType)
}

// IsActivityType applies the IsActivity matching rules to a raw type string.
func IsActivityType(actual, activityType string) bool {
	if actual == "" || len(actual) < len(activityType) {
		return false
	}
	if !strings.EqualFold(actual[:len(activityType)], activityType) {
		return false
	}
	return len(actual) == len(activityType) || actual[len(activityType)] == '/'
}

// HasContent reports whether the activity carries text, speak, attachments or channel data.
func (a *Activity) HasContent() bool {
	if a == nil {
		return false
	}
	return strings.TrimSpace(a.Text) != "" || strings.TrimSpace(a.Speak) != "" || len(a.Attachments) > 0 || a.ChannelData != nil
}

// Clone returns a copy of the activity. Reference typed envelope fields are
// copied so mutating the clone's routing does not affect the original.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	c := *a
	if a.From != nil {
		from := *a.From
		c.From = &from
	}
	if a.Recipient != nil {
		rec := *a.Recipient
		c.Recipient = &rec
	}
	if a.Conversation != nil {
		conv := *a.Conversation
		c.Conversation = &conv
	}
	if a.RelatesTo != nil {
		rel := *a.RelatesTo
		c.RelatesTo = &rel
	}
	if a.Attachments != nil {
		c.Attachments = append([]Attachment(nil), a.Attachments...)
	}
	return &c
}

// GetConversationReference returns a reference to the point in the
// conversation this (incoming) activity represents.
func (a *Activity) GetConversationReference() ConversationReference {
	return ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Bot:          a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		Locale:       a.Locale,
	}
}

// GetReplyConversationReference returns the reference for a reply whose id is replyID.
func (a *Activity) GetReplyConversationReference(replyID string) ConversationReference {
	ref := a.GetConversationReference()
	ref.ActivityID = replyID
	return ref
}

// ApplyConversationReference routes the activity according to ref. Incoming
// activities are addressed from the user to the bot, outgoing ones from the
// bot to the user as a reply to ref.ActivityID.
func (a *Activity) ApplyConversationReference(ref ConversationReference, isIncoming bool) *Activity {
	a.ChannelID = ref.ChannelID
	a.ServiceURL = ref.ServiceURL
	a.Conversation = ref.Conversation
	if ref.Locale != "" {
		a.Locale = ref.Locale
	}
	if isIncoming {
		a.From = ref.User
		a.Recipient = ref.Bot
		if ref.ActivityID != "" {
			a.ID = ref.ActivityID
		}
		return a
	}
	a.From = ref.Bot
	a.Recipient = ref.User
	if ref.ActivityID != "" && a.Type != ActivityTypeConversationUpdate {
		a.ReplyToID = ref.ActivityID
	}
	return a
}

// CreateReply creates a message activity addressed back to the sender of a.
func (a *Activity) CreateReply(text string) *Activity {
	reply := &Activity{
		Type:      ActivityTypeMessage,
		Timestamp: time.Now().UTC(),
		Text:      text,
		Locale:    a.Locale,
	}
	return a.addressReply(reply)
}

// CreateInvoke creates an invoke activity addressed back to the sender of a.
func (a *Activity) CreateInvoke(name string, value any) *Activity {
	return a.addressReply(&Activity{
		Type:      ActivityTypeInvoke,
		ID:        util.NewID(),
		Timestamp: time.Now().UTC(),
		Name:      name,
		Value:     value,
		Locale:    a.Locale,
	})
}

func (a *Activity) addressReply(reply *Activity) *Activity {
	reply.ChannelID = a.ChannelID
	reply.ServiceURL = a.ServiceURL
	reply.ReplyToID = a.ID
	if a.Recipient != nil {
		from := *a.Recipient
		reply.From = &from
	}
	if a.From != nil {
		rec := *a.From
		reply.Recipient = &rec
	}
	if a.Conversation != nil {
		conv := *a.Conversation
		reply.Conversation = &conv
	}
	return reply
}

// ConversationID returns the conversation id or "" when absent.
func (a *Activity) ConversationID() string {
	if a == nil || a.Conversation == nil {
		return ""
	}
	return a.Conversation.ID
}

// FromID returns the sender id or "" when absent.
func (a *Activity) FromID() string {
	if a == nil || a.From == nil {
		return ""
	}
	return a.From.ID
}
