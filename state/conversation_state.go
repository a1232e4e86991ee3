package state

import (
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
)

// Names under which the built-in bags register in turn state.
const (
	ConversationStateName = "ConversationState"
	UserStateName         = "UserState"
)

// NewConversationState creates the bag keyed by channel and conversation.
func NewConversationState(storage core.Storage) *BotState {
	return NewBotState(storage, ConversationStateName, ConversationKey)
}

// NewUserState creates the bag keyed by channel and user.
func NewUserState(storage core.Storage) *BotState {
	return NewBotState(storage, UserStateName, UserKey)
}

// ConversationKey returns "{channel}/conversations/{conversation}".
func ConversationKey(tc *core.TurnContext) (string, error) {
	a := tc.Activity
	if a == nil || a.ChannelID == "" || a.ConversationID() == "" {
		return "", fmt.Errorf("conversation state: %w", ErrMissingKeyParts)
	}
	return fmt.Sprintf("%s/conversations/%s", a.ChannelID, a.ConversationID()), nil
}

// UserKey returns "{channel}/users/{user}".
func UserKey(tc *core.TurnContext) (string, error) {
	a := tc.Activity
	if a == nil || a.ChannelID == "" || a.FromID() == "" {
		return "", fmt.Errorf("user state: %w", ErrMissingKeyParts)
	}
	return fmt.Sprintf("%s/users/%s", a.ChannelID, a.FromID()), nil
}
