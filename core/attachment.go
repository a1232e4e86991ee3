package core

import "github.com/hupe1980/dialogmesh/internal/util"

// Attachment content types.
const (
	ContentTypeOAuthCard  = "application/vnd.microsoft.card.oauth"
	ContentTypeSigninCard = "application/vnd.microsoft.card.signin"
)

// Card action types.
const (
	ActionTypeSignIn  = "signin"
	ActionTypeOpenURL = "openUrl"
)

// Attachment is a piece of media or a card carried by an activity.
type Attachment struct {
	ContentType  string `json:"contentType"`
	ContentURL   string `json:"contentUrl,omitempty"`
	Content      any    `json:"content,omitempty"`
	Name         string `json:"name,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// CardAction is a clickable action on a card.
type CardAction struct {
	Type        string `json:"type"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
	Value       any    `json:"value,omitempty"`
}

// OAuthCard asks the user to sign in to a connection. Channels that support
// SSO use TokenExchangeResource to obtain a token without user interaction.
type OAuthCard struct {
	Text                  string                 `json:"text,omitempty"`
	ConnectionName        string                 `json:"connectionName,omitempty"`
	Buttons               []CardAction           `json:"buttons,omitempty"`
	TokenExchangeResource *TokenExchangeResource `json:"tokenExchangeResource,omitempty"`
	TokenPostResource     *TokenPostResource     `json:"tokenPostResource,omitempty"`
}

// SigninCard is a plain sign-in link card for channels without OAuth card support.
type SigninCard struct {
	Text    string       `json:"text,omitempty"`
	Buttons []CardAction `json:"buttons,omitempty"`
}

// OAuthCardAttachment wraps card in an attachment.
func OAuthCardAttachment(card *OAuthCard) Attachment {
	return Attachment{ContentType: ContentTypeOAuthCard, Content: card}
}

// SigninCardAttachment wraps card in an attachment.
func SigninCardAttachment(card *SigninCard) Attachment {
	return Attachment{ContentType: ContentTypeSigninCard, Content: card}
}

// AsOAuthCard decodes the attachment content as an OAuthCard. Content that
// arrived over the wire is a generic map and is converted.
func (a Attachment) AsOAuthCard() (*OAuthCard, bool) {
	if a.ContentType != ContentTypeOAuthCard || a.Content == nil {
		return nil, false
	}
	if card, ok := a.Content.(*OAuthCard); ok {
		return card, true
	}
	card, err := util.Convert[OAuthCard](a.Content)
	if err != nil {
		return nil, false
	}
	return &card, true
}
