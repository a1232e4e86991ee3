package core

import (
	"context"
	"errors"
)

// ErrTokenServiceUnavailable is returned by token clients that cannot reach the
// token service.
var ErrTokenServiceUnavailable = errors.New("token service unavailable")

// TokenResponse is a user token for a connection.
type TokenResponse struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConnectionName string `json:"connectionName,omitempty"`
	Token          string `json:"token,omitempty"`
	Expiration     string `json:"expiration,omitempty"`
}

// TokenExchangeResource describes where a channel token can be exchanged.
type TokenExchangeResource struct {
	ID         string `json:"id,omitempty"`
	URI        string `json:"uri,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
}

// TokenPostResource describes where a channel may post a token directly.
type TokenPostResource struct {
	SasURL string `json:"sasUrl,omitempty"`
}

// SignInResource is everything needed to render a sign-in surface.
type SignInResource struct {
	SignInLink            string                 `json:"signInLink,omitempty"`
	TokenExchangeResource *TokenExchangeResource `json:"tokenExchangeResource,omitempty"`
	TokenPostResource     *TokenPostResource     `json:"tokenPostResource,omitempty"`
}

// TokenExchangeRequest carries either an exchangeable token or the exchange URI.
type TokenExchangeRequest struct {
	URI   string `json:"uri,omitempty"`
	Token string `json:"token,omitempty"`
}

// TokenExchangeInvokeRequest is the value of a signin/tokenExchange invoke.
type TokenExchangeInvokeRequest struct {
	ID             string `json:"id,omitempty"`
	ConnectionName string `json:"connectionName,omitempty"`
	Token          string `json:"token,omitempty"`
}

// TokenExchangeInvokeResponse is the body answering a signin/tokenExchange invoke.
type TokenExchangeInvokeResponse struct {
	ID             string `json:"id,omitempty"`
	ConnectionName string `json:"connectionName,omitempty"`
	FailureDetail  string `json:"failureDetail,omitempty"`
}

// TokenExchangeState is the state round-tripped through a sign-in resource
// request so the token service can route the result back.
type TokenExchangeState struct {
	ConnectionName string                 `json:"connectionName,omitempty"`
	Conversation   ConversationReference  `json:"conversation"`
	RelatesTo      *ConversationReference `json:"relatesTo,omitempty"`
	MsAppID        string                 `json:"msAppId,omitempty"`
}

// UserTokenClient is the token service abstraction consumed by OAuthPrompt
// and SkillDialog. GetUserToken returns (nil, nil) when no token is available.
type UserTokenClient interface {
	GetUserToken(ctx context.Context, userID, connectionName, channelID, magicCode string) (*TokenResponse, error)
	GetSignInResource(ctx context.Context, connectionName string, activity *Activity, finalRedirect string) (*SignInResource, error)
	ExchangeToken(ctx context.Context, userID, connectionName, channelID string, req TokenExchangeRequest) (*TokenResponse, error)
	SignOutUser(ctx context.Context, userID, connectionName, channelID string) error
}
