package usertoken

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
	"github.com/hupe1980/dialogmesh/logging"
)

// ErrExchangeFailed is returned by ExchangeToken for items registered with
// ThrowOnExchangeRequest.
var ErrExchangeFailed = errors.New("token exchange failed")

// DefaultSignInBaseURL is the base of generated sign-in links.
const DefaultSignInBaseURL = "https://token.dialogmesh.local/oauthsignin"

type tokenKey struct {
	channelID, connectionName, userID string
}

type exchangeKey struct {
	tokenKey
	item string
}

type pendingToken struct {
	magicCode string
	token     string
}

// InMemoryOptions configures an InMemoryClient.
type InMemoryOptions struct {
	SignInBaseURL string
	Logger        logging.Logger
}

// InMemoryClient is a core.UserTokenClient backed by maps.
// It is safe for concurrent use.
type InMemoryClient struct {
	mu           sync.RWMutex
	tokens       map[tokenKey]string
	pending      map[tokenKey]pendingToken
	exchangeable map[exchangeKey]string
	failing      map[exchangeKey]struct{}
	opts         InMemoryOptions
}

var _ core.UserTokenClient = (*InMemoryClient)(nil)

// NewInMemoryClient creates an empty client.
func NewInMemoryClient(optFns ...func(o *InMemoryOptions)) *InMemoryClient {
	opts := InMemoryOptions{SignInBaseURL: DefaultSignInBaseURL, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryClient{
		tokens:       map[tokenKey]string{},
		pending:      map[tokenKey]pendingToken{},
		exchangeable: map[exchangeKey]string{},
		failing:      map[exchangeKey]struct{}{},
		opts:         opts,
	}
}

// AddUserToken seeds a token. With a magic code the token only becomes
// available once GetUserToken is called with that code.
func (c *InMemoryClient) AddUserToken(connectionName, channelID, userID, token, magicCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := tokenKey{channelID, connectionName, userID}
	if magicCode == "" {
		c.tokens[key] = token
		return
	}
	c.pending[key] = pendingToken{magicCode: magicCode, token: token}
}

// AddExchangeableToken makes item (an SSO token or exchange URI) exchangeable for token.
func (c *InMemoryClient) AddExchangeableToken(connectionName, channelID, userID, item, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchangeable[exchangeKey{tokenKey{channelID, connectionName, userID}, item}] = token
}

// ThrowOnExchangeRequest makes exchanging item fail with ErrExchangeFailed.
func (c *InMemoryClient) ThrowOnExchangeRequest(connectionName, channelID, userID, item string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing[exchangeKey{tokenKey{channelID, connectionName, userID}, item}] = struct{}{}
}

// GetUserToken returns the stored token, redeeming magicCode first when given.
func (c *InMemoryClient) GetUserToken(_ context.Context, userID, connectionName, channelID, magicCode string) (*core.TokenResponse, error) {
	key := tokenKey{channelID, connectionName, userID}

	c.mu.Lock()
	defer c.mu.Unlock()

	if magicCode != "" {
		if p, ok := c.pending[key]; ok && p.magicCode == magicCode {
			delete(c.pending, key)
			c.tokens[key] = p.token
		}
	}
	token, ok := c.tokens[key]
	if !ok {
		return nil, nil
	}
	return &core.TokenResponse{ChannelID: channelID, ConnectionName: connectionName, Token: token}, nil
}

// GetSignInResource returns a sign-in link carrying the encoded token
// exchange state, plus exchange and post resources for SSO capable channels.
func (c *InMemoryClient) GetSignInResource(_ context.Context, connectionName string, activity *core.Activity, finalRedirect string) (*core.SignInResource, error) {
	if activity == nil {
		return nil, fmt.Errorf("get sign-in resource: activity is nil")
	}
	st := core.TokenExchangeState{
		ConnectionName: connectionName,
		Conversation:   activity.GetConversationReference(),
		RelatesTo:      activity.RelatesTo,
	}
	if activity.Recipient != nil {
		st.MsAppID = activity.Recipient.ID
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode token exchange state: %w", err)
	}

	q := url.Values{}
	q.Set("state", base64.URLEncoding.EncodeToString(raw))
	if finalRedirect != "" {
		q.Set("finalRedirect", finalRedirect)
	}

	return &core.SignInResource{
		SignInLink: fmt.Sprintf("%s/%s?%s", c.opts.SignInBaseURL, url.PathEscape(connectionName), q.Encode()),
		TokenExchangeResource: &core.TokenExchangeResource{
			ID:         util.NewID(),
			URI:        "api://" + connectionName,
			ProviderID: connectionName,
		},
		TokenPostResource: &core.TokenPostResource{
			SasURL: fmt.Sprintf("%s/%s/post", c.opts.SignInBaseURL, url.PathEscape(connectionName)),
		},
	}, nil
}

// ExchangeToken exchanges req.Token (or req.URI when no token is given).
// Unknown items yield (nil, nil).
func (c *InMemoryClient) ExchangeToken(_ context.Context, userID, connectionName, channelID string, req core.TokenExchangeRequest) (*core.TokenResponse, error) {
	item := req.Token
	if item == "" {
		item = req.URI
	}
	key := exchangeKey{tokenKey{channelID, connectionName, userID}, item}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.failing[key]; ok {
		c.opts.Logger.Debug("token.exchange.rejected", "connection_name", connectionName, "user_id", userID)
		return nil, ErrExchangeFailed
	}
	token, ok := c.exchangeable[key]
	if !ok {
		return nil, nil
	}
	return &core.TokenResponse{ChannelID: channelID, ConnectionName: connectionName, Token: token}, nil
}

// SignOutUser removes the user's token for connectionName, or for every
// connection when connectionName is empty.
func (c *InMemoryClient) SignOutUser(_ context.Context, userID, connectionName, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.tokens {
		if key.userID != userID || key.channelID != channelID {
			continue
		}
		if connectionName == "" || key.connectionName == connectionName {
			delete(c.tokens, key)
		}
	}
	return nil
}

// DecodeState decodes the state query parameter of a sign-in link.
func DecodeState(signInLink string) (*core.TokenExchangeState, error) {
	u, err := url.Parse(signInLink)
	if err != nil {
		return nil, err
	}
	raw, err := base64.URLEncoding.DecodeString(u.Query().Get("state"))
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	var st core.TokenExchangeState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &st, nil
}
