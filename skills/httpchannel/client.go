package httpchannel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// RoleSkill marks the recipient of an activity posted to a skill.
const RoleSkill = "skill"

const maxResponseBytes = 4 << 20

// ErrMissingServiceURL is returned when a reply has no service url to post to.
var ErrMissingServiceURL = errors.New("activity has no service url")

// ClientOptions configures a Client.
type ClientOptions struct {
	HTTPClient *http.Client
	// Issuer is written to the iss claim of issued tokens.
	Issuer   string
	TokenTTL time.Duration
	Logger   logging.Logger
	Now      func() time.Time
}

// Client posts activities to skills and replies to skill hosts over HTTP.
type Client struct {
	secret []byte
	opts   ClientOptions
}

var _ core.SkillClient = (*Client)(nil)

// NewClient creates a Client signing its requests with secret. An empty
// secret sends unauthenticated requests.
func NewClient(secret []byte, optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		TokenTTL:   DefaultTokenTTL,
		Logger:     logging.NoOpLogger{},
		Now:        time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{secret: secret, opts: opts}
}

// PostActivity sends activity to the skill at toURL within the skill
// conversation conversationID. The skill replies to serviceURL.
func (c *Client) PostActivity(ctx context.Context, fromBotID, toBotID, toURL, serviceURL, conversationID string, activity *core.Activity) (*core.InvokeResponse, error) {
	if activity == nil {
		return nil, errors.New("post activity: activity is nil")
	}

	original := activity.GetConversationReference()
	out := activity.Clone()
	out.RelatesTo = &original
	conv := core.ConversationAccount{}
	if out.Conversation != nil {
		conv = *out.Conversation
	}
	conv.ID = conversationID
	out.Conversation = &conv
	out.ServiceURL = serviceURL
	recipient := core.ChannelAccount{}
	if out.Recipient != nil {
		recipient = *out.Recipient
	}
	recipient.Role = RoleSkill
	out.Recipient = &recipient

	status, body, err := c.post(ctx, fromBotID, toBotID, toURL, out)
	if err != nil {
		return nil, err
	}

	resp := &core.InvokeResponse{Status: status}
	if len(bytes.TrimSpace(body)) == 0 {
		return resp, nil
	}
	if out.DeliveryMode == core.DeliveryModeExpectReplies && resp.IsSuccessStatusCode() {
		var replies core.ExpectedReplies
		if err := json.Unmarshal(body, &replies); err != nil {
			return nil, fmt.Errorf("decode expected replies from %s: %w", toURL, err)
		}
		resp.Body = &replies
		return resp, nil
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		resp.Body = string(body)
		return resp, nil
	}
	resp.Body = decoded
	return resp, nil
}

// SendToConversation posts a reply to the skill host named by the
// activity's service url. Activities with a ReplyToID are posted as replies
// to that activity.
func (c *Client) SendToConversation(ctx context.Context, fromBotID, toBotID string, activity *core.Activity) (*core.ResourceResponse, error) {
	if activity.ServiceURL == "" {
		return nil, ErrMissingServiceURL
	}
	target := strings.TrimRight(activity.ServiceURL, "/") + "/v3/conversations/" + url.PathEscape(activity.ConversationID()) + "/activities"
	if activity.ReplyToID != "" {
		target += "/" + url.PathEscape(activity.ReplyToID)
	}

	status, body, err := c.post(ctx, fromBotID, toBotID, target, activity)
	if err != nil {
		return nil, err
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("send to conversation %s: status %d", activity.ConversationID(), status)
	}
	rr := &core.ResourceResponse{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, rr); err != nil {
			return nil, fmt.Errorf("decode resource response: %w", err)
		}
	}
	return rr, nil
}

func (c *Client) post(ctx context.Context, fromBotID, toBotID, target string, activity *core.Activity) (int, []byte, error) {
	payload, err := json.Marshal(activity)
	if err != nil {
		return 0, nil, fmt.Errorf("encode activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if len(c.secret) > 0 {
		token, err := issueToken(c.secret, c.opts.Issuer, fromBotID, toBotID, c.opts.TokenTTL, c.opts.Now())
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post activity to %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response from %s: %w", target, err)
	}
	c.opts.Logger.Debug("skill.http.post", "url", target, "activity_type", activity.Type, "status_code", resp.StatusCode)
	return resp.StatusCode, body, nil
}
