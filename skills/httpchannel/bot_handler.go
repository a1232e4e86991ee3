package httpchannel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

const maxRequestBytes = 1 << 20

// BotHandlerOptions configures a BotHandler.
type BotHandlerOptions struct {
	// Authenticator verifies callers. Nil accepts every request anonymously.
	Authenticator *Authenticator
	// Client delivers replies to the caller's skill host. Required unless
	// every caller uses expectReplies.
	Client *Client
	Logger logging.Logger
}

// BotHandler exposes a bot as a skill endpoint.
type BotHandler struct {
	bot  core.TurnHandler
	opts BotHandlerOptions
}

var _ http.Handler = (*BotHandler)(nil)

// NewBotHandler creates a BotHandler running bot for every posted activity.
func NewBotHandler(bot core.TurnHandler, optFns ...func(o *BotHandlerOptions)) *BotHandler {
	opts := BotHandlerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &BotHandler{bot: bot, opts: opts}
}

// ServeHTTP runs one turn for the posted activity.
func (h *BotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	claims, err := h.authenticate(r)
	if err != nil {
		h.opts.Logger.Debug("skill.http.unauthorized", "error", err)
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	activity, err := decodeActivity(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var sender core.ActivitySender
	buffer := &bufferedSender{}
	if activity.DeliveryMode == core.DeliveryModeExpectReplies {
		sender = buffer
	} else {
		sender = &replySender{client: h.opts.Client, claims: claims}
	}

	tc := core.NewTurnContext(ctx, sender, activity, h.opts.Logger)
	tc.TurnState().Set(core.BotIdentityKey, claims)

	if err := h.bot(tc); err != nil {
		h.opts.Logger.Error("skill.http.turn_failed", "activity_type", activity.Type, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "turn failed")
		return
	}

	switch {
	case activity.DeliveryMode == core.DeliveryModeExpectReplies:
		replies := buffer.activities()
		if invoke, ok := core.TurnValue[*core.Activity](tc.TurnState(), core.InvokeResponseKey); ok {
			replies = append(replies, invoke)
		}
		writeJSON(w, http.StatusOK, &core.ExpectedReplies{Activities: replies})
	case activity.IsActivity(core.ActivityTypeInvoke):
		resp := tc.InvokeResponse()
		if resp == nil {
			writeJSONError(w, http.StatusNotImplemented, "invoke not handled")
			return
		}
		writeJSON(w, resp.Status, resp.Body)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *BotHandler) authenticate(r *http.Request) (*core.ClaimsIdentity, error) {
	if h.opts.Authenticator == nil {
		return NewAuthenticator(nil, func(o *AuthenticatorOptions) { o.AllowAnonymous = true }).Authenticate(r)
	}
	return h.opts.Authenticator.Authenticate(r)
}

// bufferedSender collects replies to an expectReplies activity.
type bufferedSender struct {
	mu  sync.Mutex
	out []*core.Activity
}

func (s *bufferedSender) SendActivity(_ context.Context, a *core.Activity) (*core.ResourceResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, a)
	return &core.ResourceResponse{ID: a.ID}, nil
}

func (s *bufferedSender) activities() []*core.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.Activity{}, s.out...)
}

// replySender posts replies back to the caller's skill host, answering as
// the audience of the inbound token.
type replySender struct {
	client *Client
	claims *core.ClaimsIdentity
}

func (s *replySender) SendActivity(ctx context.Context, a *core.Activity) (*core.ResourceResponse, error) {
	if s.client == nil {
		return nil, errors.New("no client configured to deliver replies")
	}
	return s.client.SendToConversation(ctx, s.claims.Claim(core.ClaimAudience), s.claims.AppID(), a)
}

func decodeActivity(r *http.Request) (*core.Activity, error) {
	var activity core.Activity
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&activity); err != nil {
		return nil, errors.New("invalid activity payload")
	}
	if activity.Type == "" {
		return nil, errors.New("activity type is required")
	}
	return &activity, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
